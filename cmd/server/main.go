/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the wallet ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment
  2. Build a zap logger for the configured environment
  3. Open the configured store backend (memory, sqlite, or postgres)
  4. Connect to Redis for the distributed lock manager and idempotency store
  5. Wire the core executor, wrap it with metrics/tracing
  6. Configure the HTTP router and start serving, with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (bounded by shutdownTimeout)
  3. Close store/Redis connections
  4. Exit

SEE ALSO:
  api/server.go:        router configuration
  api/handlers.go:       HTTP handlers
  internal/config:       environment-derived configuration
  internal/store/...:    store backends
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/wallet-ledger/api"
	"github.com/warp/wallet-ledger/internal/config"
	idempotencyredis "github.com/warp/wallet-ledger/internal/idempotency/redis"
	"github.com/warp/wallet-ledger/internal/ledger"
	lockredis "github.com/warp/wallet-ledger/internal/lock/redis"
	"github.com/warp/wallet-ledger/internal/observability"
	"github.com/warp/wallet-ledger/internal/platform/logging"
	"github.com/warp/wallet-ledger/internal/query"
	"github.com/warp/wallet-ledger/internal/store/memory"
	"github.com/warp/wallet-ledger/internal/store/postgres"
	"github.com/warp/wallet-ledger/internal/store/sqlite"
)

const shutdownTimeout = 30 * time.Second

// coreRepository is the subset every store backend provides: both the
// ledger.Repository the core writes through and the query.Repository the
// HTTP read endpoints serve from.
type coreRepository interface {
	ledger.Repository
	query.Repository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
	})
	defer redisClient.Close()

	locks := lockredis.New(redisClient)
	idempotency := idempotencyredis.New(redisClient)

	coreExecutor := ledger.NewExecutor(repo, locks, idempotency)
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	instrumented := observability.NewInstrumentedExecutor(coreExecutor, metrics)

	queryService := query.New(repo, redisClient)

	handler := api.NewHandler(instrumented, queryService, cfg.System.TreasuryOwnerID, cfg.System.RevenueOwnerID)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.HTTPAddr()), zap.String("store", cfg.Store.Kind))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

// openStore builds the configured Repository/query.Repository and returns a
// cleanup function to be deferred by the caller.
func openStore(ctx context.Context, cfg config.Config) (coreRepository, func(), error) {
	switch cfg.Store.Kind {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		store := postgres.New(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	case "sqlite":
		store, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	default: // "memory"
		return memory.New(), func() {}, nil
	}
}
