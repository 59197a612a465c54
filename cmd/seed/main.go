/*
main.go - Fixture loader for local development and demos

PURPOSE:
  Seeds the asset types and system wallets (treasury, revenue) every write
  endpoint depends on, plus a couple of demo user wallets, against whichever
  store backend the environment selects. Mirrors cmd/server's store-opening
  logic rather than sharing it directly, since seeding only ever needs the
  narrow SeedAssetType/SeedWallet surface, not the full Repository contract.

USAGE:
  STORE_KIND=sqlite SQLITE_PATH=./wallet-ledger.db go run ./cmd/seed
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/wallet-ledger/internal/config"
	"github.com/warp/wallet-ledger/internal/ledger"
	"github.com/warp/wallet-ledger/internal/store/memory"
	"github.com/warp/wallet-ledger/internal/store/postgres"
	"github.com/warp/wallet-ledger/internal/store/sqlite"
)

// seeder is the narrow surface every store backend offers for fixture
// loading, bypassing the double-entry writer entirely.
type seeder interface {
	SeedAssetType(ctx context.Context, a ledger.AssetType) error
	SeedWallet(ctx context.Context, w ledger.Wallet) error
}

const goldAssetTypeID = "GOLD"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "seed failed:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	store, closeStore, err := openSeeder(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.SeedAssetType(ctx, ledger.AssetType{ID: goldAssetTypeID, Code: "GOLD", Name: "Gold", Active: true}); err != nil {
		return fmt.Errorf("seed asset type: %w", err)
	}

	wallets := []ledger.Wallet{
		systemWallet(cfg.System.TreasuryOwnerID, goldAssetTypeID),
		systemWallet(cfg.System.RevenueOwnerID, goldAssetTypeID),
		userWallet("U1", goldAssetTypeID),
		userWallet("U2", goldAssetTypeID),
	}
	for _, w := range wallets {
		if err := store.SeedWallet(ctx, w); err != nil {
			return fmt.Errorf("seed wallet %s: %w", w.ID, err)
		}
	}

	fmt.Printf("seeded asset type %s and %d wallets against store=%s\n", goldAssetTypeID, len(wallets), cfg.Store.Kind)
	return nil
}

func systemWallet(ownerID, assetTypeID string) ledger.Wallet {
	return ledger.Wallet{
		ID:          ownerID + ":" + assetTypeID,
		OwnerID:     ownerID,
		OwnerType:   ledger.OwnerSystem,
		AssetTypeID: assetTypeID,
	}
}

func userWallet(userID, assetTypeID string) ledger.Wallet {
	return ledger.Wallet{
		ID:          userID + ":" + assetTypeID,
		OwnerID:     userID,
		OwnerType:   ledger.OwnerUser,
		AssetTypeID: assetTypeID,
	}
}

func openSeeder(ctx context.Context, cfg config.Config) (seeder, func(), error) {
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
