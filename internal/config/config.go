/*
Package config loads process configuration from environment variables.
All values MUST come from the environment; no business logic depends on raw
env vars directly. Grounded on telecom-platform's internal/config/config.go:
same Load/Validate split (defaults applied in Load, no side effects in
Validate) and the same joinErrors accumulation style so a misconfigured
deployment sees every problem in one error, not one-at-a-time.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every environment-derived setting the server needs.
type Config struct {
	App    AppConfig
	Store  StoreConfig
	DB     DBConfig
	Redis  RedisConfig
	System SystemConfig
}

// AppConfig controls the HTTP listener and environment tier.
type AppConfig struct {
	Env  string
	Port int
}

// StoreConfig selects and configures the Repository backend.
type StoreConfig struct {
	// Kind is one of "memory", "sqlite", "postgres".
	Kind       string
	SQLitePath string
}

// DBConfig configures the Postgres connection (Kind == "postgres" only).
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig configures the distributed lock manager and idempotency store.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

// SystemConfig names the platform-owned wallet owners every write endpoint
// moves funds against. A deployment seeds these once (see cmd/seed) before
// accepting traffic.
type SystemConfig struct {
	TreasuryOwnerID string
	RevenueOwnerID  string
}

// Load reads and validates configuration from the environment.
func Load() (Config, error) {
	var parseErrs []error
	var err error

	c := Config{}

	c.App.Env = strings.TrimSpace(envOr("APP_ENV", "local"))
	c.App.Port, err = intOr("APP_PORT", 8080)
	parseErrs = append(parseErrs, err)

	c.Store.Kind = strings.ToLower(strings.TrimSpace(envOr("STORE_KIND", "memory")))
	c.Store.SQLitePath = strings.TrimSpace(envOr("SQLITE_PATH", "./wallet-ledger.db"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, err = intOr("DB_PORT", 5432)
	parseErrs = append(parseErrs, err)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(envOr("DB_SSLMODE", "disable"))

	c.Redis.Host = strings.TrimSpace(envOr("REDIS_HOST", "localhost"))
	c.Redis.Port, err = intOr("REDIS_PORT", 6379)
	parseErrs = append(parseErrs, err)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.System.TreasuryOwnerID = strings.TrimSpace(envOr("TREASURY_OWNER_ID", "TREASURY"))
	c.System.RevenueOwnerID = strings.TrimSpace(envOr("REVENUE_OWNER_ID", "REVENUE"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate re-checks required fields and cross-field constraints. It never
// mutates c — defaults are applied in Load only.
func (c Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be local, dev, staging, or production"))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, errors.New("APP_PORT must be a valid port"))
	}

	switch c.Store.Kind {
	case "memory", "sqlite":
		// no further requirements
	case "postgres":
		if c.DB.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required when STORE_KIND=postgres"))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when STORE_KIND=postgres"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when STORE_KIND=postgres"))
		}
		if c.IsProduction() && c.DB.SSLMode == "disable" {
			errs = append(errs, errors.New("DB_SSLMODE must not be disable in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_KIND must be memory, sqlite, or postgres, got %q", c.Store.Kind))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, errors.New("REDIS_PORT is required"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	var actual []error
	for _, e := range errs {
		if e != nil {
			actual = append(actual, e)
		}
	}
	if len(actual) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range actual {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
