/*
Package query implements the read-only collaborators kept outside the core:
balance read-through caching, ledger history, and wallet statistics. None of
this enters internal/ledger — the core never serves reads, and it never
carries an in-process mutable cache of wallets; this package is where that
cache lives instead.

Repository is deliberately an interface, not a concrete *postgres.Store:
internal/store/postgres, internal/store/sqlite, and internal/store/memory
all implement it, so cmd/server can wire the same Service regardless of
which backend STORE_KIND selects.
*/
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/warp/wallet-ledger/internal/ledger"
)

// DefaultBalanceCacheTTL bounds how stale a cached balance read may be. A
// write always goes through the core and never invalidates this cache
// directly — staleness is bounded by TTL alone, which is acceptable for a
// read that is explicitly a convenience view, not the authoritative balance.
const DefaultBalanceCacheTTL = 2 * time.Second

// LedgerPage is one page of a wallet's ledger history, newest first.
type LedgerPage struct {
	Entries []ledger.LedgerEntry
	HasMore bool
}

// WalletStats is the aggregate GET /api/v1/wallet/:userId/stats serves.
type WalletStats struct {
	WalletID         string
	TotalCredited    decimal.Decimal
	TotalDebited     decimal.Decimal
	TransactionCount int64
}

// Repository is the subset of a store's surface the read-only façade needs.
// Every concrete store in internal/store implements it alongside
// ledger.Repository; the two interfaces are kept separate because the core
// (internal/ledger) must never depend on this package or vice versa.
type Repository interface {
	GetWalletReadOnly(ctx context.Context, id string) (ledger.Wallet, bool, error)
	GetWalletByOwner(ctx context.Context, ownerID string, ownerType ledger.OwnerType, assetTypeID string) (ledger.Wallet, bool, error)
	CreateWalletIfAbsent(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error)
	ListLedgerPage(ctx context.Context, walletID string, entryType ledger.EntryType, limit int, before *string) (LedgerPage, error)
	WalletStats(ctx context.Context, walletID string, assetTypeID string) (WalletStats, error)
}

// Service answers the read endpoints the HTTP façade exposes.
type Service struct {
	repo  Repository
	cache *redis.Client
	ttl   time.Duration
}

// New builds a Service over repo, optionally caching balance reads in cache.
// cache may be nil, in which case every balance read goes straight to repo.
func New(repo Repository, cache *redis.Client) *Service {
	return &Service{repo: repo, cache: cache, ttl: DefaultBalanceCacheTTL}
}

// BalanceView is the wire shape for GET .../balance.
type BalanceView struct {
	WalletID    string          `json:"walletId"`
	AssetTypeID string          `json:"assetTypeId"`
	Balance     decimal.Decimal `json:"balance"`
	Version     int64           `json:"version"`
}

func balanceCacheKey(walletID string) string {
	return "balance-cache:" + walletID
}

// Balance serves a read-through cached balance lookup.
func (s *Service) Balance(ctx context.Context, walletID string) (BalanceView, bool, error) {
	if s.cache != nil {
		if view, ok, err := s.readCachedBalance(ctx, walletID); err == nil && ok {
			return view, true, nil
		}
	}

	w, ok, err := s.repo.GetWalletReadOnly(ctx, walletID)
	if err != nil {
		return BalanceView{}, false, err
	}
	if !ok {
		return BalanceView{}, false, nil
	}

	view := BalanceView{WalletID: w.ID, AssetTypeID: w.AssetTypeID, Balance: w.Balance, Version: w.Version}
	if s.cache != nil {
		s.writeCachedBalance(ctx, walletID, view)
	}
	return view, true, nil
}

func (s *Service) readCachedBalance(ctx context.Context, walletID string) (BalanceView, bool, error) {
	raw, err := s.cache.Get(ctx, balanceCacheKey(walletID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return BalanceView{}, false, nil
	}
	if err != nil {
		return BalanceView{}, false, err
	}
	var view BalanceView
	if err := json.Unmarshal(raw, &view); err != nil {
		return BalanceView{}, false, err
	}
	return view, true, nil
}

func (s *Service) writeCachedBalance(ctx context.Context, walletID string, view BalanceView) {
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	// Cache population is best-effort: a write failure just means the next
	// read falls through to the store again.
	_ = s.cache.Set(ctx, balanceCacheKey(walletID), raw, s.ttl).Err()
}

// Ledger serves GET .../ledger: a paginated, optionally entry-type-filtered
// view over a wallet's history.
func (s *Service) Ledger(ctx context.Context, walletID string, entryType ledger.EntryType, limit int, before *string) (LedgerPage, error) {
	return s.repo.ListLedgerPage(ctx, walletID, entryType, limit, before)
}

// Stats serves GET .../stats.
func (s *Service) Stats(ctx context.Context, walletID, assetTypeID string) (WalletStats, error) {
	return s.repo.WalletStats(ctx, walletID, assetTypeID)
}

// ResolveOrCreateWallet turns a (userId, assetTypeId) pair into a wallet id,
// creating a zero-balance wallet on first use. The HTTP façade calls this
// before a write ever reaches the executor, so the executor itself only
// ever sees wallet ids that already exist.
func (s *Service) ResolveOrCreateWallet(ctx context.Context, ownerID string, ownerType ledger.OwnerType, assetTypeID, newWalletID string) (ledger.Wallet, error) {
	existing, ok, err := s.repo.GetWalletByOwner(ctx, ownerID, ownerType, assetTypeID)
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("resolve wallet: %w", err)
	}
	if ok {
		return existing, nil
	}
	return s.repo.CreateWalletIfAbsent(ctx, ledger.Wallet{
		ID:          newWalletID,
		OwnerID:     ownerID,
		OwnerType:   ownerType,
		AssetTypeID: assetTypeID,
		Balance:     decimal.Zero,
	})
}
