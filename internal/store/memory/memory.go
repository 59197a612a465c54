// Package memory provides an in-process ledger.Repository: a map-based store
// with snapshot/restore standing in for a real database transaction's
// rollback. It backs the server under `STORE_KIND=memory` for local development and
// the seed/demo CLI; production deployments use internal/store/postgres.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/wallet-ledger/internal/ledger"
	"github.com/warp/wallet-ledger/internal/query"
)

var (
	_ ledger.Repository = (*Store)(nil)
	_ query.Repository  = (*Store)(nil)
)

// Store is a process-local Repository. All state is lost on restart.
type Store struct {
	mu sync.Mutex

	wallets      map[string]ledger.Wallet
	assetTypes   map[string]ledger.AssetType
	transactions map[string]ledger.Transaction
	entries      map[string][]ledger.LedgerEntry
	byIdemKey    map[string]string
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		wallets:      make(map[string]ledger.Wallet),
		assetTypes:   make(map[string]ledger.AssetType),
		transactions: make(map[string]ledger.Transaction),
		entries:      make(map[string][]ledger.LedgerEntry),
		byIdemKey:    make(map[string]string),
	}
}

// SeedAssetType registers an asset type directly, bypassing the writer. Used
// by cmd/seed and tests to establish fixtures.
func (s *Store) SeedAssetType(ctx context.Context, a ledger.AssetType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assetTypes[a.ID] = a
	return nil
}

// SeedWallet registers a wallet directly, bypassing the writer.
func (s *Store) SeedWallet(ctx context.Context, w ledger.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.ID] = w
	return nil
}

// GetWalletReadOnly reads a wallet outside of any transaction, for the
// read-only query layer (internal/query) when running against the memory
// store. Implements query.Repository.
func (s *Store) GetWalletReadOnly(ctx context.Context, id string) (ledger.Wallet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	return w, ok, nil
}

// GetWalletByOwner reads a wallet by its (ownerId, ownerType, assetTypeId)
// unique key, used to resolve a user's wallet id before an HTTP handler
// calls the executor. Implements query.Repository.
func (s *Store) GetWalletByOwner(ctx context.Context, ownerID string, ownerType ledger.OwnerType, assetTypeID string) (ledger.Wallet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.OwnerID == ownerID && w.OwnerType == ownerType && w.AssetTypeID == assetTypeID {
			return w, true, nil
		}
	}
	return ledger.Wallet{}, false, nil
}

// CreateWalletIfAbsent inserts a zero-balance wallet, used to auto-create a
// user's wallet on first use, before the request ever reaches the executor.
// Implements query.Repository.
func (s *Store) CreateWalletIfAbsent(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.wallets {
		if existing.OwnerID == w.OwnerID && existing.OwnerType == w.OwnerType && existing.AssetTypeID == w.AssetTypeID {
			return existing, nil
		}
	}
	if !w.Balance.IsZero() {
		// CreateWalletIfAbsent only ever seeds zero-balance wallets; a
		// non-zero starting balance would bypass the double-entry writer.
		return ledger.Wallet{}, fmt.Errorf("create wallet if absent: non-zero starting balance %s", w.Balance)
	}
	w.Version = 0
	s.wallets[w.ID] = w
	return w, nil
}

// ListLedgerPage serves GET /api/v1/wallet/:userId/ledger when the server
// runs against the in-process memory store. Implements query.Repository.
func (s *Store) ListLedgerPage(ctx context.Context, walletID string, entryType ledger.EntryType, limit int, before *string) (query.LedgerPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	s.mu.Lock()
	var matched []ledger.LedgerEntry
	for _, byTxn := range s.entries {
		for _, e := range byTxn {
			if e.WalletID != walletID {
				continue
			}
			if entryType != "" && e.EntryType != entryType {
				continue
			}
			matched = append(matched, e)
		}
	}
	s.mu.Unlock()

	// Newest first, matching the SQL stores' ORDER BY created_at DESC.
	for i := 1; i < len(matched); i++ {
		for j := i; j > 0 && matched[j].CreatedAt.After(matched[j-1].CreatedAt); j-- {
			matched[j], matched[j-1] = matched[j-1], matched[j]
		}
	}

	if before != nil {
		for i, e := range matched {
			if e.ID == *before {
				matched = matched[i+1:]
				break
			}
		}
	}

	hasMore := len(matched) > limit
	if hasMore {
		matched = matched[:limit]
	}
	return query.LedgerPage{Entries: matched, HasMore: hasMore}, nil
}

// WalletStats aggregates a wallet's ledger history. Implements
// query.Repository.
func (s *Store) WalletStats(ctx context.Context, walletID string, assetTypeID string) (query.WalletStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := query.WalletStats{WalletID: walletID, TotalCredited: decimal.Zero, TotalDebited: decimal.Zero}
	seenTxns := make(map[string]struct{})
	for _, byTxn := range s.entries {
		for _, e := range byTxn {
			if e.WalletID != walletID {
				continue
			}
			if assetTypeID != "" && e.AssetTypeID != assetTypeID {
				continue
			}
			switch e.EntryType {
			case ledger.EntryCredit:
				stats.TotalCredited = stats.TotalCredited.Add(e.Amount)
			case ledger.EntryDebit:
				stats.TotalDebited = stats.TotalDebited.Add(e.Amount)
			}
			seenTxns[e.TransactionID] = struct{}{}
		}
	}
	stats.TransactionCount = int64(len(seenTxns))
	return stats, nil
}

// ListEntries returns every ledger entry for a wallet, oldest first, for the
// read-only query layer.
func (s *Store) ListEntries(ctx context.Context, walletID string) []ledger.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ledger.LedgerEntry
	for _, byTxn := range s.entries {
		for _, e := range byTxn {
			if e.WalletID == walletID {
				out = append(out, e)
			}
		}
	}
	sortEntriesByCreatedAt(out)
	return out
}

func sortEntriesByCreatedAt(entries []ledger.LedgerEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].CreatedAt.Before(entries[j-1].CreatedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// WithSerializableTx snapshots mutable state and restores it if fn returns an
// error — the memory analogue of a rolled-back database transaction. Correct
// concurrent use still depends on the caller holding the wallet locks (the
// store's own mutex only protects the Go maps from a data race, not from two
// writers racing each other's business logic).
func (s *Store) WithSerializableTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	err := fn(ctx, &tx{s: s})
	if err != nil {
		s.restore(snapshot)
	}
	return err
}

// FindCompletedTransaction implements ledger.Repository for the idempotency
// reconciliation path.
func (s *Store) FindCompletedTransaction(ctx context.Context, idempotencyKey string) (ledger.Transaction, []ledger.LedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIdemKey[idempotencyKey]
	if !ok {
		return ledger.Transaction{}, nil, false, nil
	}
	txn := s.transactions[id]
	if txn.Status != ledger.StatusCompleted {
		return ledger.Transaction{}, nil, false, nil
	}
	return txn, append([]ledger.LedgerEntry(nil), s.entries[id]...), true, nil
}

type snapshot struct {
	wallets      map[string]ledger.Wallet
	transactions map[string]ledger.Transaction
	entries      map[string][]ledger.LedgerEntry
	byIdemKey    map[string]string
}

func (s *Store) snapshot() snapshot {
	wallets := make(map[string]ledger.Wallet, len(s.wallets))
	for k, v := range s.wallets {
		wallets[k] = v
	}
	transactions := make(map[string]ledger.Transaction, len(s.transactions))
	for k, v := range s.transactions {
		transactions[k] = v
	}
	entries := make(map[string][]ledger.LedgerEntry, len(s.entries))
	for k, v := range s.entries {
		entries[k] = append([]ledger.LedgerEntry(nil), v...)
	}
	byIdemKey := make(map[string]string, len(s.byIdemKey))
	for k, v := range s.byIdemKey {
		byIdemKey[k] = v
	}
	return snapshot{wallets: wallets, transactions: transactions, entries: entries, byIdemKey: byIdemKey}
}

func (s *Store) restore(snap snapshot) {
	s.wallets = snap.wallets
	s.transactions = snap.transactions
	s.entries = snap.entries
	s.byIdemKey = snap.byIdemKey
}

// tx is only safe for use while Store.mu is held, which WithSerializableTx
// guarantees for the duration of fn.
type tx struct {
	s *Store
}

func (t *tx) GetWallet(ctx context.Context, id string) (ledger.Wallet, error) {
	w, ok := t.s.wallets[id]
	if !ok {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	return w, nil
}

func (t *tx) InsertTransactionHeader(ctx context.Context, txn ledger.Transaction) error {
	if _, exists := t.s.byIdemKey[txn.IdempotencyKey]; exists {
		return ledger.ErrIdempotencyKeyExists
	}
	t.s.transactions[txn.ID] = txn
	t.s.byIdemKey[txn.IdempotencyKey] = txn.ID
	return nil
}

func (t *tx) InsertLedgerEntry(ctx context.Context, entry ledger.LedgerEntry) error {
	t.s.entries[entry.TransactionID] = append(t.s.entries[entry.TransactionID], entry)
	return nil
}

func (t *tx) CASUpdateWallet(ctx context.Context, walletID string, expectedVersion int64, newBalance decimal.Decimal) (bool, error) {
	w, ok := t.s.wallets[walletID]
	if !ok {
		return false, ledger.ErrWalletNotFound
	}
	if w.Version != expectedVersion {
		return false, nil
	}
	w.Balance = newBalance
	w.Version++
	t.s.wallets[walletID] = w
	return true, nil
}
