package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrWalletNotFound is the store-level sentinel for a missing wallet row.
// The double-entry writer maps it to KindSourceWalletNotFound or
// KindDestinationWalletNotFound depending on which read it came from.
var ErrWalletNotFound = errors.New("wallet not found")

// ErrIdempotencyKeyExists is the store-level sentinel for a unique-index
// violation on transactions.idempotencyKey. This is the durable guard behind
// the advisory cache: even if the idempotency cache was lost, a replayed
// request cannot produce two Transaction rows for the same key.
var ErrIdempotencyKeyExists = errors.New("idempotency key already exists")

// DefaultTxTimeout bounds the database transaction the double-entry writer
// runs inside. DefaultTxLockWait is defined alongside it, but no store in
// this repository applies it.
const (
	DefaultTxTimeout  = 10 * time.Second
	DefaultTxLockWait = 5 * time.Second
)

// Repository opens serializable database transactions for the double-entry
// writer to run inside. Concrete implementations live in
// internal/store/postgres, internal/store/sqlite (dev/test), and
// internal/store/memory (the in-process STORE_KIND=memory backend). The unit
// tests of this package use their own map-based fake (fakes_test.go).
type Repository interface {
	// WithSerializableTx opens a transaction at serializable isolation with
	// the given overall timeout, runs fn, and commits on success / rolls
	// back on any error returned by fn (including a panic-recovered one).
	WithSerializableTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx Tx) error) error

	// FindCompletedTransaction reconstructs a prior COMPLETED transaction
	// and its ledger entries, for the idempotency-cache-miss reconciliation
	// path. Returns hit=false if no COMPLETED transaction exists for the key.
	FindCompletedTransaction(ctx context.Context, idempotencyKey string) (txn Transaction, entries []LedgerEntry, hit bool, err error)
}

// Tx is the set of operations the double-entry writer performs inside one
// open database transaction.
type Tx interface {
	// GetWallet reads a wallet row by primary key. Returns ErrWalletNotFound
	// if absent.
	GetWallet(ctx context.Context, id string) (Wallet, error)

	// InsertTransactionHeader writes the Transaction row. Returns
	// ErrIdempotencyKeyExists on a unique-index violation.
	InsertTransactionHeader(ctx context.Context, txn Transaction) error

	// InsertLedgerEntry appends one immutable ledger entry.
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) error

	// CASUpdateWallet sets balance and increments version by exactly 1, only
	// if the stored version still equals expectedVersion. updated is false
	// if no row matched (lost the optimistic-concurrency race).
	CASUpdateWallet(ctx context.Context, walletID string, expectedVersion int64, newBalance decimal.Decimal) (updated bool, err error)
}
