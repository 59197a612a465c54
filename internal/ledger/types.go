/*
Package ledger implements the wallet transaction engine: idempotent,
lock-serialized, double-entry writes to wallet balances.

PURPOSE:
  This is the authoritative wallet ledger core. Given a TOPUP, BONUS, or
  PURCHASE request it deduplicates via an
  idempotency key, serializes concurrent access to the affected wallets
  under a deadlock-free locking discipline, and writes exactly one
  transaction header, two ledger entries, and two balance/version updates
  inside a single serializable database transaction.

SCOPE:
  HTTP handling, request validation, rate limiting, logging, read-through
  balance caching, and wallet statistics queries are external collaborators
  and live outside this package. This package never imports net/http,
  a logging library, or a metrics client.

NON-GOALS:
  Authentication, cross-asset-type conversion, multi-leg (n>2) transactions,
  reversal as a distinct operation (reversals are fresh transactions with
  opposite direction), cross-region replication, asynchronous settlement.

SEE ALSO:
  errors.go:      closed error taxonomy
  amount.go:      decimal parsing/validation
  lock.go:        distributed lock manager contract
  idempotency.go: idempotency store contract
  coordinator.go: ordered-lock coordinator
  writer.go:      double-entry writer
  executor.go:    the public Execute entry point
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnerType distinguishes human-owned wallets from platform-owned ones.
type OwnerType string

const (
	OwnerUser   OwnerType = "USER"
	OwnerSystem OwnerType = "SYSTEM"
)

// EntryType is the DEBIT/CREDIT side of a LedgerEntry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionType is the business action a Transaction records.
type TransactionType string

const (
	TxTopup    TransactionType = "TOPUP"
	TxBonus    TransactionType = "BONUS"
	TxPurchase TransactionType = "PURCHASE"
	// TxTransfer is reserved: the schema carries it but no operation in this
	// engine constructs one.
	TxTransfer TransactionType = "TRANSFER"
)

// TransactionStatus is the lifecycle state of a Transaction header.
//
// This engine only ever writes COMPLETED: a transaction that does not reach
// the double-entry writer's final CAS update is rolled back by the
// enclosing database transaction and leaves no row at all. FAILED and
// ROLLED_BACK are carried in the enum for forward compatibility but nothing
// in this package writes them.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusRolledBack TransactionStatus = "ROLLED_BACK"
)

// AssetType is a currency/point class (gold, diamonds, loyalty points).
// Seeded once; effectively immutable to this package.
type AssetType struct {
	ID     string
	Code   string
	Name   string
	Active bool
}

// Wallet is the (owner, asset) balance record. Mutated only by the
// double-entry writer, always under the canonical lock for its id and a
// version compare-and-swap.
type Wallet struct {
	ID          string
	OwnerID     string
	OwnerType   OwnerType
	AssetTypeID string
	Balance     decimal.Decimal
	Version     int64
}

// LedgerEntry is an immutable, append-only DEBIT or CREDIT record for a
// wallet, carrying a running balance snapshot. Never updated, never deleted.
type LedgerEntry struct {
	ID                   string
	TransactionID        string
	WalletID             string
	AssetTypeID          string
	EntryType            EntryType
	Amount               decimal.Decimal
	RunningBalance       decimal.Decimal
	CounterpartyWalletID string // empty for a mint/burn entry with no counterparty
	Description          string
	CreatedAt            time.Time
}

// Transaction is the header anchoring exactly two LedgerEntry rows (or one,
// for a pure mint/burn variant without a counterparty wallet — unused by
// this deployment, which models treasury and revenue as real wallets).
type Transaction struct {
	ID             string
	IdempotencyKey string
	Type           TransactionType
	Status         TransactionStatus
	Metadata       map[string]string
	CreatedAt      time.Time
	CompletedAt    time.Time
}

// Operation is the input to the double-entry writer: a single balanced
// movement between at most two wallets.
type Operation struct {
	FromWalletID string // empty for mint (no source wallet)
	ToWalletID   string
	AssetTypeID  string
	Amount       decimal.Decimal
	Description  string
}

// Request is the input to Execute: a caller's ledger operation.
type Request struct {
	Type           TransactionType
	Operation      Operation
	IdempotencyKey string
}

// Result is the wire-level outcome of Execute. FromBalance is empty for
// mint operations with no source wallet.
type Result struct {
	TransactionID string
	Status        TransactionStatus
	FromBalance   string
	ToBalance     string
	Error         string
}
