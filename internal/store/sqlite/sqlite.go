/*
Package sqlite provides a SQLite-backed ledger.Repository.

PURPOSE:
  A single-process, file- or memory-backed store for local development and
  integration tests, implementing the same Repository contract
  internal/store/postgres uses in production. Schema and isolation-level
  choice mirror the production Postgres store as closely as SQLite allows.

KEY TABLES:
  asset_types, wallets, ledger_entries, transactions — see migrate() for the
  exact DDL, matching the engine's data model.

WAL MODE:
  Opened with WAL for better read/write concurrency, even though a single
  *sql.DB only ever hands out one writer at a time.

SEE ALSO:
  internal/ledger/repository.go: the Repository/Tx contract implemented here
  internal/store/postgres:        the production counterpart
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/wallet-ledger/internal/ledger"
	"github.com/warp/wallet-ledger/internal/query"
)

// sqb is the squirrel statement builder configured for SQLite's "?"
// placeholder style, used by the same filterable read queries the
// postgres store builds with its own $N-flavoured builder.
var sqb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var (
	_ ledger.Repository = (*Store)(nil)
	_ query.Repository  = (*Store)(nil)
)

// Store is a SQLite-backed ledger.Repository.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (creating if absent) a SQLite database at dbPath and migrates
// its schema. Use ":memory:" for an ephemeral in-process database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS asset_types (
		id     TEXT PRIMARY KEY,
		code   TEXT NOT NULL UNIQUE,
		name   TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS wallets (
		id            TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL,
		owner_type    TEXT NOT NULL,
		asset_type_id TEXT NOT NULL REFERENCES asset_types(id),
		balance       TEXT NOT NULL DEFAULT '0',
		version       INTEGER NOT NULL DEFAULT 0
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_wallets_owner_asset
		ON wallets(owner_id, owner_type, asset_type_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id              TEXT PRIMARY KEY,
		idempotency_key TEXT NOT NULL UNIQUE,
		type            TEXT NOT NULL,
		status          TEXT NOT NULL,
		metadata_json   TEXT,
		created_at      TEXT NOT NULL,
		completed_at    TEXT
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id                     TEXT PRIMARY KEY,
		transaction_id         TEXT NOT NULL REFERENCES transactions(id),
		wallet_id              TEXT NOT NULL REFERENCES wallets(id),
		asset_type_id          TEXT NOT NULL REFERENCES asset_types(id),
		entry_type             TEXT NOT NULL,
		amount                 TEXT NOT NULL,
		running_balance        TEXT NOT NULL,
		counterparty_wallet_id TEXT,
		description            TEXT,
		created_at             TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_wallet_created
		ON ledger_entries(wallet_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_transaction
		ON ledger_entries(transaction_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithSerializableTx opens a SQLite transaction and requests SERIALIZABLE,
// the only isolation level the driver actually offers (SQLite itself is
// always serializable for a single writer). The store-level mutex exists
// only to avoid SQLITE_BUSY churn under the driver's single-writer model; it
// is not a substitute for the distributed lock, which the caller already
// holds by the time this is invoked.
func (s *Store) WithSerializableTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &tx{sqlTx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// FindCompletedTransaction implements ledger.Repository.
func (s *Store) FindCompletedTransaction(ctx context.Context, idempotencyKey string) (ledger.Transaction, []ledger.LedgerEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, type, status, metadata_json, created_at, completed_at
		FROM transactions WHERE idempotency_key = ? AND status = 'COMPLETED'`, idempotencyKey)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, nil, false, nil
	}
	if err != nil {
		return ledger.Transaction{}, nil, false, err
	}

	entries, err := s.loadEntriesByTransaction(ctx, txn.ID)
	if err != nil {
		return ledger.Transaction{}, nil, false, err
	}
	return txn, entries, true, nil
}

func (s *Store) loadEntriesByTransaction(ctx context.Context, transactionID string) ([]ledger.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, wallet_id, asset_type_id, entry_type, amount, running_balance,
		       counterparty_wallet_id, description, created_at
		FROM ledger_entries WHERE transaction_id = ? ORDER BY created_at, id`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetWalletReadOnly reads a wallet outside of any transaction, for the
// read-only query layer when running against the sqlite store.
func (s *Store) GetWalletReadOnly(ctx context.Context, id string) (ledger.Wallet, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, owner_id, owner_type, asset_type_id, balance, version FROM wallets WHERE id = ?`, id)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Wallet{}, false, nil
	}
	if err != nil {
		return ledger.Wallet{}, false, err
	}
	return w, true, nil
}

// ListEntriesReadOnly returns every ledger entry for a wallet, oldest first.
func (s *Store) ListEntriesReadOnly(ctx context.Context, walletID string) ([]ledger.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, wallet_id, asset_type_id, entry_type, amount, running_balance,
		       counterparty_wallet_id, description, created_at
		FROM ledger_entries WHERE wallet_id = ? ORDER BY created_at, id`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetWalletByOwner reads a wallet by its (ownerId, ownerType, assetTypeId)
// unique key, used to resolve a user's wallet id before an HTTP handler
// calls the executor.
func (s *Store) GetWalletByOwner(ctx context.Context, ownerID string, ownerType ledger.OwnerType, assetTypeID string) (ledger.Wallet, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, owner_type, asset_type_id, balance, version
		FROM wallets WHERE owner_id = ? AND owner_type = ? AND asset_type_id = ?`,
		ownerID, string(ownerType), assetTypeID)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Wallet{}, false, nil
	}
	if err != nil {
		return ledger.Wallet{}, false, err
	}
	return w, true, nil
}

// CreateWalletIfAbsent inserts a zero-balance wallet, used to auto-create a
// user's wallet on first use, before the request ever reaches the executor.
func (s *Store) CreateWalletIfAbsent(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO wallets (id, owner_id, owner_type, asset_type_id, balance, version)
		VALUES (?, ?, ?, ?, ?, 0)`,
		w.ID, w.OwnerID, string(w.OwnerType), w.AssetTypeID, w.Balance.String())
	if err != nil {
		return ledger.Wallet{}, err
	}
	existing, ok, err := s.GetWalletByOwner(ctx, w.OwnerID, w.OwnerType, w.AssetTypeID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if !ok {
		return ledger.Wallet{}, fmt.Errorf("wallet not found immediately after insert")
	}
	return existing, nil
}

// ListLedgerPage serves GET /api/v1/wallet/:userId/ledger when the server
// runs against SQLite. Implements query.Repository.
func (s *Store) ListLedgerPage(ctx context.Context, walletID string, entryType ledger.EntryType, limit int, before *string) (query.LedgerPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	builder := sqb.Select(
		"id", "transaction_id", "wallet_id", "asset_type_id", "entry_type",
		"amount", "running_balance", "counterparty_wallet_id", "description", "created_at",
	).From("ledger_entries").
		Where(sq.Eq{"wallet_id": walletID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit) + 1)

	if entryType != "" {
		builder = builder.Where(sq.Eq{"entry_type": string(entryType)})
	}
	if before != nil {
		builder = builder.Where(sq.Lt{"id": *before})
	}

	q, args, err := builder.ToSql()
	if err != nil {
		return query.LedgerPage{}, err
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return query.LedgerPage{}, err
	}
	defer rows.Close()

	var entries []ledger.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return query.LedgerPage{}, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return query.LedgerPage{}, err
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	return query.LedgerPage{Entries: entries, HasMore: hasMore}, nil
}

// WalletStats aggregates a wallet's ledger history. Implements
// query.Repository. Amounts are stored as TEXT here, so the aggregation
// goes through SQLite's REAL arithmetic rather than the exact decimal path
// Postgres's NUMERIC gets; acceptable for the dev-mode store this backs.
func (s *Store) WalletStats(ctx context.Context, walletID string, assetTypeID string) (query.WalletStats, error) {
	builder := sqb.Select(
		"COALESCE(SUM(CASE WHEN entry_type = 'CREDIT' THEN CAST(amount AS REAL) ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN entry_type = 'DEBIT' THEN CAST(amount AS REAL) ELSE 0 END), 0)",
		"COUNT(DISTINCT transaction_id)",
	).From("ledger_entries").Where(sq.Eq{"wallet_id": walletID})

	if assetTypeID != "" {
		builder = builder.Where(sq.Eq{"asset_type_id": assetTypeID})
	}

	q, args, err := builder.ToSql()
	if err != nil {
		return query.WalletStats{}, err
	}

	var stats query.WalletStats
	var credited, debited float64
	stats.WalletID = walletID
	row := s.db.QueryRowContext(ctx, q, args...)
	if err := row.Scan(&credited, &debited, &stats.TransactionCount); err != nil {
		return query.WalletStats{}, err
	}
	stats.TotalCredited = decimal.NewFromFloat(credited)
	stats.TotalDebited = decimal.NewFromFloat(debited)
	return stats, nil
}

// SeedAssetType and SeedWallet insert fixture rows directly, for cmd/seed.
func (s *Store) SeedAssetType(ctx context.Context, a ledger.AssetType) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO asset_types (id, code, name, active) VALUES (?, ?, ?, ?)`,
		a.ID, a.Code, a.Name, boolToInt(a.Active))
	return err
}

func (s *Store) SeedWallet(ctx context.Context, w ledger.Wallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO wallets (id, owner_id, owner_type, asset_type_id, balance, version)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.OwnerID, string(w.OwnerType), w.AssetTypeID, w.Balance.String(), w.Version)
	return err
}

// tx is the open-transaction view implementing ledger.Tx.
type tx struct {
	sqlTx *sql.Tx
}

func (t *tx) GetWallet(ctx context.Context, id string) (ledger.Wallet, error) {
	row := t.sqlTx.QueryRowContext(ctx, `SELECT id, owner_id, owner_type, asset_type_id, balance, version FROM wallets WHERE id = ?`, id)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	return w, err
}

func (t *tx) InsertTransactionHeader(ctx context.Context, txn ledger.Transaction) error {
	metadataJSON, _ := json.Marshal(txn.Metadata)
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO transactions (id, idempotency_key, type, status, metadata_json, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.IdempotencyKey, string(txn.Type), string(txn.Status), string(metadataJSON),
		txn.CreatedAt.UTC().Format(time.RFC3339Nano), txn.CompletedAt.UTC().Format(time.RFC3339Nano))
	if isUniqueConstraintError(err) {
		return ledger.ErrIdempotencyKeyExists
	}
	return err
}

func (t *tx) InsertLedgerEntry(ctx context.Context, entry ledger.LedgerEntry) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, transaction_id, wallet_id, asset_type_id, entry_type, amount, running_balance,
		 counterparty_wallet_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TransactionID, entry.WalletID, entry.AssetTypeID, string(entry.EntryType),
		entry.Amount.String(), entry.RunningBalance.String(), nullString(entry.CounterpartyWalletID),
		entry.Description, entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (t *tx) CASUpdateWallet(ctx context.Context, walletID string, expectedVersion int64, newBalance decimal.Decimal) (bool, error) {
	result, err := t.sqlTx.ExecContext(ctx, `
		UPDATE wallets SET balance = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		newBalance.String(), walletID, expectedVersion)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(row scanner) (ledger.Wallet, error) {
	var w ledger.Wallet
	var ownerType, balance string
	if err := row.Scan(&w.ID, &w.OwnerID, &ownerType, &w.AssetTypeID, &balance, &w.Version); err != nil {
		return ledger.Wallet{}, err
	}
	w.OwnerType = ledger.OwnerType(ownerType)
	bal, err := decimal.NewFromString(balance)
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("parse wallet balance: %w", err)
	}
	w.Balance = bal
	return w, nil
}

func scanTransaction(row scanner) (ledger.Transaction, error) {
	var txn ledger.Transaction
	var txType, status, metadataJSON string
	var createdAt, completedAt string
	if err := row.Scan(&txn.ID, &txn.IdempotencyKey, &txType, &status, &metadataJSON, &createdAt, &completedAt); err != nil {
		return ledger.Transaction{}, err
	}
	txn.Type = ledger.TransactionType(txType)
	txn.Status = ledger.TransactionStatus(status)
	if metadataJSON != "" {
		_ = json.Unmarshal([]byte(metadataJSON), &txn.Metadata)
	}
	txn.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	txn.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
	return txn, nil
}

func scanLedgerEntry(row scanner) (ledger.LedgerEntry, error) {
	var e ledger.LedgerEntry
	var entryType, amount, runningBalance, counterparty sql.NullString
	var createdAt string
	if err := row.Scan(&e.ID, &e.TransactionID, &e.WalletID, &e.AssetTypeID, &entryType, &amount,
		&runningBalance, &counterparty, &e.Description, &createdAt); err != nil {
		return ledger.LedgerEntry{}, err
	}
	e.EntryType = ledger.EntryType(entryType.String)
	e.CounterpartyWalletID = counterparty.String
	amt, err := decimal.NewFromString(amount.String)
	if err != nil {
		return ledger.LedgerEntry{}, fmt.Errorf("parse entry amount: %w", err)
	}
	e.Amount = amt
	bal, err := decimal.NewFromString(runningBalance.String)
	if err != nil {
		return ledger.LedgerEntry{}, fmt.Errorf("parse running balance: %w", err)
	}
	e.RunningBalance = bal
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
