/*
Package postgres provides the production ledger.Repository, backed by
jackc/pgx/v5 and pgxpool. Every write runs inside a transaction opened at
pgx.Serializable isolation: the distributed lock (internal/lock/redis)
serializes contenders before they reach the database, this isolation level
catches anything that slips through, and the per-wallet version CAS catches
the rest. Three layers of defence against the same class of race, each
cheap enough not to justify dropping the other two.
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/wallet-ledger/internal/ledger"
	"github.com/warp/wallet-ledger/internal/query"
)

// uniqueViolation is Postgres's SQLSTATE for a unique-index conflict.
const uniqueViolation = "23505"

// Store is a pgxpool-backed ledger.Repository and query.Repository.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ ledger.Repository = (*Store)(nil)
	_ query.Repository  = (*Store)(nil)
)

// New builds a Store over an already-configured pool. Callers construct the
// pool (internal/config derives the DSN) so pool tuning stays at the wiring
// layer.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the wallet/transaction/ledger schema if it does not
// already exist. Idempotent: safe to run on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS asset_types (
		id     TEXT PRIMARY KEY,
		code   TEXT NOT NULL UNIQUE,
		name   TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS wallets (
		id            TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL,
		owner_type    TEXT NOT NULL,
		asset_type_id TEXT NOT NULL REFERENCES asset_types(id),
		balance       NUMERIC(19,8) NOT NULL DEFAULT 0,
		version       BIGINT NOT NULL DEFAULT 0
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_wallets_owner_asset
		ON wallets(owner_id, owner_type, asset_type_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id              TEXT PRIMARY KEY,
		idempotency_key TEXT NOT NULL UNIQUE,
		type            TEXT NOT NULL,
		status          TEXT NOT NULL,
		metadata_json   JSONB,
		created_at      TIMESTAMPTZ NOT NULL,
		completed_at    TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id                     TEXT PRIMARY KEY,
		transaction_id         TEXT NOT NULL REFERENCES transactions(id),
		wallet_id              TEXT NOT NULL REFERENCES wallets(id),
		asset_type_id          TEXT NOT NULL REFERENCES asset_types(id),
		entry_type             TEXT NOT NULL,
		amount                 NUMERIC(19,8) NOT NULL,
		running_balance        NUMERIC(19,8) NOT NULL,
		counterparty_wallet_id TEXT,
		description            TEXT,
		created_at             TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_wallet_created
		ON ledger_entries(wallet_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_transaction
		ON ledger_entries(transaction_id);
	`)
	return err
}

// WithSerializableTx opens a pgx transaction at Serializable isolation,
// bounded by timeout, and runs fn inside it.
func (s *Store) WithSerializableTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx ledger.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin serializable tx: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &tx{pgTx: pgTx}); err != nil {
		return err
	}

	return pgTx.Commit(ctx)
}

// FindCompletedTransaction implements ledger.Repository, for the
// idempotency-cache-miss reconciliation path.
func (s *Store) FindCompletedTransaction(ctx context.Context, idempotencyKey string) (ledger.Transaction, []ledger.LedgerEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, idempotency_key, type, status, metadata_json, created_at, completed_at
		FROM transactions WHERE idempotency_key = $1 AND status = 'COMPLETED'`, idempotencyKey)

	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, nil, false, nil
	}
	if err != nil {
		return ledger.Transaction{}, nil, false, err
	}

	rows, err := s.pool.Query(ctx, entriesByTransactionQuery, txn.ID)
	if err != nil {
		return ledger.Transaction{}, nil, false, err
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return ledger.Transaction{}, nil, false, err
	}
	return txn, entries, true, nil
}

const entriesByTransactionQuery = `
	SELECT id, transaction_id, wallet_id, asset_type_id, entry_type, amount, running_balance,
	       counterparty_wallet_id, description, created_at
	FROM ledger_entries WHERE transaction_id = $1 ORDER BY created_at, id`

// GetWalletReadOnly reads a wallet outside of any transaction, used by the
// read-through balance cache (internal/query).
func (s *Store) GetWalletReadOnly(ctx context.Context, id string) (ledger.Wallet, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, owner_id, owner_type, asset_type_id, balance, version FROM wallets WHERE id = $1`, id)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Wallet{}, false, nil
	}
	if err != nil {
		return ledger.Wallet{}, false, err
	}
	return w, true, nil
}

// GetWalletByOwner reads a wallet by its (ownerId, ownerType, assetTypeId)
// unique key, used to resolve a user's wallet id before an HTTP handler
// calls the executor.
func (s *Store) GetWalletByOwner(ctx context.Context, ownerID string, ownerType ledger.OwnerType, assetTypeID string) (ledger.Wallet, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, owner_type, asset_type_id, balance, version
		FROM wallets WHERE owner_id = $1 AND owner_type = $2 AND asset_type_id = $3`,
		ownerID, string(ownerType), assetTypeID)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallets (id, owner_id, owner_type, asset_type_id, balance, version)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (owner_id, owner_type, asset_type_id) DO NOTHING`,
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

// SeedAssetType and SeedWallet insert fixture rows directly, for cmd/seed.
func (s *Store) SeedAssetType(ctx context.Context, a ledger.AssetType) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO asset_types (id, code, name, active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`, a.ID, a.Code, a.Name, a.Active)
	return err
}

func (s *Store) SeedWallet(ctx context.Context, w ledger.Wallet) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallets (id, owner_id, owner_type, asset_type_id, balance, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		w.ID, w.OwnerID, string(w.OwnerType), w.AssetTypeID, w.Balance.String(), w.Version)
	return err
}

// tx is the open-transaction view implementing ledger.Tx.
type tx struct {
	pgTx pgx.Tx
}

func (t *tx) GetWallet(ctx context.Context, id string) (ledger.Wallet, error) {
	row := t.pgTx.QueryRow(ctx, `
		SELECT id, owner_id, owner_type, asset_type_id, balance, version
		FROM wallets WHERE id = $1 FOR UPDATE`, id)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	return w, err
}

func (t *tx) InsertTransactionHeader(ctx context.Context, txn ledger.Transaction) error {
	metadataJSON, _ := json.Marshal(txn.Metadata)
	_, err := t.pgTx.Exec(ctx, `
		INSERT INTO transactions (id, idempotency_key, type, status, metadata_json, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		txn.ID, txn.IdempotencyKey, string(txn.Type), string(txn.Status), metadataJSON,
		txn.CreatedAt, txn.CompletedAt)
	if isUniqueViolation(err) {
		return ledger.ErrIdempotencyKeyExists
	}
	return err
}

func (t *tx) InsertLedgerEntry(ctx context.Context, entry ledger.LedgerEntry) error {
	_, err := t.pgTx.Exec(ctx, `
		INSERT INTO ledger_entries
		(id, transaction_id, wallet_id, asset_type_id, entry_type, amount, running_balance,
		 counterparty_wallet_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.TransactionID, entry.WalletID, entry.AssetTypeID, string(entry.EntryType),
		entry.Amount, entry.RunningBalance, nullableString(entry.CounterpartyWalletID),
		entry.Description, entry.CreatedAt)
	return err
}

func (t *tx) CASUpdateWallet(ctx context.Context, walletID string, expectedVersion int64, newBalance decimal.Decimal) (bool, error) {
	tag, err := t.pgTx.Exec(ctx, `
		UPDATE wallets SET balance = $1, version = version + 1
		WHERE id = $2 AND version = $3`,
		newBalance, walletID, expectedVersion)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (ledger.Wallet, error) {
	var w ledger.Wallet
	var ownerType string
	var balance decimal.Decimal
	if err := row.Scan(&w.ID, &w.OwnerID, &ownerType, &w.AssetTypeID, &balance, &w.Version); err != nil {
		return ledger.Wallet{}, err
	}
	w.OwnerType = ledger.OwnerType(ownerType)
	w.Balance = balance
	return w, nil
}

func scanTransaction(row rowScanner) (ledger.Transaction, error) {
	var txn ledger.Transaction
	var txType, status string
	var metadataJSON []byte
	if err := row.Scan(&txn.ID, &txn.IdempotencyKey, &txType, &status, &metadataJSON, &txn.CreatedAt, &txn.CompletedAt); err != nil {
		return ledger.Transaction{}, err
	}
	txn.Type = ledger.TransactionType(txType)
	txn.Status = ledger.TransactionStatus(status)
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &txn.Metadata)
	}
	return txn, nil
}

func scanLedgerEntries(rows pgx.Rows) ([]ledger.LedgerEntry, error) {
	var entries []ledger.LedgerEntry
	for rows.Next() {
		var e ledger.LedgerEntry
		var entryType string
		var counterparty *string
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.WalletID, &e.AssetTypeID, &entryType,
			&e.Amount, &e.RunningBalance, &counterparty, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EntryType = ledger.EntryType(entryType)
		if counterparty != nil {
			e.CounterpartyWalletID = *counterparty
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
