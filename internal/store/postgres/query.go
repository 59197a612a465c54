package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/warp/wallet-ledger/internal/ledger"
	"github.com/warp/wallet-ledger/internal/query"
)

// psql is the squirrel statement builder configured for Postgres's $N
// placeholder style. The query layer (read-only: ledger history and wallet
// statistics) is the one place in this repo where statements are assembled
// dynamically enough to benefit from a builder rather than the engine's
// fixed, hand-written statements in postgres.go/tx.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ListLedgerPage serves GET /api/v1/wallet/:userId/ledger: a filterable,
// paginated view over ledger_entries. entryType may be "" for both kinds.
// Implements query.Repository.
func (s *Store) ListLedgerPage(ctx context.Context, walletID string, entryType ledger.EntryType, limit int, before *string) (query.LedgerPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	builder := psql.Select(
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

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return query.LedgerPage{}, err
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return query.LedgerPage{}, err
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	return query.LedgerPage{Entries: entries, HasMore: hasMore}, nil
}

// WalletStats aggregates a wallet's ledger history. Built with squirrel
// because the query grows a WHERE clause per optional filter (asset type)
// the same way ListLedgerPage's does. Implements
// query.Repository.
func (s *Store) WalletStats(ctx context.Context, walletID string, assetTypeID string) (query.WalletStats, error) {
	builder := psql.Select(
		"COALESCE(SUM(CASE WHEN entry_type = 'CREDIT' THEN amount ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN entry_type = 'DEBIT' THEN amount ELSE 0 END), 0)",
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
	stats.WalletID = walletID
	row := s.pool.QueryRow(ctx, q, args...)
	if err := row.Scan(&stats.TotalCredited, &stats.TotalDebited, &stats.TransactionCount); err != nil {
		return query.WalletStats{}, err
	}
	return stats, nil
}
