package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DoubleEntryWriter performs the seven-step balanced write inside a single
// serializable database transaction: read both wallets,
// validate the source has sufficient balance, compute both new balances,
// append the credit entry then the debit entry, then CAS-update the
// destination wallet then the source wallet. It assumes the caller already
// holds the canonical locks for every wallet id involved (OrderedLockCoordinator)
// — the database transaction's serializable isolation is defense-in-depth,
// not the primary concurrency control.
type DoubleEntryWriter struct {
	repo Repository
}

// NewDoubleEntryWriter builds a writer over repo.
func NewDoubleEntryWriter(repo Repository) *DoubleEntryWriter {
	return &DoubleEntryWriter{repo: repo}
}

// Write executes op as txnType, under idempotencyKey, and returns the
// populated Transaction header plus the entries it wrote. The caller (the
// executor) must already hold the wallet locks for op's FromWalletID and
// ToWalletID.
func (w *DoubleEntryWriter) Write(ctx context.Context, txnType TransactionType, op Operation, idempotencyKey string) (Transaction, []LedgerEntry, error) {
	var (
		txn     Transaction
		entries []LedgerEntry
	)

	err := w.repo.WithSerializableTx(ctx, DefaultTxTimeout, func(ctx context.Context, tx Tx) error {
		var fromWallet, toWallet Wallet
		var haveFrom bool

		if op.FromWalletID != "" {
			var err error
			fromWallet, err = tx.GetWallet(ctx, op.FromWalletID)
			if err != nil {
				if errors.Is(err, ErrWalletNotFound) {
					return ErrSourceWalletNotFound
				}
				return err
			}
			haveFrom = true
		}

		toWallet, err := tx.GetWallet(ctx, op.ToWalletID)
		if err != nil {
			if errors.Is(err, ErrWalletNotFound) {
				return ErrDestinationWalletNotFound
			}
			return err
		}

		if haveFrom && fromWallet.Balance.LessThan(op.Amount) {
			return ErrInsufficientBalance
		}

		now := time.Now().UTC()
		txn = Transaction{
			ID:             uuid.NewString(),
			IdempotencyKey: idempotencyKey,
			Type:           txnType,
			Status:         StatusCompleted,
			CreatedAt:      now,
			CompletedAt:    now,
		}
		if err := tx.InsertTransactionHeader(ctx, txn); err != nil {
			return err
		}

		var newFromBalance decimal.Decimal
		newToBalance := toWallet.Balance.Add(op.Amount)

		creditEntry := LedgerEntry{
			ID:                   uuid.NewString(),
			TransactionID:        txn.ID,
			WalletID:             toWallet.ID,
			AssetTypeID:          op.AssetTypeID,
			EntryType:            EntryCredit,
			Amount:               op.Amount,
			RunningBalance:       newToBalance,
			CounterpartyWalletID: op.FromWalletID,
			Description:          op.Description,
			CreatedAt:            now,
		}
		if err := tx.InsertLedgerEntry(ctx, creditEntry); err != nil {
			return err
		}
		entries = append(entries, creditEntry)

		if haveFrom {
			newFromBalance = fromWallet.Balance.Sub(op.Amount)
			debitEntry := LedgerEntry{
				ID:                   uuid.NewString(),
				TransactionID:        txn.ID,
				WalletID:             fromWallet.ID,
				AssetTypeID:          op.AssetTypeID,
				EntryType:            EntryDebit,
				Amount:               op.Amount,
				RunningBalance:       newFromBalance,
				CounterpartyWalletID: op.ToWalletID,
				Description:          op.Description,
				CreatedAt:            now,
			}
			if err := tx.InsertLedgerEntry(ctx, debitEntry); err != nil {
				return err
			}
			entries = append(entries, debitEntry)
		}

		// Destination first, then source: a fixed order within the
		// transaction, rather than one that varies by which wallet happens
		// to be "from".
		updated, err := tx.CASUpdateWallet(ctx, toWallet.ID, toWallet.Version, newToBalance)
		if err != nil {
			return err
		}
		if !updated {
			return ErrConcurrentModDestination
		}

		if haveFrom {
			updated, err := tx.CASUpdateWallet(ctx, fromWallet.ID, fromWallet.Version, newFromBalance)
			if err != nil {
				return err
			}
			if !updated {
				return ErrConcurrentModSource
			}
		}

		return nil
	})
	if err != nil {
		return Transaction{}, nil, err
	}

	return txn, entries, nil
}
