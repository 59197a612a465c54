package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-ledger/internal/ledger"
)

func seedWallet(repo *memRepo, id, assetTypeID string, balance string) {
	repo.putWallet(ledger.Wallet{
		ID:          id,
		OwnerType:   ledger.OwnerUser,
		AssetTypeID: assetTypeID,
		Balance:     decimal.RequireFromString(balance),
		Version:     0,
	})
}

func TestDoubleEntryWriter_WritesBalancedEntries(t *testing.T) {
	repo := newMemRepo()
	seedWallet(repo, "treasury", "gold", "1000000")
	seedWallet(repo, "user-1", "gold", "50")

	w := ledger.NewDoubleEntryWriter(repo)

	amount := decimal.RequireFromString("25")
	txn, entries, err := w.Write(context.Background(), ledger.TxTopup, ledger.Operation{
		FromWalletID: "treasury",
		ToWalletID:   "user-1",
		AssetTypeID:  "gold",
		Amount:       amount,
	}, "idem-1")
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusCompleted, txn.Status)
	require.Len(t, entries, 2)

	var credit, debit *ledger.LedgerEntry
	for i := range entries {
		switch entries[i].EntryType {
		case ledger.EntryCredit:
			credit = &entries[i]
		case ledger.EntryDebit:
			debit = &entries[i]
		}
	}
	require.NotNil(t, credit)
	require.NotNil(t, debit)

	assert.True(t, credit.Amount.Equal(debit.Amount), "credit and debit amounts must match (double entry)")
	assert.True(t, credit.RunningBalance.Equal(decimal.RequireFromString("75")))
	assert.True(t, debit.RunningBalance.Equal(decimal.RequireFromString("999975")))

	treasury, _ := (&memTxReader{repo}).get("treasury")
	user1, _ := (&memTxReader{repo}).get("user-1")
	assert.True(t, treasury.Balance.Equal(decimal.RequireFromString("999975")))
	assert.True(t, user1.Balance.Equal(decimal.RequireFromString("75")))
	assert.EqualValues(t, 1, treasury.Version)
	assert.EqualValues(t, 1, user1.Version)
}

// memTxReader is a tiny read-only helper over memRepo's wallet map, used only
// to assert post-write state without reaching into unexported fields from a
// different test file's helper set.
type memTxReader struct {
	repo *memRepo
}

func (r *memTxReader) get(id string) (ledger.Wallet, bool) {
	r.repo.mu.Lock()
	defer r.repo.mu.Unlock()
	w, ok := r.repo.wallets[id]
	return w, ok
}

func TestDoubleEntryWriter_InsufficientBalance(t *testing.T) {
	repo := newMemRepo()
	seedWallet(repo, "user-1", "gold", "10")
	seedWallet(repo, "merchant-1", "gold", "0")

	w := ledger.NewDoubleEntryWriter(repo)

	_, _, err := w.Write(context.Background(), ledger.TxPurchase, ledger.Operation{
		FromWalletID: "user-1",
		ToWalletID:   "merchant-1",
		AssetTypeID:  "gold",
		Amount:       decimal.RequireFromString("100"),
	}, "idem-2")

	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestDoubleEntryWriter_SourceWalletNotFound(t *testing.T) {
	repo := newMemRepo()
	seedWallet(repo, "merchant-1", "gold", "0")

	w := ledger.NewDoubleEntryWriter(repo)
	_, _, err := w.Write(context.Background(), ledger.TxPurchase, ledger.Operation{
		FromWalletID: "does-not-exist",
		ToWalletID:   "merchant-1",
		AssetTypeID:  "gold",
		Amount:       decimal.RequireFromString("1"),
	}, "idem-3")

	assert.ErrorIs(t, err, ledger.ErrSourceWalletNotFound)
}

func TestDoubleEntryWriter_DestinationWalletNotFound(t *testing.T) {
	repo := newMemRepo()
	seedWallet(repo, "user-1", "gold", "10")

	w := ledger.NewDoubleEntryWriter(repo)
	_, _, err := w.Write(context.Background(), ledger.TxPurchase, ledger.Operation{
		FromWalletID: "user-1",
		ToWalletID:   "does-not-exist",
		AssetTypeID:  "gold",
		Amount:       decimal.RequireFromString("1"),
	}, "idem-4")

	assert.ErrorIs(t, err, ledger.ErrDestinationWalletNotFound)
}

func TestDoubleEntryWriter_MintHasNoSourceWallet(t *testing.T) {
	repo := newMemRepo()
	seedWallet(repo, "user-1", "gold", "0")

	w := ledger.NewDoubleEntryWriter(repo)
	_, entries, err := w.Write(context.Background(), ledger.TxTopup, ledger.Operation{
		ToWalletID:  "user-1",
		AssetTypeID: "gold",
		Amount:      decimal.RequireFromString("5"),
	}, "idem-5")

	require.NoError(t, err)
	require.Len(t, entries, 1, "a mint operation writes only the credit entry")
	assert.Equal(t, ledger.EntryCredit, entries[0].EntryType)
}

func TestDoubleEntryWriter_DuplicateIdempotencyKeyIsRejectedByRepo(t *testing.T) {
	repo := newMemRepo()
	seedWallet(repo, "treasury", "gold", "1000")
	seedWallet(repo, "user-1", "gold", "0")

	w := ledger.NewDoubleEntryWriter(repo)
	op := ledger.Operation{FromWalletID: "treasury", ToWalletID: "user-1", AssetTypeID: "gold", Amount: decimal.RequireFromString("1")}

	_, _, err := w.Write(context.Background(), ledger.TxTopup, op, "idem-same")
	require.NoError(t, err)

	_, _, err = w.Write(context.Background(), ledger.TxTopup, op, "idem-same")
	assert.ErrorIs(t, err, ledger.ErrIdempotencyKeyExists)
}
