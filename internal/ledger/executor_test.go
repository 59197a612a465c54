package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-ledger/internal/ledger"
)

func newTestExecutor() (*ledger.Executor, *memRepo) {
	repo := newMemRepo()
	return ledger.NewExecutor(repo, newMemLockManager(), newMemIdempotencyStore()), repo
}

func TestExecutor_RequiresIdempotencyKey(t *testing.T) {
	exec, _ := newTestExecutor()
	_, err := exec.Execute(context.Background(), ledger.Request{
		Type:      ledger.TxTopup,
		Operation: ledger.Operation{ToWalletID: "user-1", AssetTypeID: "gold", Amount: decimal.RequireFromString("1")},
	})
	assert.ErrorIs(t, err, ledger.ErrIdempotencyKeyRequired)
}

func TestExecutor_TopupSucceeds(t *testing.T) {
	exec, repo := newTestExecutor()
	seedWallet(repo, "treasury", "gold", "1000")
	seedWallet(repo, "user-1", "gold", "0")

	result, err := exec.Execute(context.Background(), ledger.Request{
		Type: ledger.TxTopup,
		Operation: ledger.Operation{
			FromWalletID: "treasury",
			ToWalletID:   "user-1",
			AssetTypeID:  "gold",
			Amount:       decimal.RequireFromString("10"),
		},
		IdempotencyKey: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, result.Status)
	assert.Equal(t, "10", result.ToBalance)
	assert.Equal(t, "990", result.FromBalance)
	assert.Empty(t, result.Error)
}

func TestExecutor_ReplayReturnsCachedResult(t *testing.T) {
	exec, repo := newTestExecutor()
	seedWallet(repo, "treasury", "gold", "1000")
	seedWallet(repo, "user-1", "gold", "0")

	req := ledger.Request{
		Type: ledger.TxTopup,
		Operation: ledger.Operation{
			FromWalletID: "treasury",
			ToWalletID:   "user-1",
			AssetTypeID:  "gold",
			Amount:       decimal.RequireFromString("10"),
		},
		IdempotencyKey: "req-replay",
	}

	first, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)

	second, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second, "a replayed request must return the exact same outcome, not re-run the operation")

	// Balance must not have moved a second time.
	user1, _ := (&memTxReader{repo}).get("user-1")
	assert.True(t, user1.Balance.Equal(decimal.RequireFromString("10")))
}

func TestExecutor_InsufficientBalanceIsCachedAsFailure(t *testing.T) {
	exec, repo := newTestExecutor()
	seedWallet(repo, "user-1", "gold", "5")
	seedWallet(repo, "merchant-1", "gold", "0")

	req := ledger.Request{
		Type: ledger.TxPurchase,
		Operation: ledger.Operation{
			FromWalletID: "user-1",
			ToWalletID:   "merchant-1",
			AssetTypeID:  "gold",
			Amount:       decimal.RequireFromString("100"),
		},
		IdempotencyKey: "req-fail",
	}

	result, err := exec.Execute(context.Background(), req)
	require.NoError(t, err, "a domain failure is reported via Result, not a Go error")
	assert.Equal(t, ledger.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)

	// Replaying must return the same cached failure rather than re-validating.
	second, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, result, second)
}

func TestExecutor_ConcurrentClaimIsRejected(t *testing.T) {
	_, repo := newTestExecutor()
	seedWallet(repo, "treasury", "gold", "1000")
	seedWallet(repo, "user-1", "gold", "0")

	idem := newMemIdempotencyStore()
	_, _ = idem.Claim(context.Background(), "req-inflight", ledger.DefaultClaimTTL)

	exec2 := ledger.NewExecutor(repo, newMemLockManager(), idem)
	_, err := exec2.Execute(context.Background(), ledger.Request{
		Type: ledger.TxTopup,
		Operation: ledger.Operation{
			FromWalletID: "treasury",
			ToWalletID:   "user-1",
			AssetTypeID:  "gold",
			Amount:       decimal.RequireFromString("1"),
		},
		IdempotencyKey: "req-inflight",
	})
	assert.ErrorIs(t, err, ledger.ErrRequestAlreadyProcessing)
}
