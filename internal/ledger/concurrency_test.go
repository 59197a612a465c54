package ledger_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-ledger/internal/ledger"
)

// TestExecutor_ConcurrentTransfersPreserveInvariants runs many concurrent
// workers moving funds between a small pool of wallets, each picking a
// random ordered pair every iteration. It asserts two things no individual
// unit test exercises:
//
//  1. Deadlock-freedom: the whole run finishes well inside its deadline,
//     regardless of how often two workers pick opposite-direction pairs.
//  2. Conservation: the total balance across every wallet never changes,
//     since every successful write is a balanced movement between two of
//     them and no money enters or leaves the closed set.
func TestExecutor_ConcurrentTransfersPreserveInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrency soak test in -short mode")
	}

	// Bounded by operation count rather than wall-clock duration, so the
	// test has a predictable runtime; 64 workers * 50 ops is still enough
	// contention on 4 wallets to exercise the coordinator's ordering.
	const (
		numWallets    = 4
		numWorkers    = 64
		perWorkerOps  = 50
		startBalance  = "1000"
		assetTypeID   = "gold"
		overallBudget = 10 * time.Second
	)

	repo := newMemRepo()
	walletIDs := make([]string, numWallets)
	for i := range walletIDs {
		walletIDs[i] = fmt.Sprintf("wallet-%d", i)
		seedWallet(repo, walletIDs[i], assetTypeID, startBalance)
	}

	exec := ledger.NewExecutor(repo, newMemLockManager(), newMemIdempotencyStore())

	initialTotal := decimal.RequireFromString(startBalance).Mul(decimal.NewFromInt(numWallets))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(workerID) + 1))
			for i := 0; i < perWorkerOps; i++ {
				from := walletIDs[rng.Intn(numWallets)]
				to := walletIDs[rng.Intn(numWallets)]
				if from == to {
					continue
				}
				key := fmt.Sprintf("worker-%d-op-%d", workerID, i)
				_, err := exec.Execute(context.Background(), ledger.Request{
					Type: ledger.TxPurchase,
					Operation: ledger.Operation{
						FromWalletID: from,
						ToWalletID:   to,
						AssetTypeID:  assetTypeID,
						Amount:       decimal.NewFromInt(1),
					},
					IdempotencyKey: key,
				})
				// Insufficient balance is an expected outcome once a wallet
				// drains; only an unexpected Go error (lock/infra failure)
				// fails the test.
				require.NoError(t, err)
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(overallBudget):
		t.Fatalf("concurrent transfers did not complete within %s: suspected deadlock", overallBudget)
	}

	total := decimal.Zero
	for _, id := range walletIDs {
		w, ok := (&memTxReader{repo}).get(id)
		require.True(t, ok)
		assert.True(t, w.Balance.GreaterThanOrEqual(decimal.Zero), "wallet %s went negative: %s", id, w.Balance)
		total = total.Add(w.Balance)
	}
	assert.True(t, total.Equal(initialTotal), "total balance drifted: got %s, want %s", total, initialTotal)
}
