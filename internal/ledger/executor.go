package ledger

import (
	"context"
	"errors"
)

// Executor is the public entry point of the engine: given a
// Request it deduplicates via the idempotency key, serializes access to the
// affected wallets, and performs the double-entry write exactly once.
type Executor struct {
	repo        Repository
	locks       *OrderedLockCoordinator
	idempotency IdempotencyStore
	writer      *DoubleEntryWriter
}

// NewExecutor wires the coordinator and writer over repo/locks/idempotency.
func NewExecutor(repo Repository, locks LockManager, idempotency IdempotencyStore) *Executor {
	return &Executor{
		repo:        repo,
		locks:       NewOrderedLockCoordinator(locks),
		idempotency: idempotency,
		writer:      NewDoubleEntryWriter(repo),
	}
}

// Execute runs req to completion or returns its previously-cached outcome.
// It never returns both a non-empty Result and a non-nil error for the same
// call: a non-retryable domain failure is reported as Result.Error with a nil
// error and cached, so a replay of the same idempotency key always sees the
// same shape of answer. A non-nil error return is never cached: it reports a
// missing idempotency key, a key already claimed by an in-flight call, a
// retryable failure (lock unavailable, lost CAS race), or an infrastructure
// failure; for the last two the caller may retry with the same key.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	if req.IdempotencyKey == "" {
		return Result{}, ErrIdempotencyKeyRequired
	}

	if outcome, hit, err := e.idempotency.Check(ctx, req.IdempotencyKey); err != nil {
		return Result{}, err
	} else if hit {
		return outcomeToResult(outcome), nil
	}

	claimed, err := e.idempotency.Claim(ctx, req.IdempotencyKey, DefaultClaimTTL)
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		return Result{}, ErrRequestAlreadyProcessing
	}
	defer func() {
		_ = e.idempotency.Unclaim(context.WithoutCancel(ctx), req.IdempotencyKey)
	}()

	walletIDs := []string{req.Operation.FromWalletID, req.Operation.ToWalletID}

	var (
		txn     Transaction
		entries []LedgerEntry
	)
	writeErr := e.locks.WithWalletLocks(ctx, walletIDs, func(ctx context.Context) error {
		var err error
		txn, entries, err = e.writer.Write(ctx, req.Type, req.Operation, req.IdempotencyKey)
		return err
	})

	if writeErr == nil {
		result := buildResult(txn, entries, req.Operation)
		_ = e.idempotency.Store(ctx, req.IdempotencyKey, StoredOutcome{
			Status: StatusCompleted,
			Result: result,
		}, DefaultSuccessTTL)
		return result, nil
	}

	if errors.Is(writeErr, ErrIdempotencyKeyExists) {
		// The durable unique-index guard caught a replay the advisory cache
		// missed: a prior call already completed this exact request.
		// Reconstruct its outcome from the database rather than treating the
		// collision as a new failure.
		priorTxn, priorEntries, hit, err := e.repo.FindCompletedTransaction(ctx, req.IdempotencyKey)
		if err != nil {
			return Result{}, err
		}
		if !hit {
			// The row exists but isn't COMPLETED yet (a concurrent writer is
			// still inside its transaction) — surface as already-processing
			// rather than guessing at an outcome.
			return Result{}, ErrRequestAlreadyProcessing
		}
		result := buildResult(priorTxn, priorEntries, req.Operation)
		_ = e.idempotency.Store(ctx, req.IdempotencyKey, StoredOutcome{
			Status: StatusCompleted,
			Result: result,
		}, DefaultSuccessTTL)
		return result, nil
	}

	if IsDomainError(writeErr) && !IsRetryable(writeErr) {
		result := Result{Status: StatusFailed, Error: writeErr.Error()}
		_ = e.idempotency.Store(ctx, req.IdempotencyKey, StoredOutcome{
			Status: StatusFailed,
			Result: result,
			Error:  writeErr.Error(),
			Kind:   KindOf(writeErr),
		}, DefaultFailureTTL)
		return result, nil
	}

	// Infrastructure or retryable failure: never cached, so a retry with the
	// same key gets a real attempt instead of a poisoned failure response.
	return Result{}, writeErr
}

func buildResult(txn Transaction, entries []LedgerEntry, op Operation) Result {
	result := Result{
		TransactionID: txn.ID,
		Status:        txn.Status,
	}
	for _, e := range entries {
		switch e.WalletID {
		case op.FromWalletID:
			result.FromBalance = e.RunningBalance.String()
		case op.ToWalletID:
			result.ToBalance = e.RunningBalance.String()
		}
	}
	return result
}

func outcomeToResult(outcome StoredOutcome) Result {
	return outcome.Result
}
