package ledger

import (
	"context"
	"time"
)

// Default TTLs for cached idempotency outcomes and in-flight claims.
const (
	DefaultSuccessTTL = 24 * time.Hour
	DefaultFailureTTL = 1 * time.Hour
	DefaultClaimTTL   = 30 * time.Second
)

// StoredOutcome is what the idempotency store persists per key: either a
// completed Result or a cached domain failure, distinguished by Status.
// Result is what a replay returns in both cases; for a failure, Error and
// Kind also record the domain error.
type StoredOutcome struct {
	Status TransactionStatus
	Result Result
	Error  string
	Kind   Kind
}

// IdempotencyStore is an advisory, lossy cache of request -> result
// bindings, backed by an external key/value store. It is advisory because
// correctness under cache loss is preserved by the unique index on
// Transaction.idempotencyKey — a concrete implementation lives in
// internal/idempotency/redis.
type IdempotencyStore interface {
	// Check returns a prior completed or failed outcome for key, if present.
	Check(ctx context.Context, key string) (outcome StoredOutcome, hit bool, err error)

	// Store persists outcome under key for ttl.
	Store(ctx context.Context, key string, outcome StoredOutcome, ttl time.Duration) error

	// Claim sets the in-flight marker for key, only if absent. It returns
	// false if another caller already claimed it.
	Claim(ctx context.Context, key string, ttl time.Duration) (claimed bool, err error)

	// Unclaim deletes the in-flight marker. Always called from a finally
	// path regardless of the claimed work's outcome.
	Unclaim(ctx context.Context, key string) error
}
