package ledger

import (
	"context"
	"time"
)

// DefaultLockTTL is the safety-net expiry for a held lock. Correctness never
// depends on completing within this window — it is a backstop against a
// crashed holder, not a correctness mechanism. The coordinator and writer
// must complete well inside it: the database transaction timeout plus a
// margin should always be less than this TTL.
const DefaultLockTTL = 30 * time.Second

// LockManager acquires and releases named, expiring, token-owned mutexes in
// an external key/value store reachable by every process instance. An
// implementation lives in internal/lock/redis; this package only depends on
// the interface, so the coordinator and executor never import a Redis
// client directly.
type LockManager interface {
	// Acquire attempts to set the named lock, only if currently absent, with
	// the given expiry. It returns an opaque token on success and
	// (false, "", nil) on contention — contention is not an error.
	Acquire(ctx context.Context, name string, ttl time.Duration) (ok bool, token string, err error)

	// Release deletes the named lock iff its current value equals token. It
	// is a safe no-op if the lock already expired and was reacquired by
	// someone else; release failures are never fatal to the caller — the
	// TTL guarantees eventual release — but are reported so the caller may
	// log them.
	Release(ctx context.Context, name, token string) error

	// Extend refreshes the named lock's expiry iff its current value equals
	// token. Unused by the coordinator's current retry discipline (attempts
	// complete well inside the TTL) but part of the contract for callers
	// that need longer-lived holds.
	Extend(ctx context.Context, name, token string, ttl time.Duration) error
}

// WalletLockName returns the canonical lock key for a wallet id
// (`lock:wallet:<walletId>`).
func WalletLockName(walletID string) string {
	return "lock:wallet:" + walletID
}
