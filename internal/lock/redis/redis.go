/*
Package redis implements ledger.LockManager over go-redis/v9.

Acquire is a plain SET NX PX — Redis only ever grants the key to one
caller. Release and Extend need an atomic compare-then-act so a caller can
never release or extend a lock it no longer owns (the token may have
expired and been re-acquired by someone else); both are small Lua scripts,
grounded on the telecom-platform redis helper's
concurrencyAcquireScript/concurrencyReleaseScript pattern retrieved
alongside this spec.
*/
package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/warp/wallet-ledger/internal/ledger"
)

// releaseScript deletes KEYS[1] only if its value still equals ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// extendScript refreshes KEYS[1]'s TTL only if its value still equals ARGV[1].
var extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// Manager implements ledger.LockManager over a *redis.Client.
type Manager struct {
	client *redis.Client
}

// New builds a Manager over an already-connected client.
func New(client *redis.Client) *Manager {
	return &Manager{client: client}
}

var _ ledger.LockManager = (*Manager)(nil)

// name is already the full key (e.g. WalletLockName's "lock:wallet:<id>") —
// this package adds no prefix of its own.
func (m *Manager) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, string, error) {
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return false, "", err
	}
	if !ok {
		return false, "", nil
	}
	return true, token, nil
}

func (m *Manager) Release(ctx context.Context, name, token string) error {
	_, err := releaseScript.Run(ctx, m.client, []string{name}, token).Result()
	// redis.Nil is returned by some client versions for a script returning 0
	// via certain reply types; releasing a lock that is already gone is not
	// an error.
	if err == redis.Nil {
		return nil
	}
	return err
}

func (m *Manager) Extend(ctx context.Context, name, token string, ttl time.Duration) error {
	_, err := extendScript.Run(ctx, m.client, []string{name}, token, ttl.Milliseconds()).Result()
	if err == redis.Nil {
		return nil
	}
	return err
}
