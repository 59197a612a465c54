/*
Package redis implements ledger.IdempotencyStore over go-redis/v9, using the
key/value layout:

	processing:<idempotencyKey>   -> "1"         TTL 30s
	idempotency:<idempotencyKey>  -> JSON result  TTL 86400s success / 3600s failure

Claim before work, store after, with TTLs split by outcome so a cached
failure expires sooner than a cached success and a retried caller gets a
real attempt again.
*/
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/warp/wallet-ledger/internal/ledger"
)

const (
	processingKeyPrefix  = "processing:"
	idempotencyKeyPrefix = "idempotency:"
	processingMarker     = "1"
)

// Store implements ledger.IdempotencyStore over a *redis.Client.
type Store struct {
	client *goredis.Client
}

// New builds a Store over an already-connected client.
func New(client *goredis.Client) *Store {
	return &Store{client: client}
}

var _ ledger.IdempotencyStore = (*Store)(nil)

func (s *Store) Check(ctx context.Context, key string) (ledger.StoredOutcome, bool, error) {
	raw, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return ledger.StoredOutcome{}, false, nil
	}
	if err != nil {
		return ledger.StoredOutcome{}, false, err
	}

	var outcome ledger.StoredOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return ledger.StoredOutcome{}, false, err
	}
	return outcome, true, nil
}

func (s *Store) Store(ctx context.Context, key string, outcome ledger.StoredOutcome, ttl time.Duration) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, idempotencyKeyPrefix+key, raw, ttl).Err()
}

func (s *Store) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, processingKeyPrefix+key, processingMarker, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Store) Unclaim(ctx context.Context, key string) error {
	err := s.client.Del(ctx, processingKeyPrefix+key).Err()
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	return err
}
