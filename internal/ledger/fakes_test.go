package ledger_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/wallet-ledger/internal/ledger"
)

// memRepo is an in-process Repository/Tx fake. It serializes every call
// through a single mutex rather than simulating snapshot isolation — good
// enough to exercise the writer/executor's own locking and CAS discipline in
// unit tests without a real database.
type memRepo struct {
	mu           sync.Mutex
	wallets      map[string]ledger.Wallet
	transactions map[string]ledger.Transaction
	entries      map[string][]ledger.LedgerEntry // by transaction id
	byIdemKey    map[string]string                // idempotency key -> transaction id
}

func newMemRepo() *memRepo {
	return &memRepo{
		wallets:      map[string]ledger.Wallet{},
		transactions: map[string]ledger.Transaction{},
		entries:      map[string][]ledger.LedgerEntry{},
		byIdemKey:    map[string]string{},
	}
}

func (r *memRepo) putWallet(w ledger.Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[w.ID] = w
}

// WithSerializableTx snapshots the three maps it mutates and restores them if
// fn returns an error, the same snapshot/restore shape internal/store/memory
// uses to stand in for a real database's rollback.
func (r *memRepo) WithSerializableTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx ledger.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	walletsSnapshot := cloneWallets(r.wallets)
	txnsSnapshot := cloneTransactions(r.transactions)
	entriesSnapshot := cloneEntries(r.entries)
	idemSnapshot := cloneStrings(r.byIdemKey)

	err := fn(ctx, &memTx{r: r})
	if err != nil {
		r.wallets = walletsSnapshot
		r.transactions = txnsSnapshot
		r.entries = entriesSnapshot
		r.byIdemKey = idemSnapshot
	}
	return err
}

func cloneWallets(m map[string]ledger.Wallet) map[string]ledger.Wallet {
	out := make(map[string]ledger.Wallet, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTransactions(m map[string]ledger.Transaction) map[string]ledger.Transaction {
	out := make(map[string]ledger.Transaction, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneEntries(m map[string][]ledger.LedgerEntry) map[string][]ledger.LedgerEntry {
	out := make(map[string][]ledger.LedgerEntry, len(m))
	for k, v := range m {
		out[k] = append([]ledger.LedgerEntry(nil), v...)
	}
	return out
}

func cloneStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *memRepo) FindCompletedTransaction(ctx context.Context, idempotencyKey string) (ledger.Transaction, []ledger.LedgerEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byIdemKey[idempotencyKey]
	if !ok {
		return ledger.Transaction{}, nil, false, nil
	}
	txn := r.transactions[id]
	if txn.Status != ledger.StatusCompleted {
		return ledger.Transaction{}, nil, false, nil
	}
	return txn, append([]ledger.LedgerEntry(nil), r.entries[id]...), true, nil
}

// memTx is only safe for use while memRepo.mu is held, which
// WithSerializableTx guarantees for the duration of fn.
type memTx struct {
	r *memRepo
}

func (t *memTx) GetWallet(ctx context.Context, id string) (ledger.Wallet, error) {
	w, ok := t.r.wallets[id]
	if !ok {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	return w, nil
}

func (t *memTx) InsertTransactionHeader(ctx context.Context, txn ledger.Transaction) error {
	if _, exists := t.r.byIdemKey[txn.IdempotencyKey]; exists {
		return ledger.ErrIdempotencyKeyExists
	}
	t.r.transactions[txn.ID] = txn
	t.r.byIdemKey[txn.IdempotencyKey] = txn.ID
	return nil
}

func (t *memTx) InsertLedgerEntry(ctx context.Context, entry ledger.LedgerEntry) error {
	t.r.entries[entry.TransactionID] = append(t.r.entries[entry.TransactionID], entry)
	return nil
}

func (t *memTx) CASUpdateWallet(ctx context.Context, walletID string, expectedVersion int64, newBalance decimal.Decimal) (bool, error) {
	w, ok := t.r.wallets[walletID]
	if !ok {
		return false, ledger.ErrWalletNotFound
	}
	if w.Version != expectedVersion {
		return false, nil
	}
	w.Balance = newBalance
	w.Version++
	t.r.wallets[walletID] = w
	return true, nil
}

// memLockManager is a process-local LockManager fake: a plain mutex-guarded
// map keyed by lock name, values are owner tokens. Good enough to exercise
// the coordinator's ordering and retry discipline without a real Redis.
type memLockManager struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLockManager() *memLockManager {
	return &memLockManager{held: map[string]string{}}
}

func (l *memLockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[name]; taken {
		return false, "", nil
	}
	token := uuid.NewString()
	l.held[name] = token
	return true, token, nil
}

func (l *memLockManager) Release(ctx context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] == token {
		delete(l.held, name)
	}
	return nil
}

func (l *memLockManager) Extend(ctx context.Context, name, token string, ttl time.Duration) error {
	return nil
}

// memIdempotencyStore is an in-process IdempotencyStore fake.
type memIdempotencyStore struct {
	mu      sync.Mutex
	store   map[string]ledger.StoredOutcome
	claimed map[string]bool
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{
		store:   map[string]ledger.StoredOutcome{},
		claimed: map[string]bool{},
	}
}

func (s *memIdempotencyStore) Check(ctx context.Context, key string) (ledger.StoredOutcome, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, ok := s.store[key]
	return outcome, ok, nil
}

func (s *memIdempotencyStore) Store(ctx context.Context, key string, outcome ledger.StoredOutcome, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = outcome
	return nil
}

func (s *memIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[key] {
		return false, nil
	}
	s.claimed[key] = true
	return true, nil
}

func (s *memIdempotencyStore) Unclaim(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, key)
	return nil
}
