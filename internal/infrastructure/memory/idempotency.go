package memory

import (
	"context"
	"sync"
	"time"

	apporder "github.com/Zhima-Mochi/supershop/internal/application/order"
)

const defaultPendingTTL = 30 * time.Second

type idemEntry struct {
	receipt   apporder.Receipt
	done      bool
	expiresAt time.Time
}

func (e idemEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// IdempotencyStore keeps order idempotency keys in process memory.
type IdempotencyStore struct {
	mu         sync.Mutex
	entries    map[string]idemEntry
	ttl        time.Duration
	pendingTTL time.Duration
	now        func() time.Time
}

var _ apporder.IdempotencyStore = (*IdempotencyStore)(nil)

// NewIdempotencyStore keeps completed keys for ttl (zero: forever). Pending
// reservations expire after pendingTTL so an abandoned request cannot hold a key.
func NewIdempotencyStore(ttl, pendingTTL time.Duration) *IdempotencyStore {
	if pendingTTL <= 0 {
		pendingTTL = defaultPendingTTL
	}
	return &IdempotencyStore{
		entries:    make(map[string]idemEntry),
		ttl:        ttl,
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

func idemKey(scope, key string) string { return scope + "\x00" + key }

// Len reports how many keys are held, expired ones included until the next prune.
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// prune drops every expired entry. Callers hold mu.
func (s *IdempotencyStore) prune(now time.Time) {
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
}

func (s *IdempotencyStore) Reserve(ctx context.Context, scope, key string) (apporder.Receipt, bool, error) {
	if err := ctx.Err(); err != nil {
		return apporder.Receipt{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)

	k := idemKey(scope, key)
	if e, ok := s.entries[k]; ok {
		if !e.done {
			return apporder.Receipt{}, false, apporder.ErrKeyInFlight
		}
		return e.receipt, false, nil
	}
	s.entries[k] = idemEntry{expiresAt: now.Add(s.pendingTTL)}
	return apporder.Receipt{}, true, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, scope, key string, receipt apporder.Receipt) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = s.now().Add(s.ttl)
	}
	s.entries[idemKey(scope, key)] = idemEntry{receipt: receipt, done: true, expiresAt: expiresAt}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey(scope, key)
	if e, ok := s.entries[k]; ok && !e.done {
		delete(s.entries, k)
	}
	return nil
}
