package session

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps revoked session ids in memory for tests and
// single-instance deployments. Safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // session id -> expiry
	clock   func() time.Time
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemoryStore constructs an empty denylist.
func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		revoked: make(map[string]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Revoke records the session id until its TTL passes. Revoking an already
// revoked id extends the entry, which keeps logout idempotent.
func (s *InMemoryStore) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	if sessionID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[sessionID] = s.clock().Add(ttl)
	return nil
}

// IsRevoked reports whether the session id is currently denylisted. Expired
// entries are pruned lazily on lookup.
func (s *InMemoryStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	s.mu.RLock()
	expiry, ok := s.revoked[sessionID]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if s.clock().After(expiry) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Revoke may have
		// refreshed the entry.
		if exp, ok := s.revoked[sessionID]; ok && s.clock().After(exp) {
			delete(s.revoked, sessionID)
		}
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}
