package store

import (
	"context"
	"fmt"
	"sync"

	"authgate/internal/schema"
	"authgate/pkg/platform/sentinel"
)

// InMemoryStore keeps records in per-type buckets for tests and dev. It
// enforces unique fields inside its lock, so the check-and-insert pair is
// atomic here even though the engine also performs its own pre-insert check.
type InMemoryStore struct {
	mu      sync.RWMutex
	buckets map[string][]any // type name -> records
}

// NewInMemoryStore constructs an empty record store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{buckets: make(map[string][]any)}
}

func matchesRecord(rec any, matches []Match) bool {
	for _, m := range matches {
		if m.Field.Get(rec) != m.Value {
			return false
		}
	}
	return true
}

func (s *InMemoryStore) FindOne(_ context.Context, sch *schema.Schema, matches []Match) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.buckets[sch.TypeName()] {
		if matchesRecord(rec, matches) {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("record not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) Insert(_ context.Context, sch *schema.Schema, rec any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.buckets[sch.TypeName()] {
		for _, f := range sch.UniqueFields() {
			v := f.Get(rec)
			if v != "" && f.Get(existing) == v {
				return nil, fmt.Errorf("unique field %s already taken: %w", f.Name, sentinel.ErrConflict)
			}
		}
	}

	s.buckets[sch.TypeName()] = append(s.buckets[sch.TypeName()], rec)
	return rec, nil
}

// Update is a no-op for the in-memory store: records are held by reference,
// so field mutations made through schema accessors are already visible.
func (s *InMemoryStore) Update(_ context.Context, _ *schema.Schema, rec any) (any, error) {
	return rec, nil
}
