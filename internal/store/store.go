// Package store defines the record lookup/persistence capability the engine
// consumes. Implementations are interface-driven so the engine stays testable
// and persistence can move between in-memory and PostgreSQL without rewiring
// business code.
package store

import (
	"context"

	"authgate/internal/schema"
)

// Match is one equality predicate over a schema-declared field.
type Match struct {
	Field schema.Field
	Value string
}

// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound (wrapped) when no record matches
// - Return sentinel.ErrConflict (wrapped) when a uniqueness constraint rejects a write
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
type RecordStore interface {
	// FindOne returns the first record of the schema's type matching every
	// predicate.
	FindOne(ctx context.Context, s *schema.Schema, matches []Match) (any, error)
	// Insert persists a new record and returns it.
	Insert(ctx context.Context, s *schema.Schema, rec any) (any, error)
	// Update persists field changes on an existing record and returns it.
	Update(ctx context.Context, s *schema.Schema, rec any) (any, error)
}
