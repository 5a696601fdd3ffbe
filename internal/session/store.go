// Package session implements the denylist of revoked session identifiers.
// Logout inserts the presented session id with a bounded TTL; the request
// gate consults it before honoring a bearer token.
package session

import (
	"context"
	"fmt"
	"time"

	"authgate/pkg/platform/sentinel"
)

// InvalidationStore is the capability the engine and the auth middleware
// depend on. Entries expire on their own after the TTL passes; no explicit
// eviction call is required.
type InvalidationStore interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}
