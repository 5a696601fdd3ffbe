package session

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	isRevokedDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "authgate_is_session_revoked_duration_ms",
		Help:    "Latency of session denylist checks in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
)

const revokedSessionKeyPrefix = "denylist:session:"

// RedisStore is a Redis-backed denylist. This is the production-recommended
// implementation for distributed deployments where multiple instances need to
// share revocation state.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed session denylist.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Revoke adds a session id to the denylist with TTL.
// Uses SET with expiry for an atomic set-with-expiry.
func (s *RedisStore) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	if sessionID == "" {
		return nil
	}
	key := revokedSessionKeyPrefix + sessionID
	// Store "1" as a simple marker; the key existence is what matters.
	return s.client.Set(ctx, key, "1", ttl).Err()
}

// IsRevoked checks if a session id is in the denylist.
// Returns false if the key doesn't exist (not revoked or expired).
func (s *RedisStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	start := time.Now()
	defer func() {
		isRevokedDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if sessionID == "" {
		return false, nil
	}
	key := revokedSessionKeyPrefix + sessionID
	_, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
