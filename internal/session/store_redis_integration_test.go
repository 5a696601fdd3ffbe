//go:build integration

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"authgate/internal/session"
	"authgate/pkg/platform/sentinel"
	"authgate/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *session.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = session.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRevokeThenIsRevoked() {
	ctx := context.Background()

	s.Require().NoError(s.store.Revoke(ctx, "sess-1", 15*time.Minute))

	revoked, err := s.store.IsRevoked(ctx, "sess-1")
	s.Require().NoError(err)
	s.True(revoked)

	revoked, err = s.store.IsRevoked(ctx, "sess-2")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *RedisStoreSuite) TestRevokeIdempotent() {
	ctx := context.Background()

	s.Require().NoError(s.store.Revoke(ctx, "sess-1", 15*time.Minute))
	s.Require().NoError(s.store.Revoke(ctx, "sess-1", 15*time.Minute))

	revoked, err := s.store.IsRevoked(ctx, "sess-1")
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *RedisStoreSuite) TestEntryExpiresWithTTL() {
	ctx := context.Background()

	s.Require().NoError(s.store.Revoke(ctx, "sess-1", 200*time.Millisecond))

	revoked, err := s.store.IsRevoked(ctx, "sess-1")
	s.Require().NoError(err)
	s.True(revoked)

	time.Sleep(400 * time.Millisecond)

	revoked, err = s.store.IsRevoked(ctx, "sess-1")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *RedisStoreSuite) TestInvalidTTLRejected() {
	ctx := context.Background()

	s.Require().ErrorIs(s.store.Revoke(ctx, "sess-1", 0), sentinel.ErrInvalidState)
	s.Require().ErrorIs(s.store.Revoke(ctx, "sess-1", -time.Minute), sentinel.ErrInvalidState)
}

func (s *RedisStoreSuite) TestKeyCarriesTTL() {
	ctx := context.Background()

	s.Require().NoError(s.store.Revoke(ctx, "sess-1", 15*time.Minute))

	ttl, err := s.redis.Client.TTL(ctx, "denylist:session:sess-1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, 15*time.Minute)
}
