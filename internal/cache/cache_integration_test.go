//go:build integration

package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"authgate/internal/cache"
	"authgate/internal/schema"
	"authgate/pkg/testutil/containers"
)

type product struct {
	SKU  string `json:"sku"`
	Name string `json:"name"`
}

func productRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	b := schema.NewBuilder()
	schema.Register(b, "products",
		schema.Identity("SKU", func(p *product) *string { return &p.SKU }),
		schema.CacheKey("SKU", func(p *product) *string { return &p.SKU }),
	)
	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

type CacheSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	service *cache.Service
}

func TestCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.service = cache.NewService(s.redis.Client, productRegistry(s.T()))
}

func (s *CacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *CacheSuite) TestPutThenGet() {
	ctx := context.Background()

	s.Require().NoError(s.service.Put(ctx, &product{SKU: "sku-1", Name: "Widget"}, 0))

	body, err := s.service.Get(ctx, "product", "sku-1")
	s.Require().NoError(err)

	var got product
	s.Require().NoError(json.Unmarshal([]byte(body), &got))
	s.Equal("Widget", got.Name)
}

func (s *CacheSuite) TestKeyLayout() {
	ctx := context.Background()

	s.Require().NoError(s.service.Put(ctx, &product{SKU: "sku-1", Name: "Widget"}, 0))

	exists, err := s.redis.Client.Exists(ctx, "product:sku-1").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), exists)
}

func (s *CacheSuite) TestGetMissIsEmpty() {
	body, err := s.service.Get(context.Background(), "product", "nope")
	s.Require().NoError(err)
	s.Empty(body)
}

func (s *CacheSuite) TestGetAll() {
	ctx := context.Background()
	s.Require().NoError(s.service.Put(ctx, &product{SKU: "sku-1", Name: "Widget"}, 0))
	s.Require().NoError(s.service.Put(ctx, &product{SKU: "sku-2", Name: "Gadget"}, 0))

	bodies, err := s.service.GetAll(ctx, "product")
	s.Require().NoError(err)
	s.Len(bodies, 2)
}

func (s *CacheSuite) TestNearest() {
	ctx := context.Background()
	s.Require().NoError(s.service.Put(ctx, &product{SKU: "alpha-widget"}, 0))
	s.Require().NoError(s.service.Put(ctx, &product{SKU: "beta-widget"}, 0))
	s.Require().NoError(s.service.Put(ctx, &product{SKU: "gamma-gadget"}, 0))

	keys, err := s.service.Nearest(ctx, "product", "WIDGET")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"alpha-widget", "beta-widget"}, keys)
}

func (s *CacheSuite) TestDelete() {
	ctx := context.Background()
	s.Require().NoError(s.service.Put(ctx, &product{SKU: "sku-1"}, 0))

	removed, err := s.service.Delete(ctx, "product", "sku-1")
	s.Require().NoError(err)
	s.True(removed)

	removed, err = s.service.Delete(ctx, "product", "sku-1")
	s.Require().NoError(err)
	s.False(removed)
}

func (s *CacheSuite) TestRefreshReplacesEntries() {
	ctx := context.Background()
	s.Require().NoError(s.service.Put(ctx, &product{SKU: "old-1"}, 0))
	s.Require().NoError(s.service.Put(ctx, &product{SKU: "old-2"}, 0))

	err := s.service.Refresh(ctx, "product", []any{
		&product{SKU: "new-1", Name: "Fresh"},
	})
	s.Require().NoError(err)

	bodies, err := s.service.GetAll(ctx, "product")
	s.Require().NoError(err)
	s.Len(bodies, 1)

	body, err := s.service.Get(ctx, "product", "old-1")
	s.Require().NoError(err)
	s.Empty(body)
}

func (s *CacheSuite) TestPutWithExpiry() {
	ctx := context.Background()
	s.Require().NoError(s.service.Put(ctx, &product{SKU: "sku-1"}, time.Hour))

	ttl, err := s.redis.Client.TTL(ctx, "product:sku-1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *CacheSuite) TestUncachedTypeRejected() {
	_, err := s.service.Get(context.Background(), "ghost", "k")
	s.Require().Error(err)
}
