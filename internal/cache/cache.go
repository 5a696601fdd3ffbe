// Package cache is the read-side object cache application code uses next to
// the engine. Entries are JSON bodies keyed "TypeName:cache-key", where the
// cache key field comes from the schema registration. The engine itself
// never calls this; its only cache-like dependency is the session denylist.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"authgate/internal/schema"
)

// Service caches schema-registered objects in Redis.
type Service struct {
	client  *redis.Client
	schemas *schema.Registry
}

func NewService(client *redis.Client, schemas *schema.Registry) *Service {
	return &Service{client: client, schemas: schemas}
}

func (s *Service) keyFor(rec any) (string, error) {
	sch, ok := s.schemas.For(rec)
	if !ok {
		return "", fmt.Errorf("cache: no schema registered for type")
	}
	kf := sch.CacheKeyField()
	if kf == nil {
		return "", fmt.Errorf("cache: type %s declares no cache key field", sch.TypeName())
	}
	v := kf.Get(rec)
	if v == "" {
		return "", fmt.Errorf("cache: key value for type %s is empty", sch.TypeName())
	}
	return sch.TypeName() + ":" + v, nil
}

// Put stores the record under its declared cache key. A zero expiry keeps
// the entry until it is deleted or refreshed.
func (s *Service) Put(ctx context.Context, rec any, expiry time.Duration) error {
	key, err := s.keyFor(rec)
	if err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	return s.client.Set(ctx, key, body, expiry).Err()
}

// Get returns the cached JSON body for the type and key, or "" on a miss.
func (s *Service) Get(ctx context.Context, typeName, key string) (string, error) {
	sch, ok := s.schemas.ByName(typeName)
	if !ok || sch.CacheKeyField() == nil {
		return "", fmt.Errorf("cache: type %s is not cached", typeName)
	}
	body, err := s.client.Get(ctx, sch.TypeName()+":"+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return body, nil
}

// GetAll returns the cached bodies of every entry of the type.
func (s *Service) GetAll(ctx context.Context, typeName string) ([]string, error) {
	keys, err := s.scanKeys(ctx, typeName)
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	var bodies []string
	for _, key := range keys {
		body, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}
	return bodies, nil
}

// Nearest returns the cache keys of the type whose key contains guess,
// case-insensitively.
func (s *Service) Nearest(ctx context.Context, typeName, guess string) ([]string, error) {
	keys, err := s.scanKeys(ctx, typeName)
	if err != nil {
		return nil, err
	}
	prefix := typeName + ":"
	var nearest []string
	for _, key := range keys {
		existing := strings.TrimPrefix(key, prefix)
		if strings.Contains(strings.ToLower(existing), strings.ToLower(guess)) {
			nearest = append(nearest, existing)
		}
	}
	return nearest, nil
}

// Delete removes one cached entry; it reports whether an entry was removed.
func (s *Service) Delete(ctx context.Context, typeName, key string) (bool, error) {
	n, err := s.client.Del(ctx, typeName+":"+key).Result()
	return n > 0, err
}

// Refresh replaces every cached entry of the type with the given records.
func (s *Service) Refresh(ctx context.Context, typeName string, recs []any) error {
	keys, err := s.scanKeys(ctx, typeName)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	for _, rec := range recs {
		if err := s.Put(ctx, rec, 0); err != nil {
			return err
		}
	}
	return nil
}

// scanKeys walks the keyspace with SCAN; KEYS would block the server on
// large keyspaces.
func (s *Service) scanKeys(ctx context.Context, typeName string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, typeName+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}
