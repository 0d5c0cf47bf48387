package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix     = "coursebook:availability:"
	cacheKeyCourseList = cacheKeyPrefix + "list"
)

// AvailabilityCache holds rendered availability responses between writes.
type AvailabilityCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

func courseCacheKey(courseID string) string {
	return cacheKeyPrefix + "course:" + courseID
}

// invalidationKeys lists the entries a write to courseIDs makes stale.
func invalidationKeys(courseIDs ...string) []string {
	keys := []string{cacheKeyCourseList}
	for _, courseID := range courseIDs {
		if courseID != "" {
			keys = append(keys, courseCacheKey(courseID))
		}
	}
	return keys
}

// RedisCache stores availability snapshots in Redis.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (cache *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := cache.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (cache *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return cache.client.Set(ctx, key, value, ttl).Err()
}

func (cache *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return cache.client.Del(ctx, keys...).Err()
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }

func (noopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (noopCache) Delete(ctx context.Context, keys ...string) error { return nil }
