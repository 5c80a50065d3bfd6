// Package cache provides caching implementations.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache provides caching via Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis connection failed: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from cache. Returns empty string if key not found.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// Set stores a value in cache with TTL.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a value from cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// DeletePattern removes all keys matching pattern and returns how many were
// removed.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, iter.Err()
}

// GetIndexVersion retrieves the current index version for a collection.
func (c *RedisCache) GetIndexVersion(ctx context.Context, collection string) (int64, error) {
	val, err := c.client.Get(ctx, indexVersionKey(collection)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// IncrIndexVersion increments the index version.
func (c *RedisCache) IncrIndexVersion(ctx context.Context, collection string) (int64, error) {
	return c.client.Incr(ctx, indexVersionKey(collection)).Result()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func indexVersionKey(collection string) string {
	return "index:version:" + collection
}

// QueryCacheKey generates a cache key for a search query. Keys embed the
// collection's index version, so bumping the version orphans every older
// entry without deleting it.
func QueryCacheKey(collection, strategy, query string, topK int, version int64) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("query:%s:%s:%x:%d:%d", collection, strategy, h[:8], topK, version)
}

// QueryPattern matches every cached query for a collection.
func QueryPattern(collection string) string {
	return "query:" + collection + ":*"
}
