package cache

import (
	"context"
	"fmt"
	"time"
)

// QueryCache stores serialized search results for one collection.
type QueryCache struct {
	redis      *RedisCache
	collection string
	ttl        time.Duration
}

// NewQueryCache scopes r to collection. Entries expire after ttl.
func NewQueryCache(r *RedisCache, collection string, ttl time.Duration) *QueryCache {
	return &QueryCache{redis: r, collection: collection, ttl: ttl}
}

// Lookup returns the cached value for the query under the current index
// version, and that version. A miss is filled by passing the same version to
// Store, so results computed before an index run can never be filed under
// the version that run produced.
func (q *QueryCache) Lookup(ctx context.Context, strategy, query string, topK int) (string, int64, bool, error) {
	version, err := q.redis.GetIndexVersion(ctx, q.collection)
	if err != nil {
		return "", 0, false, fmt.Errorf("read index version: %w", err)
	}

	val, err := q.redis.Get(ctx, QueryCacheKey(q.collection, strategy, query, topK, version))
	if err != nil {
		return "", version, false, err
	}
	return val, version, val != "", nil
}

// Store caches value for the query under version, as returned by Lookup.
func (q *QueryCache) Store(ctx context.Context, strategy, query string, topK int, version int64, value string) error {
	return q.redis.Set(ctx, QueryCacheKey(q.collection, strategy, query, topK, version), value, q.ttl)
}

// Invalidate bumps the collection's index version and returns the new one.
func (q *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	return q.redis.IncrIndexVersion(ctx, q.collection)
}

// Purge deletes every cached query for the collection.
func (q *QueryCache) Purge(ctx context.Context) (int, error) {
	return q.redis.DeletePattern(ctx, QueryPattern(q.collection))
}

// Version returns the collection's current index version.
func (q *QueryCache) Version(ctx context.Context) (int64, error) {
	return q.redis.GetIndexVersion(ctx, q.collection)
}

// Close closes the underlying connection.
func (q *QueryCache) Close() error {
	return q.redis.Close()
}
