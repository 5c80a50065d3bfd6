package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/randalmurphal/code-search/internal/chunk"
	"github.com/randalmurphal/code-search/internal/embedding"
	"github.com/randalmurphal/code-search/internal/metrics"
	"github.com/randalmurphal/code-search/internal/store"
	"github.com/randalmurphal/code-search/internal/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// countingEmbedder maps every query to the same vector and counts calls.
type countingEmbedder struct {
	vector []float32
	err    error
	calls  atomic.Int32
}

func (c *countingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	c.calls.Add(1)
	return c.vector, c.err
}

type mapCache struct {
	entries map[string]string
	stores  int
	version int64

	// afterLookup runs once Lookup has read the version.
	afterLookup func()
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]string{}}
}

func cacheKey(strategy, query string, topK int, version int64) string {
	return fmt.Sprintf("%s|%s|%d|%d", strategy, query, topK, version)
}

func (m *mapCache) Lookup(_ context.Context, strategy, query string, topK int) (string, int64, bool, error) {
	version := m.version
	v, ok := m.entries[cacheKey(strategy, query, topK, version)]
	if m.afterLookup != nil {
		m.afterLookup()
	}
	return v, version, ok, nil
}

func (m *mapCache) Store(_ context.Context, strategy, query string, topK int, version int64, value string) error {
	m.stores++
	m.entries[cacheKey(strategy, query, topK, version)] = value
	return nil
}

func newEngine(t *testing.T, kind Kind, s store.Store, embedder QueryEmbedder) *Engine {
	t.Helper()
	strategy, err := New(kind, s)
	require.NoError(t, err)
	return NewEngine(embedder, strategy, nil)
}

func TestEngineSearch(t *testing.T) {
	embedder := &countingEmbedder{vector: axis(1)}
	engine := newEngine(t, KindExhaustive, seededStore(t), embedder)

	results, err := engine.Search(context.Background(), "beta function", 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"beta", "Gamma"}, names(results))
	assert.Equal(t, int32(1), embedder.calls.Load())
	assert.Equal(t, KindExhaustive, engine.Strategy())
}

func TestEngineWildcardSkipsEmbedding(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.EnsureSchema(ctx))

	var chunks []chunk.CodeChunk
	for i := range 7 {
		chunks = append(chunks, chunk.CodeChunk{
			Name: fmt.Sprintf("f%d", i), Kind: chunk.KindFunction, Code: "def f(): pass",
			StartLine: i + 1, EndLine: i + 1, Embedding: axis(i),
		})
	}
	_, err := s.Ingest(ctx, chunks)
	require.NoError(t, err)

	for _, kind := range []Kind{KindExhaustive, KindNative} {
		t.Run(string(kind), func(t *testing.T) {
			embedder := &countingEmbedder{err: errors.New("must not be called")}
			engine := newEngine(t, kind, s, embedder)

			results, err := engine.Search(ctx, "", 5)
			require.NoError(t, err)
			assert.Len(t, results, 5)
			assert.Zero(t, embedder.calls.Load())

			data, err := json.Marshal(results)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "embedding")
		})
	}
}

func TestEngineInvalidTopK(t *testing.T) {
	engine := newEngine(t, KindNative, seededStore(t), &countingEmbedder{vector: axis(0)})

	_, err := engine.Search(context.Background(), "x", 0)
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestEngineStoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockStore(ctrl)
	mockStore.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(store.ErrUnavailable)
	mockStore.EXPECT().Nearest(gomock.Any(), gomock.Any(), 5).Return(nil, store.ErrUnavailable)

	for _, kind := range []Kind{KindExhaustive, KindNative} {
		t.Run(string(kind), func(t *testing.T) {
			engine := newEngine(t, kind, mockStore, &countingEmbedder{vector: axis(0)})

			results, err := engine.Search(context.Background(), "parse config", 5)
			require.Error(t, err)
			assert.ErrorIs(t, err, store.ErrUnavailable)
			assert.Nil(t, results)
		})
	}
}

func TestEngineModelUnavailable(t *testing.T) {
	shared := embedding.NewShared(func(context.Context) (embedding.Model, error) {
		return nil, errors.New("service down")
	})
	engine := newEngine(t, KindNative, seededStore(t), embedding.NewGenerator(shared, 0))

	_, err := engine.Search(context.Background(), "anything", 3)
	assert.ErrorIs(t, err, embedding.ErrModelUnavailable)
}

func TestEngineHonorsCancellation(t *testing.T) {
	engine := newEngine(t, KindExhaustive, seededStore(t), &countingEmbedder{vector: axis(0)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Search(ctx, "x", 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineCache(t *testing.T) {
	embedder := &countingEmbedder{vector: axis(1)}
	cache := newMapCache()
	engine := newEngine(t, KindNative, seededStore(t), embedder).WithCache(cache)
	ctx := context.Background()

	first, err := engine.Search(ctx, "beta", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.stores)

	second, err := engine.Search(ctx, "beta", 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), embedder.calls.Load())

	// A different k is a different entry
	_, err = engine.Search(ctx, "beta", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(2), embedder.calls.Load())
}

func TestEngineCacheStoresUnderLookupVersion(t *testing.T) {
	embedder := &countingEmbedder{vector: axis(1)}
	cache := newMapCache()
	// The index changes while the first search is running
	cache.afterLookup = func() {
		cache.version++
		cache.afterLookup = nil
	}
	engine := newEngine(t, KindNative, seededStore(t), embedder).WithCache(cache)
	ctx := context.Background()

	_, err := engine.Search(ctx, "beta", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.stores)
	assert.Contains(t, cache.entries, cacheKey("native", "beta", 2, 0))
	assert.NotContains(t, cache.entries, cacheKey("native", "beta", 2, 1))

	// The next search sees the new version and recomputes
	_, err = engine.Search(ctx, "beta", 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), embedder.calls.Load())
	assert.Contains(t, cache.entries, cacheKey("native", "beta", 2, 1))
}

type failingCache struct{ stores int }

func (f *failingCache) Lookup(context.Context, string, string, int) (string, int64, bool, error) {
	return "", 0, false, errors.New("connection refused")
}

func (f *failingCache) Store(context.Context, string, string, int, int64, string) error {
	f.stores++
	return nil
}

func TestEngineSkipsStoreWhenVersionUnknown(t *testing.T) {
	cache := &failingCache{}
	engine := newEngine(t, KindNative, seededStore(t), &countingEmbedder{vector: axis(1)}).WithCache(cache)

	results, err := engine.Search(context.Background(), "beta", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, names(results))
	assert.Zero(t, cache.stores)
}

func TestEngineIgnoresCorruptCacheEntry(t *testing.T) {
	embedder := &countingEmbedder{vector: axis(1)}
	cache := newMapCache()
	cache.entries[cacheKey("native", "beta", 1, 0)] = "{not json"

	engine := newEngine(t, KindNative, seededStore(t), embedder).WithCache(cache)

	results, err := engine.Search(context.Background(), "beta", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, names(results))
	assert.Equal(t, int32(1), embedder.calls.Load())
}

func TestEngineLogsMetrics(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "metrics.jsonl")
	m, err := metrics.NewLogger(logPath)
	require.NoError(t, err)
	defer m.Close()

	engine := newEngine(t, KindExhaustive, seededStore(t), &countingEmbedder{vector: axis(1)}).WithMetrics(m)

	_, err = engine.Search(context.Background(), "beta", 2)
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"strategy":"exhaustive"`)
	assert.Contains(t, lines[0], `"results":2`)
}
