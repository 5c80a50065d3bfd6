package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/code-search/internal/metrics"
)

// ErrInvalidTopK is returned for a non-positive result count.
var ErrInvalidTopK = errors.New("top_k must be positive")

// QueryEmbedder turns query text into a vector in the same space as the
// indexed code.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// QueryCache holds serialized results keyed by strategy, query, k and the
// index version observed by Lookup.
type QueryCache interface {
	Lookup(ctx context.Context, strategy, query string, topK int) (string, int64, bool, error)
	Store(ctx context.Context, strategy, query string, topK int, version int64, value string) error
}

// Engine answers text queries with one configured Strategy.
type Engine struct {
	embedder QueryEmbedder
	strategy Strategy
	cache    QueryCache
	metrics  *metrics.Logger
	logger   *slog.Logger
}

// NewEngine creates an engine. Cache and metrics are off until set.
func NewEngine(embedder QueryEmbedder, strategy Strategy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: embedder, strategy: strategy, logger: logger}
}

// WithCache enables result caching.
func (e *Engine) WithCache(c QueryCache) *Engine {
	e.cache = c
	return e
}

// WithMetrics enables search event logging.
func (e *Engine) WithMetrics(m *metrics.Logger) *Engine {
	e.metrics = m
	return e
}

// Strategy returns the configured strategy's kind.
func (e *Engine) Strategy() Kind {
	return e.strategy.Kind()
}

// Search returns up to topK results, best first. The empty query matches
// every document and is never embedded. Store failures are returned as
// errors, never as an empty result.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}

	start := time.Now()
	strategy := string(e.strategy.Kind())

	cached, version, ok := e.lookup(ctx, strategy, query, topK)
	if ok {
		e.metrics.LogSearch(query, strategy, len(cached), time.Since(start).Milliseconds(), true)
		return cached, nil
	}

	var vector []float32
	if query != "" {
		v, err := e.embedder.EmbedQuery(ctx, query)
		if err != nil {
			e.metrics.LogError("search", err.Error())
			return nil, fmt.Errorf("embed query: %w", err)
		}
		vector = v
	}

	results, err := e.strategy.Search(ctx, vector, topK)
	if err != nil {
		e.metrics.LogError("search", err.Error())
		return nil, fmt.Errorf("%s search: %w", strategy, err)
	}

	if version >= 0 {
		e.store(ctx, strategy, query, topK, version, results)
	}

	latency := time.Since(start)
	e.metrics.LogSearch(query, strategy, len(results), latency.Milliseconds(), false)
	e.logger.Debug("search completed", "query", query, "strategy", strategy, "top_k", topK, "results", len(results), "latency", latency)

	return results, nil
}

// lookup treats any cache failure as a miss. The returned version is the
// one a miss must be stored under; it is -1 when nothing should be stored.
func (e *Engine) lookup(ctx context.Context, strategy, query string, topK int) ([]Result, int64, bool) {
	if e.cache == nil {
		return nil, -1, false
	}

	val, version, ok, err := e.cache.Lookup(ctx, strategy, query, topK)
	if err != nil {
		e.logger.Warn("query cache lookup failed", "error", err)
		return nil, -1, false
	}
	if !ok {
		return nil, version, false
	}

	var results []Result
	if err := json.Unmarshal([]byte(val), &results); err != nil {
		e.logger.Warn("discarding unreadable cache entry", "error", err)
		return nil, version, false
	}

	e.logger.Debug("cache hit", "query", query, "strategy", strategy)
	return results, version, true
}

func (e *Engine) store(ctx context.Context, strategy, query string, topK int, version int64, results []Result) {
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := e.cache.Store(ctx, strategy, query, topK, version, string(data)); err != nil {
		e.logger.Warn("failed to cache result", "error", err)
	}
}
