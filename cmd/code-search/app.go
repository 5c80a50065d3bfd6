package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/code-search/internal/cache"
	"github.com/randalmurphal/code-search/internal/config"
	"github.com/randalmurphal/code-search/internal/embedding"
	"github.com/randalmurphal/code-search/internal/logging"
	"github.com/randalmurphal/code-search/internal/metrics"
	"github.com/randalmurphal/code-search/internal/search"
	"github.com/randalmurphal/code-search/internal/store"
)

// app holds the resolved configuration and the components built from it.
// Optional components (cache, metrics) are nil when disabled or unreachable.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	closers []func() error
}

func loadApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if storeBackend != "" {
		cfg.Storage.Backend = storeBackend
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	return &app{cfg: cfg, logger: logger}, nil
}

// Close releases everything opened through the app, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func (a *app) openStore() (store.Store, error) {
	s, err := store.Open(a.cfg.Storage, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", a.cfg.Storage.Backend, err)
	}
	a.closers = append(a.closers, s.Close)
	return s, nil
}

func (a *app) generator() (*embedding.Generator, error) {
	loader, err := embedding.NewLoader(a.cfg.Embedding)
	if err != nil {
		return nil, err
	}
	return embedding.NewGenerator(embedding.NewShared(loader), a.cfg.Embedding.BatchSize), nil
}

// queryCache connects to Redis. A missing or unreachable Redis disables
// caching rather than failing the command.
func (a *app) queryCache() *cache.QueryCache {
	if a.cfg.Storage.RedisURL == "" || a.cfg.Search.CacheTTLMinutes <= 0 {
		return nil
	}

	redisCache, err := cache.NewRedisCache(a.cfg.Storage.RedisURL)
	if err != nil {
		a.logger.Warn("query cache disabled", "error", err)
		return nil
	}

	qc := cache.NewQueryCache(redisCache, a.cfg.Storage.Collection, time.Duration(a.cfg.Search.CacheTTLMinutes)*time.Minute)
	a.closers = append(a.closers, qc.Close)
	return qc
}

func (a *app) metricsLogger() *metrics.Logger {
	if a.cfg.Metrics.Path == "" {
		return nil
	}

	m, err := metrics.NewLogger(a.cfg.Metrics.Path)
	if err != nil {
		a.logger.Warn("metrics disabled", "error", err)
		return nil
	}
	a.closers = append(a.closers, m.Close)
	return m
}

// engine wires store, generator, strategy, cache and metrics together.
func (a *app) engine() (*search.Engine, *embedding.Generator, error) {
	s, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}

	gen, err := a.generator()
	if err != nil {
		return nil, nil, err
	}

	kind, err := search.ParseKind(a.cfg.Search.Strategy)
	if err != nil {
		return nil, nil, err
	}
	strategy, err := search.New(kind, s)
	if err != nil {
		return nil, nil, err
	}

	engine := search.NewEngine(gen, strategy, a.logger).WithMetrics(a.metricsLogger())
	if qc := a.queryCache(); qc != nil {
		engine.WithCache(qc)
	}

	return engine, gen, nil
}

func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, d)
}
