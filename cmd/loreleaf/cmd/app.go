package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loreleaf/loreleaf/internal/cache"
	"github.com/loreleaf/loreleaf/internal/config"
	"github.com/loreleaf/loreleaf/internal/embed"
	"github.com/loreleaf/loreleaf/internal/search"
	"github.com/loreleaf/loreleaf/internal/store"
	"github.com/loreleaf/loreleaf/internal/telemetry"
)

// app bundles the opened runtime for a command.
type app struct {
	cfg      *config.Config
	root     string
	stores   *store.Stores
	embedder embed.Embedder
	engine   *search.Engine
	cache    cache.QueryCache
	metrics  *telemetry.Metrics
	registry *prometheus.Registry
	logger   *slog.Logger
}

// openApp loads configuration from the project root and wires the full
// engine. openCache controls whether the query cache is opened too;
// one-shot commands skip it.
func openApp(ctx context.Context, openCache bool) (*app, error) {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slog.Default()

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	stores, err := store.Open(ctx, cfg, cfg.IndexDir(root), embedder.Dimensions())
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	reranker, err := buildReranker(cfg, logger)
	if err != nil {
		_ = stores.Close()
		_ = embedder.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	engine, err := search.NewEngine(search.Deps{
		Lexical:  stores.Lexical,
		Vector:   stores.Vector,
		Passages: stores.Passages,
		Embedder: embedder,
		Reranker: reranker,
		Config:   cfg,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		_ = stores.Close()
		_ = embedder.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		root:     root,
		stores:   stores,
		embedder: embedder,
		engine:   engine,
		metrics:  metrics,
		registry: registry,
		logger:   logger,
	}

	if openCache {
		qc, err := cache.Open(ctx, cfg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.cache = qc
	}

	return a, nil
}

// close releases everything openApp acquired.
func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.engine != nil {
		// Closes the reranker and embedder too.
		_ = a.engine.Close()
	}
	if a.stores != nil {
		_ = a.stores.Close()
	}
}

// buildEmbedder returns the HTTP embedding client when a service is
// configured, with LRU caching when enabled. Without a service the
// deterministic offline embedder is used.
func buildEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	if cfg.Embedding.URL == "" {
		return embed.NewStaticEmbedder(), nil
	}

	inner, err := embed.NewHTTPEmbedder(ctx, embed.HTTPConfig{
		URL:        cfg.Embedding.URL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}
	if cfg.Embedding.CacheSize > 0 {
		return embed.NewCachedEmbedder(inner, cfg.Embedding.CacheSize), nil
	}
	return inner, nil
}

// buildReranker returns the HTTP reranker when configured, nil
// otherwise. Enabled without a URL is a config mistake worth a
// warning, not a failure.
func buildReranker(cfg *config.Config, logger *slog.Logger) (search.Reranker, error) {
	if !cfg.Rerank.Enabled {
		return nil, nil
	}
	if cfg.Rerank.URL == "" {
		logger.Warn("rerank enabled but no URL configured; reranking disabled")
		cfg.Rerank.Enabled = false
		return nil, nil
	}
	return search.NewHTTPReranker(search.HTTPRerankerConfig{
		URL:       cfg.Rerank.URL,
		Model:     cfg.Rerank.Model,
		BatchSize: cfg.Rerank.BatchSize,
		Timeout:   cfg.RerankBudget(),
	})
}
