package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scrypster/cyberrag/internal/config"
	"github.com/scrypster/cyberrag/internal/embedding"
	"github.com/scrypster/cyberrag/internal/experiment"
	"github.com/scrypster/cyberrag/internal/llm"
	"github.com/scrypster/cyberrag/internal/rag"
	"github.com/scrypster/cyberrag/internal/storage"
	"github.com/scrypster/cyberrag/internal/storage/postgres"
	"github.com/scrypster/cyberrag/internal/storage/sqlite"
)

// sqliteFile is the run history database inside storage.data_path.
const sqliteFile = "cyberrag.db"

// newGenerator builds the text generator for provider/model and layers the
// configured rate limit, retries and response cache on top of it. The
// returned cleanup releases the cache connection and is never nil.
func (a *app) newGenerator(ctx context.Context, provider, model string) (llm.TextGenerator, func(), error) {
	noop := func() {}
	cfg := a.cfg.LLM

	apiKey := cfg.APIKey
	if !strings.EqualFold(provider, cfg.Provider) {
		// A key configured for one provider is never sent to another.
		apiKey = ""
	}
	gen, err := llm.NewTextGenerator(llm.Config{
		Provider: provider,
		Model:    model,
		APIKey:   apiKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, noop, err
	}

	if cfg.RateLimit > 0 {
		gen = llm.WithRateLimit(gen, cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.MaxRetries > 1 {
		gen = llm.WithRetry(gen, llm.RetryConfig{MaxAttempts: cfg.MaxRetries, Logger: a.logger})
	}

	switch a.cfg.Cache.Backend {
	case "memory":
		cache, err := llm.NewMemoryCache(a.cfg.Cache.Size)
		if err != nil {
			return nil, noop, err
		}
		return llm.WithCache(gen, cache, a.logger), noop, nil
	case "redis":
		cache, err := llm.NewRedisCache(ctx, a.cfg.Cache.RedisURL, "", a.cfg.Cache.TTL)
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() {
			if err := cache.Close(); err != nil {
				a.logger.Warn("failed to close redis cache", "error", err)
			}
		}
		return llm.WithCache(gen, cache, a.logger), cleanup, nil
	default:
		return gen, noop, nil
	}
}

// generatorOrDemo is newGenerator for commands that can fall back to demo
// mode. A nil generator means demo mode. Missing credentials produce a
// warning instead of an error.
func (a *app) generatorOrDemo(ctx context.Context, provider, model string, demo bool) (llm.TextGenerator, func(), error) {
	if demo || strings.EqualFold(provider, llm.ProviderDemo) {
		return nil, func() {}, nil
	}
	gen, cleanup, err := a.newGenerator(ctx, provider, model)
	if errors.Is(err, llm.ErrMissingAPIKey) {
		a.logger.Warn("no API key configured, running in demo mode", "provider", provider, "error", err)
		return nil, cleanup, nil
	}
	return gen, cleanup, err
}

// newEncoder returns the embedding function shared by both engines and the
// evaluator, cached when embedding.cache_size is positive.
func (a *app) newEncoder() (embedding.Encoder, error) {
	cfg := a.cfg.Embedding

	var base embedding.Encoder
	switch cfg.Provider {
	case "openai", "ollama":
		apiKey := ""
		if strings.EqualFold(cfg.Provider, a.cfg.LLM.Provider) {
			apiKey = a.cfg.LLM.APIKey
		}
		gen, err := llm.NewEmbeddingGenerator(llm.Config{
			Provider:       cfg.Provider,
			APIKey:         apiKey,
			BaseURL:        a.cfg.LLM.BaseURL,
			Timeout:        a.cfg.LLM.Timeout,
			EmbeddingModel: cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s embeddings: %w", cfg.Provider, err)
		}
		base = embedding.NewGeneratorEncoder(gen)
	default:
		base = embedding.NewHashingEncoder(cfg.Dimensions)
	}

	if cfg.CacheSize <= 0 {
		return base, nil
	}
	return embedding.NewCachedEncoder(base, cfg.CacheSize)
}

// openStore opens the configured run history store. It returns nil when
// storage is disabled.
func (a *app) openStore(ctx context.Context) (storage.RunStore, error) {
	cfg := a.cfg.Storage
	switch cfg.Engine {
	case "sqlite":
		if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return sqlite.NewRunStore(ctx, filepath.Join(cfg.DataPath, sqliteFile), a.logger)
	case "postgres":
		return postgres.NewRunStore(ctx, cfg.PostgresDSN, a.logger)
	default:
		return nil, nil
	}
}

// loadDataset reads path, or the configured dataset when path is empty.
// Both empty selects the built-in corpus.
func (a *app) loadDataset(path string) (*experiment.Dataset, error) {
	if path == "" {
		path = a.cfg.Experiment.Dataset
	}
	return experiment.LoadDataset(path)
}

// ragConfig maps retrieval settings onto the engine configuration.
func ragConfig(cfg *config.Config, model string) rag.Config {
	return rag.Config{
		TopK:          cfg.Retrieval.TopK,
		Model:         model,
		Temperature:   cfg.Retrieval.Temperature,
		MaxTokens:     cfg.Retrieval.MaxTokens,
		FailurePolicy: rag.FailurePolicy(cfg.Retrieval.FailurePolicy),
	}
}

// runConfig builds the experiment configuration. Non-zero overrides win over
// the configuration file.
func (a *app) runConfig(provider, model string, topK, workers int) experiment.Config {
	if topK <= 0 {
		topK = a.cfg.Retrieval.TopK
	}
	if workers <= 0 {
		workers = a.cfg.Experiment.Workers
	}
	return experiment.Config{
		Provider: provider,
		Model:    model,
		TopK:     topK,
		Workers:  workers,
		RAG:      ragConfig(a.cfg, model),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
