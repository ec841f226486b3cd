// Package app wires the components named by a configuration file into a
// running pipeline shared by the MCP server and the command line tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dshills/contextchunk-mcp/internal/cache"
	"github.com/dshills/contextchunk-mcp/internal/chunker"
	"github.com/dshills/contextchunk-mcp/internal/config"
	"github.com/dshills/contextchunk-mcp/internal/embedder"
	"github.com/dshills/contextchunk-mcp/internal/generator"
	"github.com/dshills/contextchunk-mcp/internal/indexer"
	"github.com/dshills/contextchunk-mcp/internal/searcher"
	"github.com/dshills/contextchunk-mcp/internal/splitter"
	"github.com/dshills/contextchunk-mcp/internal/storage"
	"github.com/dshills/contextchunk-mcp/internal/tokenizer"
)

// App holds every component built from one configuration. The embedder and
// cache are shared by the indexer and the searcher.
type App struct {
	Config    *config.Config
	Storage   storage.Storage
	Embedder  embedder.Embedder
	Cache     *cache.Cache
	Generator generator.Generator // nil when generation is disabled
	Splitter  *splitter.Splitter
	Counter   tokenizer.Counter
	Chunker   *chunker.Chunker
	Indexer   *indexer.Indexer
	Searcher  *searcher.Searcher
	Logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Build opens storage, creates the providers and warms the embedding cache
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &App{Config: cfg, Logger: logger, Splitter: splitter.NewDefault()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = store

	a.Embedder, err = embedder.New(embedderConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	a.Counter, err = tokenizer.New(cfg.Tokenizer.Kind, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}

	a.Cache = cache.New(store, cacheConfig(cfg, a.Embedder), logger.With("component", "cache"))
	if _, err := a.Cache.Load(ctx); err != nil {
		logger.Warn("embedding cache could not be loaded, starting cold", "error", err)
	}

	a.Generator, err = newGenerator(cfg.Generation, logger)
	if err != nil {
		return nil, err
	}

	a.Chunker, err = chunker.New(chunker.Options{
		Splitter:     a.Splitter,
		Counter:      a.Counter,
		Embedder:     a.Embedder,
		Cache:        a.Cache,
		Generator:    a.Generator,
		ExcerptRunes: cfg.Context.ExcerptRunes,
		Logger:       logger.With("component", "chunker"),
	})
	if err != nil {
		return nil, err
	}

	a.Indexer, err = indexer.New(store, a.Chunker, indexer.Options{
		Workers: cfg.Indexer.Workers,
		Logger:  logger.With("component", "indexer"),
	})
	if err != nil {
		return nil, err
	}

	a.Searcher, err = searcher.NewSearcher(store, a.Embedder, cfg.RetrievalConfig(), logger.With("component", "searcher"))
	if err != nil {
		return nil, err
	}

	logger.Info("pipeline ready",
		"database", dbPath,
		"embedder", a.Embedder.Provider(),
		"model", a.Embedder.Model(),
		"tokenizer", a.Counter.Name(),
		"generation", generatorName(a.Generator))
	return a, nil
}

// Close releases the providers and the store. Later calls return the
// first result.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.Generator != nil {
			errs = append(errs, a.Generator.Close())
		}
		if a.Embedder != nil {
			errs = append(errs, a.Embedder.Close())
		}
		if a.Storage != nil {
			errs = append(errs, a.Storage.Close())
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func embedderConfig(cfg *config.Config) embedder.Config {
	ec := embedder.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Endpoint:  cfg.Embedding.Endpoint,
		Dimension: cfg.Embedding.Dimension,
	}
	if cfg.Embedding.MaxRetries != nil {
		rc := embedder.DefaultRetryConfig()
		rc.MaxRetries = uint64(*cfg.Embedding.MaxRetries)
		ec.Retry = &rc
	}
	return ec
}

// cacheConfig keys the cache by provider and model so vectors of different
// embedders never mix
func cacheConfig(cfg *config.Config, emb embedder.Embedder) cache.Config {
	cc := cache.DefaultConfig()
	cc.Namespace = emb.Provider() + "/" + emb.Model()
	if cfg.Cache.BatchSize > 0 {
		cc.BatchSize = cfg.Cache.BatchSize
	}
	if cfg.Cache.PersistRetries != nil {
		cc.PersistRetries = uint64(*cfg.Cache.PersistRetries)
	}
	if cfg.Cache.PersistBackoff.Duration > 0 {
		cc.PersistBackoff = cfg.Cache.PersistBackoff.Duration
	}
	return cc
}

// newGenerator picks the context generator. An empty provider uses Claude
// when ANTHROPIC_API_KEY is set and the extractive generator otherwise.
func newGenerator(cfg config.GenerationConfig, logger *slog.Logger) (generator.Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "extractive"
		if os.Getenv(generator.EnvAnthropicAPIKey) != "" {
			provider = "claude"
		}
	}

	switch provider {
	case "claude":
		g, err := generator.NewClaudeClient("", generator.ClaudeOptions{
			Model:     cfg.Model,
			Endpoint:  cfg.Endpoint,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize generator: %w", err)
		}
		return g, nil
	case "extractive":
		return generator.NewExtractive(), nil
	case "none":
		logger.Warn("context generation disabled, chunks get content embeddings only")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

func generatorName(g generator.Generator) string {
	switch g := g.(type) {
	case nil:
		return "none"
	case *generator.ClaudeClient:
		return "claude/" + g.Model()
	default:
		return "extractive"
	}
}
