// Package config loads the TOML configuration of the contextchunk server.
//
// The [chunking], [context] and [retrieval] tables are fully mandatory: every
// key must be present in the file, a missing key is ErrMissingKey. The
// remaining tables wire capabilities and fall back to defaults. Secrets are
// never read from the file; providers take them from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dshills/contextchunk-mcp/pkg/types"
)

const (
	// EnvConfigPath names the configuration file
	EnvConfigPath = "CONTEXTCHUNK_CONFIG"
	// EnvDBPath overrides [storage].path
	EnvDBPath = "CONTEXTCHUNK_DB_PATH"

	DefaultConfigFile = "contextchunk.toml"
	DefaultDBPath     = "~/.contextchunk/contextchunk.db"
)

var (
	ErrMissingKey = errors.New("missing configuration key")
	ErrUnknownKey = errors.New("unknown configuration key")
)

// mandatory lists every key that must be set explicitly
var mandatory = [][]string{
	{"chunking", "similarity_threshold"},
	{"chunking", "max_merge_distance"},
	{"chunking", "target_chunk_tokens"},
	{"chunking", "max_chunk_tokens"},
	{"chunking", "min_chunk_tokens"},
	{"chunking", "overlap_tokens"},
	{"chunking", "content_type"},
	{"context", "window_chunks"},
	{"context", "generation_retries"},
	{"context", "concurrency"},
	{"retrieval", "contextual_weight"},
	{"retrieval", "match_threshold"},
}

// Config is the whole configuration file
type Config struct {
	Chunking   ChunkingConfig   `toml:"chunking"`
	Context    ContextConfig    `toml:"context"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Storage    StorageConfig    `toml:"storage"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Generation GenerationConfig `toml:"generation"`
	Tokenizer  TokenizerConfig  `toml:"tokenizer"`
	Cache      CacheConfig      `toml:"cache"`
	Indexer    IndexerConfig    `toml:"indexer"`
}

type ChunkingConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	MaxMergeDistance    int     `toml:"max_merge_distance"`
	TargetChunkTokens   int     `toml:"target_chunk_tokens"`
	MaxChunkTokens      int     `toml:"max_chunk_tokens"`
	MinChunkTokens      int     `toml:"min_chunk_tokens"`
	OverlapTokens       int     `toml:"overlap_tokens"`
	ContentType         string  `toml:"content_type"`
}

type ContextConfig struct {
	WindowChunks      int `toml:"window_chunks"`
	GenerationRetries int `toml:"generation_retries"`
	Concurrency       int `toml:"concurrency"`
	ExcerptRunes      int `toml:"excerpt_runes"`
}

type RetrievalConfig struct {
	ContextualWeight float64 `toml:"contextual_weight"`
	MatchThreshold   float64 `toml:"match_threshold"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"` // jina, openai, local; empty detects from the environment
	Model      string `toml:"model"`
	Endpoint   string `toml:"endpoint"`
	Dimension  int    `toml:"dimension"`
	MaxRetries *int   `toml:"max_retries"` // retries after the first attempt; nil keeps the default
}

type GenerationConfig struct {
	Provider  string   `toml:"provider"` // claude, extractive, none
	Model     string   `toml:"model"`
	Endpoint  string   `toml:"endpoint"`
	MaxTokens int      `toml:"max_tokens"`
	Timeout   Duration `toml:"timeout"`
}

type TokenizerConfig struct {
	Kind string `toml:"kind"` // tiktoken[:encoding] or estimator
}

type CacheConfig struct {
	BatchSize      int      `toml:"batch_size"`
	PersistRetries *int     `toml:"persist_retries"` // nil keeps the default
	PersistBackoff Duration `toml:"persist_backoff"`
}

type IndexerConfig struct {
	Workers int `toml:"workers"`
}

// Duration is a time.Duration written as a Go duration string
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Path returns the configuration file path: CONTEXTCHUNK_CONFIG, or
// contextchunk.toml in the working directory
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultConfigFile
}

// Load reads and validates the file at path, then applies environment
// overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if p := os.Getenv(EnvDBPath); p != "" {
		cfg.Storage.Path = p
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document
func Parse(data string) (*Config, error) {
	cfg := &Config{}
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(keys, ", "))
	}

	var missing []string
	for _, key := range mandatory {
		if !md.IsDefined(key...) {
			missing = append(missing, strings.Join(key, "."))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(missing, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values of every table
func (c *Config) Validate() error {
	if err := c.ProcessingConfig().Validate(); err != nil {
		return err
	}
	if err := c.RetrievalConfig().Validate(); err != nil {
		return err
	}
	if c.Context.ExcerptRunes < 0 {
		return fmt.Errorf("%w: excerpt_runes must be >= 0, got %d", types.ErrInvalidConfig, c.Context.ExcerptRunes)
	}
	switch strings.ToLower(c.Generation.Provider) {
	case "", "claude", "extractive", "none":
	default:
		return fmt.Errorf("%w: unknown generation provider %q", types.ErrInvalidConfig, c.Generation.Provider)
	}
	if c.Indexer.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", types.ErrInvalidConfig, c.Indexer.Workers)
	}
	if c.Cache.BatchSize < 0 || (c.Cache.PersistRetries != nil && *c.Cache.PersistRetries < 0) {
		return fmt.Errorf("%w: cache batch_size and persist_retries must be >= 0", types.ErrInvalidConfig)
	}
	if c.Embedding.MaxRetries != nil && *c.Embedding.MaxRetries < 0 {
		return fmt.Errorf("%w: embedding max_retries must be >= 0, got %d", types.ErrInvalidConfig, *c.Embedding.MaxRetries)
	}
	return nil
}

// ProcessingConfig returns the per-run pipeline configuration
func (c *Config) ProcessingConfig() types.ProcessingConfig {
	return types.ProcessingConfig{
		SimilarityThreshold:   c.Chunking.SimilarityThreshold,
		MaxMergeDistance:      c.Chunking.MaxMergeDistance,
		TargetChunkTokens:     c.Chunking.TargetChunkTokens,
		MaxChunkTokens:        c.Chunking.MaxChunkTokens,
		MinChunkTokens:        c.Chunking.MinChunkTokens,
		OverlapTokens:         c.Chunking.OverlapTokens,
		ContentType:           types.ContentType(c.Chunking.ContentType),
		ContextWindow:         c.Context.WindowChunks,
		GenerationRetries:     c.Context.GenerationRetries,
		GenerationConcurrency: c.Context.Concurrency,
	}
}

// RetrievalConfig returns the query-time scoring configuration
func (c *Config) RetrievalConfig() types.RetrievalConfig {
	return types.RetrievalConfig{
		ContextualWeight: c.Retrieval.ContextualWeight,
		MatchThreshold:   c.Retrieval.MatchThreshold,
	}
}

// DBPath returns the database file, expanding a leading ~
func (c *Config) DBPath() (string, error) {
	p := c.Storage.Path
	if p == "" {
		p = DefaultDBPath
	}
	if p == ":memory:" {
		return p, nil
	}
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		p = filepath.Join(home, rest)
	}
	return p, nil
}
