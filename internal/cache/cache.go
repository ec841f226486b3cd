// Package cache provides the content-addressed embedding cache shared by the
// sentence and chunk embedding stages.
//
// Texts are keyed by the SHA-256 of their normalized form, so the same
// sentence in two documents is embedded once. Entries live in an in-memory
// mirror and are persisted through a Store. A key, once written, is never
// overwritten.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/text/unicode/norm"

	"github.com/dshills/contextchunk-mcp/internal/embedder"
	"github.com/dshills/contextchunk-mcp/internal/storage"
)

// ErrCacheIO is returned when the backing store cannot be read or written
var ErrCacheIO = errors.New("embedding cache I/O failed")

const meterName = "github.com/dshills/contextchunk-mcp/internal/cache"

// Store is the persistence the cache needs. storage.Storage satisfies it.
type Store interface {
	PutCacheEntries(ctx context.Context, entries []storage.CacheEntry) (int, error)
	ScanCacheEntries(ctx context.Context, fn func(storage.CacheEntry) error) error
	ClearCache(ctx context.Context) error
}

// Config tunes batching and persistence
type Config struct {
	BatchSize      int           // texts per provider call
	PersistRetries uint64        // retries after the first failed write
	PersistBackoff time.Duration // base of the exponential backoff
	PersistTimeout time.Duration // bound on one persistence pass
	Namespace      string        // mixed into keys, e.g. provider and model
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:      embedder.DefaultBatchSize,
		PersistRetries: 3,
		PersistBackoff: 50 * time.Millisecond,
		PersistTimeout: 30 * time.Second,
	}
}

// Stats is a snapshot of cache activity
type Stats struct {
	Entries    int
	Hits       int64
	Misses     int64
	HitRate    float64
	Persistent bool // a store is attached and writes are succeeding
	Degraded   bool // persistence failed and the cache is memory-only
}

// Cache is safe for concurrent use
type Cache struct {
	store  Store
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string][]float32

	hits     atomic.Int64
	misses   atomic.Int64
	degraded atomic.Bool

	hitCounter  metric.Int64Counter
	missCounter metric.Int64Counter
}

// New creates a cache. store may be nil for a memory-only cache.
func New(store Store, cfg Config, logger *slog.Logger) *Cache {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 || cfg.BatchSize > embedder.MaxBatchSize {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PersistBackoff <= 0 {
		cfg.PersistBackoff = def.PersistBackoff
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Cache{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string][]float32),
	}
	c.initMetrics()
	return c
}

func (c *Cache) initMetrics() {
	meter := otel.Meter(meterName)
	var err error
	c.hitCounter, err = meter.Int64Counter("cache.hits",
		metric.WithDescription("Embedding cache hits"),
		metric.WithUnit("{text}"))
	if err != nil {
		c.hitCounter = noop.Int64Counter{}
	}
	c.missCounter, err = meter.Int64Counter("cache.misses",
		metric.WithDescription("Embedding cache misses"),
		metric.WithUnit("{text}"))
	if err != nil {
		c.missCounter = noop.Int64Counter{}
	}
}

// Normalize applies NFKC, collapses whitespace runs to one space and trims
func Normalize(text string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(text)), " ")
}

// Key returns the content hash of text
func (c *Cache) Key(text string) string {
	return hashKey(c.cfg.Namespace, Normalize(text))
}

func hashKey(namespace, normalized string) string {
	h := sha256.New()
	if namespace != "" {
		h.Write([]byte(namespace))
		h.Write([]byte{0})
	}
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached vector of text without computing it
func (c *Cache) Get(text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[c.Key(text)]
	return v, ok
}

// GetOrCompute returns one vector per text, in order. Misses are embedded
// with emb in sub-batches of BatchSize. Returned slices are shared with the
// cache and must not be modified.
func (c *Cache) GetOrCompute(ctx context.Context, texts []string, emb embedder.Embedder) ([][]float32, error) {
	out, _, err := c.getOrCompute(ctx, texts, emb)
	return out, err
}

// Precompute warms the cache with texts and returns how many were new
func (c *Cache) Precompute(ctx context.Context, texts []string, emb embedder.Embedder) (int, error) {
	_, computed, err := c.getOrCompute(ctx, texts, emb)
	return computed, err
}

func (c *Cache) getOrCompute(ctx context.Context, texts []string, emb embedder.Embedder) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missKeys, missTexts []string
	pending := make(map[string]bool)

	c.mu.RLock()
	for i, text := range texts {
		normalized := Normalize(text)
		if normalized == "" {
			c.mu.RUnlock()
			return nil, 0, fmt.Errorf("text %d: %w", i, embedder.ErrEmptyText)
		}
		key := hashKey(c.cfg.Namespace, normalized)
		keys[i] = key
		if v, ok := c.entries[key]; ok {
			out[i] = v
			continue
		}
		if !pending[key] {
			pending[key] = true
			missKeys = append(missKeys, key)
			missTexts = append(missTexts, normalized)
		}
	}
	c.mu.RUnlock()

	hits := int64(len(texts) - len(missKeys))
	c.hits.Add(hits)
	c.misses.Add(int64(len(missKeys)))
	c.hitCounter.Add(ctx, hits)
	c.missCounter.Add(ctx, int64(len(missKeys)))

	var fresh []storage.CacheEntry
	var computeErr error
	computed := make(map[string][]float32, len(missKeys))
	for start := 0; start < len(missKeys); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(missKeys))
		if err := ctx.Err(); err != nil {
			computeErr = err
			break
		}

		resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: missTexts[start:end]})
		if err != nil {
			computeErr = wrapProviderErr(ctx, err)
			break
		}
		if len(resp.Embeddings) != end-start {
			computeErr = fmt.Errorf("%w: got %d embeddings for %d texts",
				embedder.ErrProviderFailed, len(resp.Embeddings), end-start)
			break
		}

		vectors := resp.Vectors()
		for j, key := range missKeys[start:end] {
			computed[key] = vectors[j]
		}
		fresh = append(fresh, c.insert(missKeys[start:end], vectors)...)
	}

	// Completed sub-batches are kept even when a later one failed
	c.persist(ctx, fresh)

	if computeErr != nil {
		return nil, len(fresh), computeErr
	}

	// The mirror may have been cleared while persisting, so results come
	// from this call's own vectors.
	for i, key := range keys {
		if out[i] == nil {
			out[i] = computed[key]
		}
	}
	return out, len(fresh), nil
}

// insert adds vectors to the mirror and returns the entries that were new.
// A key set concurrently by another caller keeps its first vector.
func (c *Cache) insert(keys []string, vectors [][]float32) []storage.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var fresh []storage.CacheEntry
	for i, key := range keys {
		if _, ok := c.entries[key]; ok {
			continue
		}
		c.entries[key] = vectors[i]
		fresh = append(fresh, storage.CacheEntry{ContentHash: key, Vector: vectors[i], CreatedAt: now})
	}
	return fresh
}

func wrapProviderErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	if errors.Is(err, embedder.ErrProviderFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", embedder.ErrProviderFailed, err)
}

// persist writes entries once, retrying transient failures. It runs even
// when the caller's context is done so completed work is not lost.
func (c *Cache) persist(ctx context.Context, entries []storage.CacheEntry) {
	if c.store == nil || len(entries) == 0 || c.degraded.Load() {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.PersistTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(c.cfg.PersistRetries, retry.NewExponential(c.cfg.PersistBackoff))
	err := retry.Do(pctx, backoff, func(ctx context.Context) error {
		if _, err := c.store.PutCacheEntries(ctx, entries); err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %w", ErrCacheIO, err))
		}
		return nil
	})
	if err != nil {
		c.degraded.Store(true)
		c.logger.Warn("embedding cache persistence failed, continuing in memory only",
			"entries", len(entries), "error", err)
	}
}

// Load fills the mirror from the store and returns the number of entries
// added. In-memory entries win over stored ones.
func (c *Cache) Load(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	loaded := 0
	err := c.store.ScanCacheEntries(ctx, func(e storage.CacheEntry) error {
		c.mu.Lock()
		if _, ok := c.entries[e.ContentHash]; !ok {
			c.entries[e.ContentHash] = e.Vector
			loaded++
		}
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("%w: load: %w", ErrCacheIO, err)
	}
	c.logger.Info("embedding cache loaded", "entries", loaded)
	return loaded, nil
}

// Clear drops every entry from memory and the store and resets the counters.
// A successful store clear also leaves degraded mode.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string][]float32)
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)

	if c.store == nil {
		return nil
	}
	if err := c.store.ClearCache(ctx); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrCacheIO, err)
	}
	c.degraded.Store(false)
	return nil
}

// Degraded reports whether persistence has been abandoned
func (c *Cache) Degraded() bool {
	return c.degraded.Load()
}

// Stats returns a snapshot of cache activity
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	degraded := c.degraded.Load()
	return Stats{
		Entries:    entries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    rate,
		Persistent: c.store != nil && !degraded,
		Degraded:   degraded,
	}
}
