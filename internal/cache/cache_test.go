package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contextchunk-mcp/internal/embedder"
	"github.com/dshills/contextchunk-mcp/internal/storage"
	"github.com/dshills/contextchunk-mcp/internal/testutil"
)

func newStore(t *testing.T) *storage.SQLiteStorage {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.PersistBackoff = time.Millisecond
	return cfg
}

// flakyStore fails the first failures writes
type flakyStore struct {
	Store
	failures atomic.Int32
	puts     atomic.Int32
}

func (f *flakyStore) PutCacheEntries(ctx context.Context, entries []storage.CacheEntry) (int, error) {
	f.puts.Add(1)
	if f.failures.Add(-1) >= 0 {
		return 0, errors.New("disk I/O error")
	}
	return f.Store.PutCacheEntries(ctx, entries)
}

// clearingStore clears the cache during its first write, like a concurrent
// clear_cache call landing mid-batch
type clearingStore struct {
	Store
	cache *Cache
	once  sync.Once
}

func (s *clearingStore) PutCacheEntries(ctx context.Context, entries []storage.CacheEntry) (int, error) {
	s.once.Do(func() { _ = s.cache.Clear(ctx) })
	return s.Store.PutCacheEntries(ctx, entries)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Hello   world \n", "Hello world"},
		{"ＡＢＣ１２３", "ABC123"},
		{"他说：　你好", "他说: 你好"},
		{"ﬁne", "fine"},
		{"\t\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestKey(t *testing.T) {
	c := New(nil, DefaultConfig(), nil)
	assert.Equal(t, c.Key("Hello world"), c.Key("  Hello\n world "))
	assert.NotEqual(t, c.Key("Hello world"), c.Key("hello world"))
	assert.Len(t, c.Key("x"), 64)

	namespaced := New(nil, Config{Namespace: "jina:v3"}, nil)
	assert.NotEqual(t, c.Key("x"), namespaced.Key("x"))
}

func TestGetOrCompute(t *testing.T) {
	emb := testutil.NewFakeEmbedder(8)
	c := New(nil, DefaultConfig(), nil)
	ctx := context.Background()

	texts := []string{"first sentence.", "second sentence.", "first  sentence.", "第三句。"}
	vectors, err := c.GetOrCompute(ctx, texts, emb)
	require.NoError(t, err)
	require.Len(t, vectors, 4)

	// Duplicates within a call are embedded once
	require.Equal(t, 1, emb.Calls())
	assert.Equal(t, []string{"first sentence.", "second sentence.", "第三句。"}, emb.Batches()[0])
	assert.Equal(t, vectors[0], vectors[2])

	stats := c.Stats()
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
	assert.False(t, stats.Persistent)

	// Second occurrence is a hit with the identical vector
	again, err := c.GetOrCompute(ctx, []string{"第三句。", "second sentence."}, emb)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.Calls())
	assert.Equal(t, vectors[3], again[0])
	assert.Equal(t, vectors[1], again[1])
	assert.InDelta(t, 3.0/6.0, c.Stats().HitRate, 1e-9)

	v, ok := c.Get("second sentence.")
	require.True(t, ok)
	assert.Equal(t, vectors[1], v)
}

func TestGetOrCompute_ClearDuringPersist(t *testing.T) {
	store := &clearingStore{Store: newStore(t)}
	c := New(store, fastConfig(), nil)
	store.cache = c

	vectors, err := c.GetOrCompute(context.Background(), []string{"第一句。", "Second sentence."}, testutil.NewFakeEmbedder(4))
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	for i, v := range vectors {
		assert.Len(t, v, 4, "vector %d", i)
	}
}

func TestGetOrCompute_SubBatches(t *testing.T) {
	emb := testutil.NewFakeEmbedder(4)
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	c := New(nil, cfg, nil)

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := c.GetOrCompute(context.Background(), texts, emb)
	require.NoError(t, err)
	assert.Len(t, vectors, 5)

	batches := emb.Batches()
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"e"}, batches[2])
}

func TestGetOrCompute_EmptyText(t *testing.T) {
	c := New(nil, DefaultConfig(), nil)
	_, err := c.GetOrCompute(context.Background(), []string{"ok", "  \n"}, testutil.NewFakeEmbedder(4))
	assert.ErrorIs(t, err, embedder.ErrEmptyText)
}

func TestGetOrCompute_ProviderFailureKeepsCompletedBatches(t *testing.T) {
	store := newStore(t)
	emb := testutil.NewFakeEmbedder(4)
	emb.FailOnCall(2, testutil.ErrInjected)

	cfg := fastConfig()
	cfg.BatchSize = 2
	c := New(store, cfg, nil)
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, []string{"a", "b", "c", "d"}, emb)
	require.Error(t, err)
	assert.ErrorIs(t, err, embedder.ErrProviderFailed)
	assert.ErrorIs(t, err, testutil.ErrInjected)

	// The first sub-batch is cached and persisted despite the failure
	assert.Equal(t, 2, c.Stats().Entries)
	count, err := store.CountCacheEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// A retry only embeds what is still missing
	vectors, err := c.GetOrCompute(ctx, []string{"a", "b", "c", "d"}, emb)
	require.NoError(t, err)
	assert.Len(t, vectors, 4)
	batches := emb.Batches()
	assert.Equal(t, []string{"c", "d"}, batches[len(batches)-1])
}

func TestGetOrCompute_Cancelled(t *testing.T) {
	c := New(nil, DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	emb := testutil.NewFakeEmbedder(4)
	_, err := c.GetOrCompute(ctx, []string{"a"}, emb)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, embedder.ErrProviderFailed)
	assert.Zero(t, emb.Calls())
}

func TestPersistAndLoad(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	emb := testutil.NewFakeEmbedder(4)

	first := New(store, fastConfig(), nil)
	computed, err := first.Precompute(ctx, []string{"one.", "two.", "one."}, emb)
	require.NoError(t, err)
	assert.Equal(t, 2, computed)
	assert.True(t, first.Stats().Persistent)

	// A fresh instance warms up from the store and computes nothing
	second := New(store, fastConfig(), nil)
	loaded, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	vectors, err := second.GetOrCompute(ctx, []string{"two."}, emb)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.Calls())
	want, _ := first.Get("two.")
	assert.Equal(t, want, vectors[0])
}

func TestPersist_RetriesTransientFailures(t *testing.T) {
	store := &flakyStore{Store: newStore(t)}
	store.failures.Store(2)

	c := New(store, fastConfig(), nil)
	_, err := c.GetOrCompute(context.Background(), []string{"x"}, testutil.NewFakeEmbedder(4))
	require.NoError(t, err)

	assert.Equal(t, int32(3), store.puts.Load())
	assert.False(t, c.Degraded())
	assert.True(t, c.Stats().Persistent)
}

func TestPersist_DegradesAfterRetries(t *testing.T) {
	store := &flakyStore{Store: newStore(t)}
	store.failures.Store(100)

	cfg := fastConfig()
	cfg.PersistRetries = 2
	c := New(store, cfg, nil)
	ctx := context.Background()
	emb := testutil.NewFakeEmbedder(4)

	vectors, err := c.GetOrCompute(ctx, []string{"x"}, emb)
	require.NoError(t, err, "persistence failures never fail the caller")
	assert.Len(t, vectors, 1)
	assert.Equal(t, int32(3), store.puts.Load())
	assert.True(t, c.Degraded())

	stats := c.Stats()
	assert.False(t, stats.Persistent)
	assert.True(t, stats.Degraded)

	// Memory-only from now on
	_, err = c.GetOrCompute(ctx, []string{"y"}, emb)
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.puts.Load())
	_, ok := c.Get("y")
	assert.True(t, ok)

	// Clearing a reachable store recovers persistence
	require.NoError(t, c.Clear(ctx))
	assert.False(t, c.Degraded())
}

func TestClear(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	c := New(store, fastConfig(), nil)

	_, err := c.GetOrCompute(ctx, []string{"a", "b"}, testutil.NewFakeEmbedder(4))
	require.NoError(t, err)
	require.NoError(t, c.Clear(ctx))

	stats := c.Stats()
	assert.Zero(t, stats.Entries)
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)

	count, err := store.CountCacheEntries(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConcurrentFirstWriteWins(t *testing.T) {
	store := newStore(t)
	c := New(store, fastConfig(), nil)
	ctx := context.Background()

	texts := []string{"shared one.", "shared two.", "shared three."}
	results := make([][][]float32, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			emb := testutil.NewFakeEmbedder(4)
			// Every worker would produce a different vector for the same text
			for _, text := range texts {
				emb.Set(text, []float32{float32(i), 1, 0, 0})
			}
			v, err := c.GetOrCompute(ctx, texts, emb)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i])
	}
	stored, err := store.GetCacheEntries(ctx, []string{c.Key(texts[0])})
	require.NoError(t, err)
	assert.Equal(t, results[0][0], stored[c.Key(texts[0])])
}
