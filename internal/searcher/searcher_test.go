package searcher

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contextchunk-mcp/internal/embedder"
	"github.com/dshills/contextchunk-mcp/internal/storage"
	"github.com/dshills/contextchunk-mcp/internal/testutil"
	"github.com/dshills/contextchunk-mcp/pkg/types"
)

// memStore serves chunks from memory in document/order sequence
type memStore struct {
	chunks []types.Chunk
}

func (m *memStore) ScanChunks(ctx context.Context, filters *storage.ChunkFilters, fn func(*types.Chunk) error) error {
	for _, ch := range m.chunks {
		if filters != nil && len(filters.DocumentIDs) > 0 && !slices.Contains(filters.DocumentIDs, ch.DocumentID) {
			continue
		}
		c := ch
		if err := fn(&c); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) GetChunks(ctx context.Context, ids []string) (map[string]*types.Chunk, error) {
	out := make(map[string]*types.Chunk)
	for _, ch := range m.chunks {
		if slices.Contains(ids, ch.ID) {
			c := ch
			out[ch.ID] = &c
		}
	}
	return out, nil
}

// sharedStore hands out pointers to its own chunks, like a caching store
type sharedStore struct {
	memStore
}

func (m *sharedStore) ScanChunks(ctx context.Context, filters *storage.ChunkFilters, fn func(*types.Chunk) error) error {
	for i := range m.chunks {
		if err := fn(&m.chunks[i]); err != nil {
			return err
		}
	}
	return nil
}

// at returns the 2D unit vector at deg degrees
func at(deg float64) []float32 {
	rad := deg * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

func cos(deg float64) float64 {
	v := at(deg)
	return storage.CosineSimilarity([]float32{1, 0}, v)
}

func newSearcher(t *testing.T, store Store, emb embedder.Embedder) *Searcher {
	t.Helper()
	s, err := NewSearcher(store, emb, types.RetrievalConfig{ContextualWeight: 0.7, MatchThreshold: 0.2}, nil)
	require.NoError(t, err)
	return s
}

func TestScore(t *testing.T) {
	s := newSearcher(t, &memStore{}, nil)
	q := []float32{1, 0}

	tests := []struct {
		name  string
		chunk types.Chunk
		want  float64
		ok    bool
	}{
		{
			name:  "both embeddings",
			chunk: types.Chunk{Embedding: at(60), ContextualEmbedding: at(0)},
			want:  0.7*1 + 0.3*cos(60),
			ok:    true,
		},
		{
			name:  "content only",
			chunk: types.Chunk{Embedding: at(60)},
			want:  cos(60),
			ok:    true,
		},
		{
			name:  "contextual only",
			chunk: types.Chunk{ContextualEmbedding: at(30)},
			want:  cos(30),
			ok:    true,
		},
		{
			name:  "neither",
			chunk: types.Chunk{},
			ok:    false,
		},
		{
			name:  "other dimension is ignored",
			chunk: types.Chunk{Embedding: at(60), ContextualEmbedding: []float32{1, 0, 0}},
			want:  cos(60),
			ok:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Score(q, &tt.chunk)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-6)
			}
		})
	}
}

func TestSearch_OrderingAndTies(t *testing.T) {
	store := &memStore{chunks: []types.Chunk{
		{ID: "a2", DocumentID: "a", ChunkOrder: 2, Content: "a2", Embedding: at(10)},
		{ID: "a0", DocumentID: "a", ChunkOrder: 0, Content: "a0", Embedding: at(10)},
		{ID: "b0", DocumentID: "b", ChunkOrder: 0, Content: "b0", Embedding: at(10)},
		{ID: "b1", DocumentID: "b", ChunkOrder: 1, Content: "b1", Embedding: at(5)},
		{ID: "c0", DocumentID: "c", ChunkOrder: 0, Content: "c0", Embedding: at(80)},
		{ID: "d0", DocumentID: "d", ChunkOrder: 0, Content: "d0"},
	}}
	s := newSearcher(t, store, nil)

	resp, err := s.Search(context.Background(), SearchRequest{QueryEmbedding: []float32{1, 0}, Limit: 10})
	require.NoError(t, err)

	var ids []string
	for i, r := range resp.Results {
		ids = append(ids, r.Chunk.ID)
		assert.Equal(t, i+1, r.Rank)
		assert.NoError(t, r.Validate())
		assert.Nil(t, r.ContextualScore)
		require.NotNil(t, r.ContentScore)
		assert.Equal(t, r.RelevanceScore, *r.ContentScore)
	}
	// c0 scores cos(80) = 0.17, below the 0.2 threshold; d0 has no embedding
	assert.Equal(t, []string{"b1", "a0", "b0", "a2"}, ids)
	assert.Equal(t, 4, resp.TotalMatches)
	assert.Equal(t, 6, resp.Scanned)

	// The limit applies after ordering
	resp, err = s.Search(context.Background(), SearchRequest{QueryEmbedding: []float32{1, 0}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "b1", resp.Results[0].Chunk.ID)
	assert.Equal(t, "a0", resp.Results[1].Chunk.ID)
	assert.Equal(t, 4, resp.TotalMatches)
}

func TestSearch_ThresholdIsStrict(t *testing.T) {
	chunk := types.Chunk{ID: "x", DocumentID: "d", Content: "x", Embedding: at(45)}
	s := newSearcher(t, &memStore{chunks: []types.Chunk{chunk}}, nil)
	score, ok := s.Score([]float32{1, 0}, &chunk)
	require.True(t, ok)

	resp, err := s.Search(context.Background(), SearchRequest{QueryEmbedding: []float32{1, 0}, Threshold: &score, Limit: 1})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	below := math.Nextafter(score, -1)
	resp, err = s.Search(context.Background(), SearchRequest{QueryEmbedding: []float32{1, 0}, Threshold: &below, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

func TestSearch_Validation(t *testing.T) {
	s := newSearcher(t, &memStore{}, nil)
	tooHigh := 1.0
	tests := []struct {
		name string
		req  SearchRequest
	}{
		{"empty query", SearchRequest{Limit: 1}},
		{"zero limit", SearchRequest{QueryEmbedding: []float32{1}, Limit: 0}},
		{"threshold", SearchRequest{QueryEmbedding: []float32{1}, Limit: 1, Threshold: &tooHigh}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Search(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	_, err := NewSearcher(&memStore{}, nil, types.RetrievalConfig{ContextualWeight: 1.5}, nil)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = s.SearchText(context.Background(), TextSearchRequest{Query: "q", Limit: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest, "no embedder")
}

func storedChunks(documentID string, degrees []float64, withContext bool) []types.Chunk {
	chunks := make([]types.Chunk, len(degrees))
	for i, deg := range degrees {
		chunks[i] = types.Chunk{
			ID:            fmt.Sprintf("%s-%d", documentID, i),
			DocumentID:    documentID,
			Version:       "v1",
			Content:       fmt.Sprintf("content %d of %s", i, documentID),
			StartSentence: i,
			EndSentence:   i,
			TokenCount:    10,
			Embedding:     at(deg),
			ContentType:   types.ContentTypeArticle,
		}
		if withContext {
			chunks[i].ContextualEmbedding = at(deg / 2)
			chunks[i].ChunkContext = types.StringPtr("context of " + documentID)
		}
	}
	types.LinkChunks(chunks)
	return chunks
}

func TestSearch_SQLiteEnrichAndFilters(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.ReplaceDocumentChunks(ctx, &storage.Document{ID: "river", Title: "River"},
		storedChunks("river", []float64{70, 10, 70}, true)))
	// A document whose context generation failed is still searchable by content
	require.NoError(t, store.ReplaceDocumentChunks(ctx, &storage.Document{ID: "lake", Title: "Lake"},
		storedChunks("lake", []float64{15}, false)))

	s := newSearcher(t, store, nil)
	resp, err := s.Search(ctx, SearchRequest{QueryEmbedding: []float32{1, 0}, Limit: 1, Enrich: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	hit := resp.Results[0]
	assert.Equal(t, "river-1", hit.Chunk.ID)
	assert.InDelta(t, 0.7*cos(5)+0.3*cos(10), hit.RelevanceScore, 1e-6)
	require.NotNil(t, hit.Prev)
	require.NotNil(t, hit.Next)
	assert.Equal(t, "content 0 of river", hit.Prev.Content)
	assert.Equal(t, 2, hit.Next.ChunkOrder)
	assert.Equal(t, "content 0 of river\n\ncontent 1 of river\n\ncontent 2 of river", hit.ExpandedContent())

	resp, err = s.Search(ctx, SearchRequest{
		QueryEmbedding: []float32{1, 0},
		Filters:        &storage.ChunkFilters{DocumentIDs: []string{"lake"}},
		Limit:          5,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "lake-0", resp.Results[0].Chunk.ID)
	assert.Nil(t, resp.Results[0].ContextualScore)
	assert.InDelta(t, cos(15), resp.Results[0].RelevanceScore, 1e-6)
	assert.Nil(t, resp.Results[0].Prev)
	assert.Nil(t, resp.Results[0].Next, "not enriched")
}

// countingEmbedder counts single embedding calls
type countingEmbedder struct {
	*testutil.FakeEmbedder
	calls atomic.Int32
}

func (c *countingEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	c.calls.Add(1)
	return c.FakeEmbedder.GenerateEmbedding(ctx, req)
}

func TestSearchText_QueryCache(t *testing.T) {
	emb := &countingEmbedder{FakeEmbedder: testutil.NewFakeEmbedder(2)}
	emb.Set("where is the river", []float32{1, 0})
	store := &memStore{chunks: storedChunks("river", []float64{10}, false)}
	s := newSearcher(t, store, emb)
	ctx := context.Background()

	resp, err := s.SearchText(ctx, TextSearchRequest{Query: "where is the river", Limit: 3})
	require.NoError(t, err)
	assert.False(t, resp.QueryCacheHit)
	require.Len(t, resp.Results, 1)

	// Whitespace differences normalize to the same query
	resp, err = s.SearchText(ctx, TextSearchRequest{Query: "  where is  the river\n", Limit: 3})
	require.NoError(t, err)
	assert.True(t, resp.QueryCacheHit)
	assert.Equal(t, int32(1), emb.calls.Load())

	s.PurgeQueryCache()
	_, err = s.SearchText(ctx, TextSearchRequest{Query: "where is the river", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, int32(2), emb.calls.Load())

	_, err = s.SearchText(ctx, TextSearchRequest{Query: " \n ", Limit: 3})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSearch_LeavesStoredEmbeddingsIntact(t *testing.T) {
	store := &sharedStore{memStore{chunks: []types.Chunk{
		{ID: "a0", DocumentID: "a", Content: "a0", Embedding: at(10), ContextualEmbedding: at(5)},
		{ID: "a1", DocumentID: "a", ChunkOrder: 1, Content: "a1", Embedding: at(20)},
	}}}
	s := newSearcher(t, store, nil)

	resp, err := s.Search(context.Background(), SearchRequest{QueryEmbedding: []float32{1, 0}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.Nil(t, r.Chunk.Embedding)
		assert.Nil(t, r.Chunk.ContextualEmbedding)
	}

	assert.Equal(t, at(10), store.chunks[0].Embedding)
	assert.Equal(t, at(5), store.chunks[0].ContextualEmbedding)
	assert.Equal(t, at(20), store.chunks[1].Embedding)
}
