package searcher

import (
	"container/heap"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/contextchunk-mcp/internal/cache"
	"github.com/dshills/contextchunk-mcp/internal/embedder"
	"github.com/dshills/contextchunk-mcp/internal/storage"
	"github.com/dshills/contextchunk-mcp/pkg/types"
)

// DefaultQueryCacheSize is the number of query embeddings kept by SearchText
const DefaultQueryCacheSize = 1000

var ErrInvalidRequest = errors.New("invalid search request")

// Store is the read side of the chunk store the searcher needs
type Store interface {
	ScanChunks(ctx context.Context, filters *storage.ChunkFilters, fn func(*types.Chunk) error) error
	GetChunks(ctx context.Context, chunkIDs []string) (map[string]*types.Chunk, error)
}

// SearchRequest searches with a precomputed query embedding
type SearchRequest struct {
	QueryEmbedding []float32
	Filters        *storage.ChunkFilters
	Threshold      *float64 // nil uses the configured match threshold
	Limit          int
	Enrich         bool // attach prev/next neighbour content
}

// TextSearchRequest searches with a query text embedded by the searcher
type TextSearchRequest struct {
	Query     string
	Filters   *storage.ChunkFilters
	Threshold *float64
	Limit     int
	Enrich    bool
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.SearchResult
	TotalMatches  int // chunks above the threshold before the limit
	Scanned       int
	Duration      time.Duration
	QueryCacheHit bool
}

// Searcher scores persisted chunks against a query embedding
type Searcher struct {
	storage  Store
	embedder embedder.Embedder
	cfg      types.RetrievalConfig
	queries  *lru.Cache[[32]byte, []float32]
	logger   *slog.Logger
}

// NewSearcher creates a Searcher. emb may be nil when only Search is used.
func NewSearcher(store Store, emb embedder.Embedder, cfg types.RetrievalConfig, logger *slog.Logger) (*Searcher, error) {
	if store == nil {
		return nil, errors.New("searcher: store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	queries, err := lru.New[[32]byte, []float32](DefaultQueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Searcher{
		storage:  store,
		embedder: emb,
		cfg:      cfg,
		queries:  queries,
		logger:   logger,
	}, nil
}

// Config returns the retrieval configuration
func (s *Searcher) Config() types.RetrievalConfig {
	return s.cfg
}

// scores holds the per-embedding similarities of one chunk
type scores struct {
	relevance  float64
	contextual *float64
	content    *float64
}

// Score returns the weighted relevance of chunk to query. With both
// embeddings the contextual one gets ContextualWeight; with one it gets the
// full weight; with none (or none matching the query dimension) the chunk is
// not eligible.
func (s *Searcher) Score(query []float32, chunk *types.Chunk) (float64, bool) {
	sc, ok := s.score(query, chunk)
	return sc.relevance, ok
}

func (s *Searcher) score(query []float32, chunk *types.Chunk) (scores, bool) {
	var sc scores
	if usable(query, chunk.ContextualEmbedding) {
		v := storage.CosineSimilarity(query, chunk.ContextualEmbedding)
		sc.contextual = &v
	}
	if usable(query, chunk.Embedding) {
		v := storage.CosineSimilarity(query, chunk.Embedding)
		sc.content = &v
	}

	switch {
	case sc.contextual != nil && sc.content != nil:
		w := s.cfg.ContextualWeight
		sc.relevance = w*(*sc.contextual) + (1-w)*(*sc.content)
	case sc.contextual != nil:
		sc.relevance = *sc.contextual
	case sc.content != nil:
		sc.relevance = *sc.content
	default:
		return sc, false
	}
	return sc, true
}

func usable(query, embedding []float32) bool {
	return len(embedding) > 0 && len(embedding) == len(query)
}

// Search returns the best chunks scoring strictly above the threshold,
// ordered by score, then chunk order, document id and chunk id
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	threshold, err := s.validate(req.QueryEmbedding, req.Threshold, req.Limit)
	if err != nil {
		return nil, err
	}

	top := &candidates{}
	resp := &SearchResponse{}
	err = s.storage.ScanChunks(ctx, req.Filters, func(ch *types.Chunk) error {
		resp.Scanned++
		sc, ok := s.score(req.QueryEmbedding, ch)
		if !ok || !(sc.relevance > threshold) {
			return nil
		}
		resp.TotalMatches++

		c := candidate{chunk: ch, scores: sc}
		if top.Len() < req.Limit {
			heap.Push(top, c)
		} else if better(c, (*top)[0]) {
			(*top)[0] = c
			heap.Fix(top, 0)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunks: %w", err)
	}

	ranked := []candidate(*top)
	sort.Slice(ranked, func(i, j int) bool { return better(ranked[i], ranked[j]) })

	resp.Results = make([]types.SearchResult, len(ranked))
	for i, c := range ranked {
		// Embeddings are not part of a result. The store may own the
		// scanned chunk, so only the copy is cleared.
		chunk := *c.chunk
		chunk.Embedding = nil
		chunk.ContextualEmbedding = nil
		resp.Results[i] = types.SearchResult{
			Rank:            i + 1,
			Chunk:           chunk,
			RelevanceScore:  c.scores.relevance,
			ContextualScore: c.scores.contextual,
			ContentScore:    c.scores.content,
		}
	}

	if req.Enrich && len(resp.Results) > 0 {
		if err := s.enrich(ctx, resp.Results); err != nil {
			return nil, err
		}
	}

	resp.Duration = time.Since(start)
	s.logger.Debug("search completed",
		"scanned", resp.Scanned,
		"matches", resp.TotalMatches,
		"returned", len(resp.Results),
		"duration", resp.Duration)
	return resp, nil
}

// SearchText embeds the query, reusing recent query embeddings, and searches
func (s *Searcher) SearchText(ctx context.Context, req TextSearchRequest) (*SearchResponse, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: embedder not initialized", ErrInvalidRequest)
	}
	query := cache.Normalize(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidRequest)
	}
	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidRequest, req.Limit)
	}

	key := sha256.Sum256([]byte(s.embedder.Provider() + "\x00" + s.embedder.Model() + "\x00" + query))
	vector, hit := s.queries.Get(key)
	if !hit {
		emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
		if err != nil {
			return nil, fmt.Errorf("failed to generate query embedding: %w", err)
		}
		vector = emb.Vector
		s.queries.Add(key, vector)
	}

	resp, err := s.Search(ctx, SearchRequest{
		QueryEmbedding: vector,
		Filters:        req.Filters,
		Threshold:      req.Threshold,
		Limit:          req.Limit,
		Enrich:         req.Enrich,
	})
	if err != nil {
		return nil, err
	}
	resp.QueryCacheHit = hit
	return resp, nil
}

// PurgeQueryCache drops every cached query embedding
func (s *Searcher) PurgeQueryCache() {
	s.queries.Purge()
}

func (s *Searcher) validate(query []float32, threshold *float64, limit int) (float64, error) {
	if len(query) == 0 {
		return 0, fmt.Errorf("%w: query embedding cannot be empty", ErrInvalidRequest)
	}
	if limit <= 0 {
		return 0, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidRequest, limit)
	}
	t := s.cfg.MatchThreshold
	if threshold != nil {
		t = *threshold
	}
	if math.IsNaN(t) || t < -1 || t >= 1 {
		return 0, fmt.Errorf("%w: threshold must be in [-1, 1), got %v", ErrInvalidRequest, t)
	}
	return t, nil
}

// enrich attaches the content of linked neighbours. Scores are untouched.
func (s *Searcher) enrich(ctx context.Context, results []types.SearchResult) error {
	var ids []string
	for _, r := range results {
		if r.Chunk.PrevChunkID != nil {
			ids = append(ids, *r.Chunk.PrevChunkID)
		}
		if r.Chunk.NextChunkID != nil {
			ids = append(ids, *r.Chunk.NextChunkID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	neighbours, err := s.storage.GetChunks(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load neighbours: %w", err)
	}
	for i := range results {
		results[i].Prev = neighbour(neighbours, results[i].Chunk.PrevChunkID)
		results[i].Next = neighbour(neighbours, results[i].Chunk.NextChunkID)
	}
	return nil
}

func neighbour(chunks map[string]*types.Chunk, id *string) *types.Neighbor {
	if id == nil {
		return nil
	}
	ch, ok := chunks[*id]
	if !ok {
		return nil
	}
	return &types.Neighbor{ChunkID: ch.ID, ChunkOrder: ch.ChunkOrder, Content: ch.Content}
}

type candidate struct {
	chunk  *types.Chunk
	scores scores
}

// better is the result order: score desc, chunk order asc, then document id
// and chunk id for a total order
func better(a, b candidate) bool {
	if a.scores.relevance != b.scores.relevance {
		return a.scores.relevance > b.scores.relevance
	}
	if a.chunk.ChunkOrder != b.chunk.ChunkOrder {
		return a.chunk.ChunkOrder < b.chunk.ChunkOrder
	}
	if a.chunk.DocumentID != b.chunk.DocumentID {
		return a.chunk.DocumentID < b.chunk.DocumentID
	}
	return a.chunk.ID < b.chunk.ID
}

// candidates is a heap with the worst kept candidate at the root
type candidates []candidate

func (h candidates) Len() int           { return len(h) }
func (h candidates) Less(i, j int) bool { return better(h[j], h[i]) }
func (h candidates) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *candidates) Push(x any) { *h = append(*h, x.(candidate)) }

func (h *candidates) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
