package types

// SearchResult represents a single scored chunk returned by the search engine
type SearchResult struct {
	Rank  int // Position in result set (1-based)
	Chunk Chunk

	// Scoring
	RelevanceScore  float64  // Combined weighted score
	ContextualScore *float64 // nil when the chunk has no contextual embedding
	ContentScore    *float64 // nil when the chunk has no content embedding

	// Enrichment, read-only neighbours resolved through the chunk links
	Prev *Neighbor
	Next *Neighbor
}

// Neighbor is the content of a chunk adjacent to a hit
type Neighbor struct {
	ChunkID    string
	ChunkOrder int
	Content    string
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.RelevanceScore < -1 || sr.RelevanceScore > 1 {
		return ErrInvalidRelevanceScore
	}
	if sr.Chunk.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// ExpandedContent joins neighbour content around the hit for callers that
// want a single context window
func (sr *SearchResult) ExpandedContent() string {
	out := sr.Chunk.Content
	if sr.Prev != nil && sr.Prev.Content != "" {
		out = sr.Prev.Content + "\n\n" + out
	}
	if sr.Next != nil && sr.Next.Content != "" {
		out = out + "\n\n" + sr.Next.Content
	}
	return out
}
