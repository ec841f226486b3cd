package types

import (
	"fmt"
	"strings"
)

// Chunk is a contiguous, token-bounded span of sentences used as one retrieval unit
type Chunk struct {
	// Identification
	ID         string
	DocumentID string
	Version    string // processing run that produced the chunk
	ChunkOrder int

	// Content
	Content       string
	OverlapPrefix string // trailing context of the previous part, embedded but not counted
	TokenCount    int

	// Location
	StartSentence int
	EndSentence   int
	StartChar     int
	EndChar       int

	// Embeddings
	Embedding           []float32
	ContextualEmbedding []float32 // nil when no context was generated

	// Generated enrichment
	ChunkContext    *string
	ChunkSummary    *string
	DocumentSection *string
	ContentType     ContentType

	// Positional links
	PrevChunkID *string
	NextChunkID *string
}

// EmbeddingText returns the text the content embedding is computed over
func (c *Chunk) EmbeddingText() string {
	if c.OverlapPrefix == "" {
		return c.Content
	}
	return c.OverlapPrefix + "\n" + c.Content
}

// ContextualText returns the text the contextual embedding is computed over,
// or "" when the chunk has no generated context
func (c *Chunk) ContextualText() string {
	if c.ChunkContext == nil || strings.TrimSpace(*c.ChunkContext) == "" {
		return ""
	}
	return *c.ChunkContext + "\n\n" + c.Content
}

// Validate checks the invariants of a single chunk
func (c *Chunk) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return ErrEmptyContent
	}
	if c.DocumentID == "" {
		return ErrMissingDocumentID
	}
	if c.StartSentence > c.EndSentence {
		return ErrInvalidSentenceRange
	}
	if c.ChunkOrder < 0 {
		return ErrInvalidChunkOrder
	}
	if len(c.Embedding) == 0 {
		return ErrMissingEmbedding
	}
	if c.ContextualEmbedding != nil && len(c.ContextualEmbedding) != len(c.Embedding) {
		return ErrMismatchedDimension
	}
	return nil
}

// ValidateChunkSet checks the invariants that span a document's chunk set:
// dense 0-based order, matching prev/next links, one document and the token
// bounds. Only the last chunk may be under minTokens. A bound <= 0 is skipped.
func ValidateChunkSet(chunks []Chunk, maxTokens, minTokens int) error {
	for i := range chunks {
		c := &chunks[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		if c.ChunkOrder != i {
			return fmt.Errorf("%w: position %d has order %d", ErrInvalidChunkOrder, i, c.ChunkOrder)
		}
		if c.DocumentID != chunks[0].DocumentID {
			return fmt.Errorf("%w: chunk %d belongs to %s", ErrBrokenChunkLinks, i, c.DocumentID)
		}
		if maxTokens > 0 && c.TokenCount > maxTokens {
			return fmt.Errorf("%w: chunk %d has %d tokens, max %d", ErrTokenBudgetViolation, i, c.TokenCount, maxTokens)
		}
		if minTokens > 0 && i < len(chunks)-1 && c.TokenCount < minTokens {
			return fmt.Errorf("%w: chunk %d has %d tokens, min %d", ErrTokenBudgetViolation, i, c.TokenCount, minTokens)
		}

		var wantPrev, wantNext *string
		if i > 0 {
			wantPrev = &chunks[i-1].ID
		}
		if i < len(chunks)-1 {
			wantNext = &chunks[i+1].ID
		}
		if !sameID(c.PrevChunkID, wantPrev) || !sameID(c.NextChunkID, wantNext) {
			return fmt.Errorf("%w: chunk %d", ErrBrokenChunkLinks, i)
		}
	}
	return nil
}

// LinkChunks assigns chunk_order and prev/next links by slice position
func LinkChunks(chunks []Chunk) {
	for i := range chunks {
		chunks[i].ChunkOrder = i
		chunks[i].PrevChunkID = nil
		chunks[i].NextChunkID = nil
		if i > 0 {
			prev := chunks[i-1].ID
			chunks[i].PrevChunkID = &prev
		}
		if i < len(chunks)-1 {
			next := chunks[i+1].ID
			chunks[i].NextChunkID = &next
		}
	}
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// StringPtr returns a pointer to s, or nil for an empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
