package types

import "fmt"

// ProcessingConfig carries every parameter of one document processing run.
// There are no implicit defaults: a zero field is rejected by Validate.
type ProcessingConfig struct {
	SimilarityThreshold float64
	MaxMergeDistance    int
	TargetChunkTokens   int
	MaxChunkTokens      int
	MinChunkTokens      int
	OverlapTokens       int
	ContentType         ContentType

	// Contextual generation
	ContextWindow         int // neighbour chunks on each side given to the generator
	GenerationRetries     int // retries per chunk after the first attempt
	GenerationConcurrency int
}

// Validate checks that every field is set and consistent
func (c ProcessingConfig) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be in (0, 1], got %v", ErrInvalidConfig, c.SimilarityThreshold)
	}
	if c.MaxMergeDistance < 0 {
		return fmt.Errorf("%w: max_merge_distance must be >= 0, got %d", ErrInvalidConfig, c.MaxMergeDistance)
	}
	if c.MaxChunkTokens <= 0 {
		return fmt.Errorf("%w: max_chunk_tokens must be > 0, got %d", ErrInvalidConfig, c.MaxChunkTokens)
	}
	if c.TargetChunkTokens <= 0 || c.TargetChunkTokens > c.MaxChunkTokens {
		return fmt.Errorf("%w: target_chunk_tokens must be in (0, max_chunk_tokens], got %d", ErrInvalidConfig, c.TargetChunkTokens)
	}
	if c.MinChunkTokens <= 0 || c.MinChunkTokens > c.TargetChunkTokens {
		return fmt.Errorf("%w: min_chunk_tokens must be in (0, target_chunk_tokens], got %d", ErrInvalidConfig, c.MinChunkTokens)
	}
	if 2*c.MinChunkTokens > c.MaxChunkTokens {
		return fmt.Errorf("%w: min_chunk_tokens must be at most half of max_chunk_tokens, got %d and %d",
			ErrInvalidConfig, c.MinChunkTokens, c.MaxChunkTokens)
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.MaxChunkTokens {
		return fmt.Errorf("%w: overlap_tokens must be in [0, max_chunk_tokens), got %d", ErrInvalidConfig, c.OverlapTokens)
	}
	if _, err := ParseContentType(string(c.ContentType)); err != nil {
		return fmt.Errorf("%w: content_type: %v", ErrInvalidConfig, err)
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("%w: window_chunks must be >= 0, got %d", ErrInvalidConfig, c.ContextWindow)
	}
	if c.GenerationRetries < 0 {
		return fmt.Errorf("%w: generation_retries must be >= 0, got %d", ErrInvalidConfig, c.GenerationRetries)
	}
	if c.GenerationConcurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be > 0, got %d", ErrInvalidConfig, c.GenerationConcurrency)
	}
	return nil
}

// RetrievalConfig parameterizes query-time scoring
type RetrievalConfig struct {
	ContextualWeight float64 // weight of the contextual embedding when both exist
	MatchThreshold   float64 // results must score strictly above this
}

// Validate checks retrieval parameters
func (c RetrievalConfig) Validate() error {
	if c.ContextualWeight < 0 || c.ContextualWeight > 1 {
		return fmt.Errorf("%w: contextual_weight must be in [0, 1], got %v", ErrInvalidConfig, c.ContextualWeight)
	}
	if c.MatchThreshold < -1 || c.MatchThreshold >= 1 {
		return fmt.Errorf("%w: match_threshold must be in [-1, 1), got %v", ErrInvalidConfig, c.MatchThreshold)
	}
	return nil
}
