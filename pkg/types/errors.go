package types

import "errors"

// Domain errors for type validation
var (
	// Configuration errors
	ErrInvalidConfig = errors.New("invalid processing configuration")

	// Chunk errors
	ErrEmptyContent          = errors.New("content cannot be empty")
	ErrMissingDocumentID     = errors.New("document ID is required")
	ErrInvalidSentenceRange  = errors.New("start sentence must be before or equal to end sentence")
	ErrInvalidChunkOrder     = errors.New("chunk order must be a dense 0-based sequence")
	ErrBrokenChunkLinks      = errors.New("prev/next links do not match chunk order")
	ErrTokenBudgetViolation  = errors.New("chunk exceeds maximum token budget")
	ErrInvalidContentType    = errors.New("invalid content type")
	ErrMismatchedDimension   = errors.New("embedding dimension mismatch")
	ErrMissingEmbedding      = errors.New("content embedding is required")
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between -1 and 1")
)
