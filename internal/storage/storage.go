package storage

import (
	"context"
	"time"

	"github.com/dshills/contextchunk-mcp/pkg/types"
)

// Storage persists the embedding cache, document records and chunk sets
type Storage interface {
	// Embedding cache operations
	PutCacheEntries(ctx context.Context, entries []CacheEntry) (inserted int, err error)
	GetCacheEntries(ctx context.Context, hashes []string) (map[string][]float32, error)
	ScanCacheEntries(ctx context.Context, fn func(CacheEntry) error) error
	CountCacheEntries(ctx context.Context) (int, error)
	ClearCache(ctx context.Context) error

	// Document operations
	GetDocument(ctx context.Context, documentID string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	SetDocumentStatus(ctx context.Context, documentID, title string, status DocumentStatus, errMsg string) error
	DeleteDocument(ctx context.Context, documentID string) error

	// Chunk operations
	ReplaceDocumentChunks(ctx context.Context, doc *Document, chunks []types.Chunk) error
	GetChunk(ctx context.Context, chunkID string) (*types.Chunk, error)
	GetChunks(ctx context.Context, chunkIDs []string) (map[string]*types.Chunk, error)
	ListChunksByDocument(ctx context.Context, documentID string) ([]types.Chunk, error)
	ScanChunks(ctx context.Context, filters *ChunkFilters, fn func(*types.Chunk) error) error

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// CacheEntry is one persisted sentence or chunk embedding, keyed by the hash
// of its normalized text
type CacheEntry struct {
	ContentHash string
	Vector      []float32
	CreatedAt   time.Time
}

// DocumentStatus is the outcome of the latest processing run of a document
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

// Document records a processed document. Version, ContentType, ContentHash
// and ChunkCount describe the committed chunk set; Status and Error describe
// the latest run, which may have failed without replacing it.
type Document struct {
	ID          string
	Title       string
	Version     string
	ContentType types.ContentType
	ContentHash string
	ChunkCount  int
	Status      DocumentStatus
	Error       *string // Nullable
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChunkFilters narrows ScanChunks. Empty slices match everything.
type ChunkFilters struct {
	DocumentIDs  []string
	ContentTypes []types.ContentType
}

// Status contains statistics about the store
type Status struct {
	Documents         int
	ReadyDocuments    int
	FailedDocuments   int
	Chunks            int
	ChunksWithContext int
	CacheEntries      int
	DatabaseSizeMB    float64
	BuildMode         string
}
