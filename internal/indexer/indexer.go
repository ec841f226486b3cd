package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/contextchunk-mcp/internal/chunker"
	"github.com/dshills/contextchunk-mcp/internal/storage"
	"github.com/dshills/contextchunk-mcp/pkg/types"
)

const meterName = "github.com/dshills/contextchunk-mcp/internal/indexer"

// Stages the indexer adds around the chunker's own
const (
	StageLoad  chunker.Stage = "load"
	StageStore chunker.Stage = "store"
)

// ErrDocumentBusy is returned when the document is already being processed
var ErrDocumentBusy = errors.New("document is already being processed")

// DocumentError reports a failed document and the stage it failed at
type DocumentError struct {
	DocumentID string
	Stage      chunker.Stage
	Err        error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s: %s: %v", e.DocumentID, e.Stage, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Chunker runs the per-document pipeline
type Chunker interface {
	Run(ctx context.Context, doc chunker.Document, cfg types.ProcessingConfig) (*chunker.Result, error)
}

// Indexer coordinates the pipeline: chunk -> store, one document per worker
type Indexer struct {
	chunker Chunker
	storage storage.Storage
	logger  *slog.Logger
	locks   documentLocks

	// Worker pool configuration
	workers int

	processed metric.Int64Counter
	failed    metric.Int64Counter
	skipped   metric.Int64Counter
	chunks    metric.Int64Counter
}

// Options contains configuration for the indexer
type Options struct {
	Workers int // Number of concurrent documents (default: runtime.NumCPU())
	Logger  *slog.Logger
}

// Request is a batch of documents processed with one configuration
type Request struct {
	Documents []chunker.Document
	Config    types.ProcessingConfig
	Force     bool // reprocess documents whose text and configuration are unchanged
}

// DocumentResult is the outcome of one document
type DocumentResult struct {
	DocumentID         string
	Version            string
	ContentType        types.ContentType
	Chunks             []types.Chunk // nil when skipped
	ChunkCount         int
	GenerationFailures int
	Skipped            bool
	Err                *DocumentError
}

// Statistics contains statistics about a batch
type Statistics struct {
	DocumentsProcessed int
	DocumentsSkipped   int
	DocumentsFailed    int
	ChunksCreated      int
	GenerationFailures int
	Duration           time.Duration
	ErrorMessages      []string
}

// New creates a new Indexer instance
func New(store storage.Storage, ch Chunker, opts Options) (*Indexer, error) {
	if store == nil {
		return nil, errors.New("indexer: storage is required")
	}
	if ch == nil {
		return nil, errors.New("indexer: chunker is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	idx := &Indexer{
		chunker: ch,
		storage: store,
		logger:  opts.Logger,
		workers: opts.Workers,
	}
	idx.initMetrics()
	return idx, nil
}

func (idx *Indexer) initMetrics() {
	meter := otel.Meter(meterName)
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			return noop.Int64Counter{}
		}
		return c
	}
	idx.processed = counter("documents.processed", "Documents chunked and committed", "{document}")
	idx.failed = counter("documents.failed", "Documents whose processing failed", "{document}")
	idx.skipped = counter("documents.skipped", "Unchanged documents skipped", "{document}")
	idx.chunks = counter("chunks.created", "Chunks committed", "{chunk}")
}

// ProcessDocuments processes a batch on a bounded worker pool. A failing
// document never aborts its siblings; only cancellation of ctx is returned as
// an error, alongside the results gathered so far.
func (idx *Indexer) ProcessDocuments(ctx context.Context, req Request) ([]DocumentResult, *Statistics, error) {
	startTime := time.Now()
	if err := req.Config.Validate(); err != nil {
		return nil, nil, err
	}

	results := make([]DocumentResult, len(req.Documents))
	var g errgroup.Group
	g.SetLimit(idx.workers)

	for i, doc := range req.Documents {
		g.Go(func() error {
			res, err := idx.ProcessDocument(ctx, doc, req.Config, req.Force)
			if err != nil {
				var docErr *DocumentError
				if !errors.As(err, &docErr) {
					docErr = &DocumentError{DocumentID: doc.ID, Stage: StageLoad, Err: err}
				}
				results[i] = DocumentResult{DocumentID: doc.ID, Err: docErr}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	stats := &Statistics{ErrorMessages: make([]string, 0)}
	for i := range results {
		r := &results[i]
		switch {
		case r.Err != nil:
			stats.DocumentsFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, r.Err.Error())
		case r.Skipped:
			stats.DocumentsSkipped++
		default:
			stats.DocumentsProcessed++
			stats.ChunksCreated += r.ChunkCount
			stats.GenerationFailures += r.GenerationFailures
		}
	}
	stats.Duration = time.Since(startTime)

	idx.logger.Info("batch processed",
		"documents", len(req.Documents),
		"processed", stats.DocumentsProcessed,
		"skipped", stats.DocumentsSkipped,
		"failed", stats.DocumentsFailed,
		"chunks", stats.ChunksCreated,
		"duration", stats.Duration)

	if err := ctx.Err(); err != nil {
		return results, stats, err
	}
	return results, stats, nil
}

// ProcessDocument chunks one document and commits its chunk set in a single
// transaction. On failure the document is marked failed, the previously
// committed chunk set stays in place and a *DocumentError is returned.
// Unless force is set, a document whose text and configuration match the
// committed run is skipped.
func (idx *Indexer) ProcessDocument(ctx context.Context, doc chunker.Document, cfg types.ProcessingConfig, force bool) (*DocumentResult, error) {
	if doc.ID == "" {
		return nil, &DocumentError{Stage: chunker.StageConfig, Err: types.ErrMissingDocumentID}
	}
	if !idx.locks.tryAcquire(doc.ID) {
		return nil, &DocumentError{DocumentID: doc.ID, Stage: StageLoad, Err: ErrDocumentBusy}
	}
	defer idx.locks.release(doc.ID)

	logger := idx.logger.With("document_id", doc.ID)
	hash := contentHash(doc, cfg)

	if !force {
		existing, err := idx.storage.GetDocument(ctx, doc.ID)
		switch {
		case err == nil && existing.Status == storage.DocumentReady && existing.ContentHash == hash:
			idx.skipped.Add(ctx, 1)
			logger.Debug("document unchanged, skipped", "version", existing.Version)
			return &DocumentResult{
				DocumentID:  doc.ID,
				Version:     existing.Version,
				ContentType: existing.ContentType,
				ChunkCount:  existing.ChunkCount,
				Skipped:     true,
			}, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return nil, idx.fail(ctx, logger, doc, StageLoad, err)
		}
	}

	if err := idx.storage.SetDocumentStatus(ctx, doc.ID, doc.Title, storage.DocumentProcessing, ""); err != nil {
		return nil, idx.fail(ctx, logger, doc, StageStore, err)
	}

	res, err := idx.chunker.Run(ctx, doc, cfg)
	if err != nil {
		stage := StageLoad
		var stageErr *chunker.StageError
		if errors.As(err, &stageErr) {
			stage, err = stageErr.Stage, stageErr.Err
		}
		return nil, idx.fail(ctx, logger, doc, stage, err)
	}

	record := &storage.Document{
		ID:          doc.ID,
		Title:       doc.Title,
		Version:     res.Version,
		ContentType: res.ContentType,
		ContentHash: hash,
	}
	if err := idx.storage.ReplaceDocumentChunks(ctx, record, res.Chunks); err != nil {
		return nil, idx.fail(ctx, logger, doc, StageStore, err)
	}

	attrs := metric.WithAttributes(attribute.String("content_type", string(res.ContentType)))
	idx.processed.Add(ctx, 1, attrs)
	idx.chunks.Add(ctx, int64(len(res.Chunks)), attrs)
	logger.Info("document processed",
		"version", res.Version,
		"content_type", res.ContentType,
		"chunks", len(res.Chunks),
		"generation_failures", res.GenerationFailures)

	return &DocumentResult{
		DocumentID:         doc.ID,
		Version:            res.Version,
		ContentType:        res.ContentType,
		Chunks:             res.Chunks,
		ChunkCount:         len(res.Chunks),
		GenerationFailures: res.GenerationFailures,
	}, nil
}

// fail records the failure on the document and returns it wrapped
func (idx *Indexer) fail(ctx context.Context, logger *slog.Logger, doc chunker.Document, stage chunker.Stage, err error) error {
	docErr := &DocumentError{DocumentID: doc.ID, Stage: stage, Err: err}
	idx.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
	logger.Error("document processing failed", "stage", stage, "error", err)

	// The status write must survive a cancelled run
	statusCtx := context.WithoutCancel(ctx)
	if serr := idx.storage.SetDocumentStatus(statusCtx, doc.ID, doc.Title, storage.DocumentFailed, docErr.Error()); serr != nil {
		logger.Warn("failed to record document failure", "error", serr)
	}
	return docErr
}

// contentHash fingerprints the inputs that determine a document's chunk set
func contentHash(doc chunker.Document, cfg types.ProcessingConfig) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%+v", doc.Title, doc.Text, cfg)
	return hex.EncodeToString(h.Sum(nil))
}
