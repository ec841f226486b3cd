package chunker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/contextchunk-mcp/internal/cache"
	"github.com/dshills/contextchunk-mcp/internal/contenttype"
	"github.com/dshills/contextchunk-mcp/internal/embedder"
	"github.com/dshills/contextchunk-mcp/internal/generator"
	"github.com/dshills/contextchunk-mcp/internal/merger"
	"github.com/dshills/contextchunk-mcp/internal/optimizer"
	"github.com/dshills/contextchunk-mcp/internal/splitter"
	"github.com/dshills/contextchunk-mcp/internal/tokenizer"
	"github.com/dshills/contextchunk-mcp/pkg/types"
)

const (
	// DefaultExcerptRunes is the length of the document head given to the generator
	DefaultExcerptRunes = 2000

	// DefaultRetryBackoff is the first wait between generation attempts
	DefaultRetryBackoff = 500 * time.Millisecond
)

// Stage names a step of the pipeline
type Stage string

const (
	StageConfig   Stage = "config"
	StageSplit    Stage = "split"
	StageEmbed    Stage = "embed"
	StageMerge    Stage = "merge"
	StageOptimize Stage = "optimize"
	StageGenerate Stage = "generate"
	StageValidate Stage = "validate"
)

// StageError reports the step at which processing a document failed
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Document is the input of one processing run
type Document struct {
	ID    string
	Title string
	Text  string
}

// Result is the output of one processing run
type Result struct {
	DocumentID         string
	Version            string
	ContentType        types.ContentType
	Sentences          int
	Chunks             []types.Chunk
	GenerationFailures int
}

// Options wires the capabilities a Chunker uses. Counter, Embedder and Cache
// are required; without a Generator chunks get no context.
type Options struct {
	Splitter     *splitter.Splitter
	Counter      tokenizer.Counter
	Embedder     embedder.Embedder
	Cache        *cache.Cache
	Generator    generator.Generator
	ExcerptRunes int
	RetryBackoff time.Duration
	Logger       *slog.Logger
}

// Chunker turns documents into linked, embedded, contextualized chunks
type Chunker struct {
	splitter     *splitter.Splitter
	counter      tokenizer.Counter
	embedder     embedder.Embedder
	cache        *cache.Cache
	generator    generator.Generator
	excerptRunes int
	retryBackoff time.Duration
	logger       *slog.Logger
}

// New creates a Chunker
func New(opts Options) (*Chunker, error) {
	if opts.Counter == nil {
		return nil, errors.New("chunker: token counter is required")
	}
	if opts.Embedder == nil {
		return nil, errors.New("chunker: embedder is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("chunker: embedding cache is required")
	}
	c := &Chunker{
		splitter:     opts.Splitter,
		counter:      opts.Counter,
		embedder:     opts.Embedder,
		cache:        opts.Cache,
		generator:    opts.Generator,
		excerptRunes: opts.ExcerptRunes,
		retryBackoff: opts.RetryBackoff,
		logger:       opts.Logger,
	}
	if c.splitter == nil {
		c.splitter = splitter.NewDefault()
	}
	if c.excerptRunes <= 0 {
		c.excerptRunes = DefaultExcerptRunes
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = DefaultRetryBackoff
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Process runs the pipeline and returns the chunks in document order
func (c *Chunker) Process(ctx context.Context, doc Document, cfg types.ProcessingConfig) ([]types.Chunk, error) {
	res, err := c.Run(ctx, doc, cfg)
	if err != nil {
		return nil, err
	}
	return res.Chunks, nil
}

// Run processes one document: split, classify, merge by similarity, fit the
// token budget, embed, generate context and link. A chunk whose generation
// fails keeps nil context and no contextual embedding; any other failure
// fails the document.
func (c *Chunker) Run(ctx context.Context, doc Document, cfg types.ProcessingConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, stageErr(StageConfig, err)
	}
	if doc.ID == "" {
		return nil, stageErr(StageConfig, types.ErrMissingDocumentID)
	}
	logger := c.logger.With("document_id", doc.ID)

	sentences, err := c.splitter.Split(doc.Text)
	if err != nil {
		return nil, stageErr(StageSplit, err)
	}
	ct := contenttype.Resolve(cfg.ContentType, doc.Text)
	res := &Result{
		DocumentID:  doc.ID,
		Version:     uuid.NewString(),
		ContentType: ct,
		Sentences:   len(sentences),
	}
	if len(sentences) == 0 {
		return res, nil
	}
	strategy := contenttype.StrategyFor(ct)

	if err := ctx.Err(); err != nil {
		return nil, stageErr(StageEmbed, err)
	}
	sentenceVectors, err := c.cache.GetOrCompute(ctx, types.SentenceTexts(sentences), c.embedder)
	if err != nil {
		return nil, stageErr(StageEmbed, fmt.Errorf("sentence embeddings: %w", err))
	}

	spans, err := merger.Merge(sentences, sentenceVectors, merger.Params{
		Threshold:        cfg.SimilarityThreshold,
		MaxMergeDistance: cfg.MaxMergeDistance,
		Boundaries:       strategy.Boundaries(sentences),
	})
	if err != nil {
		return nil, stageErr(StageMerge, err)
	}

	opt, err := optimizer.New(c.counter, optimizer.Params{
		Target:  cfg.TargetChunkTokens,
		Max:     cfg.MaxChunkTokens,
		Min:     cfg.MinChunkTokens,
		Overlap: cfg.OverlapTokens,
	})
	if err != nil {
		return nil, stageErr(StageOptimize, err)
	}
	parts, err := opt.Optimize(doc.Text, sentences, spans)
	if err != nil {
		return nil, stageErr(StageOptimize, err)
	}

	chunks := buildChunks(doc.ID, res.Version, ct, parts, strategy.Sections(sentences))

	if err := ctx.Err(); err != nil {
		return nil, stageErr(StageEmbed, err)
	}
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].EmbeddingText()
	}
	contentVectors, err := c.cache.GetOrCompute(ctx, texts, c.embedder)
	if err != nil {
		return nil, stageErr(StageEmbed, fmt.Errorf("chunk embeddings: %w", err))
	}
	for i := range chunks {
		chunks[i].Embedding = contentVectors[i]
	}

	if c.generator != nil {
		failures, err := c.contextualize(ctx, logger, doc, chunks, cfg)
		if err != nil {
			return nil, stageErr(StageGenerate, err)
		}
		res.GenerationFailures = failures

		if err := c.embedContextual(ctx, chunks); err != nil {
			return nil, stageErr(StageEmbed, fmt.Errorf("contextual embeddings: %w", err))
		}
	}

	types.LinkChunks(chunks)
	if err := types.ValidateChunkSet(chunks, cfg.MaxChunkTokens, cfg.MinChunkTokens); err != nil {
		return nil, stageErr(StageValidate, err)
	}

	res.Chunks = chunks
	logger.Debug("document chunked",
		"content_type", ct,
		"sentences", len(sentences),
		"spans", len(spans),
		"chunks", len(chunks),
		"generation_failures", res.GenerationFailures)
	return res, nil
}

func buildChunks(docID, version string, ct types.ContentType, parts []optimizer.Part, sections []string) []types.Chunk {
	chunks := make([]types.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = types.Chunk{
			ID:            uuid.NewString(),
			DocumentID:    docID,
			Version:       version,
			ChunkOrder:    i,
			Content:       p.Content,
			OverlapPrefix: p.OverlapPrefix,
			TokenCount:    p.TokenCount,
			StartSentence: p.StartSentence,
			EndSentence:   p.EndSentence,
			StartChar:     p.StartChar,
			EndChar:       p.EndChar,
			ContentType:   ct,
		}
		if sections != nil {
			chunks[i].DocumentSection = types.StringPtr(sections[p.StartSentence])
		}
	}
	return chunks
}

// contextualize generates context and summary for every chunk on a bounded
// pool and returns the number of chunks left without context. Only
// cancellation aborts the run.
func (c *Chunker) contextualize(ctx context.Context, logger *slog.Logger, doc Document, chunks []types.Chunk, cfg types.ProcessingConfig) (int, error) {
	excerpt := generator.TruncateExcerpt(doc.Text, c.excerptRunes)

	var (
		mu       sync.Mutex
		failures int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.GenerationConcurrency)

	for i := range chunks {
		req := generator.Request{
			DocumentTitle:   doc.Title,
			DocumentExcerpt: excerpt,
			Chunk:           chunks[i].Content,
			Before:          neighbours(chunks, i-cfg.ContextWindow, i),
			After:           neighbours(chunks, i+1, i+1+cfg.ContextWindow),
		}
		if chunks[i].DocumentSection != nil {
			req.Section = *chunks[i].DocumentSection
		}

		g.Go(func() error {
			result, err := c.generate(gctx, req, cfg.GenerationRetries)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				failures++
				mu.Unlock()
				logger.Warn("context generation failed, chunk kept without context",
					"chunk_order", chunks[i].ChunkOrder,
					"error", fmt.Errorf("%w: %w", generator.ErrGeneration, err))
				return nil
			}
			// Each goroutine writes only its own chunk
			chunks[i].ChunkContext = types.StringPtr(strings.TrimSpace(result.Context))
			chunks[i].ChunkSummary = types.StringPtr(strings.TrimSpace(result.Summary))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failures, err
	}
	return failures, nil
}

// generate calls the generator, retrying transient failures
func (c *Chunker) generate(ctx context.Context, req generator.Request, retries int) (*generator.Result, error) {
	var result *generator.Result
	backoff := retry.WithMaxRetries(uint64(retries), retry.NewExponential(c.retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := c.generator.Generate(ctx, req)
		if err != nil {
			if generator.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		if strings.TrimSpace(res.Context) == "" {
			return retry.RetryableError(generator.ErrMalformedResponse)
		}
		result = res
		return nil
	})
	return result, err
}

func (c *Chunker) embedContextual(ctx context.Context, chunks []types.Chunk) error {
	var idx []int
	var texts []string
	for i := range chunks {
		if text := chunks[i].ContextualText(); text != "" {
			idx = append(idx, i)
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	vectors, err := c.cache.GetOrCompute(ctx, texts, c.embedder)
	if err != nil {
		return err
	}
	for k, i := range idx {
		chunks[i].ContextualEmbedding = vectors[k]
	}
	return nil
}

// neighbours returns the content of chunks[from:to], clamped
func neighbours(chunks []types.Chunk, from, to int) []string {
	from = max(from, 0)
	to = min(to, len(chunks))
	if from >= to {
		return nil
	}
	out := make([]string, 0, to-from)
	for _, ch := range chunks[from:to] {
		out = append(out, ch.Content)
	}
	return out
}
