// Package chunker turns a document into retrieval-ready chunks.
//
// # Pipeline
//
// Run executes the stages of one document in order:
//
//  1. validate the ProcessingConfig; an invalid config never reaches a provider
//  2. split into sentences and resolve the content type and its strategy
//  3. embed every sentence through the shared embedding cache
//  4. merge sentences by centroid similarity, honouring the strategy's hints
//  5. fit the token budget (split at target, floor merge, overlap prefix)
//  6. embed each chunk's overlap prefix plus content
//  7. generate context and summary per chunk on a bounded pool, with retries
//  8. embed "context + content" for chunks that received context
//  9. assign ids, order and prev/next links, then check the chunk set
//
// # Failures
//
// A failed generation is logged and leaves the chunk without context or
// contextual embedding; the chunk is still searchable by content. Every other
// failure returns a *StageError naming the stage, and nothing is produced.
//
// # Basic Usage
//
//	c, err := chunker.New(chunker.Options{
//	    Counter:   counter,
//	    Embedder:  emb,
//	    Cache:     cache.New(store, cache.DefaultConfig(), logger),
//	    Generator: gen,
//	    Logger:    logger,
//	})
//	res, err := c.Run(ctx, chunker.Document{ID: "doc-1", Title: "Guide", Text: text}, cfg)
//	for _, ch := range res.Chunks {
//	    fmt.Println(ch.ChunkOrder, ch.TokenCount, ch.Content)
//	}
package chunker
