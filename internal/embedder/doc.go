// Package embedder generates vector embeddings for sentences and chunks.
//
// Three providers implement Embedder: Jina AI and OpenAI over their
// /v1/embeddings HTTP APIs, and an offline feature-hashing provider used for
// tests, the chunkdoc CLI and deployments without network access.
//
// # Basic Usage
//
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{"第一句。", "Second sentence."},
//	})
//	vectors := resp.Vectors() // one per text, in input order
//
// A batch holds at most MaxBatchSize texts. Callers that embed more split the
// work themselves; the cache package does this with DefaultBatchSize.
//
// # Provider Selection
//
//  1. If CONTEXTCHUNK_EMBEDDING_PROVIDER is set → use specified provider
//  2. Else if JINA_API_KEY is set → use Jina AI
//  3. Else if OPENAI_API_KEY is set → use OpenAI
//  4. Else → local provider (offline mode)
//
// # Provider Comparison
//
// Jina AI (jina-embeddings-v3, multilingual):
//   - Dimensions: 1024
//   - Requested task: retrieval.passage
//
// OpenAI (text-embedding-3-small):
//   - Dimensions: 1536
//
// Local (feature hashing):
//   - Dimensions: 384 by default
//   - Words, CJK runes and CJK bigrams; lexical similarity only
//
// # Error Handling
//
// HTTP 429 and 5xx responses and transport errors are retried with
// exponential backoff, up to RetryConfig.MaxRetries times after the first
// attempt. Other statuses fail at once.
// Either way the caller sees ErrProviderFailed:
//
//	_, err := emb.GenerateBatch(ctx, req)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // the document cannot be embedded
//	}
//
// A response with the wrong number of vectors or a vector of the wrong width
// is also reported as ErrProviderFailed.
package embedder
