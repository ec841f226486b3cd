// Package searcher ranks persisted chunks against a query embedding.
//
// A chunk is scored with a weighted blend of its two embeddings:
//
//	relevance = w*cos(q, contextual) + (1-w)*cos(q, content)
//
// where w is RetrievalConfig.ContextualWeight. A chunk with only one
// embedding is scored with that one at full weight, so chunks whose context
// generation failed are still found by content. A chunk with neither is
// skipped.
//
// Only chunks scoring strictly above the threshold are returned. Results are
// ordered by score, then by chunk order, document id and chunk id, so equal
// scores always come back in the same order. The limit applies after
// ordering.
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(store, emb, cfg.Retrieval, logger)
//	resp, err := s.SearchText(ctx, searcher.TextSearchRequest{
//	    Query:  "when does the river flood?",
//	    Limit:  5,
//	    Enrich: true,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %.3f %s\n", r.Rank, r.RelevanceScore, r.ExpandedContent())
//	}
//
// SearchText keeps the embeddings of recent queries in an LRU cache; Search
// takes a precomputed query embedding.
package searcher
