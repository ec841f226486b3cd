// Package types provides shared type definitions for the contextchunk MCP server.
//
// This package defines the domain types used across the chunking and retrieval
// pipeline: sentences, chunks, content types, processing configuration and
// search results.
//
// # Core Types
//
// Sentence is a span of the source document produced by the splitter. Offsets
// are rune offsets, so a span can be sliced out of []rune(document):
//
//	s := types.Sentence{Index: 0, Text: "Hello.", StartChar: 0, EndChar: 6}
//
// Chunk is the retrieval unit. It carries the original content, the sentence
// range it covers, a content embedding, an optional contextual embedding and
// prev/next links to its neighbours in the same document:
//
//	chunk := types.Chunk{
//	    DocumentID:    "doc-1",
//	    Content:       "First sentence. Second sentence.",
//	    StartSentence: 0,
//	    EndSentence:   1,
//	}
//
// # Configuration
//
// ProcessingConfig and RetrievalConfig have no implicit defaults. Every field
// must be set and Validate rejects anything out of range:
//
//	if err := cfg.Validate(); err != nil {
//	    return err // wraps types.ErrInvalidConfig
//	}
//
// # Chunk Sets
//
// ValidateChunkSet checks the invariants that hold across one document:
// dense chunk_order, matching prev/next links, a content embedding on every
// chunk and the token bounds. LinkChunks
// assigns order and links by slice position.
package types
