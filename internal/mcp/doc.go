// Package mcp implements the Model Context Protocol (MCP) server for contextchunk.
//
// The server exposes the chunking pipeline and the contextual search engine
// to MCP clients over stdio:
//   - process_document: chunk, contextualize, embed and store a document
//   - search: rank stored chunks against a natural language query
//   - get_document: processing status and committed chunks of a document
//   - get_status: document, chunk and cache statistics
//   - cache_stats, clear_cache, precompute: manage the embedding cache
//
// # Basic Usage
//
//	contextchunk serve
//
// The configuration file is read from CONTEXTCHUNK_CONFIG, or contextchunk.toml
// in the working directory. Logs go to stderr; stdout carries the protocol.
//
// # Tool: process_document
//
//	Request:
//	{
//	  "name": "process_document",
//	  "arguments": {
//	    "document_id": "handbook-3",
//	    "title": "Field handbook, chapter 3",
//	    "text": "# Rivers\n\nThe river rises every spring...",
//	    "content_type": "auto",
//	    "force": false
//	  }
//	}
//
//	Response:
//	{
//	  "document_id": "handbook-3",
//	  "version": "4b1f0c7e-...",
//	  "content_type": "documentation",
//	  "skipped": false,
//	  "chunk_count": 12,
//	  "generation_failures": 0,
//	  "chunks": [{"id": "...", "chunk_order": 0, "token_count": 388, ...}]
//	}
//
// Reprocessing a document whose text, title and configuration are unchanged
// is skipped unless force is set. A failed run leaves the previously
// committed chunk set searchable.
//
// # Tool: search
//
//	Request:
//	{
//	  "name": "search",
//	  "arguments": {
//	    "query": "when does the river flood",
//	    "limit": 5,
//	    "content_types": ["documentation"],
//	    "enrich": true
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "document_id": "handbook-3",
//	      "chunk_id": "...",
//	      "relevance_score": 0.81,
//	      "contextual_score": 0.84,
//	      "content_score": 0.74,
//	      "context": "Chapter 3 describes seasonal flooding...",
//	      "content": "The river rises every spring...",
//	      "prev": {"chunk_id": "...", "content": "..."}
//	    }
//	  ],
//	  "total_matches": 7,
//	  "chunks_scanned": 120,
//	  "query_cache_hit": false
//	}
//
// The relevance score weighs the contextual embedding against the content
// embedding. Only chunks scoring strictly above the threshold are returned.
//
// # Error Handling
//
// Handlers return *MCPError values which the framework encodes as JSON-RPC
// errors:
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32001: Document processing failed (data carries the failing stage)
//   - -32002: Document is already being processed
//   - -32003: Document not found
//   - -32004: Empty query
//   - -32005: Embedding cache unavailable
package mcp
