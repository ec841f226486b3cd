package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var contentTypeEnum = []string{"article", "reading_notes", "documentation", "default"}

// processDocumentTool returns the tool definition for process_document
func processDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "process_document",
		Description: "Chunk a document into contextual, linked retrieval chunks and store them",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": map[string]interface{}{
					"type":        "string",
					"description": "Stable identifier of the document; reprocessing replaces its chunk set",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Full document text (Markdown or plain text, Chinese, English or French)",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Document title given to the context generator",
				},
				"content_type": map[string]interface{}{
					"type":        "string",
					"description": "Force a chunking strategy instead of the configured selector",
					"enum":        append([]string{"auto"}, contentTypeEnum...),
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, reprocess even when text and configuration are unchanged",
					"default":     false,
				},
			},
			Required: []string{"document_id", "text"},
		},
	}
}

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Search processed documents by meaning, scoring contextual and content embeddings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Results must score strictly above this (defaults to the configured match threshold)",
					"minimum":     -1.0,
					"maximum":     1.0,
				},
				"document_ids": map[string]interface{}{
					"type":        "array",
					"description": "Restrict the search to these documents",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"content_types": map[string]interface{}{
					"type":        "array",
					"description": "Restrict the search to chunks of these content types",
					"items": map[string]interface{}{
						"type": "string",
						"enum": contentTypeEnum,
					},
				},
				"enrich": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, attach the content of the previous and next chunk to each hit",
					"default":     false,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getDocumentTool returns the tool definition for get_document
func getDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_document",
		Description: "Show the processing status of a document and its committed chunks",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": map[string]interface{}{
					"type":        "string",
					"description": "Identifier given to process_document",
				},
				"include_chunks": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, list the chunks with their context and summary",
					"default":     true,
				},
			},
			Required: []string{"document_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query document, chunk and cache statistics of the store",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// cacheStatsTool returns the tool definition for cache_stats
func cacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_stats",
		Description: "Report embedding cache entries, hits, misses and hit rate",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// clearCacheTool returns the tool definition for clear_cache
func clearCacheTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_cache",
		Description: "Drop every cached sentence, chunk and query embedding",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// precomputeTool returns the tool definition for precompute
func precomputeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "precompute",
		Description: "Warm the embedding cache with sentences, or with the sentences of a text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"sentences": map[string]interface{}{
					"type":        "array",
					"description": "Sentences to embed as given",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text split into sentences before embedding",
				},
			},
		},
	}
}
