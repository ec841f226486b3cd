package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/contextchunk-mcp/internal/chunker"
	"github.com/dshills/contextchunk-mcp/internal/indexer"
	"github.com/dshills/contextchunk-mcp/internal/searcher"
	"github.com/dshills/contextchunk-mcp/internal/storage"
	"github.com/dshills/contextchunk-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeProcessingFailed = -32001 // The document could not be processed
	ErrorCodeDocumentBusy     = -32002 // Another run on the same document is in progress
	ErrorCodeDocumentNotFound = -32003 // Document never processed
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
	ErrorCodeCacheUnavailable = -32005 // Embedding cache storage failed
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// handleProcessDocument handles the process_document tool invocation
func (s *Server) handleProcessDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	documentID, ok := args["document_id"].(string)
	if !ok || strings.TrimSpace(documentID) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "document_id parameter is required", map[string]interface{}{
			"param":  "document_id",
			"reason": "missing or empty",
		})
	}
	text, ok := args["text"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing",
		})
	}

	cfg := s.processing
	if selector := getStringDefault(args, "content_type", ""); selector != "" {
		ct, err := types.ParseContentType(selector)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid content_type", map[string]interface{}{
				"param":   "content_type",
				"value":   selector,
				"allowed": append([]string{"auto"}, contentTypeEnum...),
			})
		}
		cfg.ContentType = ct
	}

	doc := chunker.Document{ID: documentID, Title: getStringDefault(args, "title", ""), Text: text}
	res, err := s.indexer.ProcessDocument(ctx, doc, cfg, getBoolDefault(args, "force", false))
	if err != nil {
		if errors.Is(err, indexer.ErrDocumentBusy) {
			return nil, newMCPError(ErrorCodeDocumentBusy, "document is already being processed", map[string]interface{}{
				"document_id": documentID,
			})
		}
		data := map[string]interface{}{"document_id": documentID, "error": err.Error()}
		var docErr *indexer.DocumentError
		if errors.As(err, &docErr) {
			data["stage"] = string(docErr.Stage)
		}
		return nil, newMCPError(ErrorCodeProcessingFailed, "document processing failed", data)
	}

	response := map[string]interface{}{
		"document_id":         res.DocumentID,
		"version":             res.Version,
		"content_type":        string(res.ContentType),
		"skipped":             res.Skipped,
		"chunk_count":         res.ChunkCount,
		"generation_failures": res.GenerationFailures,
	}
	if !res.Skipped {
		chunks := make([]map[string]interface{}, len(res.Chunks))
		for i := range res.Chunks {
			chunks[i] = chunkSummary(&res.Chunks[i])
		}
		response["chunks"] = chunks
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	var threshold *float64
	if v, ok := args["threshold"].(float64); ok {
		if v < -1 || v >= 1 {
			return nil, newMCPError(ErrorCodeInvalidParams, "threshold must be in [-1, 1)", map[string]interface{}{
				"param": "threshold",
				"value": v,
			})
		}
		threshold = &v
	}

	filters := &storage.ChunkFilters{DocumentIDs: getStringSlice(args, "document_ids")}
	for _, v := range getStringSlice(args, "content_types") {
		ct, err := types.ParseContentType(v)
		if err != nil || !ct.IsConcrete() {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid content_types", map[string]interface{}{
				"param":   "content_types",
				"value":   v,
				"allowed": contentTypeEnum,
			})
		}
		filters.ContentTypes = append(filters.ContentTypes, ct)
	}

	resp, err := s.searcher.SearchText(ctx, searcher.TextSearchRequest{
		Query:     query,
		Filters:   filters,
		Threshold: threshold,
		Limit:     limit,
		Enrich:    getBoolDefault(args, "enrich", false),
	})
	if err != nil {
		code := ErrorCodeInternalError
		if errors.Is(err, searcher.ErrInvalidRequest) {
			code = ErrorCodeInvalidParams
		}
		return nil, newMCPError(code, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i := range resp.Results {
		results[i] = searchResult(&resp.Results[i])
	}
	response := map[string]interface{}{
		"query":           query,
		"results":         results,
		"total_matches":   resp.TotalMatches,
		"chunks_scanned":  resp.Scanned,
		"query_cache_hit": resp.QueryCacheHit,
		"duration_ms":     resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetDocument handles the get_document tool invocation
func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	documentID, ok := args["document_id"].(string)
	if !ok || documentID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "document_id parameter is required", map[string]interface{}{
			"param":  "document_id",
			"reason": "missing or empty",
		})
	}

	doc, err := s.storage.GetDocument(ctx, documentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeDocumentNotFound, "document not found. Use process_document to process it.", map[string]interface{}{
			"document_id": documentID,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get document", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"document_id":  doc.ID,
		"title":        doc.Title,
		"status":       string(doc.Status),
		"version":      doc.Version,
		"content_type": string(doc.ContentType),
		"chunk_count":  doc.ChunkCount,
		"updated_at":   doc.UpdatedAt.Format(time.RFC3339),
	}
	if doc.Error != nil {
		response["error"] = *doc.Error
	}

	if getBoolDefault(args, "include_chunks", true) {
		chunks, err := s.storage.ListChunksByDocument(ctx, documentID)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to list chunks", map[string]interface{}{
				"error": err.Error(),
			})
		}
		out := make([]map[string]interface{}, len(chunks))
		for i := range chunks {
			out[i] = chunkDetail(&chunks[i])
		}
		response["chunks"] = out
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"documents":           status.Documents,
			"ready_documents":     status.ReadyDocuments,
			"failed_documents":    status.FailedDocuments,
			"chunks":              status.Chunks,
			"chunks_with_context": status.ChunksWithContext,
			"cache_entries":       status.CacheEntries,
			"database_size_mb":    fmt.Sprintf("%.2f", status.DatabaseSizeMB),
		},
		"build_mode": status.BuildMode,
		"embedder": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
		},
		"cache_degraded": s.cache.Degraded(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCacheStats handles the cache_stats tool invocation
func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.cache.Stats()
	response := map[string]interface{}{
		"entries":    stats.Entries,
		"hits":       stats.Hits,
		"misses":     stats.Misses,
		"hit_rate":   stats.HitRate,
		"persistent": stats.Persistent,
		"degraded":   stats.Degraded,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleClearCache handles the clear_cache tool invocation
func (s *Server) handleClearCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	before := s.cache.Stats().Entries
	s.searcher.PurgeQueryCache()
	if err := s.cache.Clear(ctx); err != nil {
		return nil, newMCPError(ErrorCodeCacheUnavailable, "failed to clear cache", map[string]interface{}{
			"error": err.Error(),
		})
	}
	response := map[string]interface{}{
		"cleared": true,
		"entries": before,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handlePrecompute handles the precompute tool invocation
func (s *Server) handlePrecompute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	var texts []string
	for _, sentence := range getStringSlice(args, "sentences") {
		if strings.TrimSpace(sentence) != "" {
			texts = append(texts, sentence)
		}
	}
	if text := getStringDefault(args, "text", ""); text != "" {
		sentences, err := s.splitter.Split(text)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid text", map[string]interface{}{
				"param":  "text",
				"reason": err.Error(),
			})
		}
		texts = append(texts, types.SentenceTexts(sentences)...)
	}
	if len(texts) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "sentences or text is required", map[string]interface{}{
			"param":  "sentences",
			"reason": "missing or empty",
		})
	}

	computed, err := s.cache.Precompute(ctx, texts, s.embedder)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "precompute failed", map[string]interface{}{
			"error":    err.Error(),
			"computed": computed,
		})
	}
	response := map[string]interface{}{
		"sentences": len(texts),
		"computed":  computed,
		"cached":    len(texts) - computed,
		"entries":   s.cache.Stats().Entries,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Response shaping

func chunkSummary(c *types.Chunk) map[string]interface{} {
	out := map[string]interface{}{
		"id":             c.ID,
		"chunk_order":    c.ChunkOrder,
		"token_count":    c.TokenCount,
		"start_sentence": c.StartSentence,
		"end_sentence":   c.EndSentence,
		"has_context":    c.ContextualEmbedding != nil,
	}
	if c.DocumentSection != nil {
		out["section"] = *c.DocumentSection
	}
	if c.ChunkSummary != nil {
		out["summary"] = *c.ChunkSummary
	}
	return out
}

func chunkDetail(c *types.Chunk) map[string]interface{} {
	out := chunkSummary(c)
	out["content"] = c.Content
	out["start_char"] = c.StartChar
	out["end_char"] = c.EndChar
	if c.ChunkContext != nil {
		out["context"] = *c.ChunkContext
	}
	return out
}

func searchResult(r *types.SearchResult) map[string]interface{} {
	out := map[string]interface{}{
		"rank":            r.Rank,
		"document_id":     r.Chunk.DocumentID,
		"chunk_id":        r.Chunk.ID,
		"chunk_order":     r.Chunk.ChunkOrder,
		"content":         r.Chunk.Content,
		"content_type":    string(r.Chunk.ContentType),
		"relevance_score": r.RelevanceScore,
	}
	if r.ContextualScore != nil {
		out["contextual_score"] = *r.ContextualScore
	}
	if r.ContentScore != nil {
		out["content_score"] = *r.ContentScore
	}
	if r.Chunk.ChunkContext != nil {
		out["context"] = *r.Chunk.ChunkContext
	}
	if r.Chunk.DocumentSection != nil {
		out["section"] = *r.Chunk.DocumentSection
	}
	if r.Prev != nil {
		out["prev"] = map[string]interface{}{"chunk_id": r.Prev.ChunkID, "content": r.Prev.Content}
	}
	if r.Next != nil {
		out["next"] = map[string]interface{}{"chunk_id": r.Next.ChunkID, "content": r.Next.Content}
	}
	return out
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter, skipping non-strings
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
