package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/contextchunk-mcp/internal/app"
	"github.com/dshills/contextchunk-mcp/internal/cache"
	"github.com/dshills/contextchunk-mcp/internal/config"
	"github.com/dshills/contextchunk-mcp/internal/embedder"
	"github.com/dshills/contextchunk-mcp/internal/indexer"
	"github.com/dshills/contextchunk-mcp/internal/searcher"
	"github.com/dshills/contextchunk-mcp/internal/splitter"
	"github.com/dshills/contextchunk-mcp/internal/storage"
	"github.com/dshills/contextchunk-mcp/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "contextchunk-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp        *server.MCPServer
	app        *app.App
	storage    storage.Storage
	indexer    *indexer.Indexer
	searcher   *searcher.Searcher
	cache      *cache.Cache
	embedder   embedder.Embedder
	splitter   *splitter.Splitter
	processing types.ProcessingConfig
	logger     *slog.Logger
}

// NewServer builds the pipeline described by cfg and registers the tools
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s, err := newServer(a)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return s, nil
}

func newServer(a *app.App) (*Server, error) {
	logger := a.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		mcp:        server.NewMCPServer(ServerName, ServerVersion),
		app:        a,
		storage:    a.Storage,
		indexer:    a.Indexer,
		searcher:   a.Searcher,
		cache:      a.Cache,
		embedder:   a.Embedder,
		splitter:   a.Splitter,
		processing: a.Config.ProcessingConfig(),
		logger:     logger.With("component", "mcp"),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()
	s.logger.Info("serving on stdio", "name", ServerName, "version", ServerVersion)
	return server.ServeStdio(s.mcp)
}

// Close releases the store and the providers
func (s *Server) Close() error {
	return s.app.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(processDocumentTool(), s.handleProcessDocument)
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(getDocumentTool(), s.handleGetDocument)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
	s.mcp.AddTool(clearCacheTool(), s.handleClearCache)
	s.mcp.AddTool(precomputeTool(), s.handlePrecompute)
	return nil
}
