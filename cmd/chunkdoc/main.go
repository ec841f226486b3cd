// Command chunkdoc chunks text files with the configured pipeline and prints
// the resulting chunk sets as JSON. By default it runs offline with the local
// embedder, the extractive context generator and an in-memory store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dshills/contextchunk-mcp/internal/app"
	"github.com/dshills/contextchunk-mcp/internal/chunker"
	"github.com/dshills/contextchunk-mcp/internal/config"
	"github.com/dshills/contextchunk-mcp/internal/indexer"
	"github.com/dshills/contextchunk-mcp/internal/searcher"
	"github.com/dshills/contextchunk-mcp/internal/storage"
	"github.com/dshills/contextchunk-mcp/pkg/types"
)

type chunkOutput struct {
	Order      int     `json:"chunk_order"`
	Tokens     int     `json:"token_count"`
	Sentences  [2]int  `json:"sentences"`
	Chars      [2]int  `json:"chars"`
	Section    *string `json:"section,omitempty"`
	Context    *string `json:"context,omitempty"`
	Summary    *string `json:"summary,omitempty"`
	Content    string  `json:"content"`
	Contextual bool    `json:"contextual_embedding"`
}

type documentOutput struct {
	DocumentID         string        `json:"document_id"`
	ContentType        string        `json:"content_type,omitempty"`
	GenerationFailures int           `json:"generation_failures,omitempty"`
	Error              string        `json:"error,omitempty"`
	Stage              string        `json:"stage,omitempty"`
	Chunks             []chunkOutput `json:"chunks,omitempty"`
}

func main() {
	var (
		cfgPath     = flag.String("config", config.Path(), "configuration file")
		dbPath      = flag.String("db", ":memory:", "database path; use the configured store with -db=\"\"")
		online      = flag.Bool("online", false, "use the configured embedding and generation providers")
		contentType = flag.String("content-type", "", "force a chunking strategy (auto, article, reading_notes, documentation, default)")
		query       = flag.String("query", "", "after chunking, search the processed files and print the hits")
		verbose     = flag.Bool("v", false, "log progress to stderr")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: chunkdoc [flags] file...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*cfgPath, *dbPath, *online, *contentType, *query, flag.Args(), logger); err != nil {
		logger.Error("chunkdoc failed", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath, dbPath string, online bool, contentType, query string, files []string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if !online {
		cfg.Embedding.Provider = "local"
		cfg.Generation.Provider = "extractive"
	}

	processing := cfg.ProcessingConfig()
	if contentType != "" {
		ct, err := types.ParseContentType(contentType)
		if err != nil {
			return err
		}
		processing.ContentType = ct
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	docs := make([]chunker.Document, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, chunker.Document{
			ID:    filepath.ToSlash(path),
			Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Text:  string(data),
		})
	}

	results, stats, err := a.Indexer.ProcessDocuments(ctx, indexer.Request{
		Documents: docs,
		Config:    processing,
		Force:     true,
	})
	if err != nil {
		return err
	}
	logger.Info("processed",
		"documents", stats.DocumentsProcessed,
		"failed", stats.DocumentsFailed,
		"chunks", stats.ChunksCreated,
		"duration", stats.Duration)

	out := make([]documentOutput, len(results))
	for i, r := range results {
		out[i] = documentOutput{
			DocumentID:         r.DocumentID,
			ContentType:        string(r.ContentType),
			GenerationFailures: r.GenerationFailures,
		}
		if r.Err != nil {
			out[i].Error = r.Err.Err.Error()
			out[i].Stage = string(r.Err.Stage)
			continue
		}
		for _, c := range r.Chunks {
			out[i].Chunks = append(out[i].Chunks, chunkOutput{
				Order:      c.ChunkOrder,
				Tokens:     c.TokenCount,
				Sentences:  [2]int{c.StartSentence, c.EndSentence},
				Chars:      [2]int{c.StartChar, c.EndChar},
				Section:    c.DocumentSection,
				Context:    c.ChunkContext,
				Summary:    c.ChunkSummary,
				Content:    c.Content,
				Contextual: c.ContextualEmbedding != nil,
			})
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if query == "" {
		return enc.Encode(out)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	resp, err := a.Searcher.SearchText(ctx, searcher.TextSearchRequest{
		Query:   query,
		Filters: &storage.ChunkFilters{DocumentIDs: ids},
		Limit:   5,
	})
	if err != nil {
		return err
	}
	type hit struct {
		Rank       int     `json:"rank"`
		DocumentID string  `json:"document_id"`
		ChunkOrder int     `json:"chunk_order"`
		Score      float64 `json:"relevance_score"`
		Content    string  `json:"content"`
	}
	hits := make([]hit, len(resp.Results))
	for i, r := range resp.Results {
		hits[i] = hit{
			Rank:       r.Rank,
			DocumentID: r.Chunk.DocumentID,
			ChunkOrder: r.Chunk.ChunkOrder,
			Score:      r.RelevanceScore,
			Content:    r.Chunk.Content,
		}
	}
	return enc.Encode(map[string]interface{}{"documents": out, "query": query, "hits": hits})
}
