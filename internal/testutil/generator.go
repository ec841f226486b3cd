package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/dshills/contextchunk-mcp/internal/generator"
)

// FakeGenerator answers with a context derived from the request. Chunks
// containing a FailOn marker always fail with a retryable error.
type FakeGenerator struct {
	FailOn []string

	mu       sync.Mutex
	requests []generator.Request
}

func (g *FakeGenerator) Generate(ctx context.Context, req generator.Request) (*generator.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	for _, marker := range g.FailOn {
		if marker != "" && strings.Contains(req.Chunk, marker) {
			return nil, &generator.RetryableError{StatusCode: 529, Message: ErrInjected.Error()}
		}
	}
	return &generator.Result{
		Context: "Context of " + req.DocumentTitle,
		Summary: "Summary: " + firstLine(req.Chunk),
	}, nil
}

// Requests returns every request received so far
func (g *FakeGenerator) Requests() []generator.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generator.Request(nil), g.requests...)
}

func (g *FakeGenerator) Close() error { return nil }

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
