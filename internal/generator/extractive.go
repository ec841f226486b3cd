package generator

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/contextchunk-mcp/internal/splitter"
)

const summaryRunes = 160

// Extractive situates a chunk from the document title, its section and the
// opening of the document, and summarizes it with its first sentence. It makes
// no network calls and always returns the same answer for the same request.
type Extractive struct {
	splitter *splitter.Splitter
}

// NewExtractive creates the offline generator
func NewExtractive() *Extractive {
	return &Extractive{splitter: splitter.NewDefault()}
}

func (e *Extractive) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunk := strings.TrimSpace(req.Chunk)
	if chunk == "" {
		return nil, errors.New("empty chunk")
	}

	var parts []string
	if t := strings.TrimSpace(req.DocumentTitle); t != "" {
		parts = append(parts, t)
	}
	if s := strings.TrimSpace(req.Section); s != "" {
		parts = append(parts, s)
	}
	if lead := e.firstSentence(req.DocumentExcerpt); lead != "" && lead != e.firstSentence(chunk) {
		parts = append(parts, lead)
	}
	if len(parts) == 0 {
		return nil, ErrMalformedResponse
	}

	return &Result{
		Context: strings.Join(parts, " > "),
		Summary: e.firstSentence(chunk),
	}, nil
}

func (e *Extractive) firstSentence(text string) string {
	sentences, err := e.splitter.Split(text)
	if err != nil || len(sentences) == 0 {
		return ""
	}
	return TruncateExcerpt(sentences[0].Text, summaryRunes)
}

func (e *Extractive) Close() error {
	return nil
}
