package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrGeneration wraps every failure to produce context for a chunk
	ErrGeneration = errors.New("context generation failed")
	// ErrMalformedResponse is returned when the model output has no usable context
	ErrMalformedResponse = errors.New("malformed generation response")
	// ErrNoAPIKey is returned when a remote generator has no credentials
	ErrNoAPIKey = errors.New("generator API key not set")
)

// Request describes one chunk to situate within its document
type Request struct {
	DocumentTitle   string
	DocumentExcerpt string // head of the document
	Section         string // heading in effect at the chunk, if any
	Before          []string
	Chunk           string
	After           []string
}

// Result is the parsed model output
type Result struct {
	Context string
	Summary string
}

// Generator produces document-relative context and a summary for a chunk
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	Close() error
}

// RetryableError indicates a transient failure that can be retried
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("retryable error: %s", truncate(e.Message, 200))
	}
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable reports whether another attempt may succeed. Cancellation is
// never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	if errors.Is(err, ErrMalformedResponse) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// TruncateExcerpt returns at most maxRunes runes of text, cut at the nearest
// preceding whitespace when one exists. maxRunes <= 0 returns text unchanged.
func TruncateExcerpt(text string, maxRunes int) string {
	runes := []rune(text)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return text
	}
	cut := maxRunes
	for cut > 0 && runes[cut] != ' ' && runes[cut] != '\n' && runes[cut-1] != ' ' && runes[cut-1] != '\n' {
		cut--
	}
	if cut < maxRunes/2 {
		// CJK text has few spaces; hard cut
		cut = maxRunes
	}
	return strings.TrimSpace(string(runes[:cut]))
}
