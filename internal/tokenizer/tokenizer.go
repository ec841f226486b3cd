package tokenizer

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when a model or encoding name cannot be resolved
const DefaultEncoding = "cl100k_base"

// Counter counts the tokens of a text the way the embedding and generation
// models will see it. Implementations must be deterministic and safe for
// concurrent use.
type Counter interface {
	Count(text string) int
	Name() string
}

// TiktokenCounter counts BPE tokens with tiktoken-go
type TiktokenCounter struct {
	encoding string
	tke      *tiktoken.Tiktoken
}

// NewTiktoken resolves modelOrEncoding first as an encoding name, then as a
// model name, and finally falls back to DefaultEncoding.
func NewTiktoken(modelOrEncoding string) (*TiktokenCounter, error) {
	if modelOrEncoding == "" {
		modelOrEncoding = DefaultEncoding
	}

	if tke, err := tiktoken.GetEncoding(modelOrEncoding); err == nil {
		return &TiktokenCounter{encoding: modelOrEncoding, tke: tke}, nil
	}
	if tke, err := tiktoken.EncodingForModel(modelOrEncoding); err == nil {
		return &TiktokenCounter{encoding: modelOrEncoding, tke: tke}, nil
	}

	tke, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", DefaultEncoding, err)
	}
	return &TiktokenCounter{encoding: DefaultEncoding, tke: tke}, nil
}

// Count implements Counter
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.tke.Encode(text, nil, nil))
}

// Name implements Counter
func (c *TiktokenCounter) Name() string {
	return "tiktoken:" + c.encoding
}

// Estimator approximates BPE counts without a vocabulary. Every CJK rune is
// one token, Latin words cost one token per four runes and every other
// non-space rune costs one.
type Estimator struct{}

// NewEstimator returns the offline estimator
func NewEstimator() Estimator {
	return Estimator{}
}

// Count implements Counter
func (Estimator) Count(text string) int {
	tokens := 0
	word := 0
	flush := func() {
		if word > 0 {
			tokens += (word + 3) / 4
			word = 0
		}
	}
	for _, r := range text {
		switch {
		case IsCJK(r):
			flush()
			tokens++
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '’':
			word++
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			tokens++
		}
	}
	flush()
	return tokens
}

// Name implements Counter
func (Estimator) Name() string {
	return "estimator"
}

// New builds the counter named by kind: "tiktoken" (optionally
// "tiktoken:<encoding or model>") or "estimator". When the tiktoken vocabulary
// cannot be loaded the estimator is returned and a warning is logged.
func New(kind string, logger *slog.Logger) (Counter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name, arg, _ := strings.Cut(strings.TrimSpace(kind), ":")
	switch strings.ToLower(name) {
	case "", "estimator":
		return NewEstimator(), nil
	case "tiktoken":
		c, err := NewTiktoken(arg)
		if err != nil {
			logger.Warn("tiktoken unavailable, using estimator", "error", err)
			return NewEstimator(), nil
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", kind)
	}
}

// IsCJK reports whether r is a Han, Kana or Hangul rune, or CJK punctuation
func IsCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		(r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF)
}

// Units splits text into the smallest pieces a chunk may be cut at: words
// with their trailing whitespace, and single CJK runes. Concatenating the
// units reproduces text.
func Units(text string) []string {
	var units []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); {
		r := runes[i]
		if IsCJK(r) {
			i++
		} else {
			for i < len(runes) && !unicode.IsSpace(runes[i]) && !IsCJK(runes[i]) {
				i++
			}
		}
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		if i == start {
			i++
		}
		units = append(units, string(runes[start:i]))
		start = i
	}
	return units
}
