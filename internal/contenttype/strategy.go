package contenttype

import (
	"regexp"
	"strings"

	"github.com/dshills/contextchunk-mcp/internal/merger"
	"github.com/dshills/contextchunk-mcp/pkg/types"
)

// Strategy shapes chunking for one content type. Both methods return one
// entry per sentence, or nil when the strategy has nothing to say.
type Strategy interface {
	ContentType() types.ContentType
	// Boundaries returns merge hints; the hint of the first sentence is ignored
	Boundaries(sentences []types.Sentence) []merger.Boundary
	// Sections returns the section title in effect at each sentence, "" for none
	Sections(sentences []types.Sentence) []string
}

// StrategyFor is the single dispatch point from content type to strategy.
// Selectors that are not concrete types get the default strategy.
func StrategyFor(ct types.ContentType) Strategy {
	switch ct {
	case types.ContentTypeArticle:
		return articleStrategy{}
	case types.ContentTypeReadingNotes:
		return readingNotesStrategy{}
	case types.ContentTypeDocumentation:
		return documentationStrategy{}
	default:
		return defaultStrategy{}
	}
}

// Line shapes of a sentence. The splitter breaks at Markdown structure, so
// each of these starts its own sentence.
var (
	headingRe = regexp.MustCompile(`^#{1,6}(?:\s|$)`)
	bulletRe  = regexp.MustCompile(`^(?:[-*+]\s|[•·]\s*)`)
	quoteRe   = regexp.MustCompile(`^>`)
	stepRe    = regexp.MustCompile(`(?i)^(?:\d{1,3}[.)]\s|[０-９]+[．、]|[一二三四五六七八九十]+、|第[一二三四五六七八九十\d]+步|步骤\s*[\d一二三四五六七八九十]*|step\s*\d+|étape\s*\d+)`)
)

// IsHeading reports whether the sentence is a Markdown ATX heading
func IsHeading(s types.Sentence) bool {
	return headingRe.MatchString(s.Text)
}

// HeadingTitle strips the Markdown markers from a heading sentence
func HeadingTitle(s types.Sentence) string {
	t := strings.TrimSpace(strings.TrimLeft(s.Text, "#"))
	return strings.TrimSpace(strings.TrimRight(t, "#"))
}

func isClustered(s types.Sentence) bool {
	return bulletRe.MatchString(s.Text) || quoteRe.MatchString(s.Text)
}

func isStep(s types.Sentence) bool {
	return stepRe.MatchString(s.Text)
}

// headingSections returns the most recent heading title at each sentence
func headingSections(sentences []types.Sentence) []string {
	out := make([]string, len(sentences))
	current := ""
	for i, s := range sentences {
		if IsHeading(s) {
			current = HeadingTitle(s)
		}
		out[i] = current
	}
	return out
}

type defaultStrategy struct{}

func (defaultStrategy) ContentType() types.ContentType { return types.ContentTypeDefault }

func (defaultStrategy) Boundaries([]types.Sentence) []merger.Boundary { return nil }

func (defaultStrategy) Sections([]types.Sentence) []string { return nil }

// articleStrategy starts a span at every heading and keeps the heading with
// the sentence that follows it
type articleStrategy struct{}

func (articleStrategy) ContentType() types.ContentType { return types.ContentTypeArticle }

func (articleStrategy) Boundaries(sentences []types.Sentence) []merger.Boundary {
	out := make([]merger.Boundary, len(sentences))
	for i, s := range sentences {
		switch {
		case IsHeading(s):
			out[i] = merger.BoundaryBreak
		case i > 0 && IsHeading(sentences[i-1]):
			out[i] = merger.BoundaryJoin
		}
	}
	return out
}

func (articleStrategy) Sections(sentences []types.Sentence) []string {
	return headingSections(sentences)
}

// readingNotesStrategy keeps runs of bullets and quotes together and breaks
// at both edges of a run
type readingNotesStrategy struct{}

func (readingNotesStrategy) ContentType() types.ContentType { return types.ContentTypeReadingNotes }

func (readingNotesStrategy) Boundaries(sentences []types.Sentence) []merger.Boundary {
	out := make([]merger.Boundary, len(sentences))
	for i, s := range sentences {
		if i == 0 {
			continue
		}
		prev := sentences[i-1]
		switch {
		case IsHeading(s):
			out[i] = merger.BoundaryBreak
		case IsHeading(prev):
			out[i] = merger.BoundaryJoin
		case isClustered(s) && isClustered(prev):
			out[i] = merger.BoundaryJoin
		case isClustered(s) != isClustered(prev):
			out[i] = merger.BoundaryBreak
		}
	}
	return out
}

func (readingNotesStrategy) Sections(sentences []types.Sentence) []string {
	return headingSections(sentences)
}

// documentationStrategy starts a span at every heading and every numbered step
type documentationStrategy struct{}

func (documentationStrategy) ContentType() types.ContentType { return types.ContentTypeDocumentation }

func (documentationStrategy) Boundaries(sentences []types.Sentence) []merger.Boundary {
	out := make([]merger.Boundary, len(sentences))
	for i, s := range sentences {
		switch {
		case IsHeading(s), isStep(s):
			out[i] = merger.BoundaryBreak
		case i > 0 && IsHeading(sentences[i-1]):
			out[i] = merger.BoundaryJoin
		}
	}
	return out
}

func (documentationStrategy) Sections(sentences []types.Sentence) []string {
	return headingSections(sentences)
}
