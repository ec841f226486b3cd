// Package optimizer enforces the token budget on merged sentence spans.
//
// Oversized spans are cut at the sentence boundary whose prefix is closest to
// the target without exceeding the maximum; a sentence that is too long on its
// own is cut between words, or between CJK runes. Undersized parts are merged
// forward. Every part keeps the exact document text of its range, and a part
// that starts at a cut carries the tail of its predecessor as an overlap
// prefix.
package optimizer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/dshills/contextchunk-mcp/internal/merger"
	"github.com/dshills/contextchunk-mcp/internal/tokenizer"
	"github.com/dshills/contextchunk-mcp/pkg/types"
)

var (
	// ErrTokenBudgetViolation is returned when a part still exceeds the maximum
	// after optimization. It is the same error as types.ErrTokenBudgetViolation.
	ErrTokenBudgetViolation = types.ErrTokenBudgetViolation
	ErrInvalidSpans         = errors.New("spans do not cover the sentences in order")
	ErrInvalidParams        = errors.New("invalid token budget")
)

// Params is the token budget
type Params struct {
	Target  int
	Max     int
	Min     int
	Overlap int
}

// Validate checks 0 < Min <= Target <= Max, 2*Min <= Max and 0 <= Overlap < Max
func (p Params) Validate() error {
	if p.Max <= 0 || p.Target <= 0 || p.Target > p.Max || p.Min <= 0 || p.Min > p.Target {
		return fmt.Errorf("%w: min %d, target %d, max %d", ErrInvalidParams, p.Min, p.Target, p.Max)
	}
	if 2*p.Min > p.Max {
		return fmt.Errorf("%w: min %d leaves no room to re-cut under max %d", ErrInvalidParams, p.Min, p.Max)
	}
	if p.Overlap < 0 || p.Overlap >= p.Max {
		return fmt.Errorf("%w: overlap %d", ErrInvalidParams, p.Overlap)
	}
	return nil
}

// Part is one budget-conforming slice of the document
type Part struct {
	StartSentence int
	EndSentence   int
	StartChar     int // rune offset, inclusive
	EndChar       int // rune offset, exclusive
	Content       string
	OverlapPrefix string
	TokenCount    int  // tokens of Content only
	Continued     bool // starts at a cut made by the optimizer
}

// Optimizer is safe for concurrent use when its Counter is
type Optimizer struct {
	counter tokenizer.Counter
	params  Params
}

// New creates an optimizer
func New(counter tokenizer.Counter, params Params) (*Optimizer, error) {
	if counter == nil {
		return nil, errors.New("optimizer: nil token counter")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{counter: counter, params: params}, nil
}

// Params returns the token budget
func (o *Optimizer) Params() Params {
	return o.params
}

// rng is a half-open rune range of the document
type rng struct {
	start, end int
	continued  bool
}

type pass struct {
	o         *Optimizer
	runes     []rune
	sentences []types.Sentence
}

// Optimize turns merged spans into parts that fit the budget. sentences must
// come from splitting doc and spans must cover them in order.
func (o *Optimizer) Optimize(doc string, sentences []types.Sentence, spans []merger.Span) ([]Part, error) {
	if err := checkSpans(sentences, spans); err != nil {
		return nil, err
	}
	if len(sentences) == 0 {
		return nil, nil
	}

	p := &pass{o: o, runes: []rune(doc), sentences: sentences}
	if last := sentences[len(sentences)-1]; last.EndChar > len(p.runes) {
		return nil, fmt.Errorf("%w: sentence %d ends at %d beyond the document", ErrInvalidSpans, last.Index, last.EndChar)
	}

	var ranges []rng
	for _, sp := range spans {
		r := rng{start: sentences[sp.Start].StartChar, end: sentences[sp.End].EndChar}
		ranges = append(ranges, p.fit(r)...)
	}
	ranges = p.floor(ranges)

	parts := make([]Part, len(ranges))
	for i, r := range ranges {
		content := p.text(r)
		parts[i] = Part{
			StartSentence: p.sentenceAt(r.start),
			EndSentence:   p.sentenceAt(r.end - 1),
			StartChar:     r.start,
			EndChar:       r.end,
			Content:       content,
			TokenCount:    o.counter.Count(content),
			Continued:     r.continued,
		}
		if r.continued && i > 0 && o.params.Overlap > 0 {
			parts[i].OverlapPrefix = p.tail(parts[i-1].Content)
		}
		if parts[i].TokenCount > o.params.Max {
			return nil, fmt.Errorf("%w: part %d (sentences %d-%d) has %d tokens, max %d",
				ErrTokenBudgetViolation, i, parts[i].StartSentence, parts[i].EndSentence, parts[i].TokenCount, o.params.Max)
		}
	}
	for i := 0; i < len(parts)-1; i++ {
		if parts[i].TokenCount < o.params.Min {
			return nil, fmt.Errorf("%w: part %d (sentences %d-%d) has %d tokens, min %d",
				ErrTokenBudgetViolation, i, parts[i].StartSentence, parts[i].EndSentence, parts[i].TokenCount, o.params.Min)
		}
	}
	return parts, nil
}

func checkSpans(sentences []types.Sentence, spans []merger.Span) error {
	next := 0
	for i, sp := range spans {
		if sp.Start != next || sp.End < sp.Start || sp.End >= len(sentences) {
			return fmt.Errorf("%w: span %d is %d-%d", ErrInvalidSpans, i, sp.Start, sp.End)
		}
		next = sp.End + 1
	}
	if next != len(sentences) {
		return fmt.Errorf("%w: %d of %d sentences covered", ErrInvalidSpans, next, len(sentences))
	}
	return nil
}

func (p *pass) text(r rng) string {
	return string(p.runes[r.start:r.end])
}

func (p *pass) count(r rng) int {
	return p.o.counter.Count(p.text(r))
}

// sentenceAt returns the index of the sentence that contains offset, or the
// last one starting before it
func (p *pass) sentenceAt(offset int) int {
	i := sort.Search(len(p.sentences), func(i int) bool {
		return p.sentences[i].StartChar > offset
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// fit cuts r until every piece is within Max
func (p *pass) fit(r rng) []rng {
	var out []rng
	for p.count(r) > p.o.params.Max {
		c, ok := p.cut(r)
		if !ok {
			break // reported by the final check
		}
		left, right := p.cutAt(r, c)
		out = append(out, left)
		r = right
	}
	return append(out, r)
}

// cut picks where to split an oversized range: the closest-to-target sentence
// boundary, else word boundary, else rune boundary
func (p *pass) cut(r rng) (int, bool) {
	for _, candidates := range []func(rng) []int{p.sentenceCuts, p.unitCuts, p.runeCuts} {
		if c, ok := p.closest(r, candidates(r)); ok {
			return c, true
		}
	}
	return 0, false
}

// closest returns the candidate whose prefix fits Max and is nearest Target.
// Ties go to the longer prefix.
func (p *pass) closest(r rng, candidates []int) (int, bool) {
	best, bestDist := 0, -1
	for _, c := range candidates {
		left, _ := p.cutAt(r, c)
		n := p.count(left)
		if n > p.o.params.Max {
			break
		}
		d := n - p.o.params.Target
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d <= bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist >= 0
}

// floor merges parts under Min into their successor. A merge that overflows
// Max is re-cut so the first piece reaches Min.
func (p *pass) floor(parts []rng) []rng {
	for i := 0; i < len(parts)-1; {
		if p.count(parts[i]) >= p.o.params.Min {
			i++
			continue
		}
		merged := rng{start: parts[i].start, end: parts[i+1].end, continued: parts[i].continued}
		if p.count(merged) <= p.o.params.Max {
			parts = append(parts[:i+1], parts[i+2:]...)
			parts[i] = merged
			continue
		}

		left, right, ok := p.recut(merged)
		if !ok {
			i++
			continue
		}
		rest := p.fit(right)
		tail := append([]rng{left}, rest...)
		parts = append(parts[:i], append(tail, parts[i+2:]...)...)
		i++
	}
	return parts
}

// recut prefers a cut leaving both sides within budget, then one whose left
// side reaches Min and leaves the right side to fit
func (p *pass) recut(r rng) (rng, rng, bool) {
	for _, rightFits := range []bool{true, false} {
		for _, candidates := range []func(rng) []int{p.sentenceCuts, p.unitCuts} {
			for _, c := range candidates(r) {
				left, right := p.cutAt(r, c)
				n := p.count(left)
				if n > p.o.params.Max {
					break
				}
				if n >= p.o.params.Min && (!rightFits || p.count(right) <= p.o.params.Max) {
					return left, right, true
				}
			}
		}
	}
	c, ok := p.cut(r)
	if !ok {
		return rng{}, rng{}, false
	}
	left, right := p.cutAt(r, c)
	return left, right, true
}

// cutAt splits r at offset c, dropping whitespace around the cut
func (p *pass) cutAt(r rng, c int) (rng, rng) {
	le := c
	for le > r.start && unicode.IsSpace(p.runes[le-1]) {
		le--
	}
	rs := c
	for rs < r.end && unicode.IsSpace(p.runes[rs]) {
		rs++
	}
	return rng{start: r.start, end: le, continued: r.continued}, rng{start: rs, end: r.end, continued: true}
}

// sentenceCuts returns the start offsets of sentences strictly inside r
func (p *pass) sentenceCuts(r rng) []int {
	var out []int
	for i := p.sentenceAt(r.start) + 1; i < len(p.sentences); i++ {
		s := p.sentences[i].StartChar
		if s >= r.end {
			break
		}
		if s > r.start {
			out = append(out, s)
		}
	}
	return out
}

// unitCuts returns word and CJK rune boundaries strictly inside r
func (p *pass) unitCuts(r rng) []int {
	var out []int
	offset := r.start
	for _, u := range tokenizer.Units(p.text(r)) {
		offset += len([]rune(u))
		if offset < r.end && !unicode.IsSpace(p.runes[offset]) {
			out = append(out, offset)
		}
	}
	return out
}

func (p *pass) runeCuts(r rng) []int {
	var out []int
	for c := r.start + 1; c < r.end; c++ {
		if !unicode.IsSpace(p.runes[c]) && !unicode.IsSpace(p.runes[c-1]) {
			out = append(out, c)
		}
	}
	return out
}

// tail returns the longest unit suffix of text within the overlap budget
func (p *pass) tail(text string) string {
	units := tokenizer.Units(text)
	best := ""
	suffix := ""
	for k := len(units) - 1; k >= 0; k-- {
		suffix = units[k] + suffix
		candidate := strings.TrimSpace(suffix)
		if p.o.counter.Count(candidate) > p.o.params.Overlap {
			break
		}
		best = candidate
	}
	return best
}
