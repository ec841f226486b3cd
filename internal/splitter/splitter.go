package splitter

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/contextchunk-mcp/pkg/types"
)

// ErrMalformedInput is returned when the document is not valid UTF-8
var ErrMalformedInput = errors.New("malformed input")

// QuotePair is an opening and closing quotation glyph. A pair whose glyphs are
// identical is ambiguous and alternates between opening and closing.
type QuotePair struct {
	Open  rune
	Close rune
}

// Ambiguous reports whether the pair uses one glyph for both sides
func (q QuotePair) Ambiguous() bool {
	return q.Open == q.Close
}

// Config controls sentence detection
type Config struct {
	QuotePairs           []QuotePair
	Abbreviations        []string // lowercase, without the final dot
	NumericAbbreviations []string // suppressed only before a digit
	StructuralBreaks     bool     // break at lines that open a Markdown block
}

// DefaultConfig returns the Chinese/English/French configuration
func DefaultConfig() Config {
	return Config{
		QuotePairs: []QuotePair{
			{'"', '"'},
			{'\'', '\''},
			{'“', '”'},
			{'‘', '’'},
			{'「', '」'},
			{'『', '』'},
			{'«', '»'},
			{'‹', '›'},
		},
		Abbreviations:        DefaultAbbreviations(),
		NumericAbbreviations: DefaultNumericAbbreviations(),
		StructuralBreaks:     true,
	}
}

// glyphRole links a quote glyph to its pair
type glyphRole struct {
	pair    int
	opens   bool
	closes  bool
	ambigue bool
}

// Splitter splits text into sentences. It holds no per-call state and is safe
// for concurrent use.
type Splitter struct {
	pairs      []QuotePair
	glyphs     map[rune][]glyphRole
	abbrevs    map[string]bool
	numeric    map[string]bool
	structural bool
}

// New creates a Splitter from cfg
func New(cfg Config) *Splitter {
	s := &Splitter{
		pairs:      cfg.QuotePairs,
		glyphs:     make(map[rune][]glyphRole),
		abbrevs:    make(map[string]bool, len(cfg.Abbreviations)),
		numeric:    make(map[string]bool, len(cfg.NumericAbbreviations)),
		structural: cfg.StructuralBreaks,
	}
	for i, p := range cfg.QuotePairs {
		if p.Ambiguous() {
			s.glyphs[p.Open] = append(s.glyphs[p.Open], glyphRole{pair: i, opens: true, closes: true, ambigue: true})
			continue
		}
		s.glyphs[p.Open] = append(s.glyphs[p.Open], glyphRole{pair: i, opens: true})
		s.glyphs[p.Close] = append(s.glyphs[p.Close], glyphRole{pair: i, closes: true})
	}
	for _, a := range cfg.Abbreviations {
		s.abbrevs[strings.ToLower(a)] = true
	}
	for _, a := range cfg.NumericAbbreviations {
		s.numeric[strings.ToLower(a)] = true
	}
	return s
}

// NewDefault creates a Splitter with DefaultConfig
func NewDefault() *Splitter {
	return New(DefaultConfig())
}

// scan holds the state of one Split call
type scan struct {
	s     *Splitter
	runes []rune
	depth []int

	out          []types.Sentence
	start        int // first rune of the current sentence, -1 between sentences
	lastNonSpace int
	lineFirst    int // first non-space rune of the current line
	pending      bool
}

// Split returns the sentences of text in order. Offsets are rune offsets and
// everything between two sentences is whitespace.
func (s *Splitter) Split(text string) ([]types.Sentence, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: invalid UTF-8 at byte %d", ErrMalformedInput, invalidOffset(text))
	}

	sc := &scan{
		s:         s,
		runes:     []rune(text),
		depth:     make([]int, len(s.pairs)),
		start:     -1,
		lineFirst: -1,
	}
	sc.run()
	return sc.out, nil
}

func (sc *scan) run() {
	r := sc.runes
	n := len(r)

	for i := 0; i < n; i++ {
		c := r[i]

		if c == '\n' {
			sc.newline(i)
			continue
		}
		if unicode.IsSpace(c) {
			continue
		}

		if sc.start < 0 {
			sc.start = i
		}
		if sc.lineFirst < 0 {
			sc.lineFirst = i
		}

		if sc.pending && !sc.anyOpen() {
			// A deferred boundary whose quote has closed. Dialogue tags
			// in lowercase continue the sentence.
			sc.pending = false
			if !unicode.IsLower(c) {
				sc.emit(sc.lastNonSpace + 1)
				sc.start = i
			}
		}

		sc.lastNonSpace = i

		if roles, ok := sc.s.glyphs[c]; ok && !sc.isApostrophe(i) {
			sc.quote(i, roles)
			continue
		}

		if isTerminal(c) {
			i = sc.terminal(i) - 1
		}
	}

	if sc.start >= 0 {
		sc.emit(sc.lastNonSpace + 1)
	}
}

// newline applies blank-line and structural breaks
func (sc *scan) newline(i int) {
	r := sc.runes
	k := i + 1
	for k < len(r) && isHorizontalSpace(r[k]) {
		k++
	}
	headingLine := sc.lineFirst >= 0 && r[sc.lineFirst] == '#'
	sc.lineFirst = -1

	if sc.start < 0 {
		return
	}
	if k < len(r) && r[k] == '\n' {
		sc.hardBreak()
		return
	}
	if sc.s.structural && (headingLine || isBlockStart(r, k)) {
		sc.hardBreak()
	}
}

func (sc *scan) hardBreak() {
	sc.emit(sc.lastNonSpace + 1)
	sc.resetQuotes()
}

// quote updates the state machine for a quotation glyph
func (sc *scan) quote(i int, roles []glyphRole) {
	r := sc.runes
	for _, role := range roles {
		switch {
		case role.ambigue:
			if sc.depth[role.pair] == 0 {
				if i > 0 && isWordRune(r[i-1]) {
					continue // 5" or students'
				}
				sc.depth[role.pair] = 1
			} else {
				sc.depth[role.pair] = 0
			}
		case role.opens:
			sc.depth[role.pair]++
		case role.closes:
			if sc.depth[role.pair] > 0 {
				sc.depth[role.pair]--
			}
		}
	}
}

// terminal handles a run of terminal punctuation starting at i and returns
// the index just past the run
func (sc *scan) terminal(i int) int {
	r := sc.runes
	n := len(r)
	j := i
	for j < n && (isTerminal(r[j]) || r[j] == '…') {
		j++
	}
	sc.lastNonSpace = j - 1

	if !sc.isBoundary(i, j) {
		return j
	}

	if sc.anyOpen() {
		k := j
		for k < n && isHorizontalSpace(r[k]) {
			k++
		}
		if k < n && sc.closesOpenQuote(r[k]) {
			sc.pending = true
			return j
		}
		// A quote that never closes in this paragraph does not hold
		// the following sentences hostage
		if k < n && sc.startsSentence(j, k) && !sc.closesLater(k) {
			sc.emit(j)
		}
		return j
	}

	sc.emit(j)
	return j
}

// isBoundary decides whether the run r[i:j] may end a sentence
func (sc *scan) isBoundary(i, j int) bool {
	r := sc.runes
	for k := i; k < j; k++ {
		if r[k] == '．' && j-i == 1 && sc.isListMarker(k) {
			return false
		}
		if isCJKTerminal(r[k]) {
			return true
		}
	}

	if j < len(r) {
		next := r[j]
		_, isQuote := sc.s.glyphs[next]
		if !unicode.IsSpace(next) && !isQuote && !isCJK(next) {
			return false
		}
	}

	// Only a single trailing '.' can be an abbreviation or a list marker
	if j-i == 1 && r[i] == '.' {
		if sc.isListMarker(i) || sc.isAbbreviation(i) {
			return false
		}
	}
	return true
}

// isListMarker reports whether the dot at pos ends a step number that opens
// the current sentence, as in "1. Install" or "２．选择"
func (sc *scan) isListMarker(pos int) bool {
	if sc.start < 0 || pos-sc.start < 1 || pos-sc.start > 3 {
		return false
	}
	for k := sc.start; k < pos; k++ {
		if !unicode.IsDigit(sc.runes[k]) {
			return false
		}
	}
	return true
}

// isAbbreviation checks the letters-and-dots token before the dot at pos
func (sc *scan) isAbbreviation(pos int) bool {
	r := sc.runes
	k := pos
	for k > 0 && (unicode.IsLetter(r[k-1]) || r[k-1] == '.') {
		k--
	}
	word := strings.ToLower(strings.TrimLeft(string(r[k:pos]), "."))
	if word == "" {
		return false
	}
	if sc.s.abbrevs[word] {
		return true
	}
	if sc.s.numeric[word] && nextIsDigit(r, pos+1) {
		return true
	}

	// Single uppercase initial: J. K. Rowling
	letters := []rune(strings.ReplaceAll(string(r[k:pos]), ".", ""))
	return len(letters) == 1 && unicode.IsUpper(letters[0])
}

// elisions are words that drop a leading letter, as in 'em or 'tis
var elisions = map[string]bool{
	"em": true, "tis": true, "twas": true, "til": true, "cause": true, "bout": true, "n": true,
}

// isApostrophe treats a quote glyph between two word runes as part of the
// word, as does a leading one before a digit ('90s) or a known elision
func (sc *scan) isApostrophe(i int) bool {
	r := sc.runes
	if i+1 >= len(r) {
		return false
	}
	c := r[i]
	if c != '\'' && c != '’' && c != '‘' {
		return false
	}
	if i > 0 && isWordRune(r[i-1]) {
		return isWordRune(r[i+1])
	}
	if c == '‘' {
		return false
	}
	if unicode.IsDigit(r[i+1]) {
		return true
	}
	k := i + 1
	for k < len(r) && unicode.IsLetter(r[k]) {
		k++
	}
	return elisions[strings.ToLower(string(r[i+1:k]))]
}

// startsSentence reports whether the text at k, after a terminal run ending
// at j, opens a new sentence: an uppercase letter after a space, or CJK
func (sc *scan) startsSentence(j, k int) bool {
	c := sc.runes[k]
	return isCJK(c) || (k > j && unicode.IsUpper(c))
}

// closesLater reports whether a glyph closing an open quote appears between
// k and the end of the paragraph
func (sc *scan) closesLater(k int) bool {
	r := sc.runes
	for ; k < len(r); k++ {
		if r[k] == '\n' {
			m := k + 1
			for m < len(r) && isHorizontalSpace(r[m]) {
				m++
			}
			if m < len(r) && r[m] == '\n' {
				return false
			}
			continue
		}
		if sc.closesOpenQuote(r[k]) && !sc.isApostrophe(k) {
			return true
		}
	}
	return false
}

func (sc *scan) closesOpenQuote(c rune) bool {
	for _, role := range sc.s.glyphs[c] {
		if role.closes && sc.depth[role.pair] > 0 {
			return true
		}
	}
	return false
}

func (sc *scan) anyOpen() bool {
	for _, d := range sc.depth {
		if d > 0 {
			return true
		}
	}
	return false
}

func (sc *scan) resetQuotes() {
	for i := range sc.depth {
		sc.depth[i] = 0
	}
	sc.pending = false
}

// emit closes the current sentence at end (exclusive)
func (sc *scan) emit(end int) {
	if sc.start < 0 || end <= sc.start {
		sc.start = -1
		return
	}
	sc.out = append(sc.out, types.Sentence{
		Index:     len(sc.out),
		Text:      string(sc.runes[sc.start:end]),
		StartChar: sc.start,
		EndChar:   end,
	})
	sc.start = -1
	sc.pending = false
	// Ambiguous quotes restart closed after every boundary
	sc.resetQuotes()
}

func isTerminal(c rune) bool {
	switch c {
	case '.', '!', '?':
		return true
	}
	return isCJKTerminal(c)
}

func isCJKTerminal(c rune) bool {
	switch c {
	case '。', '！', '？', '；', '．':
		return true
	}
	return false
}

func isCJK(c rune) bool {
	return unicode.In(c, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func isWordRune(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c)
}

func isHorizontalSpace(c rune) bool {
	return c != '\n' && unicode.IsSpace(c)
}

func nextIsDigit(r []rune, k int) bool {
	for k < len(r) && isHorizontalSpace(r[k]) {
		k++
	}
	return k < len(r) && unicode.IsDigit(r[k])
}

// isBlockStart reports whether a line starting at k opens a Markdown block:
// heading, bullet, ordered item or blockquote
func isBlockStart(r []rune, k int) bool {
	if k >= len(r) {
		return false
	}
	switch r[k] {
	case '#', '>', '•', '·':
		return true
	case '-', '*', '+':
		return k+1 < len(r) && isHorizontalSpace(r[k+1])
	}

	j := k
	for j < len(r) && unicode.IsDigit(r[j]) {
		j++
	}
	if j == k || j-k > 3 || j >= len(r) {
		return false
	}
	switch r[j] {
	case '.', ')', '．', '、':
		return j+1 >= len(r) || !unicode.IsDigit(r[j+1])
	}
	return false
}

func invalidOffset(text string) int {
	for i := 0; i < len(text); {
		c, size := utf8.DecodeRuneInString(text[i:])
		if c == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(text)
}
