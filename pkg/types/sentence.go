package types

// Sentence is one sentence span of a document. StartChar and EndChar are
// rune offsets into the document, half-open.
type Sentence struct {
	Index     int
	Text      string
	StartChar int
	EndChar   int
}

// Len returns the span length in runes.
func (s Sentence) Len() int {
	return s.EndChar - s.StartChar
}

// SentenceTexts returns the text of every sentence in order.
func SentenceTexts(sentences []Sentence) []string {
	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = s.Text
	}
	return texts
}
