// Package splitter divides mixed Chinese, English and French text into sentences.
//
// Sentences carry exact rune offsets into the input, so every span can be sliced
// back out of []rune(text) and the text between two spans is always whitespace.
//
// # Basic Usage
//
//	s := splitter.NewDefault()
//	sentences, err := s.Split(`Dr. Smith said: "This works." Then he left.`)
//	if err != nil {
//	    return err // wraps splitter.ErrMalformedInput
//	}
//	// sentences[0].Text == `Dr. Smith said: "This works."`
//	// sentences[1].Text == "Then he left."
//
// # Quotes
//
// A small state machine tracks each configured quote pair. Terminal punctuation
// inside an open quote does not end the sentence. When a terminal is directly
// followed by the closing glyph, with optional French spacing, the boundary moves
// to after the glyph:
//
//	他说：“你好。”然后他走了。   → 他说：“你好。” | 然后他走了。
//	Il a dit : « Je pars. » Puis… → Il a dit : « Je pars. » | Puis…
//
// # Structural Breaks
//
// A blank line always ends a sentence. With Config.StructuralBreaks set, a single
// newline also ends one when the next line opens a Markdown block (heading,
// bullet, numbered step or blockquote) or the current line is a heading.
package splitter
