// Package contenttype classifies documents and selects a chunking strategy.
//
// Detection parses the text as Markdown with goldmark, counts its block
// structure and scans for procedural and note-taking markers in English,
// Chinese and French:
//
//	ct := contenttype.Resolve(cfg.ContentType, text) // auto runs Detect
//	strategy := contenttype.StrategyFor(ct)
//	hints := strategy.Boundaries(sentences)
//	sections := strategy.Sections(sentences)
//
// The content types form a closed set and StrategyFor is the only place that
// maps a type to its behaviour.
package contenttype
