package types

import (
	"fmt"
	"strings"
)

// ContentType is the coarse genre of a document. It selects the chunking strategy.
type ContentType string

const (
	// ContentTypeAuto asks the detector to classify the document
	ContentTypeAuto          ContentType = "auto"
	ContentTypeArticle       ContentType = "article"
	ContentTypeReadingNotes  ContentType = "reading_notes"
	ContentTypeDocumentation ContentType = "documentation"
	ContentTypeDefault       ContentType = "default"
)

// ConcreteContentTypes lists the types a detector can return
var ConcreteContentTypes = []ContentType{
	ContentTypeArticle,
	ContentTypeReadingNotes,
	ContentTypeDocumentation,
	ContentTypeDefault,
}

// ParseContentType converts a selector string into a ContentType
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToLower(strings.TrimSpace(s)))
	switch ct {
	case ContentTypeAuto, ContentTypeArticle, ContentTypeReadingNotes, ContentTypeDocumentation, ContentTypeDefault:
		return ct, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidContentType, s)
	}
}

// IsConcrete reports whether the type names a strategy rather than a selector
func (c ContentType) IsConcrete() bool {
	switch c {
	case ContentTypeArticle, ContentTypeReadingNotes, ContentTypeDocumentation, ContentTypeDefault:
		return true
	}
	return false
}

func (c ContentType) String() string {
	return string(c)
}
