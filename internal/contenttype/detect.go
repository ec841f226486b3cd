package contenttype

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dshills/contextchunk-mcp/pkg/types"
)

// Features are the structural counts the detector decides on
type Features struct {
	Headings          int
	Paragraphs        int // top-level only
	ListItems         int
	OrderedItems      int
	Blockquotes       int
	CodeBlocks        int
	ProceduralMarkers int
	NoteMarkers       int
}

var (
	// Bullets and ordered items goldmark does not recognize as lists
	extraBulletRe  = regexp.MustCompile(`^\s*[•·]\s*\S`)
	extraOrderedRe = regexp.MustCompile(`(?i)^\s*(?:[０-９]+[．、]|[一二三四五六七八九十]+、|第[一二三四五六七八九十\d]+步|(?:step|étape)\s*\d+)`)

	proceduralRe = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:step\s*\d+|how to|install(?:ation|ing)?|configur(?:e|ation)|prerequisites?|getting started|usage|run the|étape\s*\d*|prérequis|installer|installation|configurer|mode d'emploi)(?:[^\p{L}]|$)`)
	proceduralZh = []string{"步骤", "第一步", "第二步", "第三步", "安装", "配置", "使用方法", "操作指南", "运行"}

	noteRe = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:notes?|reading notes|highlights?|takeaways?|excerpts?|quotes|notes de lecture|citations?|extraits?|à retenir)(?:[^\p{L}]|$)`)
	noteZh = []string{"笔记", "摘录", "书摘", "读后感", "心得", "划线"}
)

// noteLineMax bounds the lines scanned for note markers; longer lines are prose
const noteLineMax = 40

// Analyze parses text as Markdown and counts its structure and markers
func Analyze(input string) Features {
	var f Features
	src := []byte(input)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			f.Headings++
		case *ast.Paragraph:
			if _, top := node.Parent().(*ast.Document); top {
				f.Paragraphs++
			}
		case *ast.ListItem:
			if list, ok := node.Parent().(*ast.List); ok && list.IsOrdered() {
				f.OrderedItems++
			} else {
				f.ListItems++
			}
		case *ast.Blockquote:
			f.Blockquotes++
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			f.CodeBlocks++
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	for _, line := range strings.Split(input, "\n") {
		if extraBulletRe.MatchString(line) {
			f.ListItems++
		}
		if extraOrderedRe.MatchString(line) {
			f.OrderedItems++
		}
		if proceduralRe.MatchString(line) || containsAny(line, proceduralZh) {
			f.ProceduralMarkers++
		}
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if trimmed != "" && utf8.RuneCountInString(trimmed) <= noteLineMax &&
			(noteRe.MatchString(trimmed) || containsAny(trimmed, noteZh)) {
			f.NoteMarkers++
		}
	}
	return f
}

// Detect classifies text. Documentation wins over reading notes, which win
// over article; anything without a clear signal is default.
func Detect(input string) types.ContentType {
	return Classify(Analyze(input))
}

// Classify maps features to a content type
func Classify(f Features) types.ContentType {
	clustered := f.ListItems + f.Blockquotes
	switch {
	case f.CodeBlocks > 0 && (f.OrderedItems >= 2 || f.ProceduralMarkers > 0),
		f.OrderedItems >= 3 && f.ProceduralMarkers > 0,
		f.ProceduralMarkers >= 3 && f.Headings+f.OrderedItems >= 2:
		return types.ContentTypeDocumentation
	case f.NoteMarkers > 0 && clustered >= 2,
		f.Blockquotes >= 2 && clustered >= f.Paragraphs:
		return types.ContentTypeReadingNotes
	case f.Headings > 0 && f.Paragraphs >= 2 && f.Paragraphs > clustered+f.OrderedItems,
		f.Paragraphs >= 3 && f.Paragraphs > 2*(clustered+f.OrderedItems):
		return types.ContentTypeArticle
	default:
		return types.ContentTypeDefault
	}
}

// Resolve turns a selector into a concrete type: auto runs the detector, a
// concrete type is kept and anything else falls back to default
func Resolve(selector types.ContentType, input string) types.ContentType {
	switch {
	case selector == types.ContentTypeAuto:
		return Detect(input)
	case selector.IsConcrete():
		return selector
	default:
		return types.ContentTypeDefault
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
