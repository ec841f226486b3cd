package generator

import (
	"fmt"
	"regexp"
	"strings"
)

const contextPrompt = `Here is the beginning of a document titled %q:
<document>
%s
</document>
%s
Here is the chunk we want to situate within the whole document:
<chunk>
%s
</chunk>
%s
Write a short succinct context that situates this chunk within the overall document for the purposes of improving search retrieval of the chunk, then a one-sentence summary of the chunk. Answer in the language of the chunk, using exactly this format and nothing else:

CONTEXT: <context>
SUMMARY: <summary>`

// BuildPrompt renders the generation prompt for req
func BuildPrompt(req Request) string {
	var before, after strings.Builder
	if req.Section != "" {
		fmt.Fprintf(&before, "\nThe chunk appears under the section %q.\n", req.Section)
	}
	if len(req.Before) > 0 {
		before.WriteString("\nChunks immediately before it:\n<preceding>\n")
		before.WriteString(strings.Join(req.Before, "\n---\n"))
		before.WriteString("\n</preceding>\n")
	}
	if len(req.After) > 0 {
		after.WriteString("\nChunks immediately after it:\n<following>\n")
		after.WriteString(strings.Join(req.After, "\n---\n"))
		after.WriteString("\n</following>\n")
	}
	return fmt.Sprintf(contextPrompt, req.DocumentTitle, req.DocumentExcerpt, before.String(), req.Chunk, after.String())
}

var (
	codeBlockRe = regexp.MustCompile("(?s)^```[a-z]*\\s*(.*?)\\s*```$")
	fieldRe     = regexp.MustCompile(`(?i)^\s*\**\s*(context|summary)\s*\**\s*[:：]\s*\**\s*(.*)$`)
)

// ParseResponse extracts the CONTEXT and SUMMARY fields of a model answer.
// Lines after a field continue it. An answer without field markers is taken
// as context only.
func ParseResponse(text string) (*Result, error) {
	text = stripCodeBlock(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrMalformedResponse)
	}

	var contextLines, summaryLines []string
	var current *[]string
	found := false
	for _, line := range strings.Split(text, "\n") {
		if m := fieldRe.FindStringSubmatch(line); m != nil {
			found = true
			if strings.EqualFold(m[1], "context") {
				current = &contextLines
			} else {
				current = &summaryLines
			}
			*current = append(*current, m[2])
			continue
		}
		if current != nil {
			*current = append(*current, line)
		}
	}

	if !found {
		return &Result{Context: text}, nil
	}

	res := &Result{
		Context: strings.TrimSpace(strings.Join(contextLines, "\n")),
		Summary: strings.TrimSpace(strings.Join(summaryLines, "\n")),
	}
	if res.Context == "" {
		return nil, fmt.Errorf("%w: no context in %q", ErrMalformedResponse, truncate(text, 200))
	}
	return res, nil
}

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}
