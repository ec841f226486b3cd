package splitter

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contextchunk-mcp/pkg/types"
)

func texts(sentences []types.Sentence) []string {
	return types.SentenceTexts(sentences)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "abbreviation and quoted sentence",
			text: `Dr. Smith said: "This works." Then he left.`,
			want: []string{`Dr. Smith said: "This works."`, "Then he left."},
		},
		{
			name: "chinese curly quotes",
			text: "他说：“你好。”然后他走了。今天天气很好！",
			want: []string{"他说：“你好。”", "然后他走了。", "今天天气很好！"},
		},
		{
			name: "chinese corner brackets",
			text: "她问：「你去哪里？」我没有回答。",
			want: []string{"她问：「你去哪里？」", "我没有回答。"},
		},
		{
			name: "chinese semicolon",
			text: "第一点；第二点。",
			want: []string{"第一点；", "第二点。"},
		},
		{
			name: "fullwidth full stop and numbered steps",
			text: "１．打开设置．２．选择语言．",
			want: []string{"１．打开设置．", "２．选择语言．"},
		},
		{
			name: "french guillemets with spacing",
			text: "Il a dit : « Je pars. » Puis il est parti.",
			want: []string{"Il a dit : « Je pars. »", "Puis il est parti."},
		},
		{
			name: "french spaced exclamation",
			text: "Bonjour ! Comment allez-vous ?",
			want: []string{"Bonjour !", "Comment allez-vous ?"},
		},
		{
			name: "titles time markers and latin shorthand",
			text: "Mr. Brown met Prof. Li at 3.30 p.m. on Monday. They talked, e.g. about work.",
			want: []string{"Mr. Brown met Prof. Li at 3.30 p.m. on Monday.", "They talked, e.g. about work."},
		},
		{
			name: "single initials",
			text: "J. K. Rowling wrote books. She lives in Scotland.",
			want: []string{"J. K. Rowling wrote books.", "She lives in Scotland."},
		},
		{
			name: "numeric abbreviations need a number",
			text: "See fig. 3 for details. The answer is no. We stop.",
			want: []string{"See fig. 3 for details.", "The answer is no.", "We stop."},
		},
		{
			name: "decimal numbers",
			text: "Pi is 3.14. It is irrational.",
			want: []string{"Pi is 3.14.", "It is irrational."},
		},
		{
			name: "nested quotes of different types",
			text: `She said, "He told me 'stop.' Then he ran." Afterwards we left.`,
			want: []string{`She said, "He told me 'stop.' Then he ran."`, "Afterwards we left."},
		},
		{
			name: "terminal inside open quote does not split",
			text: `"This works. Really." Done.`,
			want: []string{`"This works. Really."`, "Done."},
		},
		{
			name: "apostrophes are not quotes",
			text: "Don't panic. It's fine.",
			want: []string{"Don't panic.", "It's fine."},
		},
		{
			name: "leading apostrophes before digits and elisions",
			text: "Back in the '90s we moved. Things changed. We told 'em twice.",
			want: []string{"Back in the '90s we moved.", "Things changed.", "We told 'em twice."},
		},
		{
			name: "unclosed curly quote releases following sentences",
			text: "He said “hello. Then it rained. We left.",
			want: []string{"He said “hello.", "Then it rained.", "We left."},
		},
		{
			name: "unclosed chinese quote releases following sentences",
			text: "他说：“你好。然后下雨了。",
			want: []string{"他说：“你好。", "然后下雨了。"},
		},
		{
			name: "quote closing later in the paragraph still holds",
			text: "他说：“你好。我很好。”然后走了。",
			want: []string{"他说：“你好。我很好。”", "然后走了。"},
		},
		{
			name: "punctuation runs",
			text: "Really?! Yes... I think so.",
			want: []string{"Really?!", "Yes...", "I think so."},
		},
		{
			name: "lowercase dialogue tag continues sentence",
			text: `"Stop!" she shouted. Then silence.`,
			want: []string{`"Stop!" she shouted.`, "Then silence."},
		},
		{
			name: "abbreviation at end of text",
			text: "I went to see the Dr.",
			want: []string{"I went to see the Dr."},
		},
		{
			name: "no terminal punctuation",
			text: "No punctuation here",
			want: []string{"No punctuation here"},
		},
		{
			name: "blank line resets unbalanced quote",
			text: "He said \"hello.\n\nNext paragraph. Another.",
			want: []string{"He said \"hello.", "Next paragraph.", "Another."},
		},
		{
			name: "markdown structure",
			text: "# Title\nIntro line without period\n\n- first item\n- second item\n1. Step one.\n2. Step two.",
			want: []string{"# Title", "Intro line without period", "- first item", "- second item", "1. Step one.", "2. Step two."},
		},
		{
			name: "soft wrapped line stays in sentence",
			text: "This sentence wraps\nonto a second line. Next.",
			want: []string{"This sentence wraps\nonto a second line.", "Next."},
		},
	}

	s := NewDefault()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Split(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, texts(got))
		})
	}
}

func TestSplitOffsetsAndIndexes(t *testing.T) {
	text := "  Première phrase. 第二句。 Third one!  "
	got, err := NewDefault().Split(text)
	require.NoError(t, err)
	require.Len(t, got, 3)

	runes := []rune(text)
	for i, s := range got {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, string(runes[s.StartChar:s.EndChar]), s.Text)
	}
	assert.Equal(t, 2, got[0].StartChar)
}

func TestSplitReconstruction(t *testing.T) {
	inputs := []string{
		`Dr. Smith said: "This works." Then he left.`,
		"他说：“你好。”然后他走了。\n\n第二段。",
		"Il a dit : « Je pars. »\nPuis il est parti.",
		"# Heading\n\n- a\n- b\n\nText. More text?  Yes!\n",
		"   ",
		"",
		"Single",
	}

	s := NewDefault()
	for _, in := range inputs {
		sentences, err := s.Split(in)
		require.NoError(t, err)

		runes := []rune(in)
		var rebuilt strings.Builder
		pos := 0
		for _, sent := range sentences {
			gap := string(runes[pos:sent.StartChar])
			assert.Empty(t, strings.TrimFunc(gap, unicode.IsSpace), "gap before %q must be whitespace", sent.Text)
			rebuilt.WriteString(gap)
			rebuilt.WriteString(sent.Text)
			pos = sent.EndChar
		}
		tail := string(runes[pos:])
		assert.Empty(t, strings.TrimSpace(tail))
		rebuilt.WriteString(tail)

		assert.Equal(t, in, rebuilt.String())
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := "A. B said \"hi.\" C? D！E。"
	s := NewDefault()
	first, err := s.Split(text)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := s.Split(text)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSplitMalformedInput(t *testing.T) {
	_, err := NewDefault().Split("valid start \xff\xfe end")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedInput)
	assert.Contains(t, err.Error(), "byte 12")
}

func TestSplitEmpty(t *testing.T) {
	got, err := NewDefault().Split(" \n\t ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCustomConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Abbreviations = []string{"approx"}
	cfg.StructuralBreaks = false

	got, err := New(cfg).Split("Dr. Who arrived. It was approx. noon.\n- not a break")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dr.", "Who arrived.", "It was approx. noon.", "- not a break"}, texts(got))
}

func TestIsBlockStart(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"# Heading", true},
		{"> quote", true},
		{"- item", true},
		{"* item", true},
		{"• item", true},
		{"12. step", true},
		{"3) step", true},
		{"1、第一步", true},
		{"3.14 is pi", false},
		{"-dash", false},
		{"**bold**", false},
		{"plain", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, isBlockStart([]rune(tt.line), 0))
		})
	}
}
