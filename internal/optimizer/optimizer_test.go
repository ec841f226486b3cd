package optimizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contextchunk-mcp/internal/merger"
	"github.com/dshills/contextchunk-mcp/internal/splitter"
	"github.com/dshills/contextchunk-mcp/internal/tokenizer"
	"github.com/dshills/contextchunk-mcp/pkg/types"
)

// wordCounter counts whitespace-separated words
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }
func (wordCounter) Name() string          { return "words" }

// constCounter reports the same count for any text
type constCounter int

func (c constCounter) Count(string) int { return int(c) }
func (constCounter) Name() string       { return "const" }

func split(t *testing.T, text string) []types.Sentence {
	sentences, err := splitter.NewDefault().Split(text)
	require.NoError(t, err)
	return sentences
}

func oneSpan(sentences []types.Sentence) []merger.Span {
	return []merger.Span{{Start: 0, End: len(sentences) - 1}}
}

func singleSpans(sentences []types.Sentence) []merger.Span {
	spans := make([]merger.Span, len(sentences))
	for i := range sentences {
		spans[i] = merger.Span{Start: i, End: i}
	}
	return spans
}

func contents(parts []Part) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.Content
	}
	return out
}

func newOptimizer(t *testing.T, counter tokenizer.Counter, params Params) *Optimizer {
	o, err := New(counter, params)
	require.NoError(t, err)
	return o
}

func assertBudget(t *testing.T, parts []Part, params Params) {
	t.Helper()
	for i, p := range parts {
		assert.LessOrEqual(t, p.TokenCount, params.Max, "part %d over max", i)
		if i < len(parts)-1 {
			assert.GreaterOrEqual(t, p.TokenCount, params.Min, "part %d under min", i)
		}
	}
}

func TestOptimize_FittingSpansUnchanged(t *testing.T) {
	doc := "One two three. Four five six.  Seven eight nine."
	sentences := split(t, doc)
	spans := []merger.Span{{Start: 0, End: 1}, {Start: 2, End: 2}}

	params := Params{Target: 5, Max: 8, Min: 2, Overlap: 2}
	parts, err := newOptimizer(t, wordCounter{}, params).Optimize(doc, sentences, spans)
	require.NoError(t, err)

	assert.Equal(t, []string{"One two three. Four five six.", "Seven eight nine."}, contents(parts))
	assert.Equal(t, 6, parts[0].TokenCount)
	assert.Equal(t, 0, parts[0].StartSentence)
	assert.Equal(t, 1, parts[0].EndSentence)
	assert.Equal(t, 2, parts[1].StartSentence)
	assert.Equal(t, 31, parts[1].StartChar)

	// Span boundaries chosen by the merger carry no overlap
	assert.Empty(t, parts[1].OverlapPrefix)
	assert.False(t, parts[1].Continued)
}

func TestOptimize_SplitsAtSentenceNearestTarget(t *testing.T) {
	doc := "A1 a2 a3. B1 b2 b3. C1 c2 c3. D1 d2 d3. E1 e2 e3."
	sentences := split(t, doc)
	require.Len(t, sentences, 5)

	params := Params{Target: 6, Max: 8, Min: 2, Overlap: 2}
	parts, err := newOptimizer(t, wordCounter{}, params).Optimize(doc, sentences, oneSpan(sentences))
	require.NoError(t, err)

	assert.Equal(t, []string{"A1 a2 a3. B1 b2 b3.", "C1 c2 c3. D1 d2 d3.", "E1 e2 e3."}, contents(parts))
	assert.Equal(t, "b2 b3.", parts[1].OverlapPrefix)
	assert.Equal(t, "d2 d3.", parts[2].OverlapPrefix)
	assert.True(t, parts[1].Continued)
	assert.Equal(t, 3, parts[2].TokenCount, "overlap is not counted")
	assert.Equal(t, 4, parts[2].StartSentence)
	assertBudget(t, parts, params)
}

func TestOptimize_CutsLongSentenceBetweenWords(t *testing.T) {
	words := make([]string, 20)
	for i := range words {
		words[i] = "word"
	}
	doc := strings.Join(words, " ")
	sentences := split(t, doc)
	require.Len(t, sentences, 1)

	params := Params{Target: 5, Max: 8, Min: 3, Overlap: 0}
	parts, err := newOptimizer(t, wordCounter{}, params).Optimize(doc, sentences, oneSpan(sentences))
	require.NoError(t, err)

	require.Len(t, parts, 4)
	for _, p := range parts {
		assert.Equal(t, 5, p.TokenCount)
		assert.Equal(t, 0, p.StartSentence)
		assert.Equal(t, 0, p.EndSentence)
		assert.Empty(t, p.OverlapPrefix)
	}
	assert.Equal(t, doc, strings.Join(contents(parts), " "))
}

func TestOptimize_CutsCJKBetweenRunes(t *testing.T) {
	doc := "这是一个非常长的中文句子没有任何标点符号所以必须在字之间切开"
	sentences := split(t, doc)
	require.Len(t, sentences, 1)

	params := Params{Target: 8, Max: 10, Min: 4, Overlap: 2}
	parts, err := newOptimizer(t, tokenizer.NewEstimator(), params).Optimize(doc, sentences, oneSpan(sentences))
	require.NoError(t, err)

	require.Greater(t, len(parts), 1)
	assertBudget(t, parts, params)
	assert.Equal(t, doc, strings.Join(contents(parts), ""))
	for i := 1; i < len(parts); i++ {
		assert.Equal(t, 2, len([]rune(parts[i].OverlapPrefix)))
		assert.True(t, strings.HasSuffix(parts[i-1].Content, parts[i].OverlapPrefix))
	}
}

func TestOptimize_MergesUndersizedForward(t *testing.T) {
	doc := "Short. This one has six words here. Tail end."
	sentences := split(t, doc)
	require.Len(t, sentences, 3)

	params := Params{Target: 6, Max: 10, Min: 3, Overlap: 2}
	parts, err := newOptimizer(t, wordCounter{}, params).Optimize(doc, sentences, singleSpans(sentences))
	require.NoError(t, err)

	// The floor wins over the merger's decision; the last part may stay small
	assert.Equal(t, []string{"Short. This one has six words here.", "Tail end."}, contents(parts))
	assert.Equal(t, 0, parts[0].StartSentence)
	assert.Equal(t, 1, parts[0].EndSentence)
	assert.Empty(t, parts[1].OverlapPrefix)
}

func TestOptimize_OverflowingFloorMergeIsRecut(t *testing.T) {
	doc := "Tiny one. Alpha beta gamma delta. Epsilon zeta eta theta."
	sentences := split(t, doc)
	require.Len(t, sentences, 3)
	spans := []merger.Span{{Start: 0, End: 0}, {Start: 1, End: 2}}

	params := Params{Target: 5, Max: 8, Min: 3, Overlap: 1}
	parts, err := newOptimizer(t, wordCounter{}, params).Optimize(doc, sentences, spans)
	require.NoError(t, err)

	assert.Equal(t, []string{"Tiny one. Alpha beta gamma delta.", "Epsilon zeta eta theta."}, contents(parts))
	assert.True(t, parts[1].Continued)
	assert.Equal(t, "delta.", parts[1].OverlapPrefix)
	assertBudget(t, parts, params)
}

func TestOptimize_BudgetProperty(t *testing.T) {
	doc := `# Guide

Install the tool first. Then configure it carefully, because the defaults are conservative and may not suit large deployments at all.
这是第一句。这是第二句，稍微长一点。第三句话非常非常长，用来测试切分逻辑是否能够正确处理没有空格的中文文本内容。
Il a dit : « Je pars. » Puis il est parti sans rien dire à personne.`
	sentences := split(t, doc)

	params := Params{Target: 12, Max: 16, Min: 6, Overlap: 3}
	o := newOptimizer(t, tokenizer.NewEstimator(), params)

	for name, spans := range map[string][]merger.Span{
		"one span":     oneSpan(sentences),
		"single spans": singleSpans(sentences),
	} {
		t.Run(name, func(t *testing.T) {
			parts, err := o.Optimize(doc, sentences, spans)
			require.NoError(t, err)
			assertBudget(t, parts, params)

			runes := []rune(doc)
			prevEnd := 0
			for i, p := range parts {
				assert.Equal(t, string(runes[p.StartChar:p.EndChar]), p.Content)
				assert.GreaterOrEqual(t, p.StartChar, prevEnd)
				assert.Empty(t, strings.TrimSpace(string(runes[prevEnd:p.StartChar])), "gap before part %d", i)
				assert.LessOrEqual(t, p.StartSentence, p.EndSentence)
				prevEnd = p.EndChar
			}
			assert.Equal(t, len(strings.TrimRight(doc, " \n")), len(string(runes[:prevEnd])))
		})
	}
}

func TestOptimize_Deterministic(t *testing.T) {
	doc := "Alpha beta. Gamma delta epsilon. Zeta eta theta iota kappa. Lambda."
	sentences := split(t, doc)
	o := newOptimizer(t, wordCounter{}, Params{Target: 4, Max: 5, Min: 2, Overlap: 1})

	first, err := o.Optimize(doc, sentences, oneSpan(sentences))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := o.Optimize(doc, sentences, oneSpan(sentences))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestOptimize_FloorHoldsOnTightBudget(t *testing.T) {
	doc := "Yes. Two three four five. Fine. Seven eight nine ten. End."
	sentences := split(t, doc)
	require.Len(t, sentences, 5)

	params := Params{Target: 4, Max: 4, Min: 2}
	o := newOptimizer(t, wordCounter{}, params)
	parts, err := o.Optimize(doc, sentences, singleSpans(sentences))
	require.NoError(t, err)

	assertBudget(t, parts, params)
	assert.Equal(t, []string{"Yes. Two", "three four five.", "Fine. Seven", "eight nine ten.", "End."}, contents(parts))
}

func TestOptimize_BudgetViolation(t *testing.T) {
	doc := "Impossible to fit. Whatever happens."
	sentences := split(t, doc)

	o := newOptimizer(t, constCounter(100), Params{Target: 5, Max: 10, Min: 1, Overlap: 0})
	_, err := o.Optimize(doc, sentences, oneSpan(sentences))
	assert.ErrorIs(t, err, ErrTokenBudgetViolation)
	assert.ErrorIs(t, err, types.ErrTokenBudgetViolation)
}

func TestOptimize_InvalidSpans(t *testing.T) {
	doc := "One. Two. Three."
	sentences := split(t, doc)
	o := newOptimizer(t, wordCounter{}, Params{Target: 5, Max: 10, Min: 1})

	tests := []struct {
		name  string
		spans []merger.Span
	}{
		{"gap", []merger.Span{{Start: 0, End: 0}, {Start: 2, End: 2}}},
		{"short", []merger.Span{{Start: 0, End: 1}}},
		{"overlap", []merger.Span{{Start: 0, End: 1}, {Start: 1, End: 2}}},
		{"out of range", []merger.Span{{Start: 0, End: 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Optimize(doc, sentences, tt.spans)
			assert.ErrorIs(t, err, ErrInvalidSpans)
		})
	}

	parts, err := o.Optimize("", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		valid  bool
	}{
		{"valid", Params{Target: 5, Max: 10, Min: 2, Overlap: 1}, true},
		{"target over max", Params{Target: 11, Max: 10, Min: 2}, false},
		{"min over target", Params{Target: 5, Max: 10, Min: 6}, false},
		{"zero min", Params{Target: 5, Max: 10, Min: 0}, false},
		{"min equals max", Params{Target: 5, Max: 5, Min: 5}, false},
		{"min over half max", Params{Target: 6, Max: 10, Min: 6}, false},
		{"overlap at max", Params{Target: 5, Max: 10, Min: 2, Overlap: 10}, false},
		{"negative overlap", Params{Target: 5, Max: 10, Min: 2, Overlap: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidParams)
			}
		})
	}

	_, err := New(nil, Params{Target: 5, Max: 10, Min: 2})
	assert.Error(t, err)
}
