// Package merger groups adjacent sentences into spans by embedding similarity.
//
// The scan is greedy and forward only. Each candidate sentence is compared
// with the centroid (mean vector) of the span being built, not with the last
// sentence added, so a long run of weakly related sentences cannot chain
// together through pairwise similarity alone.
package merger

import (
	"errors"
	"fmt"
	"math"

	"github.com/dshills/contextchunk-mcp/pkg/types"
)

var (
	ErrLengthMismatch    = errors.New("sentence and embedding counts differ")
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
	ErrInvalidParams     = errors.New("invalid merge parameters")
)

// Boundary is a strategy hint for the gap before a sentence
type Boundary int

const (
	// BoundaryAuto lets similarity decide
	BoundaryAuto Boundary = iota
	// BoundaryBreak always starts a new span at the sentence
	BoundaryBreak
	// BoundaryJoin joins the sentence to the open span regardless of
	// similarity, still bounded by MaxMergeDistance
	BoundaryJoin
)

func (b Boundary) String() string {
	switch b {
	case BoundaryBreak:
		return "break"
	case BoundaryJoin:
		return "join"
	default:
		return "auto"
	}
}

// Params controls one merge pass
type Params struct {
	Threshold        float64 // inclusive: similarity >= Threshold merges
	MaxMergeDistance int     // sentences a span may absorb beyond its first
	Boundaries       []Boundary
}

// Span is an inclusive range of sentence indexes
type Span struct {
	Start int
	End   int
}

// Len returns the number of sentences in the span
func (s Span) Len() int {
	return s.End - s.Start + 1
}

// Merge returns contiguous spans covering every sentence in order.
// Boundaries, when set, holds one hint per sentence; the hint of the first
// sentence is ignored.
func Merge(sentences []types.Sentence, embeddings [][]float32, params Params) ([]Span, error) {
	if len(sentences) != len(embeddings) {
		return nil, fmt.Errorf("%w: %d sentences, %d embeddings", ErrLengthMismatch, len(sentences), len(embeddings))
	}
	if params.Boundaries != nil && len(params.Boundaries) != len(sentences) {
		return nil, fmt.Errorf("%w: %d boundary hints for %d sentences", ErrLengthMismatch, len(params.Boundaries), len(sentences))
	}
	if params.MaxMergeDistance < 0 || math.IsNaN(params.Threshold) {
		return nil, fmt.Errorf("%w: threshold %v, max distance %d", ErrInvalidParams, params.Threshold, params.MaxMergeDistance)
	}
	if len(sentences) == 0 {
		return nil, nil
	}

	dim := len(embeddings[0])
	for i, e := range embeddings {
		if len(e) != dim || dim == 0 {
			return nil, fmt.Errorf("%w: sentence %d has %d, want %d", ErrDimensionMismatch, i, len(e), dim)
		}
	}

	var spans []Span
	current := Span{Start: 0, End: 0}
	sum := make([]float64, dim)
	addTo(sum, embeddings[0])

	for i := 1; i < len(sentences); i++ {
		if joins(params, i, current, sum, embeddings[i]) {
			current.End = i
			addTo(sum, embeddings[i])
			continue
		}
		spans = append(spans, current)
		current = Span{Start: i, End: i}
		for k := range sum {
			sum[k] = 0
		}
		addTo(sum, embeddings[i])
	}
	return append(spans, current), nil
}

func joins(params Params, i int, current Span, sum []float64, next []float32) bool {
	if current.Len()-1 >= params.MaxMergeDistance {
		return false
	}
	hint := BoundaryAuto
	if params.Boundaries != nil {
		hint = params.Boundaries[i]
	}
	switch hint {
	case BoundaryBreak:
		return false
	case BoundaryJoin:
		return true
	}
	// The sum points the same way as the mean
	return cosine(sum, next) >= params.Threshold
}

func addTo(sum []float64, v []float32) {
	for k, x := range v {
		sum[k] += float64(x)
	}
}

func cosine(a []float64, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		bi := float64(b[i])
		dot += a[i] * bi
		na += a[i] * a[i]
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
