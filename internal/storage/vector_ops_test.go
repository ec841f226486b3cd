package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/contextchunk-mcp/pkg/types"
)

func TestSerializeVector(t *testing.T) {
	vector := []float32{0, -1.5, 3.25, math.MaxFloat32, math.SmallestNonzeroFloat32}
	blob := serializeVector(vector)
	assert.Len(t, blob, len(vector)*4)
	assert.Equal(t, vector, deserializeVector(blob))

	assert.Nil(t, deserializeVector(nil))
	assert.Empty(t, serializeVector(nil))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "scaled", a: []float32{1, 2, 3}, b: []float32{2, 4, 6}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "length mismatch", a: []float32{1, 0}, b: []float32{1, 0, 0}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestApplyChunkFilters(t *testing.T) {
	base := "SELECT id FROM chunks c WHERE 1=1"

	query, args := applyChunkFilters(base, nil, nil)
	assert.Equal(t, base, query)
	assert.Empty(t, args)

	query, args = applyChunkFilters(base, nil, &ChunkFilters{
		DocumentIDs:  []string{"a", "b"},
		ContentTypes: []types.ContentType{types.ContentTypeArticle},
	})
	assert.Equal(t, base+" AND c.document_id IN (?,?) AND c.content_type IN (?)", query)
	assert.Equal(t, []interface{}{"a", "b", "article"}, args)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}
