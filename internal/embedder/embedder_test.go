package embedder

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest(t *testing.T) {
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{Text: ""}), ErrEmptyText)
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "hello"}))
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		wantErr error
	}{
		{"valid", []string{"a", "b"}, nil},
		{"empty batch", nil, ErrInvalidInput},
		{"empty text", []string{"a", ""}, ErrInvalidInput},
		{"too large", make([]string, MaxBatchSize+1), ErrBatchTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(BatchEmbeddingRequest{Texts: tt.texts})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateResponse(t *testing.T) {
	good := []*Embedding{{Vector: []float32{1, 0}}, {Vector: []float32{0, 1}}}
	assert.NoError(t, validateResponse(good, 2, 2))
	assert.NoError(t, validateResponse(good, 2, 0))

	assert.ErrorIs(t, validateResponse(good, 3, 2), ErrProviderFailed)
	assert.ErrorIs(t, validateResponse(good, 2, 3), ErrProviderFailed)
	assert.ErrorIs(t, validateResponse([]*Embedding{{}}, 1, 0), ErrProviderFailed)
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p := mustNewLocalProvider(t)

	t.Run("metadata", func(t *testing.T) {
		assert.Equal(t, ProviderLocal, p.Provider())
		assert.Equal(t, LocalDimension, p.Dimension())
		assert.Equal(t, DefaultLocalModel, p.Model())
		assert.NoError(t, p.Close())
	})

	t.Run("deterministic and normalized", func(t *testing.T) {
		a, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "The cache stores vectors."})
		require.NoError(t, err)
		b, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "The cache stores vectors."})
		require.NoError(t, err)

		assert.Equal(t, a.Vector, b.Vector)
		assert.Len(t, a.Vector, LocalDimension)
		assert.InDelta(t, 1.0, cosine(a.Vector, a.Vector), 1e-6)
	})

	t.Run("shared vocabulary scores higher", func(t *testing.T) {
		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{
			"sentence embeddings for retrieval",
			"retrieval with sentence embeddings",
			"the weather in Paris is mild",
		}})
		require.NoError(t, err)
		v := resp.Vectors()
		assert.Greater(t, cosine(v[0], v[1]), cosine(v[0], v[2]))
	})

	t.Run("chinese bigrams", func(t *testing.T) {
		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{
			"向量检索系统", "检索系统设计", "今天下雨了",
		}})
		require.NoError(t, err)
		v := resp.Vectors()
		assert.Greater(t, cosine(v[0], v[1]), cosine(v[0], v[2]))
	})

	t.Run("punctuation only", func(t *testing.T) {
		e, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "..."})
		require.NoError(t, err)
		assert.NotEqual(t, make([]float32, LocalDimension), e.Vector)
	})

	t.Run("custom dimension", func(t *testing.T) {
		small, err := NewLocalProvider(8)
		require.NoError(t, err)
		e, err := small.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)
		assert.Len(t, e.Vector, 8)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.GenerateBatch(cctx, BatchEmbeddingRequest{Texts: []string{"a"}})
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func mustNewLocalProvider(t *testing.T) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider(0)
	require.NoError(t, err)
	return p
}
