package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProcessingConfig() ProcessingConfig {
	return ProcessingConfig{
		SimilarityThreshold:   0.85,
		MaxMergeDistance:      3,
		TargetChunkTokens:     200,
		MaxChunkTokens:        300,
		MinChunkTokens:        50,
		OverlapTokens:         20,
		ContentType:           ContentTypeAuto,
		ContextWindow:         1,
		GenerationRetries:     2,
		GenerationConcurrency: 4,
	}
}

func TestProcessingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ProcessingConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *ProcessingConfig) {}},
		{name: "zero threshold", mutate: func(c *ProcessingConfig) { c.SimilarityThreshold = 0 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *ProcessingConfig) { c.SimilarityThreshold = 1.5 }, wantErr: true},
		{name: "negative merge distance", mutate: func(c *ProcessingConfig) { c.MaxMergeDistance = -1 }, wantErr: true},
		{name: "zero merge distance allowed", mutate: func(c *ProcessingConfig) { c.MaxMergeDistance = 0 }},
		{name: "target above max", mutate: func(c *ProcessingConfig) { c.TargetChunkTokens = 400 }, wantErr: true},
		{name: "min above target", mutate: func(c *ProcessingConfig) { c.MinChunkTokens = 250 }, wantErr: true},
		{name: "missing min", mutate: func(c *ProcessingConfig) { c.MinChunkTokens = 0 }, wantErr: true},
		{name: "min over half of max", mutate: func(c *ProcessingConfig) { c.MinChunkTokens = 160 }, wantErr: true},
		{name: "overlap equal to max", mutate: func(c *ProcessingConfig) { c.OverlapTokens = 300 }, wantErr: true},
		{name: "missing content type", mutate: func(c *ProcessingConfig) { c.ContentType = "" }, wantErr: true},
		{name: "unknown content type", mutate: func(c *ProcessingConfig) { c.ContentType = "poetry" }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *ProcessingConfig) { c.GenerationConcurrency = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validProcessingConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetrievalConfigValidate(t *testing.T) {
	assert.NoError(t, RetrievalConfig{ContextualWeight: 0.7, MatchThreshold: 0.3}.Validate())
	assert.Error(t, RetrievalConfig{ContextualWeight: 1.2, MatchThreshold: 0.3}.Validate())
	assert.Error(t, RetrievalConfig{ContextualWeight: 0.7, MatchThreshold: 1}.Validate())
}

func TestParseContentType(t *testing.T) {
	ct, err := ParseContentType(" Reading_Notes ")
	require.NoError(t, err)
	assert.Equal(t, ContentTypeReadingNotes, ct)
	assert.True(t, ct.IsConcrete())
	assert.False(t, ContentTypeAuto.IsConcrete())

	_, err = ParseContentType("slides")
	assert.ErrorIs(t, err, ErrInvalidContentType)
}

func buildChunks(n int) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{
			ID:            string(rune('a' + i)),
			DocumentID:    "doc",
			Content:       "content",
			StartSentence: i,
			EndSentence:   i,
			TokenCount:    10,
			Embedding:     []float32{1, 0},
		}
	}
	LinkChunks(chunks)
	return chunks
}

func TestLinkChunksAndValidateChunkSet(t *testing.T) {
	chunks := buildChunks(3)

	require.NoError(t, ValidateChunkSet(chunks, 10, 5))
	assert.Nil(t, chunks[0].PrevChunkID)
	assert.Equal(t, "b", *chunks[0].NextChunkID)
	assert.Equal(t, "a", *chunks[1].PrevChunkID)
	assert.Equal(t, "c", *chunks[1].NextChunkID)
	assert.Nil(t, chunks[2].NextChunkID)

	t.Run("token bound", func(t *testing.T) {
		err := ValidateChunkSet(buildChunks(2), 9, 0)
		assert.ErrorIs(t, err, ErrTokenBudgetViolation)
	})

	t.Run("min floor spares the last chunk", func(t *testing.T) {
		short := buildChunks(3)
		short[2].TokenCount = 2
		require.NoError(t, ValidateChunkSet(short, 10, 5))

		short[1].TokenCount = 2
		assert.ErrorIs(t, ValidateChunkSet(short, 10, 5), ErrTokenBudgetViolation)
	})

	t.Run("missing embedding", func(t *testing.T) {
		bare := buildChunks(2)
		bare[1].Embedding = nil
		assert.ErrorIs(t, ValidateChunkSet(bare, 10, 0), ErrMissingEmbedding)
	})

	t.Run("broken link", func(t *testing.T) {
		broken := buildChunks(3)
		other := "z"
		broken[1].NextChunkID = &other
		assert.ErrorIs(t, ValidateChunkSet(broken, 10, 0), ErrBrokenChunkLinks)
	})

	t.Run("gap in order", func(t *testing.T) {
		gap := buildChunks(2)
		gap[1].ChunkOrder = 2
		assert.ErrorIs(t, ValidateChunkSet(gap, 10, 0), ErrInvalidChunkOrder)
	})

	t.Run("cross document", func(t *testing.T) {
		cross := buildChunks(2)
		cross[1].DocumentID = "other"
		assert.ErrorIs(t, ValidateChunkSet(cross, 10, 0), ErrBrokenChunkLinks)
	})
}

func TestChunkTexts(t *testing.T) {
	c := Chunk{Content: "Body.", OverlapPrefix: "tail of previous"}
	assert.Equal(t, "tail of previous\nBody.", c.EmbeddingText())
	assert.Equal(t, "", c.ContextualText())

	c.ChunkContext = StringPtr("Part of the intro.")
	assert.Equal(t, "Part of the intro.\n\nBody.", c.ContextualText())
}

func TestSearchResultExpandedContent(t *testing.T) {
	sr := SearchResult{
		Rank:           1,
		RelevanceScore: 0.8,
		Chunk:          Chunk{Content: "middle"},
		Prev:           &Neighbor{Content: "before"},
		Next:           &Neighbor{Content: "after"},
	}
	require.NoError(t, sr.Validate())
	assert.Equal(t, "before\n\nmiddle\n\nafter", sr.ExpandedContent())
}
