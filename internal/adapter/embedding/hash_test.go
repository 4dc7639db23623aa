package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
)

func TestHashEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "Photosynthesis converts light energy into chemical energy")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "Photosynthesis converts light energy into chemical energy")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 64)

	var norm float64
	for _, v := range v1 {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashEmbedder_SharedVocabularyIsCloser(t *testing.T) {
	e := NewHashEmbedder(DefaultHashDimension)
	ctx := context.Background()

	q, err := e.Embed(ctx, "mitochondria energy cell")
	require.NoError(t, err)
	near, err := e.Embed(ctx, "the mitochondria produces energy for the cell")
	require.NoError(t, err)
	far, err := e.Embed(ctx, "the french revolution began in 1789")
	require.NoError(t, err)

	assert.Greater(t, dot(q, near), dot(q, far))
}

func TestHashEmbedder_NoTokens(t *testing.T) {
	e := NewHashEmbedder(32)
	_, err := e.Embed(context.Background(), "the a of !!")
	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
	assert.Equal(t, "hash-32", e.ModelName())
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.Embed(context.Background(), "text")
	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
	assert.Equal(t, 0, Unavailable{}.Dimension())
}

func TestNewOpenAICompatibleEmbedder_MissingKey(t *testing.T) {
	t.Setenv("STUDYRAG_TEST_MISSING_KEY", "")
	_, err := NewOpenAICompatibleEmbedder("STUDYRAG_TEST_MISSING_KEY", "text-embedding-3-small", "", 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestNewOpenAICompatibleEmbedder_Dimension(t *testing.T) {
	t.Setenv("STUDYRAG_TEST_KEY", "sk-test")
	e, err := NewOpenAICompatibleEmbedder("STUDYRAG_TEST_KEY", "text-embedding-3-large", "http://localhost:1/v1", 0)
	require.NoError(t, err)
	assert.Equal(t, 3072, e.Dimension())

	e, err = NewOpenAICompatibleEmbedder("STUDYRAG_TEST_KEY", "custom-model", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, e.Dimension())

	e, err = NewOpenAICompatibleEmbedder("STUDYRAG_TEST_KEY", "custom-model", "", 256)
	require.NoError(t, err)
	assert.Equal(t, 256, e.Dimension())

	assert.Equal(t, 768, NewOllamaEmbedder("nomic-embed-text", "", 0).Dimension())
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
