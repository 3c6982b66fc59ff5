package embedding_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timrodz/cards-oracle/internal/embedding"
)

func TestNormalize(t *testing.T) {
	got := embedding.Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	var norm float64
	for _, x := range got {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestNormalize_ZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	assert.Equal(t, zero, embedding.Normalize(zero))
}

func TestFinish(t *testing.T) {
	t.Run("dimension mismatch before normalization", func(t *testing.T) {
		_, err := embedding.Finish([][]float32{{1, 2, 3}}, 2, true)
		require.ErrorIs(t, err, embedding.ErrDimensionMismatch)

		var dimErr *embedding.DimensionMismatchError
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 2, dimErr.Expected)
		assert.Equal(t, 3, dimErr.Got)
	})

	t.Run("normalizes when requested", func(t *testing.T) {
		out, err := embedding.Finish([][]float32{{0, 5}}, 2, true)
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{0, 1}}, out)
	})

	t.Run("leaves vectors untouched otherwise", func(t *testing.T) {
		in := [][]float32{{0, 5}}
		out, err := embedding.Finish(in, 2, false)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}

func TestParseKind(t *testing.T) {
	k, err := embedding.ParseKind("ollama")
	require.NoError(t, err)
	assert.False(t, k.Remote())

	k, err = embedding.ParseKind("openai")
	require.NoError(t, err)
	assert.True(t, k.Remote())

	k, err = embedding.ParseKind("gemini")
	require.NoError(t, err)
	assert.True(t, k.Remote())

	_, err = embedding.ParseKind("sentence_transformers")
	assert.Error(t, err)
}

type staticProvider struct {
	vectors [][]float32
}

func (p staticProvider) EmbedText(ctx context.Context, text string, normalize bool) ([]float32, error) {
	return embedding.Single(ctx, p, text, normalize)
}

func (p staticProvider) EmbedTexts(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	return p.vectors, nil
}

func TestSingle(t *testing.T) {
	v, err := embedding.Single(context.Background(), staticProvider{vectors: [][]float32{{1, 2}}}, "x", false)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v)

	_, err = embedding.Single(context.Background(), staticProvider{}, "x", false)
	assert.Error(t, err)
}
