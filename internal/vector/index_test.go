package vector_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timrodz/cards-oracle/internal/vector"
)

func TestParseSimilarity(t *testing.T) {
	for _, s := range []string{"dot_product", "cosine", "euclidean"} {
		got, err := vector.ParseSimilarity(s)
		require.NoError(t, err)
		assert.Equal(t, vector.Similarity(s), got)
	}

	got, err := vector.ParseSimilarity("")
	require.NoError(t, err)
	assert.Equal(t, vector.DotProduct, got)

	_, err = vector.ParseSimilarity("manhattan")
	assert.Error(t, err)
}

func TestSimilarity_Distance(t *testing.T) {
	assert.Equal(t, "dot", vector.DotProduct.Distance())
	assert.Equal(t, "cosine", vector.Cosine.Distance())
	assert.Equal(t, "l2-squared", vector.Euclidean.Distance())
}

func TestSimilarity_Score(t *testing.T) {
	tests := []struct {
		name     string
		sim      vector.Similarity
		distance float64
		want     float64
	}{
		{"CosineIdentical", vector.Cosine, 0, 1},
		{"CosineOpposite", vector.Cosine, 2, 0},
		{"DotUnitIdentical", vector.DotProduct, -1, 1},
		{"DotOrthogonal", vector.DotProduct, 0, 0.5},
		{"EuclideanIdentical", vector.Euclidean, 0, 1},
		{"EuclideanSquaredFour", vector.Euclidean, 4, 1.0 / 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.sim.Score(tt.distance), 1e-9)
		})
	}

	assert.Greater(t, vector.Cosine.Score(0.1), vector.Cosine.Score(0.5))
	assert.Greater(t, vector.DotProduct.Score(-0.9), vector.DotProduct.Score(-0.2))
	assert.Greater(t, vector.Euclidean.Score(0.1), vector.Euclidean.Score(2))
}

func TestIndexDefinition_JSON(t *testing.T) {
	def := vector.NewIndexDefinition("card_embeddings", "embeddings", 384, vector.DotProduct)

	raw, err := json.Marshal(def)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "card_embeddings",
		"type": "vectorSearch",
		"fields": [{"type": "vector", "numDimensions": 384, "path": "embeddings", "similarity": "dot_product"}]
	}`, string(raw))
}

func TestClassName(t *testing.T) {
	assert.Equal(t, "CardEmbeddings", vector.ClassName("card_embeddings"))
	assert.Equal(t, "Cards", vector.ClassName("cards"))
	assert.Equal(t, "MyDocsV2", vector.ClassName("my-docs.v2"))
	assert.Equal(t, "C2024Cards", vector.ClassName("2024_cards"))
}
