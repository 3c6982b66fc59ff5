// Package retrieval answers questions about cards from the nearest embedded
// chunks and a language model.
package retrieval

import (
	"context"
)

// SearchResult is one retrieved chunk, ordered by descending score.
type SearchResult struct {
	SourceID string  `json:"source_id"`
	Summary  string  `json:"summary"`
	Score    float64 `json:"score"`
}

type SearchResponse struct {
	Answer   string  `json:"answer"`
	SourceID *string `json:"source_id,omitempty"`
}

// Embedder embeds the question.
type Embedder interface {
	EmbedText(ctx context.Context, text string, normalize bool) ([]float32, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error)
}

// Generator produces text from a prompt, either in one piece or streamed.
// Stream stops and returns the callback's error when onChunk fails.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string, onChunk func(string) error) error
}
