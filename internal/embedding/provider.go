// Package embedding defines the embedding provider contract shared by the
// local and remote adapters, with vector post-processing and retry policy.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// Provider turns text into fixed-length vectors.
type Provider interface {
	EmbedText(ctx context.Context, text string, normalize bool) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string, normalize bool) ([][]float32, error)
}

// Kind is the closed set of configured provider variants.
type Kind string

const (
	KindOllama Kind = "ollama"
	KindOpenAI Kind = "openai"
	KindGemini Kind = "gemini"
)

// ParseKind resolves a configuration value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindOllama, KindOpenAI, KindGemini:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported embedding provider: %s", s)
	}
}

// Remote reports whether the provider calls an external API. Remote
// providers are executed sequentially to bound rate limit exposure.
func (k Kind) Remote() bool {
	return k == KindOpenAI || k == KindGemini
}

// Factory builds a new, independent provider instance.
type Factory func() (Provider, error)

// Normalize scales v to unit L2 norm. A zero vector is returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Finish validates dimensionality and then optionally normalizes. The
// dimension check runs first so a mismatched vector is never normalized.
func Finish(vectors [][]float32, dims int, normalize bool) ([][]float32, error) {
	for _, v := range vectors {
		if dims > 0 && len(v) != dims {
			return nil, &DimensionMismatchError{Expected: dims, Got: len(v)}
		}
	}
	if !normalize {
		return vectors, nil
	}
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = Normalize(v)
	}
	return out, nil
}

// Single adapts a batch call into a single text call.
func Single(ctx context.Context, p Provider, text string, normalize bool) ([]float32, error) {
	vectors, err := p.EmbedTexts(ctx, []string{text}, normalize)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}
