package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/timrodz/cards-oracle/internal/embedding"
)

const DefaultEmbeddingModel = "gemini-embedding-001"

type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
	retrier    *embedding.Retrier
}

func NewEmbedder(ctx context.Context, apiKey, model string, dimensions int, retrier *embedding.Retrier, opts ...option.ClientOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	if retrier == nil {
		retrier = embedding.NewRetrier("gemini", 5, 500*time.Millisecond, 20*time.Second)
	}

	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model, dimensions: dimensions, retrier: retrier}, nil
}

func (e *Embedder) EmbedText(ctx context.Context, text string, normalize bool) ([]float32, error) {
	return embedding.Single(ctx, e, text, normalize)
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	slog.DebugContext(ctx, "embedding content", "model", e.model, "inputs", len(texts))
	em := e.client.EmbeddingModel(e.model)

	var vectors [][]float32
	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		batch := em.NewBatch()
		for _, t := range texts {
			batch.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return classify(err)
		}
		vectors = make([][]float32, 0, len(res.Embeddings))
		for _, emb := range res.Embeddings {
			if emb == nil {
				vectors = append(vectors, nil)
				continue
			}
			vectors = append(vectors, emb.Values)
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(vectors), len(texts))
	}
	return embedding.Finish(vectors, e.dimensions, normalize)
}

func (e *Embedder) Close() error {
	return e.client.Close()
}

// classify maps Google API errors onto the provider status taxonomy.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &embedding.StatusError{Code: apiErr.Code, Message: apiErr.Message}
	}
	return err
}
