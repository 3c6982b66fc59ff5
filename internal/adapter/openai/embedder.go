package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/timrodz/cards-oracle/internal/embedding"
)

const defaultEndpoint = "https://api.openai.com/v1"

type Config struct {
	APIKey     string
	Model      string
	Dimensions int
	Endpoint   string
	Timeout    time.Duration
	Retrier    *embedding.Retrier
}

// Embedder calls an OpenAI compatible /embeddings endpoint.
type Embedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	client     *http.Client
	retrier    *embedding.Retrier
	logger     *slog.Logger
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required for EMBEDDING_PROVIDER=openai")
	}
	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultEndpoint
	}
	retrier := cfg.Retrier
	if retrier == nil {
		retrier = embedding.NewRetrier("openai", 5, 500*time.Millisecond, 20*time.Second)
	}
	return &Embedder{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: cfg.Timeout},
		retrier:    retrier,
		logger:     slog.Default().With("component", "openai-embedder"),
	}, nil
}

func (e *Embedder) EmbedText(ctx context.Context, text string, normalize bool) ([]float32, error) {
	return embedding.Single(ctx, e, text, normalize)
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var vectors [][]float32
	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = e.create(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(vectors), len(texts))
	}
	return embedding.Finish(vectors, e.dimensions, normalize)
}

type embeddingsRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *Embedder) create(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{
		Model:          e.model,
		Input:          texts,
		Dimensions:     e.dimensions,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &embedding.StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var result embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}

	// Batch responses are not guaranteed to preserve input order.
	sort.SliceStable(result.Data, func(i, j int) bool {
		return result.Data[i].Index < result.Data[j].Index
	})
	vectors := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vectors[i] = d.Embedding
	}

	e.logger.DebugContext(ctx, "embeddings created", "model", e.model, "inputs", len(texts), "duration_ms", time.Since(start).Milliseconds())
	return vectors, nil
}
