// Package ollama provides the local embedding provider, served by an Ollama
// runtime on the same host.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/timrodz/cards-oracle/internal/embedding"
)

type modelKey struct {
	name string
	host string
}

// Loader caches model handles so each (name, host) pair is loaded at most
// once per loader. Executors create one loader per worker.
type Loader struct {
	mu       sync.Mutex
	models   map[modelKey]embeddings.Embedder
	newModel func(name, host string) (embeddings.Embedder, error)
}

func NewLoader() *Loader {
	return &Loader{
		models:   make(map[modelKey]embeddings.Embedder),
		newModel: loadModel,
	}
}

func (l *Loader) Load(name, host string) (embeddings.Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := modelKey{name: name, host: host}
	if m, ok := l.models[key]; ok {
		return m, nil
	}

	slog.Info("loading embedding model", "model", name, "host", host)
	m, err := l.newModel(name, host)
	if err != nil {
		return nil, err
	}
	l.models[key] = m
	return m, nil
}

func loadModel(name, host string) (embeddings.Embedder, error) {
	opts := []ollama.Option{ollama.WithModel(name)}
	if host != "" {
		opts = append(opts, ollama.WithServerURL(host))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	model, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}
	return model, nil
}

// Embedder is the local embedding provider.
type Embedder struct {
	model      embeddings.Embedder
	name       string
	dimensions int
}

func NewEmbedder(loader *Loader, name, host string, dimensions int) (*Embedder, error) {
	model, err := loader.Load(name, host)
	if err != nil {
		return nil, err
	}
	return &Embedder{model: model, name: name, dimensions: dimensions}, nil
}

func (e *Embedder) EmbedText(ctx context.Context, text string, normalize bool) ([]float32, error) {
	return embedding.Single(ctx, e, text, normalize)
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err != nil {
		slog.WarnContext(ctx, "embedding failed", "model", e.name, "inputs", len(texts), "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(vectors), len(texts))
	}
	return embedding.Finish(vectors, e.dimensions, normalize)
}
