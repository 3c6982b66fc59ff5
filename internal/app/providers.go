package app

import (
	"context"
	"fmt"
	"io"

	"github.com/timrodz/cards-oracle/internal/adapter/gemini"
	"github.com/timrodz/cards-oracle/internal/adapter/langchain"
	"github.com/timrodz/cards-oracle/internal/adapter/ollama"
	"github.com/timrodz/cards-oracle/internal/adapter/openai"
	"github.com/timrodz/cards-oracle/internal/config"
	"github.com/timrodz/cards-oracle/internal/embedding"
	"github.com/timrodz/cards-oracle/internal/retrieval"
)

// Providers are the model backends the application runs against.
type Providers struct {
	Kind      embedding.Kind
	Factory   embedding.Factory
	Generator retrieval.Generator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewProviders builds the configured embedding factory and generator. The
// returned closer releases the generator's client.
func NewProviders(ctx context.Context, cfg *config.Config) (Providers, io.Closer, error) {
	kind, err := embedding.ParseKind(cfg.EmbeddingProvider)
	if err != nil {
		return Providers{}, nil, err
	}

	gen, closer, err := newGenerator(ctx, cfg)
	if err != nil {
		return Providers{}, nil, err
	}

	return Providers{
		Kind:      kind,
		Factory:   EmbeddingFactory(ctx, kind, cfg),
		Generator: gen,
	}, closer, nil
}

// EmbeddingFactory returns a factory building an independent provider per
// call.
func EmbeddingFactory(ctx context.Context, kind embedding.Kind, cfg *config.Config) embedding.Factory {
	retrier := func() *embedding.Retrier {
		return embedding.NewRetrier(string(kind), cfg.EmbeddingMaxRetries, cfg.EmbeddingBaseDelay, cfg.EmbeddingMaxDelay)
	}

	switch kind {
	case embedding.KindOpenAI:
		return func() (embedding.Provider, error) {
			return openai.NewEmbedder(openai.Config{
				APIKey:     cfg.LLMAPIKey,
				Model:      cfg.EmbeddingModel,
				Dimensions: cfg.EmbeddingDimensions,
				Endpoint:   cfg.LLMEndpoint,
				Timeout:    cfg.LLMTimeout(),
				Retrier:    retrier(),
			})
		}
	case embedding.KindGemini:
		return func() (embedding.Provider, error) {
			return gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions, retrier())
		}
	default:
		return func() (embedding.Provider, error) {
			return ollama.NewEmbedder(ollama.NewLoader(), cfg.EmbeddingModel, cfg.OllamaHost, cfg.EmbeddingDimensions)
		}
	}
}

func newGenerator(ctx context.Context, cfg *config.Config) (retrieval.Generator, io.Closer, error) {
	if cfg.LLMProvider == "gemini" {
		key := cfg.GeminiAPIKey
		if key == "" {
			key = cfg.LLMAPIKey
		}
		g, err := gemini.NewGenerator(ctx, key, cfg.LLMModel)
		if err != nil {
			return nil, nil, fmt.Errorf("create gemini generator: %w", err)
		}
		return g, g, nil
	}

	endpoint := cfg.LLMEndpoint
	if endpoint == "" && cfg.LLMProvider == langchain.ProviderOllama {
		endpoint = cfg.OllamaHost
	}
	g, err := langchain.New(langchain.Config{
		Provider:      cfg.LLMProvider,
		Model:         cfg.LLMModel,
		Endpoint:      endpoint,
		APIKey:        cfg.LLMAPIKey,
		Timeout:       cfg.LLMTimeout(),
		ContextWindow: cfg.LLMContextWindow,
	})
	if err != nil {
		return nil, nil, err
	}
	return g, nopCloser{}, nil
}
