// Package langchain adapts langchaingo chat models to the retrieval
// Generator interface. It serves the ollama, zai and llama_cpp providers.
package langchain

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOllama   = "ollama"
	ProviderZai      = "zai"
	ProviderLlamaCpp = "llama_cpp"

	DefaultZaiEndpoint      = "https://api.z.ai/api/paas/v4"
	DefaultLlamaCppEndpoint = "http://localhost:8081/v1"

	MinLlamaCppContextWindow = 512
)

type Config struct {
	Provider      string
	Model         string
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	ContextWindow int
}

// Generator sends a single user message per call.
type Generator struct {
	llm      llms.Model
	provider string
}

func New(cfg Config) (*Generator, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case ProviderOllama:
		opts := []ollama.Option{
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(httpClient),
		}
		if cfg.Endpoint != "" {
			opts = append(opts, ollama.WithServerURL(cfg.Endpoint))
		}
		if cfg.ContextWindow > 0 {
			opts = append(opts, ollama.WithRunnerNumCtx(cfg.ContextWindow))
		}
		llm, err = ollama.New(opts...)

	case ProviderZai:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("LLM_API_KEY is required for LLM_PROVIDER=zai")
		}
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = DefaultZaiEndpoint
		}
		llm, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(endpoint),
			openai.WithHTTPClient(httpClient),
		)

	case ProviderLlamaCpp:
		// Talks to a llama.cpp server over its OpenAI-compatible API, not in-process.
		if cfg.ContextWindow < MinLlamaCppContextWindow {
			return nil, fmt.Errorf("LLM_CONTEXT_WINDOW must be >= %d for LLM_PROVIDER=llama_cpp", MinLlamaCppContextWindow)
		}
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = DefaultLlamaCppEndpoint
		}
		token := cfg.APIKey
		if token == "" {
			token = "none"
		}
		llm, err = openai.New(
			openai.WithToken(token),
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(endpoint),
			openai.WithHTTPClient(httpClient),
		)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", cfg.Provider, err)
	}

	return NewWithModel(cfg.Provider, llm), nil
}

// NewWithModel wraps an already constructed langchaingo model.
func NewWithModel(provider string, llm llms.Model) *Generator {
	return &Generator{llm: llm, provider: provider}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.llm.GenerateContent(ctx, userMessage(prompt))
	if err != nil {
		return "", fmt.Errorf("%s generate failed: %w", g.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Content, nil
}

func (g *Generator) Stream(ctx context.Context, prompt string, onChunk func(string) error) error {
	chunks := 0
	_, err := g.llm.GenerateContent(ctx, userMessage(prompt),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			chunks++
			return onChunk(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("%s chat stream failed: %w", g.provider, err)
	}
	slog.DebugContext(ctx, "chat stream finished", "provider", g.provider, "chunks", chunks)
	return nil
}

func userMessage(prompt string) []llms.MessageContent {
	return []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
}
