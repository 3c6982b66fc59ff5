package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	DispatcherLocal = "local"
	DispatcherNSQ   = "nsq"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"oracle"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"mtg"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	CardsCollection          string `envconfig:"CARDS_COLLECTION" default:"cards"`
	CardEmbeddingsCollection string `envconfig:"CARD_EMBEDDINGS_COLLECTION" default:"card_embeddings"`
	BatchSize                int    `envconfig:"BATCH_SIZE" default:"500"`

	WeaviateHost     string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme   string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	VectorSimilarity string `envconfig:"VECTOR_SIMILARITY" default:"dot_product"`
	SearchLimit      int    `envconfig:"VECTOR_SEARCH_LIMIT" default:"5"`

	// Embeddings
	EmbeddingProvider   string        `envconfig:"EMBEDDING_PROVIDER" default:"ollama"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL_NAME" default:"mixedbread-ai/mxbai-embed-xsmall-v1"`
	OllamaHost          string        `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_MODEL_DIMENSIONS" default:"384"`
	EmbeddingMaxRetries int           `envconfig:"EMBEDDING_MAX_RETRIES" default:"5"`
	EmbeddingBaseDelay  time.Duration `envconfig:"EMBEDDING_BASE_DELAY" default:"500ms"`
	EmbeddingMaxDelay   time.Duration `envconfig:"EMBEDDING_MAX_DELAY" default:"20s"`
	EmbeddingWorkers    int           `envconfig:"EMBEDDINGS_MAX_WORKERS" default:"4"`

	// Generation
	LLMProvider       string `envconfig:"LLM_PROVIDER"`
	LLMModel          string `envconfig:"LLM_MODEL_NAME" default:"mistral"`
	LLMEndpoint       string `envconfig:"LLM_ENDPOINT"`
	LLMAPIKey         string `envconfig:"LLM_API_KEY"`
	LLMTimeoutSeconds int    `envconfig:"LLM_TIMEOUT_SECONDS" default:"120"`
	LLMContextWindow  int    `envconfig:"LLM_CONTEXT_WINDOW" default:"4096"`
	MaxContextChars   int    `envconfig:"RAG_MAX_CONTEXT_CHARS" default:"4000"`
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`

	EnableAPI       bool `envconfig:"ENABLE_API" default:"true"`
	EnableJobWorker bool `envconfig:"ENABLE_JOB_WORKER" default:"true"`

	// Jobs
	JobDispatcher  string `envconfig:"JOB_DISPATCHER" default:"local"`
	JobWorkers     int    `envconfig:"JOB_WORKERS" default:"4"`
	JobMaxAttempts uint16 `envconfig:"JOB_MAX_ATTEMPTS" default:"5"`
	NSQDHost       string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP       string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQLookupd     string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`

	// Server
	ServerPort      int      `envconfig:"SERVER_PORT" default:"8000"`
	CORSOrigins     []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	QueryLogPath    string   `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64    `envconfig:"MAX_UPLOAD_SIZE_MB" default:"256"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win over both files.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.LLMProvider == "" {
		return fmt.Errorf("%w: LLM_PROVIDER", ErrMissingRequired)
	}
	switch c.LLMProvider {
	case "ollama", "zai", "llama_cpp", "gemini":
	default:
		return fmt.Errorf("%w: LLM_PROVIDER=%s", ErrInvalidValue, c.LLMProvider)
	}
	switch c.EmbeddingProvider {
	case "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("%w: EMBEDDING_PROVIDER=%s", ErrInvalidValue, c.EmbeddingProvider)
	}
	switch c.JobDispatcher {
	case DispatcherLocal, DispatcherNSQ:
	default:
		return fmt.Errorf("%w: JOB_DISPATCHER=%s", ErrInvalidValue, c.JobDispatcher)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: BATCH_SIZE must be >= 1", ErrInvalidValue)
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("%w: EMBEDDING_MODEL_DIMENSIONS must be >= 1", ErrInvalidValue)
	}
	if c.EmbeddingWorkers < 1 {
		return fmt.Errorf("%w: EMBEDDINGS_MAX_WORKERS must be >= 1", ErrInvalidValue)
	}
	return nil
}

// DatabaseURL is the lib/pq connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// AllowedOrigins returns the trimmed, non-empty CORS origins.
func (c *Config) AllowedOrigins() []string {
	out := make([]string, 0, len(c.CORSOrigins))
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
