package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timrodz/cards-oracle/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("DB_HOST", "test-host")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "cards", cfg.CardsCollection)
	assert.Equal(t, "card_embeddings", cfg.CardEmbeddingsCollection)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, "dot_product", cfg.VectorSimilarity)
	assert.Equal(t, 384, cfg.EmbeddingDimensions)
	assert.Equal(t, 500*time.Millisecond, cfg.EmbeddingBaseDelay)
	assert.Equal(t, 20*time.Second, cfg.EmbeddingMaxDelay)
	assert.Equal(t, config.DispatcherLocal, cfg.JobDispatcher)
	assert.Equal(t, 8000, cfg.ServerPort)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins())
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout())
	assert.True(t, cfg.EnableAPI)
	assert.True(t, cfg.EnableJobWorker)
}

func TestLoadConfig_Toggles(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("ENABLE_API", "false")
	t.Setenv("JOB_DISPATCHER", "nsq")
	t.Setenv("JOB_WORKERS", "10")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.False(t, cfg.EnableAPI)
	assert.Equal(t, config.DispatcherNSQ, cfg.JobDispatcher)
	assert.Equal(t, 10, cfg.JobWorkers)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	content := []byte("DB_HOST=loaded-from-file\nLLM_PROVIDER=gemini\n")
	require.NoError(t, os.WriteFile(".env", content, 0o644))
	defer os.Remove(".env")
	defer os.Unsetenv("DB_HOST")
	defer os.Unsetenv("LLM_PROVIDER")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
	assert.Equal(t, "gemini", cfg.LLMProvider)
}

func TestLoadConfig_CORSOrigins(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins())
}

func TestLoadConfig_MissingLLMProvider(t *testing.T) {
	os.Unsetenv("LLM_PROVIDER")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrMissingRequired)
}

func TestDatabaseURL(t *testing.T) {
	cfg := config.Config{DBUser: "u", DBPass: "p", DBHost: "h", DBPort: 5432, DBName: "mtg"}
	assert.Equal(t, "postgres://u:p@h:5432/mtg?sslmode=disable", cfg.DatabaseURL())
}
