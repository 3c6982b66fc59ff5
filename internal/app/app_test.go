package app_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timrodz/cards-oracle/internal/app"
	"github.com/timrodz/cards-oracle/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		CardsCollection:          "cards",
		CardEmbeddingsCollection: "card_embeddings",
		BatchSize:                500,
		EmbeddingDimensions:      4,
		EmbeddingWorkers:         2,
		SearchLimit:              5,
		MaxContextChars:          4000,
		JobDispatcher:            config.DispatcherLocal,
		JobWorkers:               1,
		CORSOrigins:              []string{"http://localhost:3000"},
		QueryLogPath:             filepath.Join(t.TempDir(), "query.log"),
		MaxUploadSizeMB:          1,
	}
}

func TestNew(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a, err := app.New(testConfig(t), db, newMemoryStore(), nil, fakeProviders(4, `{"answer":"x","source_id":null}`))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Handler)
	assert.NotNil(t, a.Jobs)
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Retrieval)

	t.Run("Root", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"Hello":"World"}`, w.Body.String())
	})

	t.Run("Health", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
		assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	})

	t.Run("Properties", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT jsonb_object_keys(doc) AS key FROM records WHERE collection = $1 ORDER BY key")).
			WithArgs("cards").
			WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("id").AddRow("name"))

		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/db/collections/cards/properties", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":["id","name"],"meta":{"count":2}}`, w.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/embeddings/jobs", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "POST")
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("EmptyQuestion", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search/?question=", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnknownJob", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/embeddings/jobs/not-a-uuid", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("MCPToolsList", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "cards_search")
	})
}

func TestNew_NSQRequiresProducer(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig(t)
	cfg.JobDispatcher = config.DispatcherNSQ

	_, err = app.New(cfg, db, newMemoryStore(), nil, fakeProviders(4, ""))
	assert.Error(t, err)
}
