package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wstore "github.com/timrodz/cards-oracle/internal/adapter/weaviate"
	"github.com/timrodz/cards-oracle/internal/app"
	"github.com/timrodz/cards-oracle/internal/testutils"
	"github.com/timrodz/cards-oracle/internal/vector"
)

func TestApp_EndToEnd_Embeddings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E integration test")
	}

	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	s.SeedRecords("cards",
		`{"id":"bolt","name":"Lightning Bolt","type_line":"Instant","set_name":"Alpha","mana_cost":"{R}","cmc":1,"oracle_text":"Lightning Bolt deals 3 damage to any target."}`,
		`{"id":"opt","name":"Opt","type_line":"Instant","set_name":"Ixalan","mana_cost":"{U}","cmc":1,"oracle_text":"Scry 1. Draw a card."}`,
		`{"id":"token","name":"Card","type_line":"Card"}`,
	)

	cfg := testConfig(t)
	store := wstore.NewStore(s.Weaviate, cfg.CardEmbeddingsCollection, vector.Cosine)
	require.NoError(t, store.CreateIndex(ctx, vector.NewIndexDefinition(cfg.CardEmbeddingsCollection, "embeddings", cfg.EmbeddingDimensions, vector.Cosine)))

	a, err := app.New(cfg, s.DB, store, nil, fakeProviders(cfg.EmbeddingDimensions, `{"answer":"Lightning Bolt","source_id":"bolt"}`))
	require.NoError(t, err)
	defer a.Close()

	form := url.Values{"source_collection": {"cards"}, "target_collection": {cfg.CardEmbeddingsCollection}}

	// Synchronous run
	req := httptest.NewRequest(http.MethodPost, "/embeddings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var created struct {
		Data struct {
			Stats struct {
				Read     int `json:"read"`
				Filtered int `json:"filtered"`
				Chunks   int `json:"chunks"`
			} `json:"stats"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 3, created.Data.Stats.Read)
	assert.Equal(t, 1, created.Data.Stats.Filtered)
	assert.Equal(t, 2, created.Data.Stats.Chunks)

	count, err := store.Count(ctx, cfg.CardEmbeddingsCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Async job
	req = httptest.NewRequest(http.MethodPost, "/embeddings/jobs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var submitted struct {
		Data struct {
			JobID string `json:"job_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.Data.JobID)

	assert.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/embeddings/jobs/"+submitted.Data.JobID, nil))
		var status struct {
			Data struct {
				Status string `json:"status"`
			} `json:"data"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &status)
		return status.Data.Status == "succeeded"
	}, 30*time.Second, 200*time.Millisecond)

	// Re-running does not duplicate vectors.
	count, err = store.Count(ctx, cfg.CardEmbeddingsCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Search
	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search/?question=what+deals+3+damage", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"answer":"Lightning Bolt","source_id":"bolt"}}`, w.Body.String())

	// Stream
	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search/stream?question=what+deals+3+damage", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, `data: {"type":"meta"`), body)
	assert.True(t, strings.HasSuffix(body, "data: {\"type\":\"done\"}\n\n"), body)

	// Stats
	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var st struct {
		Data struct {
			Records int            `json:"records"`
			Chunks  int            `json:"chunks"`
			Jobs    map[string]int `json:"jobs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Data.Records)
	assert.Equal(t, 2, st.Data.Chunks)
	assert.Equal(t, 1, st.Data.Jobs["succeeded"])

	// Card lookup
	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cards/"+url.PathEscape("{source_id: bolt}"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Lightning Bolt")
}
