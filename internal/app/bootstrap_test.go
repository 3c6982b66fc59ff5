package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/timrodz/cards-oracle/internal/app"
	"github.com/timrodz/cards-oracle/internal/config"
	"github.com/timrodz/cards-oracle/internal/vector"
)

type flakyStore struct {
	memoryStore
	calls     int
	failUntil int
}

func (f *flakyStore) CreateIndex(ctx context.Context, def vector.IndexDefinition) error {
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("connection refused")
	}
	return nil
}

func def() vector.IndexDefinition {
	return vector.NewIndexDefinition("card_embeddings", "embeddings", 4, vector.DotProduct)
}

func TestEnsureIndexWithRetry_Success(t *testing.T) {
	store := newMemoryStore()
	err := app.EnsureIndexWithRetry(context.Background(), store, def(), 1, time.Millisecond)
	assert.NoError(t, err)
	assert.Len(t, store.indexes, 1)
}

func TestEnsureIndexWithRetry_Retries(t *testing.T) {
	store := &flakyStore{failUntil: 2}
	err := app.EnsureIndexWithRetry(context.Background(), store, def(), 5, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 3, store.calls)
}

func TestEnsureIndexWithRetry_Fail(t *testing.T) {
	store := &flakyStore{failUntil: 10}
	err := app.EnsureIndexWithRetry(context.Background(), store, def(), 3, time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 3, store.calls)
}

func TestEnsureIndexWithRetry_ConflictIsPermanent(t *testing.T) {
	store := newMemoryStore()
	store.err = vector.ErrIndexConflict
	err := app.EnsureIndexWithRetry(context.Background(), store, def(), 5, time.Millisecond)
	assert.ErrorIs(t, err, vector.ErrIndexConflict)
	assert.Len(t, store.indexes, 1)
}

func TestEnsureIndexWithRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &flakyStore{failUntil: 10}
	err := app.EnsureIndexWithRetry(ctx, store, def(), 5, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingPinger struct{ calls int }

func (p *failingPinger) PingContext(context.Context) error {
	p.calls++
	return errors.New("dial tcp: connection refused")
}

func TestPingWithRetry(t *testing.T) {
	p := &failingPinger{}
	err := app.PingWithRetry(context.Background(), p, 3, time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 3, p.calls)
}

func TestBootstrap_InvalidSimilarity(t *testing.T) {
	cfg := &config.Config{VectorSimilarity: "manhattan"}
	deps, err := app.Bootstrap(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalidValue)
	assert.Nil(t, deps)
}

func TestBootstrap_DBDown(t *testing.T) {
	cfg := &config.Config{
		DBHost:                     "localhost",
		DBPort:                     54322,
		DBUser:                     "test",
		DBPass:                     "test",
		DBName:                     "test",
		VectorSimilarity:           "dot_product",
		BootstrapRetryAttempts:     1,
		BootstrapRetryDelaySeconds: 0,
	}

	start := time.Now()
	deps, err := app.Bootstrap(context.Background(), cfg)

	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to ping db")
	assert.Less(t, time.Since(start), 2*time.Second)
}
