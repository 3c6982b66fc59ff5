package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/timrodz/cards-oracle/internal/embedding"
)

var ErrExecutorClosed = errors.New("executor closed")

// Indexer writes embedded records into a vector collection.
type Indexer interface {
	Upsert(ctx context.Context, collection string, recs []EmbeddingRecord) error
}

type ExecutorConfig struct {
	Kind       embedding.Kind
	Workers    int
	Factory    embedding.Factory
	Indexer    Indexer
	Collection string
	Normalize  bool
}

// Executor embeds and upserts batches. Local providers run on a pool of
// workers, each holding its own provider instance; remote providers run
// inline on the submitting goroutine.
type Executor struct {
	cfg   ExecutorConfig
	pool  *ants.Pool
	slots chan embedding.Provider

	wg     sync.WaitGroup
	mu     sync.Mutex
	err    error
	failed atomic.Bool
	closed bool
}

func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Factory == nil || cfg.Indexer == nil {
		return nil, fmt.Errorf("executor requires a provider factory and an indexer")
	}

	workers := cfg.Workers
	if workers <= 0 || cfg.Kind.Remote() {
		workers = 1
	}

	e := &Executor{cfg: cfg, slots: make(chan embedding.Provider, workers)}
	for range workers {
		p, err := cfg.Factory()
		if err != nil {
			e.closeProviders()
			return nil, fmt.Errorf("initialize embedding provider: %w", err)
		}
		e.slots <- p
	}

	if !cfg.Kind.Remote() {
		pool, err := ants.NewPool(workers)
		if err != nil {
			e.closeProviders()
			return nil, err
		}
		e.pool = pool
	}

	slog.Info("embedding executor started", "provider", cfg.Kind, "workers", workers, "parallel", e.pool != nil)
	return e, nil
}

// Submit schedules one batch. Once any batch has failed, Submit returns
// that failure and schedules nothing.
func (e *Executor) Submit(ctx context.Context, batch []EmbeddingRecord) error {
	if e.failed.Load() {
		return e.firstErr()
	}
	if len(batch) == 0 {
		return nil
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrExecutorClosed
	}

	owned := make([]EmbeddingRecord, len(batch))
	copy(owned, batch)

	if e.pool == nil {
		e.run(ctx, owned)
		if e.failed.Load() {
			return e.firstErr()
		}
		return nil
	}

	e.wg.Add(1)
	err := e.pool.Submit(func() {
		defer e.wg.Done()
		e.run(ctx, owned)
	})
	if err != nil {
		e.wg.Done()
		e.fail(fmt.Errorf("submit batch: %w", err))
		return e.firstErr()
	}
	return nil
}

// Wait blocks until in-flight batches finish, releases the workers and
// their providers and returns the first failure.
func (e *Executor) Wait() error {
	e.wg.Wait()

	e.mu.Lock()
	if !e.closed {
		e.closed = true
		if e.pool != nil {
			e.pool.Release()
		}
		e.closeProviders()
	}
	e.mu.Unlock()

	return e.firstErr()
}

// closeProviders drains the idle slots. Every slot is idle once no batch
// is running.
func (e *Executor) closeProviders() {
	for {
		select {
		case p := <-e.slots:
			if c, ok := p.(io.Closer); ok {
				if err := c.Close(); err != nil {
					slog.Warn("failed to close embedding provider", "error", err)
				}
			}
		default:
			return
		}
	}
}

func (e *Executor) run(ctx context.Context, batch []EmbeddingRecord) {
	// ants recovers pool panics on its own, so they are recorded here first.
	defer func() {
		if r := recover(); r != nil {
			e.fail(fmt.Errorf("batch panic: %v", r))
		}
	}()
	if e.failed.Load() {
		return
	}

	provider := <-e.slots
	defer func() { e.slots <- provider }()

	if err := e.process(ctx, provider, batch); err != nil {
		e.fail(err)
	}
}

func (e *Executor) process(ctx context.Context, provider embedding.Provider, batch []EmbeddingRecord) error {
	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.Summary
	}

	vectors, err := provider.EmbedTexts(ctx, texts, e.cfg.Normalize)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embed batch: got %d vectors for %d records", len(vectors), len(batch))
	}
	for i := range batch {
		batch[i].Vector = vectors[i]
	}

	if err := e.cfg.Indexer.Upsert(ctx, e.cfg.Collection, batch); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	slog.InfoContext(ctx, "upserted chunks", "collection", e.cfg.Collection, "count", len(batch))
	return nil
}

func (e *Executor) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
		e.failed.Store(true)
		slog.Error("batch processing failed", "error", err)
	}
}

func (e *Executor) firstErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
