package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	wstore "github.com/timrodz/cards-oracle/internal/adapter/weaviate"
	"github.com/timrodz/cards-oracle/internal/config"
	"github.com/timrodz/cards-oracle/internal/vector"
)

type Dependencies struct {
	DB          *sql.DB
	Weaviate    *weaviate.Client
	VectorStore *wstore.Store
	// NSQProducer is nil unless JOB_DISPATCHER=nsq.
	NSQProducer *nsq.Producer
}

// Close releases the connections opened by Bootstrap.
func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

// IndexEnsurer creates a vector index or verifies the existing one.
type IndexEnsurer interface {
	CreateIndex(ctx context.Context, def vector.IndexDefinition) error
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	sim, err := vector.ParseSimilarity(cfg.VectorSimilarity)
	if err != nil {
		return nil, fmt.Errorf("%w: VECTOR_SIMILARITY: %v", config.ErrInvalidValue, err)
	}

	// Database
	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := PingWithRetry(ctx, db, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}

	// Weaviate
	wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("weaviate client error: %w", err)
	}
	vecStore := wstore.NewStore(wClient, cfg.CardEmbeddingsCollection, sim)

	def := vector.NewIndexDefinition(cfg.CardEmbeddingsCollection, "embeddings", cfg.EmbeddingDimensions, sim)
	if err := EnsureIndexWithRetry(ctx, vecStore, def, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		db.Close()
		return nil, fmt.Errorf("weaviate schema error: %w", err)
	}

	deps := &Dependencies{DB: db, Weaviate: wClient, VectorStore: vecStore}

	if cfg.JobDispatcher == config.DispatcherNSQ {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer
		createTopics(cfg.NSQDHTTP)
	}

	return deps, nil
}

// Migrate applies every pending migration from source.
func Migrate(db *sql.DB, source string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func PingWithRetry(ctx context.Context, db pinger, attempts int, delay time.Duration) error {
	return retry(ctx, attempts, delay, "db", func() error { return db.PingContext(ctx) })
}

// EnsureIndexWithRetry retries index creation while Weaviate starts. A
// conflicting existing index is not retried.
func EnsureIndexWithRetry(ctx context.Context, store IndexEnsurer, def vector.IndexDefinition, attempts int, delay time.Duration) error {
	return retry(ctx, attempts, delay, "weaviate", func() error {
		err := store.CreateIndex(ctx, def)
		if errors.Is(err, vector.ErrIndexConflict) {
			return &permanentError{err}
		}
		return err
	})
}

type permanentError struct{ error }

func (e *permanentError) Unwrap() error { return e.error }

func retry(ctx context.Context, attempts int, delay time.Duration, what string, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.error
		}
		if i == attempts-1 {
			break
		}
		slog.Warn("dependency not ready, retrying...", "dependency", what, "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		u := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, url.QueryEscape(topic))
		resp, err := http.Post(u, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicEmbeddingJobs)
	}()
}
