package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/timrodz/cards-oracle/features/card"
	"github.com/timrodz/cards-oracle/features/collection"
	"github.com/timrodz/cards-oracle/features/embeddings"
	"github.com/timrodz/cards-oracle/features/ingest"
	"github.com/timrodz/cards-oracle/features/job"
	"github.com/timrodz/cards-oracle/features/mcp"
	"github.com/timrodz/cards-oracle/features/search"
	"github.com/timrodz/cards-oracle/features/stats"
	"github.com/timrodz/cards-oracle/internal/config"
	"github.com/timrodz/cards-oracle/internal/middleware"
	"github.com/timrodz/cards-oracle/internal/pipeline"
	"github.com/timrodz/cards-oracle/internal/records"
	"github.com/timrodz/cards-oracle/internal/retrieval"
)

// VectorStore is the vector index the application embeds into and searches.
type VectorStore interface {
	pipeline.Indexer
	retrieval.VectorSearcher
	embeddings.Indexer
	Count(ctx context.Context, collection string) (int, error)
}

type App struct {
	Handler   http.Handler
	Jobs      *job.Service
	Pipeline  *pipeline.Pipeline
	Retrieval *retrieval.Service
	Ingest    *ingest.Service
	Records   *records.PostgresStore

	cfg     *config.Config
	local   *job.LocalDispatcher
	closers []io.Closer
}

func New(cfg *config.Config, db *sql.DB, vecStore VectorStore, pub job.EventPublisher, providers Providers) (*App, error) {
	a := &App{cfg: cfg}

	recordStore := records.NewPostgresStore(db)
	a.Records = recordStore

	// Pipeline
	a.Pipeline = pipeline.New(pipeline.NewBatcher(recordStore, cfg.BatchSize), pipeline.Config{
		Kind:    providers.Kind,
		Workers: cfg.EmbeddingWorkers,
		Factory: providers.Factory,
		Indexer: vecStore,
	})

	// Feature: Job
	dispatcher, err := a.dispatcher(pub)
	if err != nil {
		return nil, err
	}
	jobRepo := job.NewPostgresRepo(db)
	a.Jobs = job.NewService(jobRepo, dispatcher, a.Pipeline)
	if a.local != nil {
		a.local.AddHandler(a.Jobs.Execute)
		a.local.OnFailure(a.Jobs.Abandon)
	}

	// Feature: Retrieval
	queryLogger, closer, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	} else {
		a.closers = append(a.closers, closer)
	}

	queryEmbedder, err := providers.Factory()
	if err != nil {
		return nil, fmt.Errorf("initialize query embedder: %w", err)
	}
	if c, ok := queryEmbedder.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.Retrieval = retrieval.NewService(queryEmbedder, vecStore, providers.Generator, queryLogger, retrieval.Config{
		SearchLimit:     cfg.SearchLimit,
		MaxContextChars: cfg.MaxContextChars,
	})

	encoder, err := search.NewEncoder()
	if err != nil {
		return nil, err
	}

	// Feature: Ingest
	a.Ingest = ingest.NewService(recordStore, cfg.BatchSize)

	// Handlers
	cardHandler := card.NewHandler(recordStore, cfg.CardsCollection)
	collectionHandler := collection.NewHandler(recordStore)
	embeddingsHandler := embeddings.NewHandler(a.Pipeline, recordStore, vecStore, cfg.EmbeddingDimensions)
	jobHandler := job.NewHandler(a.Jobs, recordStore)
	ingestHandler := ingest.NewHandler(a.Ingest, cfg.MaxUploadSizeMB<<20)
	searchHandler := search.NewHandler(a.Retrieval, encoder)
	mcpHandler := mcp.NewHandler(a.Retrieval, recordStore, cfg.CardsCollection)
	statsHandler := stats.NewHandler(recordStore, a.Jobs, vecStore, cfg.CardsCollection, cfg.CardEmbeddingsCollection)

	// Routes
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeStatic(w, `{"Hello":"World"}`)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeStatic(w, `{"status":"ok"}`)
	})

	mux.HandleFunc("GET /cards/{id}", cardHandler.Get)
	mux.HandleFunc("GET /db/collections/{name}/properties", collectionHandler.Properties)

	mux.HandleFunc("POST /embeddings", embeddingsHandler.Create)
	mux.HandleFunc("POST /embeddings/search_index", embeddingsHandler.CreateIndex)
	mux.HandleFunc("POST /embeddings/jobs", jobHandler.Submit)
	mux.HandleFunc("GET /embeddings/jobs/{id}", jobHandler.Get)

	mux.HandleFunc("POST /ingest/json-dataset", ingestHandler.Upload)

	mux.HandleFunc("GET /search/{$}", searchHandler.Search)
	mux.HandleFunc("GET /search/stream", searchHandler.Stream)

	mux.HandleFunc("GET /stats", statsHandler.GetStats)

	mux.Handle("POST /mcp", mcpHandler)
	mux.HandleFunc("GET /mcp/sse", mcpHandler.HandleSSE)
	mux.HandleFunc("POST /mcp/messages", mcpHandler.HandleMessage)

	a.Handler = middleware.CORS(cfg.AllowedOrigins())(middleware.CorrelationID(mux))
	return a, nil
}

func (a *App) dispatcher(pub job.EventPublisher) (job.Dispatcher, error) {
	if a.cfg.JobDispatcher == config.DispatcherNSQ {
		if pub == nil {
			return nil, errors.New("JOB_DISPATCHER=nsq requires an NSQ producer")
		}
		return job.NewNSQDispatcher(pub, config.TopicEmbeddingJobs), nil
	}
	local, err := job.NewLocalDispatcher(a.cfg.JobWorkers)
	if err != nil {
		return nil, err
	}
	a.local = local
	return local, nil
}

func writeStatic(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close waits for in-process jobs and releases the query log.
func (a *App) Close() {
	if a.local != nil {
		a.local.Close()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
}
