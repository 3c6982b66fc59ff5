package embeddings

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/timrodz/cards-oracle/internal/chunk"
	"github.com/timrodz/cards-oracle/internal/middleware"
	"github.com/timrodz/cards-oracle/internal/pipeline"
	"github.com/timrodz/cards-oracle/internal/vector"
)

type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Stats, error)
}

type Indexer interface {
	CreateIndex(ctx context.Context, def vector.IndexDefinition) error
}

type Handler struct {
	runner     Runner
	properties pipeline.PropertyLister
	indexer    Indexer
	dimensions int
}

func NewHandler(runner Runner, properties pipeline.PropertyLister, indexer Indexer, dimensions int) *Handler {
	return &Handler{runner: runner, properties: properties, indexer: indexer, dimensions: dimensions}
}

// Create runs the pipeline on the request goroutine and answers when the
// run has finished.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := DecodeRequest(r)
	if err == nil {
		err = Prepare(ctx, h.properties, req)
	}
	if err != nil {
		WriteRequestError(ctx, w, err)
		return
	}

	slog.InfoContext(ctx, "starting embeddings creation", "source", req.SourceCollection, "target", req.TargetCollection)
	stats, err := h.runner.Run(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "embeddings creation failed", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "Embeddings creation failed", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"message": "Embeddings creation completed successfully.",
			"stats":   stats,
		},
	})
}

// CreateIndex creates the vector index for a target collection.
func (h *Handler) CreateIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := decodeIndexRequest(r)
	if err != nil {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.CollectionName == "" || req.CollectionEmbeddingsField == "" {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", "collection_name and collection_embeddings_field are required", http.StatusBadRequest)
		return
	}
	sim, err := vector.ParseSimilarity(req.Similarity)
	if err != nil {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	def := vector.NewIndexDefinition(req.CollectionName, req.CollectionEmbeddingsField, h.dimensions, sim)
	if err := h.indexer.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, vector.ErrIndexConflict) {
			middleware.WriteError(ctx, w, "CONFLICT", err.Error(), http.StatusConflict)
			return
		}
		slog.ErrorContext(ctx, "search index creation failed", "collection", req.CollectionName, "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "Search index creation failed", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"message": "Search index creation initiated.",
			"index":   def,
		},
	})
}

// Prepare validates req and checks that every template field exists in the
// source collection.
func Prepare(ctx context.Context, properties pipeline.PropertyLister, req pipeline.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return pipeline.CheckFields(ctx, properties, req)
}

// WriteRequestError maps request validation failures to 400 and anything
// else to 500.
func WriteRequestError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		syntaxErr  *chunk.TemplateSyntaxError
		missingErr *pipeline.MissingFieldsError
	)
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &missingErr), errors.Is(err, pipeline.ErrInvalidRequest):
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	default:
		slog.ErrorContext(ctx, "request validation failed", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "Failed to validate request", http.StatusInternalServerError)
	}
}
