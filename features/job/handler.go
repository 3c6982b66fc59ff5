package job

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/timrodz/cards-oracle/features/embeddings"
	"github.com/timrodz/cards-oracle/internal/middleware"
	"github.com/timrodz/cards-oracle/internal/pipeline"
)

type Handler struct {
	service    *Service
	properties pipeline.PropertyLister
}

func NewHandler(s *Service, properties pipeline.PropertyLister) *Handler {
	return &Handler{service: s, properties: properties}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	req, err := embeddings.DecodeRequest(r)
	if err == nil {
		err = embeddings.Prepare(ctx, h.properties, req)
	}
	if err != nil {
		embeddings.WriteRequestError(ctx, w, err)
		return
	}

	j, err := h.service.Submit(ctx, req)
	if err != nil {
		var subErr *SubmissionError
		if errors.As(err, &subErr) {
			slog.ErrorContext(ctx, "failed to dispatch job", "job_id", subErr.Job.ID, "error", err, "correlationId", correlationID)
			middleware.WriteError(ctx, w, "UNAVAILABLE", "Failed to submit embeddings task", http.StatusServiceUnavailable)
			return
		}
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			middleware.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "failed to submit job", "error", err, "correlationId", correlationID)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "Failed to submit embeddings task", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(ctx, w, http.StatusAccepted, map[string]interface{}{"data": j.Submitted()})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	resp, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			middleware.WriteError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get job", "id", id, "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "Failed to read job", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": resp})
}
