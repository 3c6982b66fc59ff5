package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/timrodz/cards-oracle/features/job"
	"github.com/timrodz/cards-oracle/internal/middleware"
)

type RecordCounter interface {
	Count(ctx context.Context, collection string) (int, error)
}

type JobCounter interface {
	CountByStatus(ctx context.Context) (map[job.Status]int, error)
}

type Handler struct {
	records    RecordCounter
	jobs       JobCounter
	chunks     RecordCounter
	cards      string
	embeddings string
}

// NewHandler reports on the cards collection and its embeddings
// collection.
func NewHandler(records RecordCounter, jobs JobCounter, chunks RecordCounter, cards, embeddings string) *Handler {
	return &Handler{records: records, jobs: jobs, chunks: chunks, cards: cards, embeddings: embeddings}
}

type StatsResponse struct {
	Records int                `json:"records"`
	Chunks  int                `json:"chunks"`
	Jobs    map[job.Status]int `json:"jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	recordCount, err := h.records.Count(ctx, h.cards)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count records", "error", err, "correlationId", correlationID)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count records", http.StatusInternalServerError)
		return
	}

	jobCounts, err := h.jobs.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err, "correlationId", correlationID)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	chunkCount, err := h.chunks.Count(ctx, h.embeddings)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err, "correlationId", correlationID)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Records: recordCount,
		Chunks:  chunkCount,
		Jobs:    map[job.Status]int{},
	}
	for _, s := range []job.Status{job.StatusQueued, job.StatusRunning, job.StatusSucceeded, job.StatusFailed, job.StatusFailedSubmission} {
		resp.Jobs[s] = jobCounts[s]
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": resp})
}
