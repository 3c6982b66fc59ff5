package search

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/timrodz/cards-oracle/internal/middleware"
	"github.com/timrodz/cards-oracle/internal/retrieval"
)

type Searcher interface {
	Search(ctx context.Context, question string, normalize bool) (*retrieval.SearchResponse, error)
	SearchStream(ctx context.Context, question string, normalize bool) <-chan retrieval.Event
}

type Handler struct {
	service   Searcher
	encoder   *Encoder
	keepAlive time.Duration
}

func NewHandler(service Searcher, encoder *Encoder) *Handler {
	return &Handler{service: service, encoder: encoder, keepAlive: 15 * time.Second}
}

type query struct {
	question  string
	normalize bool
}

func parseQuery(r *http.Request) (query, error) {
	q := query{question: strings.TrimSpace(r.URL.Query().Get("question")), normalize: true}
	if q.question == "" {
		return q, retrieval.ErrEmptyQuestion
	}
	if raw := r.URL.Query().Get("normalize_embeddings"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return q, errors.New("normalize_embeddings must be a boolean")
		}
		q.normalize = v
	}
	return q, nil
}

// Search answers in one response. Data is null when nothing relevant was
// found.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseQuery(r)
	if err != nil {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.service.Search(ctx, q.question, q.normalize)
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "Search failed", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": resp})
}

// Stream forwards search events as server-sent events, flushing each one.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseQuery(r)
	if err != nil {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.service.SearchStream(ctx, q.question, q.normalize)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := w.Write(h.encoder.Encode(ev)); err != nil {
				slog.WarnContext(ctx, "stream consumer went away", "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			// Comment frames keep proxies from closing a slow generation.
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
