package ingest

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/timrodz/cards-oracle/internal/middleware"
)

type Handler struct {
	service        *Service
	maxUploadBytes int64
}

func NewHandler(service *Service, maxUploadBytes int64) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes}
}

// Upload ingests a multipart "file" holding a JSON list into the "collection"
// form field's collection.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(ctx, w, "BAD_REQUEST", "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		middleware.WriteError(ctx, w, "BAD_REQUEST", "Expected a multipart form", http.StatusBadRequest)
		return
	}

	collection := strings.TrimSpace(r.FormValue("collection"))
	if collection == "" {
		middleware.WriteError(ctx, w, "BAD_REQUEST", "collection is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.WriteError(ctx, w, "BAD_REQUEST", "limit must be an integer >= 1", http.StatusBadRequest)
			return
		}
		limit = n
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		middleware.WriteError(ctx, w, "BAD_REQUEST", "Filename is missing.", http.StatusBadRequest)
		return
	}
	if filepath.Ext(header.Filename) != ".json" {
		middleware.WriteError(ctx, w, "BAD_REQUEST", "Only JSON files are supported.", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "ingesting json dataset", "collection", collection, "file", filepath.Base(header.Filename), "size", header.Size)
	res, err := h.service.IngestJSON(ctx, file, collection, limit)
	if err != nil {
		if errors.Is(err, ErrNotAList) {
			middleware.WriteError(ctx, w, "BAD_REQUEST", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "ingestion failed", "collection", collection, "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "Ingestion failed", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"data": map[string]interface{}{
			"message": "Dataset ingestion completed successfully.",
			"result":  res,
		},
	}
	middleware.WriteJSON(ctx, w, http.StatusOK, resp)
}
