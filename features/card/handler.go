package card

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/timrodz/cards-oracle/internal/middleware"
	"github.com/timrodz/cards-oracle/internal/records"
)

type RecordGetter interface {
	Get(ctx context.Context, collection, id string) (*records.Record, error)
}

type Handler struct {
	store      RecordGetter
	collection string
}

func NewHandler(store RecordGetter, collection string) *Handler {
	return &Handler{store: store, collection: collection}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := NormalizeID(r.PathValue("id"))

	rec, err := h.store.Get(ctx, h.collection, id)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			middleware.WriteError(ctx, w, "NOT_FOUND", "Card not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to fetch card", "id", id, "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "Failed to fetch card", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": rec.Fields})
}
