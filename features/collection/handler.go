package collection

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/timrodz/cards-oracle/internal/middleware"
)

type PropertyLister interface {
	Properties(ctx context.Context, collection string) ([]string, error)
}

type Handler struct {
	lister PropertyLister
}

func NewHandler(lister PropertyLister) *Handler {
	return &Handler{lister: lister}
}

// Properties lists the sorted top-level field names used by a collection.
func (h *Handler) Properties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	props, err := h.lister.Properties(ctx, name)
	if err != nil {
		slog.ErrorContext(ctx, "collection property retrieval failed", "collection", name, "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "Collection property retrieval failed", http.StatusInternalServerError)
		return
	}
	if props == nil {
		props = []string{}
	}

	resp := map[string]interface{}{
		"data": props,
		"meta": map[string]int{"count": len(props)},
	}
	middleware.WriteJSON(ctx, w, http.StatusOK, resp)
}
