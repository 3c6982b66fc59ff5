package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// WriteJSON writes body as the JSON response with the given status.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// WriteError writes the standard error envelope carrying the request's
// correlation id.
func WriteError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	WriteJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": GetCorrelationID(ctx),
	})
}
