package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/menjava/internal/trade"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// tradeError maps trade errors to responses. Conflicts include the current
// match so the caller can refresh without another request.
func tradeError(w http.ResponseWriter, err error) {
	var conflict *trade.ConflictError
	switch {
	case errors.As(err, &conflict):
		body := map[string]any{"error": conflict.Error()}
		if conflict.Match != nil {
			body["match"] = conflict.Match
		}
		jsonResponse(w, http.StatusConflict, body)
	case errors.Is(err, trade.ErrEligibility), errors.Is(err, trade.ErrForbidden):
		jsonError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, trade.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, trade.ErrInvalid):
		jsonError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("trade operation failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
