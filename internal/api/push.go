package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/menjava/internal/notify"
	"github.com/erazemk/menjava/internal/store"
)

// PushHandler upgrades participants to the push channel.
type PushHandler struct {
	DB  *sql.DB
	Hub *notify.Hub
}

// Serve handles GET /api/ws. The connection receives events addressed to
// the participant and to the event they selected at connect time.
func (h *PushHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		jsonError(w, http.StatusServiceUnavailable, "push channel disabled")
		return
	}

	p, err := store.GetParticipant(r.Context(), h.DB, participantID(r))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get participant")
		return
	}
	if p == nil {
		jsonError(w, http.StatusNotFound, "participant not found")
		return
	}

	// The upgrader writes its own error response.
	if err := h.Hub.ServeWS(w, r, p.ID, p.EventID); err != nil {
		slog.Warn("websocket upgrade failed", "participant", p.ID, "error", err)
	}
}
