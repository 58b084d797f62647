package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/erazemk/menjava/internal/auth"
	"github.com/erazemk/menjava/internal/presence"
	"github.com/erazemk/menjava/internal/store"
	"github.com/erazemk/menjava/internal/trade"
)

// MaxNicknameLength bounds a participant nickname, in characters.
const MaxNicknameLength = 40

// SessionHandler handles anonymous participant sessions and profiles.
type SessionHandler struct {
	DB        *sql.DB
	JWTSecret string
	Trade     *trade.Service
	Presence  *presence.Tracker
}

type sessionRequest struct {
	Nickname string `json:"nickname"`
}

type sessionResponse struct {
	ParticipantID string `json:"participant_id"`
	Token         string `json:"token"`
}

type profileRequest struct {
	Nickname string `json:"nickname"`
	EventID  string `json:"event_id"`
}

type locationRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func validNickname(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && utf8.RuneCountInString(s) <= MaxNicknameLength
}

// Start handles POST /api/session.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	nickname, ok := validNickname(req.Nickname)
	if !ok {
		jsonError(w, http.StatusBadRequest, "nickname required (max 40 characters)")
		return
	}

	p, err := store.CreateParticipant(r.Context(), h.DB, nickname)
	if err != nil {
		slog.Error("creating participant", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	token, err := auth.GenerateParticipantToken(h.JWTSecret, p.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	slog.Info("session started", "participant", p.ID)
	jsonResponse(w, http.StatusCreated, sessionResponse{ParticipantID: p.ID, Token: token})
}

// Get handles GET /api/me.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := store.GetParticipant(r.Context(), h.DB, participantID(r))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get participant")
		return
	}
	if p == nil {
		jsonError(w, http.StatusNotFound, "participant not found")
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Update handles PUT /api/me.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	nickname, ok := validNickname(req.Nickname)
	if !ok {
		jsonError(w, http.StatusBadRequest, "nickname required (max 40 characters)")
		return
	}

	ctx := r.Context()
	if req.EventID != "" {
		e, err := store.GetEvent(ctx, h.DB, req.EventID)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to get event")
			return
		}
		if e == nil || !e.Active {
			jsonError(w, http.StatusNotFound, "event not found")
			return
		}
	}

	pid := participantID(r)
	p, err := store.GetParticipant(ctx, h.DB, pid)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get participant")
		return
	}
	if p == nil {
		jsonError(w, http.StatusNotFound, "participant not found")
		return
	}

	if err := store.UpdateParticipantProfile(ctx, h.DB, pid, nickname, req.EventID); err != nil {
		slog.Error("updating participant", "participant", pid, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update participant")
		return
	}

	p, err = store.GetParticipant(ctx, h.DB, pid)
	if err != nil || p == nil {
		jsonError(w, http.StatusInternalServerError, "failed to get participant")
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Delete handles DELETE /api/me. It erases the participant and every
// trace of their trading.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Trade.Erase(r.Context(), participantID(r)); err != nil {
		tradeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	if claims.ExpiresAt != nil {
		if err := store.RevokeToken(r.Context(), h.DB, claims.ID, claims.ExpiresAt.Time); err != nil {
			slog.Warn("revoking erased participant token", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Location handles PUT /api/me/location.
func (h *SessionHandler) Location(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		jsonError(w, http.StatusBadRequest, "lat and lng required")
		return
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lng < -180 || *req.Lng > 180 {
		jsonError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	tr, err := h.Presence.UpdateLocation(r.Context(), participantID(r), *req.Lat, *req.Lng)
	if errors.Is(err, presence.ErrUnknownParticipant) {
		jsonError(w, http.StatusNotFound, "participant not found")
		return
	}
	if err != nil {
		slog.Error("updating location", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update location")
		return
	}
	jsonResponse(w, http.StatusOK, tr)
}
