package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/erazemk/menjava/internal/matching"
	"github.com/erazemk/menjava/internal/model"
	"github.com/erazemk/menjava/internal/trade"
)

// TradeHandler handles trade groups, scans and matches.
type TradeHandler struct {
	Trade *trade.Service
}

type adjustRequest struct {
	GoodsID string `json:"goods_id"`
	Delta   int    `json:"delta"`
}

type adjustResponse struct {
	Group   *model.TradeGroup `json:"group,omitempty"`
	Removed bool              `json:"removed"`
}

type completeRequest struct {
	Confirmations []matching.Confirmation `json:"confirmations"`
}

type transitionResponse struct {
	Match     *model.Match        `json:"match"`
	Exchanges []matching.Exchange `json:"exchanges,omitempty"`
}

type messageRequest struct {
	Body string `json:"body"`
}

// ListGroups handles GET /api/me/groups.
func (h *TradeHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Trade.Groups(r.Context(), participantID(r))
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, groups)
}

// ReplaceGroups handles PUT /api/me/groups.
func (h *TradeHandler) ReplaceGroups(w http.ResponseWriter, r *http.Request) {
	var groups []model.TradeGroup
	if err := decodeJSON(r, &groups); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.Trade.RegisterGroups(r.Context(), participantID(r), groups)
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, saved)
}

// AdjustGroup handles POST /api/me/groups/{index}/adjust.
func (h *TradeHandler) AdjustGroup(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid group index")
		return
	}

	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	g, removed, err := h.Trade.AdjustHave(r.Context(), participantID(r), index, req.GoodsID, req.Delta)
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, adjustResponse{Group: g, Removed: removed})
}

// Candidates handles GET /api/matches/candidates.
func (h *TradeHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	results, err := h.Trade.FindMatches(r.Context(), participantID(r))
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, results)
}

// CreateMatch handles POST /api/matches.
func (h *TradeHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req trade.MatchRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.Trade.CreateMatch(r.Context(), participantID(r), req)
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, m)
}

// ListMatches handles GET /api/matches.
func (h *TradeHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.Trade.ListMatches(r.Context(), participantID(r), r.URL.Query().Get("status"))
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, matches)
}

// GetMatch handles GET /api/matches/{id}.
func (h *TradeHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.Trade.GetMatch(r.Context(), r.PathValue("id"), participantID(r))
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

// Accept handles POST /api/matches/{id}/accept.
func (h *TradeHandler) Accept(w http.ResponseWriter, r *http.Request) {
	m, err := h.Trade.Accept(r.Context(), r.PathValue("id"), participantID(r))
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, transitionResponse{Match: m})
}

// Cancel handles POST /api/matches/{id}/cancel.
func (h *TradeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	m, err := h.Trade.Cancel(r.Context(), r.PathValue("id"), participantID(r))
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, transitionResponse{Match: m})
}

// Complete handles POST /api/matches/{id}/complete. An empty body
// completes with the default quantities.
func (h *TradeHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, plan, err := h.Trade.Complete(r.Context(), r.PathValue("id"), participantID(r), req.Confirmations)
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, transitionResponse{Match: m, Exchanges: plan.Exchanges})
}

// ListMessages handles GET /api/matches/{id}/messages.
func (h *TradeHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Trade.ListMessages(r.Context(), r.PathValue("id"), participantID(r))
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, msgs)
}

// SendMessage handles POST /api/matches/{id}/messages.
func (h *TradeHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.Trade.SendMessage(r.Context(), r.PathValue("id"), participantID(r), req.Body)
	if err != nil {
		tradeError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, msg)
}
