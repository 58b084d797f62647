package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/menjava/internal/imaging"
	"github.com/erazemk/menjava/internal/model"
	"github.com/erazemk/menjava/internal/notify"
	"github.com/erazemk/menjava/internal/store"
)

// CatalogHandler handles events and their goods catalogs.
type CatalogHandler struct {
	DB       *sql.DB
	Notifier notify.Notifier
}

type goodsRequest struct {
	EventID     string `json:"event_id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// ListEvents handles GET /api/events. Participants only see active events.
func (h *CatalogHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	activeOnly := claims == nil || claims.Role != model.RoleAdmin

	events, err := store.ListEvents(r.Context(), h.DB, activeOnly)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	jsonResponse(w, http.StatusOK, events)
}

// ListGoods handles GET /api/events/{id}/goods.
func (h *CatalogHandler) ListGoods(w http.ResponseWriter, r *http.Request) {
	e, err := store.GetEvent(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if e == nil {
		jsonError(w, http.StatusNotFound, "event not found")
		return
	}

	status := model.GoodsStatusActive
	if claims := GetClaims(r.Context()); claims != nil && claims.Role == model.RoleAdmin {
		status = r.URL.Query().Get("status")
	}

	goods, err := store.ListGoods(r.Context(), h.DB, e.ID, status)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list goods")
		return
	}
	if goods == nil {
		goods = []model.Goods{}
	}
	jsonResponse(w, http.StatusOK, goods)
}

// GetImage handles GET /api/goods/{id}/image.
func (h *CatalogHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	data, mime, err := store.GetGoodsImage(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

func validateEvent(e *model.Event) error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(e.Areas) > model.MaxEventAreas {
		return fmt.Errorf("at most %d areas allowed", model.MaxEventAreas)
	}
	for i, a := range e.Areas {
		if (a.Lat == nil) != (a.Lng == nil) {
			return fmt.Errorf("area %d: lat and lng must be set together", i)
		}
		if a.Lat != nil && (*a.Lat < -90 || *a.Lat > 90 || *a.Lng < -180 || *a.Lng > 180) {
			return fmt.Errorf("area %d: coordinates out of range", i)
		}
		if a.RadiusKm != nil && *a.RadiusKm <= 0 {
			return fmt.Errorf("area %d: radius must be positive", i)
		}
	}
	for _, w := range []model.Window{e.Registration, e.Trade} {
		if w.Start != nil && w.End != nil && w.End.Before(*w.Start) {
			return fmt.Errorf("window ends before it starts")
		}
	}
	return nil
}

// CreateEvent handles POST /api/admin/events.
func (h *CatalogHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var e model.Event
	if err := decodeJSON(r, &e); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateEvent(&e); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := store.CreateEvent(r.Context(), h.DB, &e)
	if err != nil {
		slog.Error("creating event", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	slog.Info("event created", "event", created.ID, "name", created.Name)
	jsonResponse(w, http.StatusCreated, created)
}

// UpdateEvent handles PUT /api/admin/events/{id}.
func (h *CatalogHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	existing, err := store.GetEvent(ctx, h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if existing == nil {
		jsonError(w, http.StatusNotFound, "event not found")
		return
	}

	var e model.Event
	if err := decodeJSON(r, &e); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e.ID = id
	if err := validateEvent(&e); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.UpdateEvent(ctx, h.DB, &e); err != nil {
		slog.Error("updating event", "event", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	updated, err := store.GetEvent(ctx, h.DB, id)
	if err != nil || updated == nil {
		jsonError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	h.inventoryChanged(r, id)
	jsonResponse(w, http.StatusOK, updated)
}

// CreateGoods handles POST /api/admin/goods.
func (h *CatalogHandler) CreateGoods(w http.ResponseWriter, r *http.Request) {
	var req goodsRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventID == "" || strings.TrimSpace(req.Name) == "" {
		jsonError(w, http.StatusBadRequest, "event_id and name required")
		return
	}

	e, err := store.GetEvent(r.Context(), h.DB, req.EventID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if e == nil {
		jsonError(w, http.StatusNotFound, "event not found")
		return
	}

	g, err := store.CreateGoods(r.Context(), h.DB, e.ID, strings.TrimSpace(req.Name), req.Category, req.Description)
	if err != nil {
		slog.Error("creating goods", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create goods")
		return
	}
	jsonResponse(w, http.StatusCreated, g)
}

// UpdateGoods handles PUT /api/admin/goods/{id}.
func (h *CatalogHandler) UpdateGoods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	g, err := store.GetGoods(ctx, h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get goods")
		return
	}
	if g == nil {
		jsonError(w, http.StatusNotFound, "goods not found")
		return
	}

	var req goodsRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}
	if req.Status == "" {
		req.Status = g.Status
	}
	if req.Status != model.GoodsStatusActive && req.Status != model.GoodsStatusInactive {
		jsonError(w, http.StatusBadRequest, "status must be active or inactive")
		return
	}

	if err := store.UpdateGoods(ctx, h.DB, id, strings.TrimSpace(req.Name), req.Category, req.Description, req.Status); err != nil {
		slog.Error("updating goods", "goods", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update goods")
		return
	}

	updated, err := store.GetGoods(ctx, h.DB, id)
	if err != nil || updated == nil {
		jsonError(w, http.StatusInternalServerError, "failed to get goods")
		return
	}
	if updated.Status != g.Status {
		h.inventoryChanged(r, g.EventID)
	}
	jsonResponse(w, http.StatusOK, updated)
}

// UploadImage handles PUT /api/admin/goods/{id}/image. The upload is
// normalised to a square JPEG thumbnail.
func (h *CatalogHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	g, err := store.GetGoods(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get goods")
		return
	}
	if g == nil {
		jsonError(w, http.StatusNotFound, "goods not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	thumb, err := imaging.Process(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetGoodsImage(r.Context(), h.DB, id, thumb.Data, thumb.MIME); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

func (h *CatalogHandler) inventoryChanged(r *http.Request, eventID string) {
	if h.Notifier == nil {
		return
	}
	ev := notify.NewEvent(notify.TypeInventoryChanged, nil)
	ev.EventID = eventID
	h.Notifier.NotifyEvent(r.Context(), eventID, ev)
}
