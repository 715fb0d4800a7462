package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/LOCAL2/itshard-items/internal/model"
	"github.com/LOCAL2/itshard-items/internal/schedule"
	"github.com/LOCAL2/itshard-items/internal/websocket"
)

type ScheduleHandler struct {
	cache  *schedule.Cache
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewScheduleHandler(cache *schedule.Cache, hub *websocket.Hub, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{cache: cache, hub: hub, logger: logger}
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.cache.GetAll()
	if err != nil {
		h.logger.Error("reading schedule mirror", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read schedules")
		return
	}
	if all == nil {
		all = map[string]model.ScheduleWindow{}
	}
	writeJSON(w, http.StatusOK, all)
}

// Hydrate re-pulls all windows from the remote store. Serves the last known
// mirror when the remote is unreachable.
func (h *ScheduleHandler) Hydrate(w http.ResponseWriter, r *http.Request) {
	all, err := h.cache.Hydrate(r.Context())
	if err != nil {
		h.logger.Error("hydrating schedules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to hydrate schedules")
		return
	}
	h.hub.Broadcast(websocket.NewMessage(websocket.EntitySchedule, "hydrated", "", nil))
	writeJSON(w, http.StatusOK, all)
}

func (h *ScheduleHandler) Set(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req model.ScheduleWindow
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.StartISO == "" || req.EndISO == "" {
		writeError(w, http.StatusBadRequest, "startISO and endISO are required")
		return
	}

	if err := h.cache.Set(r.Context(), itemID, req); err != nil {
		h.logger.Error("saving schedule", "item_id", itemID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to save schedule")
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntitySchedule, "updated", itemID, nil))
	writeJSON(w, http.StatusOK, req)
}

func (h *ScheduleHandler) SetMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs   []string `json:"ids"`
		Start string   `json:"startISO"`
		End   string   `json:"endISO"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}
	if req.Start == "" || req.End == "" {
		writeError(w, http.StatusBadRequest, "startISO and endISO are required")
		return
	}

	window := model.ScheduleWindow{StartISO: req.Start, EndISO: req.End}
	if err := h.cache.SetMany(r.Context(), req.IDs, window); err != nil {
		h.logger.Error("saving schedules", "error", err)
		writeError(w, http.StatusBadGateway, "failed to save schedules")
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntitySchedule, "updated", "", nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) Remove(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.cache.Remove(r.Context(), itemID); err != nil {
		h.logger.Error("removing schedule", "item_id", itemID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to remove schedule")
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntitySchedule, "deleted", itemID, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) RemoveMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}

	if err := h.cache.RemoveMany(r.Context(), req.IDs); err != nil {
		h.logger.Error("removing schedules", "error", err)
		writeError(w, http.StatusBadGateway, "failed to remove schedules")
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntitySchedule, "deleted", "", nil))
	w.WriteHeader(http.StatusNoContent)
}
