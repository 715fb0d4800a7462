package handler

import (
	"net/http"
	"time"

	"github.com/LOCAL2/itshard-items/internal/sync"
	"github.com/LOCAL2/itshard-items/internal/websocket"
)

type StatsHandler struct {
	engine *sync.Engine
	hub    *websocket.Hub
}

func NewStatsHandler(engine *sync.Engine, hub *websocket.Hub) *StatsHandler {
	return &StatsHandler{engine: engine, hub: hub}
}

// Stats serves completion counts computed from the engine snapshot. No
// remote round trip: the snapshot is at most one poll old.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

// Status reports sync freshness for the footer indicator.
func (h *StatsHandler) Status(w http.ResponseWriter, r *http.Request) {
	lastUpdated, count := h.engine.LastUpdated()
	resp := map[string]any{
		"update_count": count,
		"ws_clients":   h.hub.ClientCount(),
		"polling":      h.engine.Visible(),
	}
	if !lastUpdated.IsZero() {
		resp["last_updated"] = lastUpdated.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Visibility pauses or resumes polling by hand. The normal driver is the
// websocket client count; this is the manager's override for maintenance.
func (h *StatsHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	h.engine.SetVisible(req.Visible)
	w.WriteHeader(http.StatusNoContent)
}
