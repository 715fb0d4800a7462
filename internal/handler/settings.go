package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/LOCAL2/itshard-items/internal/bus"
	"github.com/LOCAL2/itshard-items/internal/store"
	"github.com/LOCAL2/itshard-items/internal/websocket"
)

// prefs maps the settable preference names to their KV keys and bus events.
var prefs = map[string]struct {
	key   string
	event string
}{
	"notifications_enabled": {store.KeyNotificationsPref, bus.EventNotificationsChanged},
	"theme_mode":            {store.KeyThemeMode, bus.EventThemeChanged},
	"show_calendar_view":    {store.KeyShowCalendar, bus.EventCalendarChanged},
}

type SettingsHandler struct {
	devices *store.DeviceStore
	broker  *bus.Broker
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewSettingsHandler(devices *store.DeviceStore, broker *bus.Broker, hub *websocket.Hub, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{devices: devices, broker: broker, hub: hub, logger: logger}
}

// Get returns all known preferences with defaults for unset ones.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"notifications_enabled": "false",
		"theme_mode":            "light",
		"show_calendar_view":    "false",
	}
	for name, p := range prefs {
		val, err := h.devices.Get(p.key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			h.logger.Error("reading preference", "name", name, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read settings")
			return
		}
		resp[name] = val
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update writes the submitted preferences and announces each change on the
// bus so in-process listeners (push gating, theme, calendar) react at once.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "no settings provided")
		return
	}

	for name, value := range req {
		p, ok := prefs[name]
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown setting: "+name)
			return
		}
		if name != "theme_mode" {
			if _, err := strconv.ParseBool(value); err != nil {
				writeError(w, http.StatusBadRequest, name+" must be true or false")
				return
			}
		}
		if err := h.devices.Set(p.key, value); err != nil {
			h.logger.Error("saving preference", "name", name, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		h.broker.Publish(p.event)
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntitySettings, "updated", "", nil))
	w.WriteHeader(http.StatusNoContent)
}
