package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/LOCAL2/itshard-items/internal/gate"
	"github.com/LOCAL2/itshard-items/internal/websocket"
)

type ManagerHandler struct {
	gate   *gate.Gate
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewManagerHandler(g *gate.Gate, hub *websocket.Hub, logger *slog.Logger) *ManagerHandler {
	return &ManagerHandler{gate: g, hub: hub, logger: logger}
}

// SubmitPIN runs one PIN attempt. Lockouts and attempt counts map onto HTTP
// statuses; the remaining-attempt count rides along so the UI can warn.
func (h *ManagerHandler) SubmitPIN(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.PIN == "" {
		writeError(w, http.StatusBadRequest, "pin is required")
		return
	}

	session, err := h.gate.SubmitPIN(r.Context(), req.PIN)
	if err != nil {
		var locked *gate.LockedError
		var wrong *gate.WrongPINError
		switch {
		case errors.Is(err, gate.ErrNotAllowed):
			writeError(w, http.StatusForbidden, "device not allowed")
		case errors.As(err, &locked):
			writeJSON(w, http.StatusLocked, map[string]any{
				"error":       "locked",
				"lockedUntil": locked.Until.UTC().Format(time.RFC3339),
			})
		case errors.As(err, &wrong):
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":             "wrong pin",
				"attemptsRemaining": wrong.Remaining,
			})
		default:
			h.logger.Error("pin submission", "error", err)
			writeError(w, http.StatusInternalServerError, "pin check failed")
		}
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntitySession, "opened", "", nil))
	writeJSON(w, http.StatusOK, session)
}

// Session reports the current auth state plus lockout status, which is what
// the manager view needs to render its lock screen.
func (h *ManagerHandler) Session(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"authenticated": false,
	}

	session, err := h.gate.Session()
	if err != nil {
		h.logger.Error("reading session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read session")
		return
	}
	if session != nil {
		resp["authenticated"] = true
		resp["expiresAt"] = session.ExpiresAt
		resp["timeLeftMs"] = h.gate.SessionTimeLeft().Milliseconds()
	}

	attempts, lockedUntil := h.gate.LockStatus()
	resp["attempts"] = attempts
	if lockedUntil != nil {
		resp["lockedUntil"] = lockedUntil.UTC().Format(time.RFC3339)
	}

	if allowed, err := h.gate.CheckDevice(r.Context()); err == nil {
		resp["allowed"] = allowed
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *ManagerHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Logout(); err != nil {
		h.logger.Error("logout", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	h.hub.Broadcast(websocket.NewMessage(websocket.EntitySession, "closed", "", nil))
	w.WriteHeader(http.StatusNoContent)
}

// Focus mirrors a UI foreground event: wake the lock resync loop.
func (h *ManagerHandler) Focus(w http.ResponseWriter, r *http.Request) {
	h.gate.Focus()
	w.WriteHeader(http.StatusNoContent)
}
