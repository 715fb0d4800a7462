package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LOCAL2/itshard-items/internal/bus"
	"github.com/LOCAL2/itshard-items/internal/model"
	"github.com/LOCAL2/itshard-items/internal/store"
)

func (g *Gate) saveSession(s model.ManagerSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return g.devices.Set(store.KeyManagerSession, string(raw))
}

// Session returns the current manager session, or nil when none is open.
// An expired session is cleared as a side effect.
func (g *Gate) Session() (*model.ManagerSession, error) {
	raw, err := g.devices.Get(store.KeyManagerSession)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var s model.ManagerSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		// A corrupt session is treated like no session at all.
		g.logger.Warn("discarding unreadable session", "error", err)
		_ = g.devices.Delete(store.KeyManagerSession)
		return nil, nil
	}
	if !s.ValidAt(g.now()) {
		if err := g.Logout(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &s, nil
}

// Authenticated reports whether a valid manager session is open.
func (g *Gate) Authenticated() bool {
	s, err := g.Session()
	if err != nil {
		g.logger.Warn("session check failed", "error", err)
		return false
	}
	return s != nil
}

// SessionTimeLeft reports how long the current session remains valid, zero
// when none is open.
func (g *Gate) SessionTimeLeft() time.Duration {
	s, err := g.Session()
	if err != nil || s == nil {
		return 0
	}
	left := time.UnixMilli(s.ExpiresAt).Sub(g.now())
	if left < 0 {
		return 0
	}
	return left
}

// Logout discards the manager session and announces the change.
func (g *Gate) Logout() error {
	if err := g.devices.Delete(store.KeyManagerSession); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	g.broker.Publish(bus.EventManagerSession)
	return nil
}
