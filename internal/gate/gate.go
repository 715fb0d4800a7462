// Package gate guards manager mode behind a device allowlist and a PIN with
// a shared lockout that is enforced on both the local store and the remote
// authority, so clearing local state does not bypass a lock.
package gate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/LOCAL2/itshard-items/internal/bus"
	"github.com/LOCAL2/itshard-items/internal/model"
	"github.com/LOCAL2/itshard-items/internal/store"
)

const (
	maxAttempts     = 3
	lockoutDuration = 10 * time.Minute
	resyncInterval  = 15 * time.Second
)

// Authority is the remote side of the lockout state.
type Authority interface {
	WhitelistExists(ctx context.Context, deviceID string) (bool, error)
	GetLock(ctx context.Context, deviceID string) (*model.LockState, error)
	SetLock(ctx context.Context, deviceID string, attempts int, lockedUntil *time.Time) error
	ResetLock(ctx context.Context, deviceID string) error
}

// ErrNotAllowed means the device id is not on the manager allowlist.
var ErrNotAllowed = errors.New("device not on manager allowlist")

// LockedError reports an active lockout and when it lifts.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("manager access locked until %s", e.Until.Format(time.RFC3339))
}

// WrongPINError reports a failed attempt and how many remain before lockout.
type WrongPINError struct {
	Remaining int
}

func (e *WrongPINError) Error() string {
	return fmt.Sprintf("wrong pin, %d attempts remaining", e.Remaining)
}

// Gate owns PIN verification, the attempt counter and the manager session.
type Gate struct {
	credential string
	authority  Authority
	devices    *store.DeviceStore
	broker     *bus.Broker
	logger     *slog.Logger
	now        func() time.Time

	resyncCancel context.CancelFunc
	resyncDone   chan struct{}
	focus        chan struct{}
}

// New builds a Gate. credential is either the plain PIN or a bcrypt hash of
// it; hashes are detected by their prefix.
func New(credential string, authority Authority, devices *store.DeviceStore, broker *bus.Broker, logger *slog.Logger) *Gate {
	return &Gate{
		credential: credential,
		authority:  authority,
		devices:    devices,
		broker:     broker,
		logger:     logger,
		now:        time.Now,
		focus:      make(chan struct{}, 1),
	}
}

func (g *Gate) verifyPIN(pin string) bool {
	if strings.HasPrefix(g.credential, "$2a$") ||
		strings.HasPrefix(g.credential, "$2b$") ||
		strings.HasPrefix(g.credential, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(g.credential), []byte(pin)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(g.credential), []byte(pin)) == 1
}

// CheckDevice reports whether this device may attempt manager access at all.
// While it is out there it also pulls the lockout record, so the local copy
// is fresh before any PIN prompt.
func (g *Gate) CheckDevice(ctx context.Context) (bool, error) {
	deviceID, err := g.DeviceID()
	if err != nil {
		return false, err
	}
	allowed, err := g.authority.WhitelistExists(ctx, deviceID)
	if err != nil {
		return false, err
	}
	if allowed {
		if err := g.resyncLock(ctx, deviceID); err != nil {
			g.logger.Warn("lock resync failed", "error", err)
		}
	}
	return allowed, nil
}

// SubmitPIN verifies one PIN attempt. The remote lock is re-read first so a
// lockout earned elsewhere (or one this device tried to wipe locally) is
// honored before the PIN is even looked at.
func (g *Gate) SubmitPIN(ctx context.Context, pin string) (model.ManagerSession, error) {
	deviceID, err := g.DeviceID()
	if err != nil {
		return model.ManagerSession{}, err
	}

	allowed, err := g.authority.WhitelistExists(ctx, deviceID)
	if err != nil {
		return model.ManagerSession{}, fmt.Errorf("checking allowlist: %w", err)
	}
	if !allowed {
		return model.ManagerSession{}, ErrNotAllowed
	}

	if err := g.resyncLock(ctx, deviceID); err != nil {
		// The local copy still enforces the last known state.
		g.logger.Warn("lock resync failed", "error", err)
	}

	now := g.now()
	attempts, lockedUntil := g.localLock()
	if lockedUntil != nil && now.Before(*lockedUntil) {
		return model.ManagerSession{}, &LockedError{Until: *lockedUntil}
	}
	if lockedUntil != nil && !now.Before(*lockedUntil) {
		// Lock has lapsed. Start the attempt counter over.
		attempts = 0
		lockedUntil = nil
		g.saveLocalLock(0, nil)
	}
	if attempts >= maxAttempts {
		until := now.Add(lockoutDuration)
		g.saveLocalLock(attempts, &until)
		return model.ManagerSession{}, &LockedError{Until: until}
	}

	if !g.verifyPIN(pin) {
		attempts++
		if attempts >= maxAttempts {
			until := now.Add(lockoutDuration)
			g.saveLocalLock(attempts, &until)
			if err := g.authority.SetLock(ctx, deviceID, attempts, &until); err != nil {
				g.logger.Warn("recording remote lockout failed", "error", err)
			}
			return model.ManagerSession{}, &LockedError{Until: until}
		}
		g.saveLocalLock(attempts, nil)
		if err := g.authority.SetLock(ctx, deviceID, attempts, nil); err != nil {
			g.logger.Warn("recording remote attempt failed", "error", err)
		}
		return model.ManagerSession{}, &WrongPINError{Remaining: maxAttempts - attempts}
	}

	// Correct PIN: clear the failure state on both layers and open a session.
	g.saveLocalLock(0, nil)
	if err := g.authority.ResetLock(ctx, deviceID); err != nil {
		g.logger.Warn("resetting remote lock failed", "error", err)
	}

	session := model.ManagerSession{
		Authenticated: true,
		Timestamp:     now.UnixMilli(),
		ExpiresAt:     now.Add(model.SessionDuration).UnixMilli(),
	}
	if err := g.saveSession(session); err != nil {
		return model.ManagerSession{}, fmt.Errorf("saving session: %w", err)
	}
	g.broker.Publish(bus.EventManagerSession)
	g.logger.Info("manager session opened", "device_id", deviceID)
	return session, nil
}

// LockStatus reports the current local attempt count and lockout deadline.
func (g *Gate) LockStatus() (attempts int, lockedUntil *time.Time) {
	return g.localLock()
}

func (g *Gate) localLock() (int, *time.Time) {
	attempts := 0
	if raw, err := g.devices.Get(store.KeyPinAttempts); err == nil {
		if n, err := strconv.Atoi(raw); err == nil {
			attempts = n
		}
	}
	var lockedUntil *time.Time
	if raw, err := g.devices.Get(store.KeyPinLockedUntil); err == nil {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			lockedUntil = &t
		}
	}
	return attempts, lockedUntil
}

func (g *Gate) saveLocalLock(attempts int, lockedUntil *time.Time) {
	if attempts == 0 {
		if err := g.devices.Delete(store.KeyPinAttempts); err != nil {
			g.logger.Warn("clearing attempt counter failed", "error", err)
		}
	} else if err := g.devices.Set(store.KeyPinAttempts, strconv.Itoa(attempts)); err != nil {
		g.logger.Warn("saving attempt counter failed", "error", err)
	}
	if lockedUntil == nil {
		if err := g.devices.Delete(store.KeyPinLockedUntil); err != nil {
			g.logger.Warn("clearing lockout failed", "error", err)
		}
	} else if err := g.devices.Set(store.KeyPinLockedUntil, lockedUntil.UTC().Format(time.RFC3339)); err != nil {
		g.logger.Warn("saving lockout failed", "error", err)
	}
}

// resyncLock pulls the remote lock row and overwrites the local copy with it.
func (g *Gate) resyncLock(ctx context.Context, deviceID string) error {
	lock, err := g.authority.GetLock(ctx, deviceID)
	if err != nil {
		return err
	}
	if lock == nil {
		g.saveLocalLock(0, nil)
		return nil
	}
	g.saveLocalLock(lock.Attempts, lock.LockedUntil)
	return nil
}
