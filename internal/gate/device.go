package gate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/LOCAL2/itshard-items/internal/store"
)

// DeviceID returns this installation's stable identity, minting and
// persisting a fresh UUID on first use.
func (g *Gate) DeviceID() (string, error) {
	id, err := g.devices.Get(store.KeyDeviceID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("reading device id: %w", err)
	}

	id = uuid.NewString()
	if err := g.devices.Set(store.KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("saving device id: %w", err)
	}
	g.logger.Info("minted device id", "device_id", id)
	return id, nil
}
