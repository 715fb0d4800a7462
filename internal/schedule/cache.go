// Package schedule maintains the local mirror of per-item schedule windows.
// The remote store is authoritative: writes go remote-first and only land in
// the mirror once the remote accepted them.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LOCAL2/itshard-items/internal/bus"
	"github.com/LOCAL2/itshard-items/internal/model"
	"github.com/LOCAL2/itshard-items/internal/store"
)

// Remote is the schedule slice of the remote store.
type Remote interface {
	ListSchedules(ctx context.Context) (map[string]model.ScheduleWindow, error)
	UpsertSchedule(ctx context.Context, itemID string, w model.ScheduleWindow) error
	UpsertSchedules(ctx context.Context, itemIDs []string, w model.ScheduleWindow) error
	DeleteSchedule(ctx context.Context, itemID string) error
	DeleteSchedules(ctx context.Context, itemIDs []string) error
}

// Cache is the write-through schedule mirror.
type Cache struct {
	remote Remote
	mirror *store.ScheduleStore
	broker *bus.Broker
	logger *slog.Logger
}

func NewCache(remote Remote, mirror *store.ScheduleStore, broker *bus.Broker, logger *slog.Logger) *Cache {
	return &Cache{remote: remote, mirror: mirror, broker: broker, logger: logger}
}

// GetAll returns every mirrored window keyed by item id.
func (c *Cache) GetAll() (map[string]model.ScheduleWindow, error) {
	return c.mirror.GetAll()
}

// Get returns the window for one item, with ok=false when none is set.
func (c *Cache) Get(itemID string) (model.ScheduleWindow, bool, error) {
	all, err := c.mirror.GetAll()
	if err != nil {
		return model.ScheduleWindow{}, false, err
	}
	w, ok := all[itemID]
	return w, ok, nil
}

// Hydrate replaces the whole mirror with the remote's current rows and
// announces the change. On fetch failure the existing mirror is kept and
// returned, so readers degrade to the last known state.
func (c *Cache) Hydrate(ctx context.Context) (map[string]model.ScheduleWindow, error) {
	fetched, err := c.remote.ListSchedules(ctx)
	if err != nil {
		c.logger.Warn("schedule hydration failed, keeping mirror", "error", err)
		stale, readErr := c.mirror.GetAll()
		if readErr != nil {
			return nil, fmt.Errorf("hydrating schedules: %w", err)
		}
		return stale, nil
	}
	if err := c.mirror.ReplaceAll(fetched); err != nil {
		return nil, fmt.Errorf("replacing schedule mirror: %w", err)
	}
	c.broker.Publish(bus.EventSchedulesUpdated)
	return fetched, nil
}

// Set writes one item's window remote-first, then mirrors it.
func (c *Cache) Set(ctx context.Context, itemID string, w model.ScheduleWindow) error {
	if err := c.remote.UpsertSchedule(ctx, itemID, w); err != nil {
		return fmt.Errorf("saving schedule for %s: %w", itemID, err)
	}
	if err := c.mirror.Upsert(itemID, w); err != nil {
		return fmt.Errorf("mirroring schedule for %s: %w", itemID, err)
	}
	c.broker.Publish(bus.EventSchedulesUpdated)
	return nil
}

// SetMany applies one window to several items in a single remote write.
func (c *Cache) SetMany(ctx context.Context, itemIDs []string, w model.ScheduleWindow) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if err := c.remote.UpsertSchedules(ctx, itemIDs, w); err != nil {
		return fmt.Errorf("saving schedules: %w", err)
	}
	for _, id := range itemIDs {
		if err := c.mirror.Upsert(id, w); err != nil {
			return fmt.Errorf("mirroring schedule for %s: %w", id, err)
		}
	}
	c.broker.Publish(bus.EventSchedulesUpdated)
	return nil
}

// Remove clears one item's window remote-first.
func (c *Cache) Remove(ctx context.Context, itemID string) error {
	if err := c.remote.DeleteSchedule(ctx, itemID); err != nil {
		return fmt.Errorf("removing schedule for %s: %w", itemID, err)
	}
	if err := c.mirror.Delete(itemID); err != nil {
		return fmt.Errorf("unmirroring schedule for %s: %w", itemID, err)
	}
	c.broker.Publish(bus.EventSchedulesUpdated)
	return nil
}

// RemoveMany clears windows for several items in a single remote write.
func (c *Cache) RemoveMany(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if err := c.remote.DeleteSchedules(ctx, itemIDs); err != nil {
		return fmt.Errorf("removing schedules: %w", err)
	}
	for _, id := range itemIDs {
		if err := c.mirror.Delete(id); err != nil {
			return fmt.Errorf("unmirroring schedule for %s: %w", id, err)
		}
	}
	c.broker.Publish(bus.EventSchedulesUpdated)
	return nil
}
