package push

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/LOCAL2/itshard-items/internal/store"
)

// Broadcaster fans change summaries out to every registered subscription,
// honoring the device-level notifications preference.
type Broadcaster struct {
	service *Service
	subs    *store.PushStore
	devices *store.DeviceStore
	logger  *slog.Logger
}

func NewBroadcaster(service *Service, subs *store.PushStore, devices *store.DeviceStore, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{service: service, subs: subs, devices: devices, logger: logger}
}

func (b *Broadcaster) enabled() bool {
	val, err := b.devices.Get(store.KeyNotificationsPref)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		b.logger.Warn("reading notifications preference", "error", err)
		return false
	}
	return val == "true"
}

// Broadcast sends one change summary to all subscriptions. Expired
// subscriptions are pruned on the way; other failures are logged and the
// remaining subscriptions still get their copy.
func (b *Broadcaster) Broadcast(collection, summary string) {
	if summary == "" || !b.enabled() {
		return
	}

	subs, err := b.subs.List()
	if err != nil {
		b.logger.Warn("listing push subscriptions", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	title := "Items updated"
	tag := "items-changed"
	if collection == "members" {
		title = "Members updated"
		tag = "members-changed"
	}
	payload := Payload{
		Title: title,
		Body:  summary,
		Tag:   tag,
	}

	for _, sub := range subs {
		if err := b.service.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := b.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
					b.logger.Warn("pruning expired subscription", "error", err)
				}
				continue
			}
			b.logger.Warn("push send failed", "endpoint", sub.Endpoint, "error", err)
		}
	}
}

// Announce sends a one-off notification, used for manual test pushes.
func (b *Broadcaster) Announce(title, body string) error {
	subs, err := b.subs.List()
	if err != nil {
		return fmt.Errorf("listing push subscriptions: %w", err)
	}
	for _, sub := range subs {
		if err := b.service.Send(&sub, Payload{Title: title, Body: body}); err != nil && !errors.Is(err, ErrExpired) {
			return err
		}
	}
	return nil
}
