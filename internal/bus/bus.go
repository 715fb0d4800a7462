// Package bus is a process-local publish/subscribe broker used to decouple
// the caches and settings writers from the UI surfaces that render them.
// Events carry no payload beyond their name; listeners re-read whatever state
// they care about.
package bus

import "sync"

// Event names published by the agent.
const (
	EventSchedulesUpdated     = "item-schedules-updated"
	EventManagerSession       = "manager-session-changed"
	EventNotificationsChanged = "notifications-changed"
	EventThemeChanged         = "theme-changed"
	EventCalendarChanged      = "show-calendar-changed"
)

// Broker holds an explicit observer list per event name. Subscribe returns a
// disposer; there is no delivery guarantee beyond "registered at dispatch
// time, receives it", and handlers run synchronously on the publishing
// goroutine.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func()
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]func())}
}

// Subscribe registers fn for the named event and returns a disposer that
// removes the registration. Disposing twice is harmless.
func (b *Broker) Subscribe(event string, fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[event] == nil {
		b.subs[event] = make(map[int]func())
	}
	b.subs[event][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[event], id)
	}
}

// Publish invokes every listener currently registered for the named event.
func (b *Broker) Publish(event string) {
	b.mu.RLock()
	fns := make([]func(), 0, len(b.subs[event]))
	for _, fn := range b.subs[event] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// ListenerCount returns the number of live registrations for the event.
func (b *Broker) ListenerCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}
