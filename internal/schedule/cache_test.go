package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/LOCAL2/itshard-items/internal/bus"
	"github.com/LOCAL2/itshard-items/internal/database"
	"github.com/LOCAL2/itshard-items/internal/model"
	"github.com/LOCAL2/itshard-items/internal/store"
)

type fakeRemote struct {
	schedules map[string]model.ScheduleWindow
	failWith  error
}

func (f *fakeRemote) ListSchedules(ctx context.Context) (map[string]model.ScheduleWindow, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make(map[string]model.ScheduleWindow, len(f.schedules))
	for k, v := range f.schedules {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRemote) UpsertSchedule(ctx context.Context, itemID string, w model.ScheduleWindow) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.schedules[itemID] = w
	return nil
}

func (f *fakeRemote) UpsertSchedules(ctx context.Context, itemIDs []string, w model.ScheduleWindow) error {
	if f.failWith != nil {
		return f.failWith
	}
	for _, id := range itemIDs {
		f.schedules[id] = w
	}
	return nil
}

func (f *fakeRemote) DeleteSchedule(ctx context.Context, itemID string) error {
	if f.failWith != nil {
		return f.failWith
	}
	delete(f.schedules, itemID)
	return nil
}

func (f *fakeRemote) DeleteSchedules(ctx context.Context, itemIDs []string) error {
	if f.failWith != nil {
		return f.failWith
	}
	for _, id := range itemIDs {
		delete(f.schedules, id)
	}
	return nil
}

func newTestCache(t *testing.T, remote *fakeRemote) *Cache {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCache(remote, store.NewScheduleStore(db), bus.NewBroker(), logger)
}

func window(start, end string) model.ScheduleWindow {
	return model.ScheduleWindow{StartISO: start, EndISO: end}
}

func TestHydrateReplacesMirror(t *testing.T) {
	remote := &fakeRemote{schedules: map[string]model.ScheduleWindow{
		"a": window("2025-01-01", "2025-01-07"),
	}}
	c := newTestCache(t, remote)

	// Seed a stale entry that the remote no longer has.
	if err := c.mirror.Upsert("stale", window("2024-01-01", "2024-01-02")); err != nil {
		t.Fatalf("seeding mirror: %v", err)
	}

	got, err := c.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if len(got) != 1 || got["a"].StartISO != "2025-01-01" {
		t.Errorf("hydrated = %v", got)
	}
	mirrored, _ := c.GetAll()
	if _, ok := mirrored["stale"]; ok {
		t.Error("stale entry survived hydration")
	}
}

func TestHydrateKeepsMirrorOnFailure(t *testing.T) {
	remote := &fakeRemote{schedules: map[string]model.ScheduleWindow{}}
	c := newTestCache(t, remote)
	if err := c.mirror.Upsert("a", window("2025-01-01", "2025-01-07")); err != nil {
		t.Fatalf("seeding mirror: %v", err)
	}

	remote.failWith = errors.New("remote down")
	got, err := c.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("Hydrate should degrade, got error %v", err)
	}
	if len(got) != 1 || got["a"].StartISO != "2025-01-01" {
		t.Errorf("degraded hydrate = %v, want last known mirror", got)
	}
}

func TestSetWritesRemoteFirst(t *testing.T) {
	remote := &fakeRemote{schedules: map[string]model.ScheduleWindow{}, failWith: errors.New("remote down")}
	c := newTestCache(t, remote)

	if err := c.Set(context.Background(), "a", window("2025-01-01", "2025-01-07")); err == nil {
		t.Fatal("Set succeeded with broken remote")
	}
	mirrored, _ := c.GetAll()
	if len(mirrored) != 0 {
		t.Errorf("failed remote write landed in mirror: %v", mirrored)
	}

	remote.failWith = nil
	if err := c.Set(context.Background(), "a", window("2025-01-01", "2025-01-07")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if w, ok, _ := c.Get("a"); !ok || w.EndISO != "2025-01-07" {
		t.Errorf("mirror after Set = %v, %v", w, ok)
	}
	if remote.schedules["a"].StartISO != "2025-01-01" {
		t.Errorf("remote after Set = %v", remote.schedules)
	}
}

func TestSetManyAndRemoveMany(t *testing.T) {
	remote := &fakeRemote{schedules: map[string]model.ScheduleWindow{}}
	c := newTestCache(t, remote)
	ctx := context.Background()

	w := window("2025-02-01", "2025-02-14")
	if err := c.SetMany(ctx, []string{"a", "b", "c"}, w); err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	mirrored, _ := c.GetAll()
	if len(mirrored) != 3 {
		t.Fatalf("mirror after SetMany = %v", mirrored)
	}

	if err := c.RemoveMany(ctx, []string{"a", "c"}); err != nil {
		t.Fatalf("RemoveMany: %v", err)
	}
	mirrored, _ = c.GetAll()
	if len(mirrored) != 1 {
		t.Errorf("mirror after RemoveMany = %v", mirrored)
	}
	if _, ok := mirrored["b"]; !ok {
		t.Error("untouched entry removed")
	}

	// Empty batches are no-ops, not remote calls.
	remote.failWith = errors.New("remote down")
	if err := c.SetMany(ctx, nil, w); err != nil {
		t.Errorf("empty SetMany: %v", err)
	}
	if err := c.RemoveMany(ctx, nil); err != nil {
		t.Errorf("empty RemoveMany: %v", err)
	}
}

func TestHydratePublishesEvent(t *testing.T) {
	remote := &fakeRemote{schedules: map[string]model.ScheduleWindow{}}
	c := newTestCache(t, remote)

	fired := false
	dispose := c.broker.Subscribe(bus.EventSchedulesUpdated, func() { fired = true })
	defer dispose()

	if _, err := c.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if !fired {
		t.Error("hydration did not announce schedule update")
	}
}
