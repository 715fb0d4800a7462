package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LOCAL2/itshard-items/internal/model"
)

type fakeSource struct {
	members []model.Member
	items   []model.Item
	err     error
	calls   atomic.Int64
}

func (f *fakeSource) ListMembers(ctx context.Context) ([]model.Member, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Member, len(f.members))
	copy(out, f.members)
	return out, nil
}

func (f *fakeSource) ListItems(ctx context.Context) ([]model.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Item, len(f.items))
	copy(out, f.items)
	return out, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T, src *fakeSource, clk *fakeClock, opts ...Option) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return NewEngine(src, logger, opts...)
}

func TestTickRefreshesSnapshots(t *testing.T) {
	src := &fakeSource{
		members: []model.Member{{ID: "1", Name: "Alice", Status: model.StatusNotSubmitted}},
		items:   []model.Item{{ID: "a", Name: "rice", Quantity: 2, Unit: "kg"}},
	}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(t, src, clk)

	e.tick(context.Background())

	if got := e.Members(); len(got) != 1 || got[0].Name != "Alice" {
		t.Errorf("members = %v", got)
	}
	if got := e.Items(); len(got) != 1 || got[0].Name != "rice" {
		t.Errorf("items = %v", got)
	}
	if _, count := e.LastUpdated(); count != 1 {
		t.Errorf("update count = %d, want 1", count)
	}
}

func TestTickKeepsSnapshotOnError(t *testing.T) {
	src := &fakeSource{
		members: []model.Member{{ID: "1", Name: "Alice", Status: model.StatusNotSubmitted}},
	}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(t, src, clk)
	e.tick(context.Background())

	src.err = errors.New("remote down")
	clk.Advance(5 * time.Second)
	e.tick(context.Background())

	if got := e.Members(); len(got) != 1 {
		t.Errorf("snapshot lost on error: %v", got)
	}
	if _, count := e.LastUpdated(); count != 1 {
		t.Errorf("failed tick counted as update: %d", count)
	}
}

func TestGuardWindowSuppressesPolls(t *testing.T) {
	src := &fakeSource{}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(t, src, clk)

	e.MarkLocalEdit()

	clk.Advance(2999 * time.Millisecond)
	e.tick(context.Background())
	if got := src.calls.Load(); got != 0 {
		t.Errorf("tick inside guard window fetched %d times", got)
	}

	clk.Advance(2 * time.Millisecond)
	e.tick(context.Background())
	if got := src.calls.Load(); got != 1 {
		t.Errorf("tick after guard window fetched %d times, want 1", got)
	}
}

func TestHiddenEngineSkipsPolls(t *testing.T) {
	src := &fakeSource{}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(t, src, clk)

	e.SetVisible(false)
	e.tick(context.Background())
	if got := src.calls.Load(); got != 0 {
		t.Errorf("hidden tick fetched %d times", got)
	}

	e.SetVisible(true)
	e.tick(context.Background())
	if got := src.calls.Load(); got != 1 {
		t.Errorf("visible tick fetched %d times, want 1", got)
	}
}

type blockingSource struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func (b *blockingSource) ListMembers(ctx context.Context) ([]model.Member, error) {
	b.calls.Add(1)
	b.entered <- struct{}{}
	<-b.release
	return nil, nil
}

func (b *blockingSource) ListItems(ctx context.Context) ([]model.Item, error) {
	return nil, nil
}

func TestOverlappingTickSkipped(t *testing.T) {
	// entered is buffered so the post-release tick does not block on it.
	src := &blockingSource{entered: make(chan struct{}, 1), release: make(chan struct{})}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(src, logger, WithClock(clk.Now))

	done := make(chan struct{})
	go func() {
		e.tick(context.Background())
		close(done)
	}()
	<-src.entered

	// A tick arriving while the first is still fetching returns without
	// touching the source.
	e.tick(context.Background())
	if got := src.calls.Load(); got != 1 {
		t.Errorf("overlapping tick fetched, calls = %d", got)
	}

	close(src.release)
	<-done

	clk.Advance(time.Second)
	e.tick(context.Background())
	if got := src.calls.Load(); got != 2 {
		t.Errorf("tick after completion fetched %d times, want 2", got)
	}
}

func TestOverrideWinsUntilTTL(t *testing.T) {
	src := &fakeSource{
		members: []model.Member{{ID: "1", Name: "Alice", Status: model.StatusNotSubmitted}},
	}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(t, src, clk)
	e.tick(context.Background())

	e.OverrideStatus("1", model.StatusSubmitted)
	if got := e.Members()[0].Status; got != model.StatusSubmitted {
		t.Fatalf("override not applied locally: %s", got)
	}

	// Remote still reports the stale status one second later. The guard
	// window has passed by then but the override has not.
	clk.Advance(5 * time.Second)
	e.tick(context.Background())
	if got := e.Members()[0].Status; got != model.StatusSubmitted {
		t.Errorf("stale remote overwrote live override: %s", got)
	}

	// Past the TTL the remote value wins again.
	clk.Advance(60 * time.Second)
	e.tick(context.Background())
	if got := e.Members()[0].Status; got != model.StatusNotSubmitted {
		t.Errorf("expired override still applied: %s", got)
	}
}

func TestOverrideDroppedWhenRemoteConfirms(t *testing.T) {
	src := &fakeSource{
		members: []model.Member{{ID: "1", Name: "Alice", Status: model.StatusNotSubmitted}},
	}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(t, src, clk)
	e.tick(context.Background())

	e.OverrideStatus("1", model.StatusSubmitted)
	src.members[0].Status = model.StatusSubmitted
	clk.Advance(5 * time.Second)
	e.tick(context.Background())

	e.mu.Lock()
	n := len(e.overrides)
	e.mu.Unlock()
	if n != 0 {
		t.Errorf("confirmed override not dropped, %d left", n)
	}
}

func TestNoticeCooldownPerCollection(t *testing.T) {
	src := &fakeSource{
		members: []model.Member{{ID: "1", Name: "Alice", Status: model.StatusNotSubmitted}},
	}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	var notices []Notice
	e := newTestEngine(t, src, clk, WithNotices(func(n Notice) { notices = append(notices, n) }))
	e.tick(context.Background())

	if len(notices) != 1 || notices[0].Collection != "members" {
		t.Fatalf("first change not noticed: %v", notices)
	}

	// A second change inside the cooldown stays quiet.
	src.members[0].Status = model.StatusSubmitted
	clk.Advance(5 * time.Second)
	e.tick(context.Background())
	if len(notices) != 1 {
		t.Errorf("notice inside cooldown emitted: %v", notices)
	}

	// After the cooldown window the next change is reported again.
	src.members[0].Status = model.StatusNotSubmitted
	clk.Advance(10 * time.Second)
	e.tick(context.Background())
	if len(notices) != 2 {
		t.Errorf("notice after cooldown missing: %v", notices)
	}
}

func TestNoticeSummaryCapped(t *testing.T) {
	src := &fakeSource{
		members: []model.Member{
			{ID: "1", Name: "Alice", Status: model.StatusNotSubmitted},
			{ID: "2", Name: "Bob", Status: model.StatusNotSubmitted},
			{ID: "3", Name: "Cara", Status: model.StatusNotSubmitted},
		},
	}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	var notices []Notice
	e := newTestEngine(t, src, clk, WithNotices(func(n Notice) { notices = append(notices, n) }))

	e.tick(context.Background())

	if len(notices) != 1 {
		t.Fatalf("notices = %v", notices)
	}
	want := "added Alice • added Bob (+1)"
	if notices[0].Summary != want {
		t.Errorf("summary = %q, want %q", notices[0].Summary, want)
	}
}

func TestApplyLocalMutations(t *testing.T) {
	src := &fakeSource{}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(t, src, clk)

	e.ApplyMemberUpsert(model.Member{ID: "1", Name: "Alice", Status: model.StatusNotSubmitted})
	e.ApplyMemberUpsert(model.Member{ID: "1", Name: "Alicia", Status: model.StatusNotSubmitted})
	if got := e.Members(); len(got) != 1 || got[0].Name != "Alicia" {
		t.Errorf("member upsert = %v", got)
	}
	e.ApplyMemberDelete("1")
	if got := e.Members(); len(got) != 0 {
		t.Errorf("member delete left %v", got)
	}

	e.ApplyItemUpsert(model.Item{ID: "a", Name: "rice", Quantity: 1, Unit: "kg"})
	e.ApplyItems([]model.Item{
		{ID: "b", Name: "milk", Quantity: 1, Unit: "l"},
		{ID: "a", Name: "rice", Quantity: 1, Unit: "kg"},
	})
	if got := e.Items(); len(got) != 2 || got[0].ID != "b" {
		t.Errorf("item replace = %v", got)
	}
}

func TestStats(t *testing.T) {
	src := &fakeSource{
		members: []model.Member{
			{ID: "1", Status: model.StatusSubmitted},
			{ID: "2", Status: model.StatusSubmitted},
			{ID: "3", Status: model.StatusNotSubmitted},
			{ID: "4", Status: model.StatusNotSubmitted},
		},
	}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(t, src, clk)
	e.tick(context.Background())

	stats := e.Stats()
	if stats.Total != 4 || stats.Submitted != 2 || stats.NotSubmitted != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.CompletionRate != 50 {
		t.Errorf("completion rate = %v, want 50", stats.CompletionRate)
	}
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(t, src, clk, WithInterval(10*time.Millisecond))

	e.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	e.Stop()

	if got := src.calls.Load(); got == 0 {
		t.Error("engine never polled")
	}
}
