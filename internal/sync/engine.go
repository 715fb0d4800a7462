// Package sync keeps a local snapshot of the remote member and item
// collections by polling, merging remote rows with short-lived local
// overrides and suppressing self-echo after local edits.
package sync

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/LOCAL2/itshard-items/internal/model"
)

const (
	// DefaultPollInterval is how often the engine refreshes from the remote.
	DefaultPollInterval = time.Second

	// guardWindow suppresses polls right after a local edit so a stale
	// remote read cannot clobber what the user just did.
	guardWindow = 3 * time.Second

	// overrideTTL bounds how long a local status override keeps winning
	// over remote rows that have not caught up yet.
	overrideTTL = 60 * time.Second

	// noticeCooldown rate-limits change notices per collection.
	noticeCooldown = 10 * time.Second
)

// Source lists the remote collections the engine mirrors.
type Source interface {
	ListMembers(ctx context.Context) ([]model.Member, error)
	ListItems(ctx context.Context) ([]model.Item, error)
}

// Notice is a capped, human-readable summary of remote changes in one
// collection, emitted at most once per cooldown window.
type Notice struct {
	Collection string // "members" or "items"
	Summary    string
}

type statusOverride struct {
	status  model.Status
	expires time.Time
}

// Engine polls a Source and maintains merged in-memory snapshots.
type Engine struct {
	source Source
	logger *slog.Logger
	now    func() time.Time

	interval time.Duration
	onNotice func(Notice)
	onApply  func(membersChanged, itemsChanged bool)

	mu          stdsync.Mutex
	members     []model.Member
	items       []model.Item
	overrides   map[string]statusOverride
	guardUntil  time.Time
	visible     bool
	inFlight    bool
	lastNotice  map[string]time.Time
	lastUpdated time.Time
	updateCount int

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNotices registers a callback for change summaries.
func WithNotices(fn func(Notice)) Option {
	return func(e *Engine) { e.onNotice = fn }
}

// WithOnApply registers a callback invoked after each refresh that changed
// a snapshot, for fan-out to connected clients.
func WithOnApply(fn func(membersChanged, itemsChanged bool)) Option {
	return func(e *Engine) { e.onApply = fn }
}

func NewEngine(source Source, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		source:     source,
		logger:     logger,
		now:        time.Now,
		interval:   DefaultPollInterval,
		overrides:  make(map[string]statusOverride),
		visible:    true,
		lastNotice: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start runs the poll loop until the context is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)

		// Prime the snapshots before the first tick fires.
		e.tick(ctx)

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.tick(ctx)
			}
		}
	}()

	e.logger.Info("sync engine started", "interval", e.interval)
}

// Stop cancels the poll loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
	e.logger.Info("sync engine stopped")
}

// tick runs one poll-reconcile pass. It skips entirely while hidden, while a
// previous pass is still in flight, or inside the post-edit guard window.
func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	now := e.now()
	if !e.visible || e.inFlight || now.Before(e.guardUntil) {
		e.mu.Unlock()
		return
	}
	e.inFlight = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	members, err := e.source.ListMembers(ctx)
	if err != nil {
		e.logger.Warn("member refresh failed", "error", err)
		return
	}
	items, err := e.source.ListItems(ctx)
	if err != nil {
		e.logger.Warn("item refresh failed", "error", err)
		return
	}

	e.apply(members, items)
}

// apply merges fetched rows into the snapshots under the lock and emits
// notices for whatever changed.
func (e *Engine) apply(members []model.Member, items []model.Item) {
	e.mu.Lock()
	now := e.now()

	merged := e.mergeOverrides(members, now)

	memberChanges := DetectMemberChanges(e.members, merged)
	itemChanges := DetectItemChanges(e.items, items)

	e.members = merged
	e.items = items
	e.lastUpdated = now
	e.updateCount++

	var notices []Notice
	if s := e.noticeLocked("members", memberChanges, now); s != "" {
		notices = append(notices, Notice{Collection: "members", Summary: s})
	}
	if s := e.noticeLocked("items", itemChanges, now); s != "" {
		notices = append(notices, Notice{Collection: "items", Summary: s})
	}
	onNotice, onApply := e.onNotice, e.onApply
	e.mu.Unlock()

	if onNotice != nil {
		for _, n := range notices {
			onNotice(n)
		}
	}
	if onApply != nil && (len(memberChanges) > 0 || len(itemChanges) > 0) {
		onApply(len(memberChanges) > 0, len(itemChanges) > 0)
	}
}

// mergeOverrides forces live status overrides onto fetched rows. An override
// is dropped once the remote row matches it or its TTL lapses.
func (e *Engine) mergeOverrides(members []model.Member, now time.Time) []model.Member {
	if len(e.overrides) == 0 {
		return members
	}
	merged := make([]model.Member, len(members))
	copy(merged, members)
	for i, m := range merged {
		ov, ok := e.overrides[m.ID]
		if !ok {
			continue
		}
		if !now.Before(ov.expires) || m.Status == ov.status {
			delete(e.overrides, m.ID)
			continue
		}
		merged[i].Status = ov.status
	}
	// Overrides for ids no longer present are dead weight.
	present := make(map[string]bool, len(merged))
	for _, m := range merged {
		present[m.ID] = true
	}
	for id := range e.overrides {
		if !present[id] {
			delete(e.overrides, id)
		}
	}
	return merged
}

func (e *Engine) noticeLocked(collection string, changes []string, now time.Time) string {
	if len(changes) == 0 {
		return ""
	}
	if last, ok := e.lastNotice[collection]; ok && now.Sub(last) < noticeCooldown {
		return ""
	}
	e.lastNotice[collection] = now
	return Summarize(changes)
}

// MarkLocalEdit opens the guard window so the next polls cannot overwrite a
// just-made local change with stale remote rows.
func (e *Engine) MarkLocalEdit() {
	e.mu.Lock()
	e.guardUntil = e.now().Add(guardWindow)
	e.mu.Unlock()
}

// OverrideStatus records a local status change that must win over remote
// reads until the remote catches up or the TTL lapses. It also updates the
// snapshot in place and opens the guard window.
func (e *Engine) OverrideStatus(memberID string, status model.Status) {
	e.mu.Lock()
	now := e.now()
	e.overrides[memberID] = statusOverride{status: status, expires: now.Add(overrideTTL)}
	e.guardUntil = now.Add(guardWindow)
	for i := range e.members {
		if e.members[i].ID == memberID {
			e.members[i].Status = status
			break
		}
	}
	e.mu.Unlock()
}

// SetVisible pauses polling while no client is watching and resumes it when
// one comes back.
func (e *Engine) SetVisible(v bool) {
	e.mu.Lock()
	e.visible = v
	e.mu.Unlock()
}

// Visible reports whether polling is currently active.
func (e *Engine) Visible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible
}

// ApplyMemberUpsert reflects a locally created or edited member into the
// snapshot without waiting for the next poll.
func (e *Engine) ApplyMemberUpsert(m model.Member) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.members {
		if e.members[i].ID == m.ID {
			e.members[i] = m
			return
		}
	}
	e.members = append(e.members, m)
}

// ApplyMemberDelete drops a locally deleted member from the snapshot.
func (e *Engine) ApplyMemberDelete(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.members {
		if e.members[i].ID == id {
			e.members = append(e.members[:i], e.members[i+1:]...)
			return
		}
	}
}

// ApplyItemUpsert reflects a locally created or edited item into the snapshot.
func (e *Engine) ApplyItemUpsert(it model.Item) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.items {
		if e.items[i].ID == it.ID {
			e.items[i] = it
			return
		}
	}
	e.items = append(e.items, it)
}

// ApplyItemDelete drops a locally deleted item from the snapshot.
func (e *Engine) ApplyItemDelete(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.items {
		if e.items[i].ID == id {
			e.items = append(e.items[:i], e.items[i+1:]...)
			return
		}
	}
}

// ApplyItems replaces the full item snapshot, used after a reorder.
func (e *Engine) ApplyItems(items []model.Item) {
	e.mu.Lock()
	e.items = items
	e.mu.Unlock()
}

// Members returns a copy of the current member snapshot.
func (e *Engine) Members() []model.Member {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Member, len(e.members))
	copy(out, e.members)
	return out
}

// Items returns a copy of the current item snapshot.
func (e *Engine) Items() []model.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Item, len(e.items))
	copy(out, e.items)
	return out
}

// Stats computes completion counts from the current member snapshot.
func (e *Engine) Stats() model.MemberStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	var stats model.MemberStats
	stats.Total = len(e.members)
	for _, m := range e.members {
		if m.Status == model.StatusSubmitted {
			stats.Submitted++
		}
	}
	stats.NotSubmitted = stats.Total - stats.Submitted
	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Submitted) / float64(stats.Total) * 100
	}
	return stats
}

// LastUpdated reports when the snapshots last refreshed and how many
// refreshes have completed.
func (e *Engine) LastUpdated() (time.Time, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUpdated, e.updateCount
}
