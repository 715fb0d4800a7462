// Package notify maintains a single Discord webhook message that always
// shows the current item list. Instead of posting a new message per change,
// the previous message is edited in place, created when missing, and deleted
// when the list empties out.
package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LOCAL2/itshard-items/internal/model"
	"github.com/LOCAL2/itshard-items/internal/store"
)

// debounceDelay coalesces bursts of edits into one webhook call.
const debounceDelay = 500 * time.Millisecond

// Config points at one webhook, optionally inside a thread.
type Config struct {
	WebhookURL string
	ThreadID   string
	EmbedColor int
	Title      string
}

// Notifier is the webhook upserter. Failures are logged and swallowed: the
// item list is the source of truth and the next change retries naturally.
type Notifier struct {
	cfg     Config
	client  *http.Client
	devices *store.DeviceStore
	logger  *slog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	pending  []model.Item
	lastHash string
	inFlight bool
}

func New(cfg Config, devices *store.DeviceStore, logger *slog.Logger) *Notifier {
	if cfg.Title == "" {
		cfg.Title = "Current items"
	}
	if cfg.EmbedColor == 0 {
		cfg.EmbedColor = 0x5865F2
	}
	return &Notifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		devices: devices,
		logger:  logger,
	}
}

// Enabled reports whether a webhook is configured at all.
func (n *Notifier) Enabled() bool {
	return n.cfg.WebhookURL != ""
}

// Sync schedules the webhook message to reflect items. Calls within the
// debounce window collapse into one send carrying the latest snapshot.
func (n *Notifier) Sync(items []model.Item) {
	if !n.Enabled() {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	n.pending = make([]model.Item, len(items))
	copy(n.pending, items)

	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(debounceDelay, n.flush)
}

// Close cancels any pending debounced send.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

func (n *Notifier) flush() {
	n.mu.Lock()
	if n.inFlight {
		// A send is already running; its snapshot is at most one debounce
		// window stale and the next edit will catch up.
		n.logger.Debug("webhook sync skipped, send in flight")
		n.mu.Unlock()
		return
	}
	items := n.pending
	n.inFlight = true
	n.mu.Unlock()

	err := n.send(context.Background(), items)

	n.mu.Lock()
	n.inFlight = false
	n.mu.Unlock()

	if err != nil {
		n.logger.Warn("webhook sync failed", "error", err)
	}
}

func (n *Notifier) send(ctx context.Context, items []model.Item) error {
	if len(items) == 0 {
		return n.deleteMessage(ctx)
	}

	payload := n.buildPayload(items)
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	hash := payloadHash(raw)

	n.mu.Lock()
	unchanged := hash == n.lastHash
	n.mu.Unlock()
	if unchanged {
		return nil
	}

	messageID, _ := n.devices.Get(store.KeyLastMessageID)
	if messageID != "" {
		err := n.editMessage(ctx, messageID, raw)
		if err == nil {
			n.rememberHash(hash)
			return nil
		}
		if !errors.Is(err, errMessageGone) {
			return err
		}
		// The message was deleted on the Discord side. Forget it and post
		// a fresh one.
		if err := n.devices.Delete(store.KeyLastMessageID); err != nil {
			n.logger.Warn("clearing stale message id failed", "error", err)
		}
	}

	id, err := n.createMessage(ctx, raw)
	if err != nil {
		return err
	}
	if err := n.devices.Set(store.KeyLastMessageID, id); err != nil {
		n.logger.Warn("saving message id failed", "error", err)
	}
	n.rememberHash(hash)
	return nil
}

func (n *Notifier) rememberHash(hash string) {
	n.mu.Lock()
	n.lastHash = hash
	n.mu.Unlock()
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// buildPayload renders the list in display order, newest first among
// unordered rows, so the same logical list always hashes the same.
func (n *Notifier) buildPayload(items []model.Item) webhookPayload {
	sorted := make([]model.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		oi, oj := sorted[i].DisplayOrder, sorted[j].DisplayOrder
		switch {
		case oi != nil && oj != nil && *oi != *oj:
			return *oi < *oj
		case oi != nil && oj == nil:
			return true
		case oi == nil && oj != nil:
			return false
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var b strings.Builder
	for _, it := range sorted {
		fmt.Fprintf(&b, "• %s — %s %s\n", it.Name, formatQuantity(it.Quantity), it.Unit)
	}
	return webhookPayload{Embeds: []embed{{
		Title:       n.cfg.Title,
		Description: strings.TrimRight(b.String(), "\n"),
		Color:       n.cfg.EmbedColor,
	}}}
}

func formatQuantity(q float64) string {
	s := fmt.Sprintf("%.2f", q)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func payloadHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

var errMessageGone = errors.New("webhook message no longer exists")

func (n *Notifier) webhookURL(path string, wait bool) string {
	u := n.cfg.WebhookURL + path
	q := url.Values{}
	if wait {
		q.Set("wait", "true")
	}
	if n.cfg.ThreadID != "" {
		q.Set("thread_id", n.cfg.ThreadID)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// createMessage posts a new webhook message and returns its id.
func (n *Notifier) createMessage(ctx context.Context, raw []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL("", true), bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting webhook message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("webhook create returned %d: %s", resp.StatusCode, body)
	}

	var msg struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", fmt.Errorf("decoding webhook response: %w", err)
	}
	return msg.ID, nil
}

// editMessage patches the existing webhook message in place.
func (n *Notifier) editMessage(ctx context.Context, id string, raw []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, n.webhookURL("/messages/"+id, false), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("editing webhook message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errMessageGone
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook edit returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// deleteMessage removes the tracked message when the item list is empty.
func (n *Notifier) deleteMessage(ctx context.Context) error {
	messageID, err := n.devices.Get(store.KeyLastMessageID)
	if errors.Is(err, store.ErrNotFound) || messageID == "" {
		return nil
	}
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, n.webhookURL("/messages/"+messageID, false), nil)
	if err != nil {
		return err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deleting webhook message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook delete returned %d: %s", resp.StatusCode, body)
	}

	if err := n.devices.Delete(store.KeyLastMessageID); err != nil {
		n.logger.Warn("clearing message id failed", "error", err)
	}
	n.rememberHash("")
	return nil
}
