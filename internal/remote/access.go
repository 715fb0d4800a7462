package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/LOCAL2/itshard-items/internal/model"
)

// WhitelistExists reports whether the device identifier is present in the
// manager allow-list collection.
func (c *Client) WhitelistExists(ctx context.Context, deviceID string) (bool, error) {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("id", "eq."+deviceID)
	q.Set("limit", "1")

	var rows []struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "manager_whitelist", q, "", nil, &rows); err != nil {
		return false, fmt.Errorf("whitelist check: %w", err)
	}
	return len(rows) > 0, nil
}

type lockRow struct {
	ID          string  `json:"id"`
	Attempts    int     `json:"attempts"`
	LockedUntil *string `json:"locked_until"`
}

// GetLock fetches the lockout control record for the device identifier.
// A missing row is not an error: it returns (nil, nil), meaning "never
// failed".
func (c *Client) GetLock(ctx context.Context, deviceID string) (*model.LockState, error) {
	q := url.Values{}
	q.Set("select", "id,attempts,locked_until")
	q.Set("id", "eq."+deviceID)

	var rows []lockRow
	if err := c.do(ctx, http.MethodGet, "manager_lock_status", q, "", nil, &rows); err != nil {
		return nil, fmt.Errorf("get lock: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	state := &model.LockState{ID: rows[0].ID, Attempts: rows[0].Attempts}
	if rows[0].LockedUntil != nil {
		t, err := time.Parse(time.RFC3339, *rows[0].LockedUntil)
		if err != nil {
			return nil, fmt.Errorf("parse locked_until: %w", err)
		}
		state.LockedUntil = &t
	}
	return state, nil
}

// SetLock upserts the lockout control record. A nil lockedUntil clears the
// lock while keeping the attempt count.
func (c *Client) SetLock(ctx context.Context, deviceID string, attempts int, lockedUntil *time.Time) error {
	var until *string
	if lockedUntil != nil {
		s := lockedUntil.UTC().Format(time.RFC3339)
		until = &s
	}
	body := map[string]any{
		"id":           deviceID,
		"attempts":     attempts,
		"locked_until": until,
		"updated_at":   nowISO(),
	}

	q := url.Values{}
	q.Set("on_conflict", "id")
	err := c.do(ctx, http.MethodPost, "manager_lock_status", q, "resolution=merge-duplicates", body, nil)
	if err != nil {
		return fmt.Errorf("set lock: %w", err)
	}
	return nil
}

// ResetLock zeroes the attempt counter and clears any lockout.
func (c *Client) ResetLock(ctx context.Context, deviceID string) error {
	return c.SetLock(ctx, deviceID, 0, nil)
}

// BackupData calls the backup_data procedure, returning the remote store's
// own export of both collections.
func (c *Client) BackupData(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.rpc(ctx, "backup_data", map[string]any{}, &raw); err != nil {
		return nil, fmt.Errorf("backup data: %w", err)
	}
	return raw, nil
}
