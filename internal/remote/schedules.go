package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/LOCAL2/itshard-items/internal/model"
)

type scheduleRow struct {
	ItemID   string `json:"item_id"`
	StartISO string `json:"start_iso"`
	EndISO   string `json:"end_iso"`
}

func (c *Client) ListSchedules(ctx context.Context) (map[string]model.ScheduleWindow, error) {
	q := url.Values{}
	q.Set("select", "item_id,start_iso,end_iso")

	var rows []scheduleRow
	if err := c.do(ctx, http.MethodGet, "item_schedules", q, "", nil, &rows); err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	all := make(map[string]model.ScheduleWindow, len(rows))
	for _, r := range rows {
		all[r.ItemID] = model.ScheduleWindow{StartISO: r.StartISO, EndISO: r.EndISO}
	}
	return all, nil
}

func (c *Client) UpsertSchedule(ctx context.Context, itemID string, w model.ScheduleWindow) error {
	return c.UpsertSchedules(ctx, []string{itemID}, w)
}

// UpsertSchedules applies one window to many items in a single upsert keyed
// on item_id.
func (c *Client) UpsertSchedules(ctx context.Context, itemIDs []string, w model.ScheduleWindow) error {
	if len(itemIDs) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(itemIDs))
	now := nowISO()
	for _, id := range itemIDs {
		rows = append(rows, map[string]any{
			"item_id":    id,
			"start_iso":  w.StartISO,
			"end_iso":    w.EndISO,
			"updated_at": now,
		})
	}

	q := url.Values{}
	q.Set("on_conflict", "item_id")
	err := c.do(ctx, http.MethodPost, "item_schedules", q, "resolution=merge-duplicates", rows, nil)
	if err != nil {
		return fmt.Errorf("upsert schedules: %w", err)
	}
	return nil
}

func (c *Client) DeleteSchedule(ctx context.Context, itemID string) error {
	q := url.Values{}
	q.Set("item_id", "eq."+itemID)
	if err := c.do(ctx, http.MethodDelete, "item_schedules", q, "", nil, nil); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

func (c *Client) DeleteSchedules(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	q := url.Values{}
	q.Set("item_id", "in.("+strings.Join(itemIDs, ",")+")")
	if err := c.do(ctx, http.MethodDelete, "item_schedules", q, "", nil, nil); err != nil {
		return fmt.Errorf("delete schedules: %w", err)
	}
	return nil
}
