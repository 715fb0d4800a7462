package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/LOCAL2/itshard-items/internal/model"
)

// ItemPatch is a partial item update; nil fields are left untouched.
type ItemPatch struct {
	Name     *string  `json:"item_name,omitempty"`
	Quantity *float64 `json:"quantity,omitempty"`
	Unit     *string  `json:"unit,omitempty"`
}

func (c *Client) ListItems(ctx context.Context) ([]model.Item, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "display_order.asc.nullslast,created_at.desc")

	var items []model.Item
	if err := c.do(ctx, http.MethodGet, "items", q, "", nil, &items); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (c *Client) GetItem(ctx context.Context, id string) (*model.Item, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+id)

	var rows []model.Item
	if err := c.do(ctx, http.MethodGet, "items", q, "", nil, &rows); err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *Client) CreateItem(ctx context.Context, name string, quantity float64, unit string) (*model.Item, error) {
	body := []map[string]any{{
		"item_name": name,
		"quantity":  quantity,
		"unit":      unit,
	}}

	var rows []model.Item
	err := c.do(ctx, http.MethodPost, "items", nil, "return=representation", body, &rows)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create item: no row returned")
	}
	return &rows[0], nil
}

func (c *Client) UpdateItem(ctx context.Context, id string, patch ItemPatch) (*model.Item, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)

	body := map[string]any{"updated_at": nowISO()}
	if patch.Name != nil {
		body["item_name"] = *patch.Name
	}
	if patch.Quantity != nil {
		body["quantity"] = *patch.Quantity
	}
	if patch.Unit != nil {
		body["unit"] = *patch.Unit
	}

	var rows []model.Item
	err := c.do(ctx, http.MethodPatch, "items", q, "return=representation", body, &rows)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("update item %s: %w", id, ErrNotFound)
	}
	return &rows[0], nil
}

func (c *Client) DeleteItem(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	if err := c.do(ctx, http.MethodDelete, "items", q, "", nil, nil); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// UpdateDisplayOrder persists a bulk display-order reassignment, one PATCH per
// row. The first failing row aborts the rest.
func (c *Client) UpdateDisplayOrder(ctx context.Context, updates []model.OrderUpdate) error {
	for _, u := range updates {
		q := url.Values{}
		q.Set("id", "eq."+u.ID)
		body := map[string]any{
			"display_order": u.DisplayOrder,
			"updated_at":    nowISO(),
		}
		if err := c.do(ctx, http.MethodPatch, "items", q, "", body, nil); err != nil {
			return fmt.Errorf("update display order for %s: %w", u.ID, err)
		}
	}
	return nil
}

func (c *Client) SearchItems(ctx context.Context, term string) ([]model.Item, error) {
	var items []model.Item
	if err := c.rpc(ctx, "search_items", map[string]string{"search_term": term}, &items); err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	return items, nil
}
