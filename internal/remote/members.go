package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/LOCAL2/itshard-items/internal/model"
)

// MemberPatch is a partial member update; nil fields are left untouched.
type MemberPatch struct {
	Name   *string       `json:"name,omitempty"`
	Status *model.Status `json:"status,omitempty"`
	Avatar *string       `json:"avatar,omitempty"`
}

func (c *Client) ListMembers(ctx context.Context) ([]model.Member, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")

	var members []model.Member
	if err := c.do(ctx, http.MethodGet, "members", q, "", nil, &members); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (c *Client) GetMember(ctx context.Context, id string) (*model.Member, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+id)

	var rows []model.Member
	if err := c.do(ctx, http.MethodGet, "members", q, "", nil, &rows); err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *Client) CreateMember(ctx context.Context, name, avatar string) (*model.Member, error) {
	body := []map[string]any{{
		"name":   name,
		"status": model.StatusNotSubmitted,
		"avatar": avatar,
	}}

	var rows []model.Member
	err := c.do(ctx, http.MethodPost, "members", nil, "return=representation", body, &rows)
	if err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create member: no row returned")
	}
	return &rows[0], nil
}

// UpdateMember applies a partial update. When row-level policies hide the
// updated row from the response, the patch is merged over the prior values so
// callers still get a usable member back; callers needing the full remote
// shape should refetch.
func (c *Client) UpdateMember(ctx context.Context, id string, patch MemberPatch) (*model.Member, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)

	body := map[string]any{"updated_at": nowISO()}
	if patch.Name != nil {
		body["name"] = *patch.Name
	}
	if patch.Status != nil {
		body["status"] = *patch.Status
	}
	if patch.Avatar != nil {
		body["avatar"] = *patch.Avatar
	}

	var rows []model.Member
	err := c.do(ctx, http.MethodPatch, "members", q, "return=representation", body, &rows)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	if len(rows) == 0 {
		m := model.Member{ID: id, Status: model.StatusNotSubmitted}
		if patch.Name != nil {
			m.Name = *patch.Name
		}
		if patch.Status != nil {
			m.Status = *patch.Status
		}
		if patch.Avatar != nil {
			m.Avatar = *patch.Avatar
		}
		return &m, nil
	}
	return &rows[0], nil
}

func (c *Client) UpdateMemberStatus(ctx context.Context, id string, status model.Status) (*model.Member, error) {
	return c.UpdateMember(ctx, id, MemberPatch{Status: &status})
}

func (c *Client) DeleteMember(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	if err := c.do(ctx, http.MethodDelete, "members", q, "", nil, nil); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

func (c *Client) SearchMembers(ctx context.Context, term string) ([]model.Member, error) {
	var members []model.Member
	if err := c.rpc(ctx, "search_members", map[string]string{"search_term": term}, &members); err != nil {
		return nil, fmt.Errorf("search members: %w", err)
	}
	return members, nil
}

// MemberStats calls the get_member_stats procedure. Used as a cross-check for
// the locally derived dashboard numbers.
func (c *Client) MemberStats(ctx context.Context) (*model.MemberStats, error) {
	var rows []struct {
		Total          int     `json:"total_members"`
		Pending        int     `json:"pending_members"`
		Completed      int     `json:"completed_members"`
		CompletionRate float64 `json:"completion_rate"`
	}
	if err := c.rpc(ctx, "get_member_stats", map[string]any{}, &rows); err != nil {
		return nil, fmt.Errorf("member stats: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &model.MemberStats{
		Total:          rows[0].Total,
		Submitted:      rows[0].Completed,
		NotSubmitted:   rows[0].Pending,
		CompletionRate: rows[0].CompletionRate,
	}, nil
}
