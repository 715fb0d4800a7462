package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/LOCAL2/itshard-items/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"}, WithHTTPClient(srv.Client()))
}

func TestListMembers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/members" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("order"); got != "created_at.desc" {
			t.Errorf("order = %q", got)
		}
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey header = %q", got)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "m1", "name": "Alice", "status": "submitted", "avatar": "https://a/1.png"},
			{"id": "m2", "name": "Bob", "status": "not_submitted", "avatar": nil},
		})
	})

	members, err := c.ListMembers(context.Background())
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].Status != model.StatusSubmitted {
		t.Errorf("status = %q", members[0].Status)
	}
	if members[1].Avatar != "" {
		t.Errorf("null avatar decoded to %q", members[1].Avatar)
	}
}

func TestUpdateItemNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Policy-filtered empty result set
		w.Write([]byte(`[]`))
	})

	name := "Rope"
	_, err := c.UpdateItem(context.Background(), "missing", ItemPatch{Name: &name})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMemberPolicyHiddenRowMergesPatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	status := model.StatusSubmitted
	m, err := c.UpdateMember(context.Background(), "m7", MemberPatch{Status: &status})
	if err != nil {
		t.Fatalf("update member: %v", err)
	}
	if m.ID != "m7" || m.Status != model.StatusSubmitted {
		t.Errorf("merged member = %+v", m)
	}
}

func TestGetLockMissingRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	lock, err := c.GetLock(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("get lock: %v", err)
	}
	if lock != nil {
		t.Fatalf("expected nil lock for missing row, got %+v", lock)
	}
}

func TestGetLockActive(t *testing.T) {
	until := time.Now().Add(5 * time.Minute).UTC().Format(time.RFC3339)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "dev-1", "attempts": 3, "locked_until": until},
		})
	})

	lock, err := c.GetLock(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("get lock: %v", err)
	}
	if lock.Attempts != 3 {
		t.Errorf("attempts = %d", lock.Attempts)
	}
	if !lock.LockedAt(time.Now()) {
		t.Error("expected active lock")
	}
}

func TestWhitelistExists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "eq.dev-1" {
			t.Errorf("id filter = %q", got)
		}
		w.Write([]byte(`[{"id":"dev-1"}]`))
	})

	ok, err := c.WhitelistExists(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("whitelist check: %v", err)
	}
	if !ok {
		t.Error("expected allow-listed device")
	}
}

func TestUpsertSchedulesBatch(t *testing.T) {
	var gotRows []map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("on_conflict"); got != "item_id" {
			t.Errorf("on_conflict = %q", got)
		}
		if got := r.Header.Get("Prefer"); got != "resolution=merge-duplicates" {
			t.Errorf("Prefer = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&gotRows)
		w.WriteHeader(http.StatusCreated)
	})

	w := model.ScheduleWindow{StartISO: "2026-08-01T00:00:00Z", EndISO: "2026-08-02T00:00:00Z"}
	if err := c.UpsertSchedules(context.Background(), []string{"a", "b"}, w); err != nil {
		t.Fatalf("upsert schedules: %v", err)
	}
	if len(gotRows) != 2 {
		t.Fatalf("sent %d rows, want 2", len(gotRows))
	}
	if gotRows[1]["item_id"] != "b" || gotRows[1]["start_iso"] != w.StartISO {
		t.Errorf("row = %+v", gotRows[1])
	}
}

func TestSearchItemsRPC(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/search_items" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var args map[string]string
		json.NewDecoder(r.Body).Decode(&args)
		if args["search_term"] != "rope" {
			t.Errorf("search_term = %q", args["search_term"])
		}
		w.Write([]byte(`[{"id":"i1","item_name":"Rope","quantity":2,"unit":"coil"}]`))
	})

	items, err := c.SearchItems(context.Background(), "rope")
	if err != nil {
		t.Fatalf("search items: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Rope" {
		t.Errorf("items = %+v", items)
	}
}

func TestServerErrorSurfacesStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.ListItems(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("unexpected error: %v", err)
	}
}
