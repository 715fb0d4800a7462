package sync

import (
	"fmt"
	"strconv"

	"github.com/LOCAL2/itshard-items/internal/model"
)

// summaryCap is how many change descriptions are shown verbatim; the rest
// collapse into a "+N" suffix.
const summaryCap = 2

func statusLabel(s model.Status) string {
	if s == model.StatusSubmitted {
		return "submitted"
	}
	return "not submitted"
}

func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// DetectMemberChanges compares two member snapshots by id and returns one
// human-readable description per added id, removed id, and changed field
// (name, status, avatar) on surviving ids.
func DetectMemberChanges(old, new []model.Member) []string {
	var changes []string

	oldByID := make(map[string]model.Member, len(old))
	for _, m := range old {
		oldByID[m.ID] = m
	}
	newByID := make(map[string]model.Member, len(new))
	for _, m := range new {
		newByID[m.ID] = m
	}

	for _, m := range new {
		if _, ok := oldByID[m.ID]; !ok {
			changes = append(changes, "added "+m.Name)
		}
	}
	for _, m := range old {
		if _, ok := newByID[m.ID]; !ok {
			changes = append(changes, "removed "+m.Name)
		}
	}
	for _, o := range old {
		n, ok := newByID[o.ID]
		if !ok {
			continue
		}
		if o.Name != n.Name {
			changes = append(changes, fmt.Sprintf("%s renamed to %s", o.Name, n.Name))
		}
		if o.Status != n.Status {
			changes = append(changes, fmt.Sprintf("%s marked %s", n.Name, statusLabel(n.Status)))
		}
		if o.Avatar != n.Avatar {
			changes = append(changes, n.Name+" changed avatar")
		}
	}
	return changes
}

// DetectItemChanges is the item-snapshot counterpart: added/removed ids plus
// per-field changes on name, quantity and unit. Display order is excluded:
// reorders are a manager-local concern and would otherwise flood the feed.
func DetectItemChanges(old, new []model.Item) []string {
	var changes []string

	oldByID := make(map[string]model.Item, len(old))
	for _, i := range old {
		oldByID[i.ID] = i
	}
	newByID := make(map[string]model.Item, len(new))
	for _, i := range new {
		newByID[i.ID] = i
	}

	for _, i := range new {
		if _, ok := oldByID[i.ID]; !ok {
			changes = append(changes, fmt.Sprintf("added %s (%s %s)", i.Name, formatQuantity(i.Quantity), i.Unit))
		}
	}
	for _, i := range old {
		if _, ok := newByID[i.ID]; !ok {
			changes = append(changes, "removed "+i.Name)
		}
	}
	for _, o := range old {
		n, ok := newByID[o.ID]
		if !ok {
			continue
		}
		if o.Name != n.Name {
			changes = append(changes, fmt.Sprintf("%s renamed to %s", o.Name, n.Name))
		}
		if o.Quantity != n.Quantity {
			changes = append(changes, fmt.Sprintf("%s quantity changed from %s to %s %s",
				n.Name, formatQuantity(o.Quantity), formatQuantity(n.Quantity), n.Unit))
		}
		if o.Unit != n.Unit {
			changes = append(changes, fmt.Sprintf("%s unit changed from %s to %s", n.Name, o.Unit, n.Unit))
		}
	}
	return changes
}

// Summarize joins the first two descriptions and appends a "+N" suffix for
// the remainder. Returns "" for an empty change set.
func Summarize(changes []string) string {
	if len(changes) == 0 {
		return ""
	}
	head := changes[0]
	if len(changes) > 1 {
		head += " • " + changes[1]
	}
	if len(changes) > summaryCap {
		head += fmt.Sprintf(" (+%d)", len(changes)-summaryCap)
	}
	return head
}
