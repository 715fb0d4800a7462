package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/LOCAL2/itshard-items/internal/model"
	"github.com/LOCAL2/itshard-items/internal/notify"
	"github.com/LOCAL2/itshard-items/internal/remote"
	"github.com/LOCAL2/itshard-items/internal/sync"
	"github.com/LOCAL2/itshard-items/internal/unit"
	"github.com/LOCAL2/itshard-items/internal/websocket"
)

// itemRemote is the item slice of the remote store.
type itemRemote interface {
	CreateItem(ctx context.Context, name string, quantity float64, unit string) (*model.Item, error)
	UpdateItem(ctx context.Context, id string, patch remote.ItemPatch) (*model.Item, error)
	DeleteItem(ctx context.Context, id string) error
	UpdateDisplayOrder(ctx context.Context, updates []model.OrderUpdate) error
	SearchItems(ctx context.Context, term string) ([]model.Item, error)
}

type ItemHandler struct {
	remote   itemRemote
	engine   *sync.Engine
	hub      *websocket.Hub
	notifier *notify.Notifier
	logger   *slog.Logger
}

func NewItemHandler(r itemRemote, engine *sync.Engine, hub *websocket.Hub, notifier *notify.Notifier, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{remote: r, engine: engine, hub: hub, notifier: notifier, logger: logger}
}

// List serves the engine snapshot in display order, unordered items last.
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.engine.Items()
	sort.SliceStable(items, func(i, j int) bool {
		oi, oj := items[i].DisplayOrder, items[j].DisplayOrder
		switch {
		case oi != nil && oj != nil && *oi != *oj:
			return *oi < *oj
		case oi != nil && oj == nil:
			return true
		case oi == nil && oj != nil:
			return false
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string  `json:"item_name"`
		Quantity float64 `json:"quantity"`
		Unit     string  `json:"unit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "item_name is required")
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if strings.TrimSpace(req.Unit) == "" {
		req.Unit = unit.Detect(req.Name)
	}

	item, err := h.remote.CreateItem(r.Context(), req.Name, req.Quantity, req.Unit)
	if err != nil {
		h.logger.Error("creating item", "error", err)
		writeError(w, http.StatusBadGateway, "failed to create item")
		return
	}

	h.engine.ApplyItemUpsert(*item)
	h.engine.MarkLocalEdit()
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityItem, "created", item.ID, nil))
	h.notifier.Sync(h.engine.Items())
	writeJSON(w, http.StatusCreated, item)
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Name     *string  `json:"item_name"`
		Quantity *float64 `json:"quantity"`
		Unit     *string  `json:"unit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			writeError(w, http.StatusBadRequest, "item_name cannot be empty")
			return
		}
		req.Name = &trimmed
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	item, err := h.remote.UpdateItem(r.Context(), id, remote.ItemPatch{
		Name:     req.Name,
		Quantity: req.Quantity,
		Unit:     req.Unit,
	})
	if err != nil {
		h.logger.Error("updating item", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "failed to update item")
		return
	}

	h.engine.ApplyItemUpsert(*item)
	h.engine.MarkLocalEdit()
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityItem, "updated", item.ID, nil))
	h.notifier.Sync(h.engine.Items())
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.remote.DeleteItem(r.Context(), id); err != nil {
		h.logger.Error("deleting item", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "failed to delete item")
		return
	}

	h.engine.ApplyItemDelete(id)
	h.engine.MarkLocalEdit()
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityItem, "deleted", id, nil))
	h.notifier.Sync(h.engine.Items())
	w.WriteHeader(http.StatusNoContent)
}

// Reorder takes the full id sequence and assigns contiguous 1-based display
// orders, so gaps left by deletions never accumulate.
func (h *ItemHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}

	updates := make([]model.OrderUpdate, len(req.IDs))
	for i, id := range req.IDs {
		order := i + 1
		updates[i] = model.OrderUpdate{ID: id, DisplayOrder: order}
	}

	if err := h.remote.UpdateDisplayOrder(r.Context(), updates); err != nil {
		h.logger.Error("reordering items", "error", err)
		writeError(w, http.StatusBadGateway, "failed to reorder items")
		return
	}

	// Rebuild the snapshot with the new order applied.
	byID := make(map[string]model.Item)
	for _, it := range h.engine.Items() {
		byID[it.ID] = it
	}
	items := make([]model.Item, 0, len(byID))
	for i, id := range req.IDs {
		it, ok := byID[id]
		if !ok {
			continue
		}
		order := i + 1
		it.DisplayOrder = &order
		items = append(items, it)
		delete(byID, id)
	}
	for _, it := range byID {
		items = append(items, it)
	}
	h.engine.ApplyItems(items)
	h.engine.MarkLocalEdit()
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityItem, "reordered", "", nil))
	h.notifier.Sync(items)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ItemHandler) Search(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	items, err := h.remote.SearchItems(r.Context(), term)
	if err != nil {
		h.logger.Error("searching items", "error", err)
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}
