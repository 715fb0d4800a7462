package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/LOCAL2/itshard-items/internal/model"
	"github.com/LOCAL2/itshard-items/internal/remote"
	"github.com/LOCAL2/itshard-items/internal/sync"
	"github.com/LOCAL2/itshard-items/internal/websocket"
)

// memberRemote is the member slice of the remote store.
type memberRemote interface {
	CreateMember(ctx context.Context, name, avatar string) (*model.Member, error)
	UpdateMember(ctx context.Context, id string, patch remote.MemberPatch) (*model.Member, error)
	UpdateMemberStatus(ctx context.Context, id string, status model.Status) (*model.Member, error)
	DeleteMember(ctx context.Context, id string) error
	SearchMembers(ctx context.Context, term string) ([]model.Member, error)
}

type MemberHandler struct {
	remote   memberRemote
	engine   *sync.Engine
	hub      *websocket.Hub
	collator *collate.Collator
	logger   *slog.Logger
}

func NewMemberHandler(r memberRemote, engine *sync.Engine, hub *websocket.Hub, locale string, logger *slog.Logger) *MemberHandler {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Thai
	}
	return &MemberHandler{
		remote:   r,
		engine:   engine,
		hub:      hub,
		collator: collate.New(tag),
		logger:   logger,
	}
}

// List serves the engine's snapshot sorted with the configured collation, so
// names sort the way the household reads them.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members := h.engine.Members()
	sort.SliceStable(members, func(i, j int) bool {
		return h.collator.CompareString(members[i].Name, members[j].Name) < 0
	})
	writeJSON(w, http.StatusOK, members)
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	member, err := h.remote.CreateMember(r.Context(), req.Name, req.Avatar)
	if err != nil {
		h.logger.Error("creating member", "error", err)
		writeError(w, http.StatusBadGateway, "failed to create member")
		return
	}

	h.engine.ApplyMemberUpsert(*member)
	h.engine.MarkLocalEdit()
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityMember, "created", member.ID, nil))
	writeJSON(w, http.StatusCreated, member)
}

func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Name   *string `json:"name"`
		Avatar *string `json:"avatar"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			writeError(w, http.StatusBadRequest, "name cannot be empty")
			return
		}
		req.Name = &trimmed
	}

	member, err := h.remote.UpdateMember(r.Context(), id, remote.MemberPatch{Name: req.Name, Avatar: req.Avatar})
	if err != nil {
		h.logger.Error("updating member", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "failed to update member")
		return
	}

	h.engine.ApplyMemberUpsert(*member)
	h.engine.MarkLocalEdit()
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityMember, "updated", member.ID, nil))
	writeJSON(w, http.StatusOK, member)
}

// UpdateStatus flips one member's submission state. The local override makes
// the change stick even when the next few polls still return stale rows.
func (h *MemberHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Status model.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be not_submitted or submitted")
		return
	}

	h.engine.OverrideStatus(id, req.Status)

	member, err := h.remote.UpdateMemberStatus(r.Context(), id, req.Status)
	if err != nil {
		h.logger.Error("updating member status", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "failed to update status")
		return
	}

	h.hub.Broadcast(websocket.NewMessage(websocket.EntityMember, "status", member.ID, map[string]any{"status": string(req.Status)}))
	writeJSON(w, http.StatusOK, member)
}

func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.remote.DeleteMember(r.Context(), id); err != nil {
		h.logger.Error("deleting member", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "failed to delete member")
		return
	}

	h.engine.ApplyMemberDelete(id)
	h.engine.MarkLocalEdit()
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityMember, "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemberHandler) Search(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	members, err := h.remote.SearchMembers(r.Context(), term)
	if err != nil {
		h.logger.Error("searching members", "error", err)
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}
