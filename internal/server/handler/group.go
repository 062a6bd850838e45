package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/splitledger/splitledger/internal/domain"
	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/server/middleware"
)

// GroupHandler serves group creation and membership endpoints.
type GroupHandler struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

func NewGroupHandler(l *ledger.Ledger, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{ledger: l, logger: logHandler(logger, "group")}
}

type createGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type groupResponse struct {
	ID        domain.GroupID `json:"id"`
	Name      string         `json:"name"`
	Creator   string         `json:"creator"`
	Members   []string       `json:"members"`
	CreatedAt time.Time      `json:"created_at"`
}

func toGroupResponse(g domain.Group) groupResponse {
	members := make([]string, len(g.Members))
	for i, m := range g.Members {
		members[i] = strings.ToLower(m.Hex())
	}
	return groupResponse{
		ID:        g.ID,
		Name:      g.Name,
		Creator:   strings.ToLower(g.Creator.Hex()),
		Members:   members,
		CreatedAt: g.CreatedAt,
	}
}

// CreateGroup registers a new group with the caller as creator.
// POST /api/groups
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Caller-Address header")
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	members := make([]domain.Address, 0, len(req.Members))
	for _, m := range req.Members {
		addr, err := parseAddress(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid member address "+m)
			return
		}
		members = append(members, addr)
	}

	id, err := h.ledger.CreateGroup(r.Context(), caller, req.Name, members)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	group, err := h.ledger.GetGroup(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupResponse(group))
}

type addMemberRequest struct {
	Member string `json:"member"`
}

// AddMember appends a member to a group the caller belongs to.
// POST /api/groups/{id}/members
func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Caller-Address header")
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	member, err := parseAddress(req.Member)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member address")
		return
	}

	if err := h.ledger.AddMember(r.Context(), caller, domain.GroupID(id), member); err != nil {
		writeDomainError(w, err)
		return
	}

	group, err := h.ledger.GetGroup(r.Context(), domain.GroupID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

// GetGroup returns one group.
// GET /api/groups/{id}
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	group, err := h.ledger.GetGroup(r.Context(), domain.GroupID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

// ListGroups returns the groups a member belongs to. The member defaults to
// the caller.
// GET /api/groups?member=0x..
func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	member, ok := middleware.CallerFrom(r.Context())
	if v := r.URL.Query().Get("member"); v != "" {
		addr, err := parseAddress(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid member address")
			return
		}
		member, ok = addr, true
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "member query parameter or X-Caller-Address header required")
		return
	}

	groups, err := h.ledger.ListGroupsByMember(r.Context(), member)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]groupResponse, len(groups))
	for i, g := range groups {
		out[i] = toGroupResponse(g)
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}
