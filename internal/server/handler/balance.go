package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/splitledger/splitledger/internal/domain"
	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/server/middleware"
)

// BalanceHandler serves balance lookups.
type BalanceHandler struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

func NewBalanceHandler(l *ledger.Ledger, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{ledger: l, logger: logHandler(logger, "balance")}
}

// memberParam resolves the queried member, defaulting to the caller.
func memberParam(r *http.Request) (domain.Address, error) {
	if v := r.URL.Query().Get("member"); v != "" {
		return parseAddress(v)
	}
	if caller, ok := middleware.CallerFrom(r.Context()); ok {
		return caller, nil
	}
	return domain.Address{}, domain.ErrInvalidInput
}

// GetBalance returns a member's net balance in one (group, asset) pocket.
// GET /api/balances?member=0x..&group=1&asset=0x..
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	member, err := memberParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "member query parameter or X-Caller-Address header required")
		return
	}
	groupID, err := strconv.ParseUint(r.URL.Query().Get("group"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	asset, err := parseAsset(r.URL.Query().Get("asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset")
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), member, domain.GroupID(groupID), asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"member":  strings.ToLower(member.Hex()),
		"group":   strconv.FormatUint(groupID, 10),
		"asset":   assetString(asset),
		"balance": balance.String(),
	})
}

// GetTotalBalance returns a member's balance in one asset across all groups.
// GET /api/balances/total?member=0x..&asset=0x..
func (h *BalanceHandler) GetTotalBalance(w http.ResponseWriter, r *http.Request) {
	member, err := memberParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "member query parameter or X-Caller-Address header required")
		return
	}
	asset, err := parseAsset(r.URL.Query().Get("asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset")
		return
	}

	total, err := h.ledger.GetTotalBalance(r.Context(), member, asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"member": strings.ToLower(member.Hex()),
		"asset":  assetString(asset),
		"total":  total.String(),
	})
}
