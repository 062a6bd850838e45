package handler

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/splitledger/splitledger/internal/domain"
	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/server/middleware"
)

// ExpenseHandler serves expense creation and lookup endpoints.
type ExpenseHandler struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

func NewExpenseHandler(l *ledger.Ledger, logger *slog.Logger) *ExpenseHandler {
	return &ExpenseHandler{ledger: l, logger: logHandler(logger, "expense")}
}

type createExpenseRequest struct {
	GroupID      uint64   `json:"group_id"`
	Asset        string   `json:"asset"`
	Amount       string   `json:"amount"`
	Description  string   `json:"description"`
	Participants []string `json:"participants"`
	Shares       []string `json:"shares"`
}

type expenseResponse struct {
	ID           domain.ExpenseID `json:"id"`
	GroupID      domain.GroupID   `json:"group_id"`
	Payer        string           `json:"payer"`
	Asset        string           `json:"asset"`
	Amount       string           `json:"amount"`
	Description  string           `json:"description,omitempty"`
	Participants []string         `json:"participants"`
	Shares       []string         `json:"shares"`
	Settled      bool             `json:"settled"`
	CreatedAt    time.Time        `json:"created_at"`
}

func toExpenseResponse(e domain.Expense) expenseResponse {
	participants := make([]string, len(e.Participants))
	for i, p := range e.Participants {
		participants[i] = strings.ToLower(p.Hex())
	}
	shares := make([]string, len(e.Shares))
	for i, s := range e.Shares {
		shares[i] = s.String()
	}
	return expenseResponse{
		ID:           e.ID,
		GroupID:      e.GroupID,
		Payer:        strings.ToLower(e.Payer.Hex()),
		Asset:        assetString(e.Asset),
		Amount:       e.Amount.String(),
		Description:  e.Description,
		Participants: participants,
		Shares:       shares,
		Settled:      e.Settled,
		CreatedAt:    e.CreatedAt,
	}
}

// CreateExpense records an expense paid by the caller.
// POST /api/expenses
func (h *ExpenseHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Caller-Address header")
		return
	}

	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	asset, err := parseAsset(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	participants := make([]domain.Address, len(req.Participants))
	for i, p := range req.Participants {
		if participants[i], err = parseAddress(p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid participant address "+p)
			return
		}
	}
	parsedShares := make([]*big.Int, len(req.Shares))
	for i, s := range req.Shares {
		if parsedShares[i], err = parseAmount(s); err != nil {
			writeError(w, http.StatusBadRequest, "invalid share "+s)
			return
		}
	}

	id, err := h.ledger.CreateExpense(r.Context(), caller, ledger.ExpenseInput{
		GroupID:      domain.GroupID(req.GroupID),
		Asset:        asset,
		Amount:       amount,
		Description:  req.Description,
		Participants: participants,
		Shares:       parsedShares,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	expense, err := h.ledger.GetExpense(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseResponse(expense))
}

// GetExpense returns one expense.
// GET /api/expenses/{id}
func (h *ExpenseHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	expense, err := h.ledger.GetExpense(r.Context(), domain.ExpenseID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(expense))
}

// GetShare returns a member's share of an expense.
// GET /api/expenses/{id}/share?member=0x..
func (h *ExpenseHandler) GetShare(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}
	member, err := parseAddress(r.URL.Query().Get("member"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member address")
		return
	}

	share, err := h.ledger.GetExpenseShare(r.Context(), domain.ExpenseID(id), member)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"member": strings.ToLower(member.Hex()),
		"share":  share.String(),
	})
}
