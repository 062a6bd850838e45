package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/splitledger/splitledger/internal/domain"
	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/server/middleware"
)

// SettlementHandler serves same-asset and cross-asset settlement endpoints.
type SettlementHandler struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

func NewSettlementHandler(l *ledger.Ledger, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{ledger: l, logger: logHandler(logger, "settlement")}
}

type settleRequest struct {
	GroupID   uint64 `json:"group_id"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
	// SuppliedValue is the native value attached to a native-asset
	// settlement; the excess over Amount is refunded.
	SuppliedValue string `json:"supplied_value,omitempty"`
}

// Settle reduces the caller's debt and pays the recipient in the same asset.
// POST /api/settlements
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Caller-Address header")
		return
	}

	var req settleRequest
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
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipient")
		return
	}
	supplied, err := optionalAmount(req.SuppliedValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid supplied_value")
		return
	}

	err = h.ledger.SettlePayment(r.Context(), caller, ledger.SettlementInput{
		GroupID:       domain.GroupID(req.GroupID),
		Asset:         asset,
		Amount:        amount,
		Recipient:     recipient,
		SuppliedValue: supplied,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "settled",
		"group_id":  strconv.FormatUint(req.GroupID, 10),
		"asset":     assetString(asset),
		"amount":    amount.String(),
		"recipient": strings.ToLower(recipient.Hex()),
	})
}

type settleCrossRequest struct {
	GroupID        uint64 `json:"group_id"`
	OwedAsset      string `json:"owed_asset"`
	PaymentAsset   string `json:"payment_asset"`
	OwedAmount     string `json:"owed_amount"`
	PaymentAmount  string `json:"payment_amount"`
	Recipient      string `json:"recipient"`
	ConversionRate string `json:"conversion_rate"`
	SuppliedValue  string `json:"supplied_value,omitempty"`
}

// SettleCross settles a debt recorded in one asset by paying another.
// POST /api/settlements/cross
func (h *SettlementHandler) SettleCross(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Caller-Address header")
		return
	}

	var req settleCrossRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	owedAsset, err := parseAsset(req.OwedAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owed_asset")
		return
	}
	paymentAsset, err := parseAsset(req.PaymentAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment_asset")
		return
	}
	owedAmount, err := parseAmount(req.OwedAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owed_amount")
		return
	}
	paymentAmount, err := parseAmount(req.PaymentAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment_amount")
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipient")
		return
	}
	rate, err := parseAmount(req.ConversionRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversion_rate")
		return
	}
	supplied, err := optionalAmount(req.SuppliedValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid supplied_value")
		return
	}

	err = h.ledger.SettlePaymentCrossAsset(r.Context(), caller, ledger.CrossAssetInput{
		GroupID:        domain.GroupID(req.GroupID),
		OwedAsset:      owedAsset,
		PaymentAsset:   paymentAsset,
		OwedAmount:     owedAmount,
		PaymentAmount:  paymentAmount,
		Recipient:      recipient,
		ConversionRate: rate,
		SuppliedValue:  supplied,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "settled",
		"owed_asset":     assetString(owedAsset),
		"owed_amount":    owedAmount.String(),
		"payment_asset":  assetString(paymentAsset),
		"payment_amount": paymentAmount.String(),
		"recipient":      strings.ToLower(recipient.Hex()),
	})
}
