package domain

import (
	"context"
	"math/big"
	"time"
)

// Event names emitted by the ledger.
const (
	EventGroupCreated      = "GroupCreated"
	EventMemberAdded       = "MemberAdded"
	EventExpenseCreated    = "ExpenseCreated"
	EventPaymentSettled    = "PaymentSettled"
	EventCrossAssetSettled = "CrossAssetSettled"
)

// Event is an external fact describing one committed mutation. Events are a
// side-channel for indexers and UIs; the ledger never reads them back to make
// decisions.
type Event struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	At    time.Time `json:"at"`
	Actor Address   `json:"actor"`

	GroupID   GroupID   `json:"group_id,omitempty"`
	ExpenseID ExpenseID `json:"expense_id,omitempty"`

	Member    *Address `json:"member,omitempty"`
	Recipient *Address `json:"recipient,omitempty"`

	Asset  *Asset   `json:"asset,omitempty"`
	Amount *big.Int `json:"amount,omitempty"`

	// Cross-asset settlements record both sides of the exchange.
	PaymentAsset   *Asset   `json:"payment_asset,omitempty"`
	PaymentAmount  *big.Int `json:"payment_amount,omitempty"`
	ConversionRate *big.Int `json:"conversion_rate,omitempty"`

	GroupName string `json:"group_name,omitempty"`
}

// EventSink receives committed events. Implementations must not block the
// ledger for long; failures are logged by the caller and never abort the
// operation that produced the event.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}

// EventLog is an append-only, queryable record of emitted events.
type EventLog interface {
	Append(ctx context.Context, ev Event) error
	List(ctx context.Context, opts ListOpts) ([]Event, error)
}
