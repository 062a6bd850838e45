// Package ledger implements the balance ledger engine: the state machine that
// turns group, expense, and settlement operations into per-member,
// per-group, per-asset net balances.
//
// Every public mutating operation runs as one indivisible unit: the engine
// serializes writers through a single mutex and wraps each operation's
// storage effects in one Store.Atomic call. External value transfers are
// issued inside that transaction, after internal effects are staged, so a
// failed transfer rolls the whole operation back.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splitledger/splitledger/internal/domain"
	"github.com/splitledger/splitledger/internal/metrics"
)

// Ledger is the single-writer balance ledger engine.
type Ledger struct {
	mu       sync.Mutex
	store    domain.Store
	transfer domain.ValueTransfer
	events   domain.EventSink
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Ledger. The event sink and metrics may be nil; the store and
// transfer collaborator are required.
func New(store domain.Store, transfer domain.ValueTransfer, events domain.EventSink, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:    store,
		transfer: transfer,
		events:   events,
		logger:   logger.With(slog.String("component", "ledger")),
		now:      time.Now,
	}
}

// WithMetrics attaches operation counters.
func (l *Ledger) WithMetrics(m *metrics.Metrics) *Ledger {
	l.metrics = m
	return l
}

// WithClock overrides the time source. Intended for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// CreateGroup registers a new group. The caller becomes the creator and is
// always the first member; members must not repeat the caller or each other.
func (l *Ledger) CreateGroup(ctx context.Context, caller domain.Address, name string, members []domain.Address) (domain.GroupID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller == (domain.Address{}) {
		return 0, l.fail("create_group", fmt.Errorf("caller address required: %w", domain.ErrInvalidInput))
	}
	if name == "" {
		return 0, l.fail("create_group", fmt.Errorf("group name required: %w", domain.ErrInvalidInput))
	}

	seen := map[domain.Address]struct{}{caller: {}}
	for _, m := range members {
		if m == (domain.Address{}) {
			return 0, l.fail("create_group", fmt.Errorf("invalid member address: %w", domain.ErrInvalidInput))
		}
		if m == caller {
			return 0, l.fail("create_group", fmt.Errorf("creator is an implicit member: %w", domain.ErrConflict))
		}
		if _, dup := seen[m]; dup {
			return 0, l.fail("create_group", fmt.Errorf("duplicate member %s: %w", m.Hex(), domain.ErrConflict))
		}
		seen[m] = struct{}{}
	}

	group := &domain.Group{
		Name:      name,
		Creator:   caller,
		Members:   append([]domain.Address{caller}, members...),
		CreatedAt: l.now().UTC(),
	}

	var id domain.GroupID
	err := l.store.Atomic(ctx, func(tx domain.Store) error {
		var err error
		id, err = tx.CreateGroup(ctx, group)
		return err
	})
	if err != nil {
		return 0, l.fail("create_group", fmt.Errorf("ledger: create group: %w", err))
	}

	l.emit(ctx, domain.Event{
		Name:      domain.EventGroupCreated,
		Actor:     caller,
		GroupID:   id,
		GroupName: name,
	})
	l.count("create_group")
	l.logger.InfoContext(ctx, "group created",
		slog.Uint64("group_id", uint64(id)),
		slog.String("creator", caller.Hex()),
		slog.Int("members", len(group.Members)),
	)
	return id, nil
}

// AddMember appends a member to an existing group. Only current members may
// add new ones.
func (l *Ledger) AddMember(ctx context.Context, caller domain.Address, id domain.GroupID, member domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	group, err := l.store.GetGroup(ctx, id)
	if err != nil {
		return l.fail("add_member", fmt.Errorf("ledger: group %d: %w", id, err))
	}
	if !group.IsMember(caller) {
		return l.fail("add_member", fmt.Errorf("caller %s is not a group member: %w", caller.Hex(), domain.ErrUnauthorized))
	}
	if member == (domain.Address{}) {
		return l.fail("add_member", fmt.Errorf("invalid member address: %w", domain.ErrInvalidInput))
	}
	if group.IsMember(member) {
		return l.fail("add_member", fmt.Errorf("member %s already in group: %w", member.Hex(), domain.ErrConflict))
	}

	err = l.store.Atomic(ctx, func(tx domain.Store) error {
		return tx.AddMember(ctx, id, member)
	})
	if err != nil {
		return l.fail("add_member", fmt.Errorf("ledger: add member: %w", err))
	}

	l.emit(ctx, domain.Event{
		Name:    domain.EventMemberAdded,
		Actor:   caller,
		GroupID: id,
		Member:  &member,
	})
	l.count("add_member")
	return nil
}

// ExpenseInput carries the parameters of a new expense.
type ExpenseInput struct {
	GroupID      domain.GroupID
	Asset        domain.Asset
	Amount       *big.Int
	Description  string
	Participants []domain.Address
	Shares       []*big.Int
}

// CreateExpense records an expense paid by the caller and applies its balance
// effect: every non-payer participant is debited by their share, and the
// payer is credited with amount minus their own share. The per-expense delta
// always sums to zero within the (group, asset) pocket.
func (l *Ledger) CreateExpense(ctx context.Context, caller domain.Address, in ExpenseInput) (domain.ExpenseID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	group, err := l.store.GetGroup(ctx, in.GroupID)
	if err != nil {
		return 0, l.fail("create_expense", fmt.Errorf("ledger: group %d: %w", in.GroupID, err))
	}
	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return 0, l.fail("create_expense", fmt.Errorf("amount must be positive: %w", domain.ErrInvalidInput))
	}
	if len(in.Participants) == 0 {
		return 0, l.fail("create_expense", fmt.Errorf("at least one participant required: %w", domain.ErrInvalidInput))
	}
	if len(in.Participants) != len(in.Shares) {
		return 0, l.fail("create_expense", fmt.Errorf("participants and shares length mismatch: %w", domain.ErrInvalidInput))
	}

	sum := new(big.Int)
	for i, p := range in.Participants {
		if !group.IsMember(p) {
			return 0, l.fail("create_expense", fmt.Errorf("participant %s not in group: %w", p.Hex(), domain.ErrUnauthorized))
		}
		if in.Shares[i] == nil || in.Shares[i].Sign() < 0 {
			return 0, l.fail("create_expense", fmt.Errorf("share for %s must be non-negative: %w", p.Hex(), domain.ErrInvalidInput))
		}
		sum.Add(sum, in.Shares[i])
	}
	if sum.Cmp(in.Amount) != 0 {
		return 0, l.fail("create_expense", fmt.Errorf("shares sum to %s, amount is %s: %w", sum, in.Amount, domain.ErrInvalidInput))
	}

	expense := &domain.Expense{
		GroupID:      in.GroupID,
		Payer:        caller,
		Asset:        in.Asset,
		Amount:       domain.CopyAmount(in.Amount),
		Description:  in.Description,
		Participants: append([]domain.Address(nil), in.Participants...),
		Shares:       copyShares(in.Shares),
		CreatedAt:    l.now().UTC(),
	}

	deltas := expenseDeltas(caller, in)

	var id domain.ExpenseID
	err = l.store.Atomic(ctx, func(tx domain.Store) error {
		var err error
		if id, err = tx.CreateExpense(ctx, expense); err != nil {
			return err
		}
		return tx.ApplyDeltas(ctx, deltas)
	})
	if err != nil {
		return 0, l.fail("create_expense", fmt.Errorf("ledger: create expense: %w", err))
	}

	asset := in.Asset
	l.emit(ctx, domain.Event{
		Name:      domain.EventExpenseCreated,
		Actor:     caller,
		GroupID:   in.GroupID,
		ExpenseID: id,
		Asset:     &asset,
		Amount:    domain.CopyAmount(in.Amount),
	})
	l.count("create_expense")
	l.logger.InfoContext(ctx, "expense created",
		slog.Uint64("expense_id", uint64(id)),
		slog.Uint64("group_id", uint64(in.GroupID)),
		slog.String("payer", caller.Hex()),
		slog.String("amount", in.Amount.String()),
	)
	return id, nil
}

// expenseDeltas computes the zero-sum balance effect of an expense. The
// payer's own share (summed, if the payer appears more than once) never
// becomes a debt; the payer is credited with what everyone else owes.
func expenseDeltas(payer domain.Address, in ExpenseInput) []domain.BalanceDelta {
	payerShare := new(big.Int)
	deltas := make([]domain.BalanceDelta, 0, len(in.Participants)+1)
	for i, p := range in.Participants {
		if p == payer {
			payerShare.Add(payerShare, in.Shares[i])
			continue
		}
		if in.Shares[i].Sign() == 0 {
			continue
		}
		deltas = append(deltas, domain.BalanceDelta{
			Key:   domain.BalanceKey{Member: p, Group: in.GroupID, Asset: in.Asset},
			Delta: domain.CopyAmount(in.Shares[i]),
		})
	}
	owedToPayer := new(big.Int).Sub(in.Amount, payerShare)
	if owedToPayer.Sign() != 0 {
		deltas = append(deltas, domain.BalanceDelta{
			Key:   domain.BalanceKey{Member: payer, Group: in.GroupID, Asset: in.Asset},
			Delta: owedToPayer.Neg(owedToPayer),
		})
	}
	return deltas
}

// SettlementInput carries the parameters of a same-asset settlement.
type SettlementInput struct {
	GroupID   domain.GroupID
	Asset     domain.Asset
	Amount    *big.Int
	Recipient domain.Address

	// SuppliedValue is the native value attached to the call. Required to
	// cover Amount for native-asset settlements; any excess is refunded.
	SuppliedValue *big.Int
}

// SettlePayment reduces the caller's debt in one (group, asset) pocket and
// drives the external transfer of the settled value to the recipient. The
// recipient's entry is credited by the same amount, so the pocket stays
// zero-sum; the recipient need not be the original creditor.
func (l *Ledger) SettlePayment(ctx context.Context, caller domain.Address, in SettlementInput) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validateSettlement(ctx, caller, in.GroupID, in.Asset, in.Amount, in.Recipient); err != nil {
		return l.fail("settle_payment", err)
	}
	refund, err := nativeRefund(in.Asset, in.Amount, in.SuppliedValue)
	if err != nil {
		return l.fail("settle_payment", err)
	}

	deltas := settlementDeltas(caller, in.Recipient, in.GroupID, in.Asset, in.Amount)

	err = l.store.Atomic(ctx, func(tx domain.Store) error {
		if err := tx.ApplyDeltas(ctx, deltas); err != nil {
			return err
		}
		// The transfer runs inside the transaction: a collaborator failure
		// discards the staged balance effect.
		if err := l.transfer.Transfer(ctx, caller, in.Recipient, in.Asset, in.Amount); err != nil {
			return fmt.Errorf("transfer %s of %s: %w", in.Amount, assetLabel(in.Asset), err)
		}
		if refund != nil {
			if err := l.transfer.RefundNative(ctx, caller, refund); err != nil {
				return fmt.Errorf("refund %s native: %w", refund, err)
			}
		}
		return nil
	})
	if err != nil {
		return l.fail("settle_payment", fmt.Errorf("ledger: settle payment: %w", err))
	}

	asset := in.Asset
	l.emit(ctx, domain.Event{
		Name:      domain.EventPaymentSettled,
		Actor:     caller,
		GroupID:   in.GroupID,
		Recipient: &in.Recipient,
		Asset:     &asset,
		Amount:    domain.CopyAmount(in.Amount),
	})
	l.count("settle_payment")
	l.logger.InfoContext(ctx, "payment settled",
		slog.Uint64("group_id", uint64(in.GroupID)),
		slog.String("from", caller.Hex()),
		slog.String("to", in.Recipient.Hex()),
		slog.String("amount", in.Amount.String()),
	)
	return nil
}

// CrossAssetInput carries the parameters of a cross-asset settlement.
type CrossAssetInput struct {
	GroupID        domain.GroupID
	OwedAsset      domain.Asset
	PaymentAsset   domain.Asset
	OwedAmount     *big.Int
	PaymentAmount  *big.Int
	Recipient      domain.Address
	ConversionRate *big.Int

	SuppliedValue *big.Int
}

// SettlePaymentCrossAsset settles a debt recorded in one asset by paying an
// equivalent amount of another. The caller declares the conversion rate; the
// ledger only rejects triples that are internally inconsistent under
// fixed-point truncating division (paymentAmount * rate / Scale == owedAmount).
func (l *Ledger) SettlePaymentCrossAsset(ctx context.Context, caller domain.Address, in CrossAssetInput) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validateSettlement(ctx, caller, in.GroupID, in.OwedAsset, in.OwedAmount, in.Recipient); err != nil {
		return l.fail("settle_cross_asset", err)
	}
	if in.PaymentAmount == nil || in.PaymentAmount.Sign() <= 0 {
		return l.fail("settle_cross_asset", fmt.Errorf("payment amount must be positive: %w", domain.ErrInvalidInput))
	}
	if in.ConversionRate == nil || in.ConversionRate.Sign() <= 0 {
		return l.fail("settle_cross_asset", fmt.Errorf("conversion rate must be positive: %w", domain.ErrInvalidInput))
	}

	converted := new(big.Int).Mul(in.PaymentAmount, in.ConversionRate)
	converted.Quo(converted, domain.Scale)
	if converted.Cmp(in.OwedAmount) != 0 {
		return l.fail("settle_cross_asset", fmt.Errorf("payment %s at rate %s converts to %s, owed %s: %w",
			in.PaymentAmount, in.ConversionRate, converted, in.OwedAmount, domain.ErrConversionRateMismatch))
	}

	refund, err := nativeRefund(in.PaymentAsset, in.PaymentAmount, in.SuppliedValue)
	if err != nil {
		return l.fail("settle_cross_asset", err)
	}

	deltas := settlementDeltas(caller, in.Recipient, in.GroupID, in.OwedAsset, in.OwedAmount)

	err = l.store.Atomic(ctx, func(tx domain.Store) error {
		if err := tx.ApplyDeltas(ctx, deltas); err != nil {
			return err
		}
		if err := l.transfer.Transfer(ctx, caller, in.Recipient, in.PaymentAsset, in.PaymentAmount); err != nil {
			return fmt.Errorf("transfer %s of %s: %w", in.PaymentAmount, assetLabel(in.PaymentAsset), err)
		}
		if refund != nil {
			if err := l.transfer.RefundNative(ctx, caller, refund); err != nil {
				return fmt.Errorf("refund %s native: %w", refund, err)
			}
		}
		return nil
	})
	if err != nil {
		return l.fail("settle_cross_asset", fmt.Errorf("ledger: settle cross-asset: %w", err))
	}

	owed, payment := in.OwedAsset, in.PaymentAsset
	l.emit(ctx, domain.Event{
		Name:           domain.EventCrossAssetSettled,
		Actor:          caller,
		GroupID:        in.GroupID,
		Recipient:      &in.Recipient,
		Asset:          &owed,
		Amount:         domain.CopyAmount(in.OwedAmount),
		PaymentAsset:   &payment,
		PaymentAmount:  domain.CopyAmount(in.PaymentAmount),
		ConversionRate: domain.CopyAmount(in.ConversionRate),
	})
	l.count("settle_cross_asset")
	return nil
}

// validateSettlement runs the checks shared by both settlement paths against
// the caller's balance in the owed (group, asset) pocket.
func (l *Ledger) validateSettlement(ctx context.Context, caller domain.Address, groupID domain.GroupID, asset domain.Asset, amount *big.Int, recipient domain.Address) error {
	if _, err := l.store.GetGroup(ctx, groupID); err != nil {
		return fmt.Errorf("ledger: group %d: %w", groupID, err)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive: %w", domain.ErrInvalidInput)
	}
	if recipient == (domain.Address{}) {
		return fmt.Errorf("invalid recipient: %w", domain.ErrInvalidInput)
	}
	if recipient == caller {
		return domain.ErrCannotPaySelf
	}

	balance, err := l.store.GetBalance(ctx, domain.BalanceKey{Member: caller, Group: groupID, Asset: asset})
	if err != nil {
		return fmt.Errorf("ledger: read balance: %w", err)
	}
	if balance.Sign() <= 0 {
		return domain.ErrNothingToSettle
	}
	if amount.Cmp(balance) > 0 {
		return fmt.Errorf("settling %s against balance %s: %w", amount, balance, domain.ErrInsufficientBalance)
	}
	return nil
}

// nativeRefund validates the supplied native value against the amount the
// settlement needs and returns the excess to refund, or nil when nothing is
// owed back. Non-native settlements must not attach native value.
func nativeRefund(asset domain.Asset, amount, supplied *big.Int) (*big.Int, error) {
	if !domain.IsNative(asset) {
		if supplied != nil && supplied.Sign() != 0 {
			return nil, fmt.Errorf("native value supplied for non-native settlement: %w", domain.ErrInvalidInput)
		}
		return nil, nil
	}
	if supplied == nil || supplied.Cmp(amount) < 0 {
		return nil, fmt.Errorf("insufficient native value supplied: %w", domain.ErrTransferFailed)
	}
	excess := new(big.Int).Sub(supplied, amount)
	if excess.Sign() == 0 {
		return nil, nil
	}
	return excess, nil
}

// settlementDeltas debits the caller and credits the recipient in the owed
// pocket. Crediting the recipient keeps the pocket zero-sum whether or not
// the recipient was the original creditor.
func settlementDeltas(caller, recipient domain.Address, groupID domain.GroupID, asset domain.Asset, amount *big.Int) []domain.BalanceDelta {
	return []domain.BalanceDelta{
		{
			Key:   domain.BalanceKey{Member: caller, Group: groupID, Asset: asset},
			Delta: new(big.Int).Neg(amount),
		},
		{
			Key:   domain.BalanceKey{Member: recipient, Group: groupID, Asset: asset},
			Delta: domain.CopyAmount(amount),
		},
	}
}

func copyShares(shares []*big.Int) []*big.Int {
	out := make([]*big.Int, len(shares))
	for i, s := range shares {
		out[i] = domain.CopyAmount(s)
	}
	return out
}

func assetLabel(asset domain.Asset) string {
	if domain.IsNative(asset) {
		return "native"
	}
	return asset.Hex()
}

// emit hands a committed event to the sink. Emission is a side channel:
// failures are logged and never abort the operation.
func (l *Ledger) emit(ctx context.Context, ev domain.Event) {
	if l.events == nil {
		return
	}
	ev.ID = uuid.New().String()
	ev.At = l.now().UTC()
	if err := l.events.Emit(ctx, ev); err != nil {
		l.logger.WarnContext(ctx, "event emission failed",
			slog.String("event", ev.Name),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Ledger) count(op string) {
	if l.metrics != nil {
		l.metrics.OperationOK(op)
	}
}

func (l *Ledger) fail(op string, err error) error {
	if l.metrics != nil {
		l.metrics.OperationFailed(op)
	}
	return err
}
