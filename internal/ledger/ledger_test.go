package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"testing"

	"github.com/splitledger/splitledger/internal/domain"
	"github.com/splitledger/splitledger/internal/store/memory"
)

func addr(b byte) domain.Address {
	var a domain.Address
	a[19] = b
	return a
}

func bi(n int64) *big.Int { return big.NewInt(n) }

// fakeTransfer records transfer and refund calls and can be told to fail.
type fakeTransfer struct {
	transfers []transferCall
	refunds   []refundCall
	failWith  error
}

type transferCall struct {
	from, to domain.Address
	asset    domain.Asset
	amount   *big.Int
}

type refundCall struct {
	to     domain.Address
	amount *big.Int
}

func (f *fakeTransfer) Transfer(ctx context.Context, from, to domain.Address, asset domain.Asset, amount *big.Int) error {
	if f.failWith != nil {
		return fmt.Errorf("fake: %w", f.failWith)
	}
	f.transfers = append(f.transfers, transferCall{from, to, asset, domain.CopyAmount(amount)})
	return nil
}

func (f *fakeTransfer) RefundNative(ctx context.Context, to domain.Address, amount *big.Int) error {
	if f.failWith != nil {
		return fmt.Errorf("fake: %w", f.failWith)
	}
	f.refunds = append(f.refunds, refundCall{to, domain.CopyAmount(amount)})
	return nil
}

func newTestLedger(t *testing.T) (*Ledger, *memory.Store, *fakeTransfer) {
	t.Helper()
	store := memory.New()
	transfer := &fakeTransfer{}
	l := New(store, transfer, nil, slog.New(slog.DiscardHandler))
	return l, store, transfer
}

// newTestGroup creates a group with the given creator and members and fails
// the test on error.
func newTestGroup(t *testing.T, l *Ledger, creator domain.Address, members ...domain.Address) domain.GroupID {
	t.Helper()
	id, err := l.CreateGroup(context.Background(), creator, "trip", members)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return id
}

func mustBalance(t *testing.T, l *Ledger, member domain.Address, group domain.GroupID, asset domain.Asset) *big.Int {
	t.Helper()
	b, err := l.GetBalance(context.Background(), member, group, asset)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	return b
}

func TestCreateGroup(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	creator := addr(1)
	id, err := l.CreateGroup(ctx, creator, "Roommates", []domain.Address{addr(2), addr(3)})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if id != 1 {
		t.Errorf("first group id: expected 1, got %d", id)
	}

	group, err := l.GetGroup(ctx, id)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if group.Name != "Roommates" {
		t.Errorf("name: expected 'Roommates', got %q", group.Name)
	}
	if group.Creator != creator {
		t.Errorf("creator mismatch: got %s", group.Creator.Hex())
	}
	if len(group.Members) != 3 {
		t.Fatalf("members: expected 3, got %d", len(group.Members))
	}
	if group.Members[0] != creator {
		t.Error("creator should be the first member")
	}
	if group.CreatedAt.IsZero() {
		t.Error("expected non-zero CreatedAt")
	}
}

func TestCreateGroup_Validation(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  domain.Address
		groupNm string
		members []domain.Address
		wantErr error
	}{
		{"zero caller", domain.Address{}, "x", nil, domain.ErrInvalidInput},
		{"empty name", addr(1), "", nil, domain.ErrInvalidInput},
		{"zero member", addr(1), "x", []domain.Address{{}}, domain.ErrInvalidInput},
		{"creator listed", addr(1), "x", []domain.Address{addr(1)}, domain.ErrConflict},
		{"duplicate member", addr(1), "x", []domain.Address{addr(2), addr(2)}, domain.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.CreateGroup(ctx, tt.caller, tt.groupNm, tt.members)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAddMember(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	creator := addr(1)
	id := newTestGroup(t, l, creator, addr(2))

	if err := l.AddMember(ctx, creator, id, addr(3)); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	group, err := l.GetGroup(ctx, id)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if !group.IsMember(addr(3)) {
		t.Error("added member missing from group")
	}

	// Non-members cannot add.
	if err := l.AddMember(ctx, addr(9), id, addr(4)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	// Existing members cannot be re-added.
	if err := l.AddMember(ctx, creator, id, addr(2)); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	// Null address is rejected.
	if err := l.AddMember(ctx, creator, id, domain.Address{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	// Unknown group.
	if err := l.AddMember(ctx, creator, 999, addr(4)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateExpense_EqualSplit(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	payer := addr(1)
	a, b, c := addr(2), addr(3), addr(4)
	id := newTestGroup(t, l, payer, a, b, c)

	asset := addr(0xAA)
	_, err := l.CreateExpense(ctx, payer, ExpenseInput{
		GroupID:      id,
		Asset:        asset,
		Amount:       bi(300),
		Description:  "dinner",
		Participants: []domain.Address{payer, a, b, c},
		Shares:       []*big.Int{bi(75), bi(75), bi(75), bi(75)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	// The payer is owed what everyone else's shares add up to.
	if got := mustBalance(t, l, payer, id, asset); got.Cmp(bi(-225)) != 0 {
		t.Errorf("payer balance: expected -225, got %s", got)
	}
	for _, m := range []domain.Address{a, b, c} {
		if got := mustBalance(t, l, m, id, asset); got.Cmp(bi(75)) != 0 {
			t.Errorf("member %s balance: expected 75, got %s", m.Hex(), got)
		}
	}
}

func TestCreateExpense_PayerNotParticipant(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	payer := addr(1)
	a, b := addr(2), addr(3)
	id := newTestGroup(t, l, payer, a, b)

	asset := addr(0xAA)
	_, err := l.CreateExpense(ctx, payer, ExpenseInput{
		GroupID:      id,
		Asset:        asset,
		Amount:       bi(100),
		Participants: []domain.Address{a, b},
		Shares:       []*big.Int{bi(60), bi(40)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	if got := mustBalance(t, l, payer, id, asset); got.Cmp(bi(-100)) != 0 {
		t.Errorf("payer balance: expected -100, got %s", got)
	}
	if got := mustBalance(t, l, a, id, asset); got.Cmp(bi(60)) != 0 {
		t.Errorf("a balance: expected 60, got %s", got)
	}
	if got := mustBalance(t, l, b, id, asset); got.Cmp(bi(40)) != 0 {
		t.Errorf("b balance: expected 40, got %s", got)
	}
}

func TestCreateExpense_DuplicateParticipants(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	payer := addr(1)
	a := addr(2)
	id := newTestGroup(t, l, payer, a)

	asset := addr(0xAA)
	// The same participant may appear more than once; the effects add up,
	// including the payer's own entries.
	_, err := l.CreateExpense(ctx, payer, ExpenseInput{
		GroupID:      id,
		Asset:        asset,
		Amount:       bi(100),
		Participants: []domain.Address{payer, payer, a, a},
		Shares:       []*big.Int{bi(10), bi(20), bi(30), bi(40)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if got := mustBalance(t, l, payer, id, asset); got.Cmp(bi(-70)) != 0 {
		t.Errorf("payer balance: expected -70, got %s", got)
	}
	if got := mustBalance(t, l, a, id, asset); got.Cmp(bi(70)) != 0 {
		t.Errorf("a balance: expected 70, got %s", got)
	}
}

func TestCreateExpense_Validation(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	payer := addr(1)
	a := addr(2)
	id := newTestGroup(t, l, payer, a)
	asset := addr(0xAA)

	tests := []struct {
		name    string
		in      ExpenseInput
		wantErr error
	}{
		{
			"unknown group",
			ExpenseInput{GroupID: 999, Asset: asset, Amount: bi(10), Participants: []domain.Address{a}, Shares: []*big.Int{bi(10)}},
			domain.ErrNotFound,
		},
		{
			"zero amount",
			ExpenseInput{GroupID: id, Asset: asset, Amount: bi(0), Participants: []domain.Address{a}, Shares: []*big.Int{bi(0)}},
			domain.ErrInvalidInput,
		},
		{
			"negative amount",
			ExpenseInput{GroupID: id, Asset: asset, Amount: bi(-5), Participants: []domain.Address{a}, Shares: []*big.Int{bi(-5)}},
			domain.ErrInvalidInput,
		},
		{
			"nil amount",
			ExpenseInput{GroupID: id, Asset: asset, Participants: []domain.Address{a}, Shares: []*big.Int{bi(10)}},
			domain.ErrInvalidInput,
		},
		{
			"no participants",
			ExpenseInput{GroupID: id, Asset: asset, Amount: bi(10)},
			domain.ErrInvalidInput,
		},
		{
			"length mismatch",
			ExpenseInput{GroupID: id, Asset: asset, Amount: bi(10), Participants: []domain.Address{a}, Shares: []*big.Int{bi(5), bi(5)}},
			domain.ErrInvalidInput,
		},
		{
			"participant not in group",
			ExpenseInput{GroupID: id, Asset: asset, Amount: bi(10), Participants: []domain.Address{addr(9)}, Shares: []*big.Int{bi(10)}},
			domain.ErrUnauthorized,
		},
		{
			"negative share",
			ExpenseInput{GroupID: id, Asset: asset, Amount: bi(10), Participants: []domain.Address{payer, a}, Shares: []*big.Int{bi(-5), bi(15)}},
			domain.ErrInvalidInput,
		},
		{
			"shares under amount",
			ExpenseInput{GroupID: id, Asset: asset, Amount: bi(10), Participants: []domain.Address{a}, Shares: []*big.Int{bi(9)}},
			domain.ErrInvalidInput,
		},
		{
			"shares over amount",
			ExpenseInput{GroupID: id, Asset: asset, Amount: bi(10), Participants: []domain.Address{a}, Shares: []*big.Int{bi(11)}},
			domain.ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.CreateExpense(ctx, payer, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	// Nothing should have landed.
	if got := mustBalance(t, l, payer, id, asset); got.Sign() != 0 {
		t.Errorf("payer balance after rejected expenses: expected 0, got %s", got)
	}
}

func TestSettlePayment_FullCycle(t *testing.T) {
	l, _, transfer := newTestLedger(t)
	ctx := context.Background()

	owner := addr(1)
	debtors := []domain.Address{addr(2), addr(3), addr(4)}
	id := newTestGroup(t, l, owner, debtors...)

	asset := addr(0xAA)
	participants := append([]domain.Address{owner}, debtors...)
	_, err := l.CreateExpense(ctx, owner, ExpenseInput{
		GroupID:      id,
		Asset:        asset,
		Amount:       bi(300),
		Participants: participants,
		Shares:       []*big.Int{bi(75), bi(75), bi(75), bi(75)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	for _, d := range debtors {
		err := l.SettlePayment(ctx, d, SettlementInput{
			GroupID:   id,
			Asset:     asset,
			Amount:    bi(75),
			Recipient: owner,
		})
		if err != nil {
			t.Fatalf("SettlePayment by %s failed: %v", d.Hex(), err)
		}
	}

	// Settling credits the recipient, so everybody lands on zero.
	for _, m := range participants {
		if got := mustBalance(t, l, m, id, asset); got.Sign() != 0 {
			t.Errorf("%s final balance: expected 0, got %s", m.Hex(), got)
		}
	}
	if len(transfer.transfers) != 3 {
		t.Fatalf("transfers: expected 3, got %d", len(transfer.transfers))
	}
	for _, call := range transfer.transfers {
		if call.to != owner || call.asset != asset || call.amount.Cmp(bi(75)) != 0 {
			t.Errorf("unexpected transfer %+v", call)
		}
	}
}

func TestSettlePayment_Partial(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	owner := addr(1)
	debtor := addr(2)
	id := newTestGroup(t, l, owner, debtor)
	asset := addr(0xAA)

	_, err := l.CreateExpense(ctx, owner, ExpenseInput{
		GroupID:      id,
		Asset:        asset,
		Amount:       bi(100),
		Participants: []domain.Address{owner, debtor},
		Shares:       []*big.Int{bi(50), bi(50)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	if err := l.SettlePayment(ctx, debtor, SettlementInput{GroupID: id, Asset: asset, Amount: bi(20), Recipient: owner}); err != nil {
		t.Fatalf("partial settle failed: %v", err)
	}
	if got := mustBalance(t, l, debtor, id, asset); got.Cmp(bi(30)) != 0 {
		t.Errorf("debtor balance: expected 30, got %s", got)
	}
	if got := mustBalance(t, l, owner, id, asset); got.Cmp(bi(-30)) != 0 {
		t.Errorf("owner balance: expected -30, got %s", got)
	}

	// Settling more than the remaining debt is rejected.
	err = l.SettlePayment(ctx, debtor, SettlementInput{GroupID: id, Asset: asset, Amount: bi(31), Recipient: owner})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestSettlePayment_Validation(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	owner := addr(1)
	debtor := addr(2)
	id := newTestGroup(t, l, owner, debtor)
	asset := addr(0xAA)

	_, err := l.CreateExpense(ctx, owner, ExpenseInput{
		GroupID:      id,
		Asset:        asset,
		Amount:       bi(100),
		Participants: []domain.Address{owner, debtor},
		Shares:       []*big.Int{bi(50), bi(50)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	tests := []struct {
		name    string
		caller  domain.Address
		in      SettlementInput
		wantErr error
	}{
		{"unknown group", debtor, SettlementInput{GroupID: 999, Asset: asset, Amount: bi(10), Recipient: owner}, domain.ErrNotFound},
		{"zero amount", debtor, SettlementInput{GroupID: id, Asset: asset, Amount: bi(0), Recipient: owner}, domain.ErrInvalidInput},
		{"nil amount", debtor, SettlementInput{GroupID: id, Asset: asset, Recipient: owner}, domain.ErrInvalidInput},
		{"zero recipient", debtor, SettlementInput{GroupID: id, Asset: asset, Amount: bi(10)}, domain.ErrInvalidInput},
		{"pay self", debtor, SettlementInput{GroupID: id, Asset: asset, Amount: bi(10), Recipient: debtor}, domain.ErrCannotPaySelf},
		// The creditor has a negative balance, nothing to settle.
		{"creditor settles", owner, SettlementInput{GroupID: id, Asset: asset, Amount: bi(10), Recipient: debtor}, domain.ErrNothingToSettle},
		// Untouched pocket.
		{"wrong asset", debtor, SettlementInput{GroupID: id, Asset: addr(0xBB), Amount: bi(10), Recipient: owner}, domain.ErrNothingToSettle},
		{"over balance", debtor, SettlementInput{GroupID: id, Asset: asset, Amount: bi(51), Recipient: owner}, domain.ErrInsufficientBalance},
		// Non-native settlements must not carry native value.
		{"stray native value", debtor, SettlementInput{GroupID: id, Asset: asset, Amount: bi(10), Recipient: owner, SuppliedValue: bi(10)}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.SettlePayment(ctx, tt.caller, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSettlePayment_NativeRefund(t *testing.T) {
	l, _, transfer := newTestLedger(t)
	ctx := context.Background()

	owner := addr(1)
	debtor := addr(2)
	id := newTestGroup(t, l, owner, debtor)

	_, err := l.CreateExpense(ctx, owner, ExpenseInput{
		GroupID:      id,
		Asset:        domain.NativeAsset,
		Amount:       bi(100),
		Participants: []domain.Address{owner, debtor},
		Shares:       []*big.Int{bi(50), bi(50)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	// Supplying less native value than the settlement needs fails.
	err = l.SettlePayment(ctx, debtor, SettlementInput{
		GroupID: id, Asset: domain.NativeAsset, Amount: bi(50), Recipient: owner, SuppliedValue: bi(49),
	})
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if got := mustBalance(t, l, debtor, id, domain.NativeAsset); got.Cmp(bi(50)) != 0 {
		t.Errorf("debtor balance after failed settle: expected 50, got %s", got)
	}

	// Overpaying refunds the excess.
	err = l.SettlePayment(ctx, debtor, SettlementInput{
		GroupID: id, Asset: domain.NativeAsset, Amount: bi(50), Recipient: owner, SuppliedValue: bi(80),
	})
	if err != nil {
		t.Fatalf("SettlePayment failed: %v", err)
	}
	if len(transfer.refunds) != 1 {
		t.Fatalf("refunds: expected 1, got %d", len(transfer.refunds))
	}
	if r := transfer.refunds[0]; r.to != debtor || r.amount.Cmp(bi(30)) != 0 {
		t.Errorf("unexpected refund %+v", r)
	}

	// Exact payment refunds nothing.
	_, err = l.CreateExpense(ctx, owner, ExpenseInput{
		GroupID:      id,
		Asset:        domain.NativeAsset,
		Amount:       bi(40),
		Participants: []domain.Address{owner, debtor},
		Shares:       []*big.Int{bi(20), bi(20)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	err = l.SettlePayment(ctx, debtor, SettlementInput{
		GroupID: id, Asset: domain.NativeAsset, Amount: bi(20), Recipient: owner, SuppliedValue: bi(20),
	})
	if err != nil {
		t.Fatalf("SettlePayment failed: %v", err)
	}
	if len(transfer.refunds) != 1 {
		t.Errorf("exact payment should not refund, got %d refunds", len(transfer.refunds))
	}
}

func TestSettlePayment_TransferFailureRollsBack(t *testing.T) {
	l, _, transfer := newTestLedger(t)
	ctx := context.Background()

	owner := addr(1)
	debtor := addr(2)
	id := newTestGroup(t, l, owner, debtor)
	asset := addr(0xAA)

	_, err := l.CreateExpense(ctx, owner, ExpenseInput{
		GroupID:      id,
		Asset:        asset,
		Amount:       bi(100),
		Participants: []domain.Address{owner, debtor},
		Shares:       []*big.Int{bi(50), bi(50)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	transfer.failWith = domain.ErrTransferFailed
	err = l.SettlePayment(ctx, debtor, SettlementInput{GroupID: id, Asset: asset, Amount: bi(50), Recipient: owner})
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	// The staged balance adjustment must not survive the failed transfer.
	if got := mustBalance(t, l, debtor, id, asset); got.Cmp(bi(50)) != 0 {
		t.Errorf("debtor balance: expected 50, got %s", got)
	}
	if got := mustBalance(t, l, owner, id, asset); got.Cmp(bi(-50)) != 0 {
		t.Errorf("owner balance: expected -50, got %s", got)
	}

	transfer.failWith = nil
	if err := l.SettlePayment(ctx, debtor, SettlementInput{GroupID: id, Asset: asset, Amount: bi(50), Recipient: owner}); err != nil {
		t.Fatalf("retry after transfer recovery failed: %v", err)
	}
	if got := mustBalance(t, l, debtor, id, asset); got.Sign() != 0 {
		t.Errorf("debtor balance after retry: expected 0, got %s", got)
	}
}

func TestSettlePayment_ThirdPartyRecipient(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	owner := addr(1)
	debtor := addr(2)
	other := addr(3)
	id := newTestGroup(t, l, owner, debtor, other)
	asset := addr(0xAA)

	_, err := l.CreateExpense(ctx, owner, ExpenseInput{
		GroupID:      id,
		Asset:        asset,
		Amount:       bi(100),
		Participants: []domain.Address{owner, debtor},
		Shares:       []*big.Int{bi(50), bi(50)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	// The recipient does not have to be the creditor; the pocket still sums
	// to zero afterwards.
	if err := l.SettlePayment(ctx, debtor, SettlementInput{GroupID: id, Asset: asset, Amount: bi(50), Recipient: other}); err != nil {
		t.Fatalf("SettlePayment failed: %v", err)
	}
	if got := mustBalance(t, l, debtor, id, asset); got.Sign() != 0 {
		t.Errorf("debtor balance: expected 0, got %s", got)
	}
	if got := mustBalance(t, l, other, id, asset); got.Cmp(bi(50)) != 0 {
		t.Errorf("recipient balance: expected 50, got %s", got)
	}
	if got := mustBalance(t, l, owner, id, asset); got.Cmp(bi(-50)) != 0 {
		t.Errorf("owner balance: expected -50, got %s", got)
	}
}

func TestSettlePaymentCrossAsset(t *testing.T) {
	l, _, transfer := newTestLedger(t)
	ctx := context.Background()

	owner := addr(1)
	debtor := addr(2)
	id := newTestGroup(t, l, owner, debtor)
	owedAsset := addr(0xAA)
	payAsset := addr(0xBB)

	_, err := l.CreateExpense(ctx, owner, ExpenseInput{
		GroupID:      id,
		Asset:        owedAsset,
		Amount:       bi(100),
		Participants: []domain.Address{owner, debtor},
		Shares:       []*big.Int{bi(0), bi(100)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	// One unit of the payment asset is worth two units of the owed asset.
	rate := new(big.Int).Mul(bi(2), domain.Scale)
	err = l.SettlePaymentCrossAsset(ctx, debtor, CrossAssetInput{
		GroupID:        id,
		OwedAsset:      owedAsset,
		PaymentAsset:   payAsset,
		OwedAmount:     bi(100),
		PaymentAmount:  bi(50),
		Recipient:      owner,
		ConversionRate: rate,
	})
	if err != nil {
		t.Fatalf("SettlePaymentCrossAsset failed: %v", err)
	}

	// Debt clears in the owed asset; the transfer moves the payment asset.
	if got := mustBalance(t, l, debtor, id, owedAsset); got.Sign() != 0 {
		t.Errorf("debtor owed balance: expected 0, got %s", got)
	}
	if got := mustBalance(t, l, owner, id, owedAsset); got.Sign() != 0 {
		t.Errorf("owner owed balance: expected 0, got %s", got)
	}
	if len(transfer.transfers) != 1 {
		t.Fatalf("transfers: expected 1, got %d", len(transfer.transfers))
	}
	if call := transfer.transfers[0]; call.asset != payAsset || call.amount.Cmp(bi(50)) != 0 {
		t.Errorf("unexpected transfer %+v", call)
	}
}

func TestSettlePaymentCrossAsset_RateMismatch(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	owner := addr(1)
	debtor := addr(2)
	id := newTestGroup(t, l, owner, debtor)
	owedAsset := addr(0xAA)
	payAsset := addr(0xBB)

	_, err := l.CreateExpense(ctx, owner, ExpenseInput{
		GroupID:      id,
		Asset:        owedAsset,
		Amount:       bi(100),
		Participants: []domain.Address{owner, debtor},
		Shares:       []*big.Int{bi(0), bi(100)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	rate := new(big.Int).Mul(bi(2), domain.Scale)

	tests := []struct {
		name    string
		in      CrossAssetInput
		wantErr error
	}{
		{
			// 49 * 2 = 98, not 100.
			"payment too small",
			CrossAssetInput{GroupID: id, OwedAsset: owedAsset, PaymentAsset: payAsset, OwedAmount: bi(100), PaymentAmount: bi(49), Recipient: owner, ConversionRate: rate},
			domain.ErrConversionRateMismatch,
		},
		{
			"payment too large",
			CrossAssetInput{GroupID: id, OwedAsset: owedAsset, PaymentAsset: payAsset, OwedAmount: bi(100), PaymentAmount: bi(51), Recipient: owner, ConversionRate: rate},
			domain.ErrConversionRateMismatch,
		},
		{
			"zero rate",
			CrossAssetInput{GroupID: id, OwedAsset: owedAsset, PaymentAsset: payAsset, OwedAmount: bi(100), PaymentAmount: bi(50), Recipient: owner, ConversionRate: bi(0)},
			domain.ErrInvalidInput,
		},
		{
			"zero payment",
			CrossAssetInput{GroupID: id, OwedAsset: owedAsset, PaymentAsset: payAsset, OwedAmount: bi(100), PaymentAmount: bi(0), Recipient: owner, ConversionRate: rate},
			domain.ErrInvalidInput,
		},
		{
			"pay self",
			CrossAssetInput{GroupID: id, OwedAsset: owedAsset, PaymentAsset: payAsset, OwedAmount: bi(100), PaymentAmount: bi(50), Recipient: debtor, ConversionRate: rate},
			domain.ErrCannotPaySelf,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.SettlePaymentCrossAsset(ctx, debtor, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if got := mustBalance(t, l, debtor, id, owedAsset); got.Cmp(bi(100)) != 0 {
		t.Errorf("debtor balance after rejected settlements: expected 100, got %s", got)
	}
}

func TestSettlePaymentCrossAsset_TruncatingConversion(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	owner := addr(1)
	debtor := addr(2)
	id := newTestGroup(t, l, owner, debtor)
	owedAsset := addr(0xAA)
	payAsset := addr(0xBB)

	_, err := l.CreateExpense(ctx, owner, ExpenseInput{
		GroupID:      id,
		Asset:        owedAsset,
		Amount:       bi(1),
		Participants: []domain.Address{owner, debtor},
		Shares:       []*big.Int{bi(0), bi(1)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	// 3 * (0.5 * Scale) / Scale truncates to 1.
	halfRate := new(big.Int).Quo(domain.Scale, bi(2))
	err = l.SettlePaymentCrossAsset(ctx, debtor, CrossAssetInput{
		GroupID:        id,
		OwedAsset:      owedAsset,
		PaymentAsset:   payAsset,
		OwedAmount:     bi(1),
		PaymentAmount:  bi(3),
		Recipient:      owner,
		ConversionRate: halfRate,
	})
	if err != nil {
		t.Fatalf("SettlePaymentCrossAsset failed: %v", err)
	}
	if got := mustBalance(t, l, debtor, id, owedAsset); got.Sign() != 0 {
		t.Errorf("debtor balance: expected 0, got %s", got)
	}
}

func TestSettlePaymentCrossAsset_NativePayment(t *testing.T) {
	l, _, transfer := newTestLedger(t)
	ctx := context.Background()

	owner := addr(1)
	debtor := addr(2)
	id := newTestGroup(t, l, owner, debtor)
	owedAsset := addr(0xAA)

	_, err := l.CreateExpense(ctx, owner, ExpenseInput{
		GroupID:      id,
		Asset:        owedAsset,
		Amount:       bi(100),
		Participants: []domain.Address{owner, debtor},
		Shares:       []*big.Int{bi(0), bi(100)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	rate := new(big.Int).Mul(bi(2), domain.Scale)
	err = l.SettlePaymentCrossAsset(ctx, debtor, CrossAssetInput{
		GroupID:        id,
		OwedAsset:      owedAsset,
		PaymentAsset:   domain.NativeAsset,
		OwedAmount:     bi(100),
		PaymentAmount:  bi(50),
		Recipient:      owner,
		ConversionRate: rate,
		SuppliedValue:  bi(60),
	})
	if err != nil {
		t.Fatalf("SettlePaymentCrossAsset failed: %v", err)
	}
	if len(transfer.refunds) != 1 {
		t.Fatalf("refunds: expected 1, got %d", len(transfer.refunds))
	}
	if r := transfer.refunds[0]; r.amount.Cmp(bi(10)) != 0 {
		t.Errorf("refund: expected 10, got %s", r.amount)
	}
}

func TestGetExpenseShare(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	payer := addr(1)
	a := addr(2)
	id := newTestGroup(t, l, payer, a)

	expID, err := l.CreateExpense(ctx, payer, ExpenseInput{
		GroupID:      id,
		Asset:        addr(0xAA),
		Amount:       bi(100),
		Participants: []domain.Address{payer, a},
		Shares:       []*big.Int{bi(60), bi(40)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	share, err := l.GetExpenseShare(ctx, expID, a)
	if err != nil {
		t.Fatalf("GetExpenseShare failed: %v", err)
	}
	if share.Cmp(bi(40)) != 0 {
		t.Errorf("share: expected 40, got %s", share)
	}

	// Non-participants have a zero share.
	share, err = l.GetExpenseShare(ctx, expID, addr(9))
	if err != nil {
		t.Fatalf("GetExpenseShare failed: %v", err)
	}
	if share.Sign() != 0 {
		t.Errorf("non-participant share: expected 0, got %s", share)
	}

	if _, err := l.GetExpenseShare(ctx, 999, a); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetTotalBalance_AcrossGroups(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	payer := addr(1)
	a := addr(2)
	asset := addr(0xAA)

	for i := 0; i < 2; i++ {
		id := newTestGroup(t, l, payer, a)
		_, err := l.CreateExpense(ctx, payer, ExpenseInput{
			GroupID:      id,
			Asset:        asset,
			Amount:       bi(100),
			Participants: []domain.Address{payer, a},
			Shares:       []*big.Int{bi(50), bi(50)},
		})
		if err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
	}

	total, err := l.GetTotalBalance(ctx, a, asset)
	if err != nil {
		t.Fatalf("GetTotalBalance failed: %v", err)
	}
	if total.Cmp(bi(100)) != 0 {
		t.Errorf("total: expected 100, got %s", total)
	}

	total, err = l.GetTotalBalance(ctx, payer, asset)
	if err != nil {
		t.Fatalf("GetTotalBalance failed: %v", err)
	}
	if total.Cmp(bi(-100)) != 0 {
		t.Errorf("payer total: expected -100, got %s", total)
	}
}

func TestListGroupsByMember(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	a, b := addr(1), addr(2)
	id1 := newTestGroup(t, l, a, b)
	newTestGroup(t, l, b)
	id3 := newTestGroup(t, l, a)

	groups, err := l.ListGroupsByMember(ctx, a)
	if err != nil {
		t.Fatalf("ListGroupsByMember failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups for a: expected 2, got %d", len(groups))
	}
	if groups[0].ID != id1 || groups[1].ID != id3 {
		t.Errorf("expected groups [%d %d], got [%d %d]", id1, id3, groups[0].ID, groups[1].ID)
	}

	groups, err = l.ListGroupsByMember(ctx, addr(9))
	if err != nil {
		t.Fatalf("ListGroupsByMember failed: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("groups for stranger: expected 0, got %d", len(groups))
	}
}
