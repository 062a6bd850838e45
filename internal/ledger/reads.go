package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/splitledger/splitledger/internal/domain"
)

// Read operations go straight to the store. They do not take the writer
// mutex: every mutation commits its full effect atomically, so reads always
// observe a consistent ledger state.

// GetGroup returns a group by id.
func (l *Ledger) GetGroup(ctx context.Context, id domain.GroupID) (domain.Group, error) {
	group, err := l.store.GetGroup(ctx, id)
	if err != nil {
		return domain.Group{}, fmt.Errorf("ledger: group %d: %w", id, err)
	}
	return group, nil
}

// ListGroupsByMember returns every group the member belongs to.
func (l *Ledger) ListGroupsByMember(ctx context.Context, member domain.Address) ([]domain.Group, error) {
	groups, err := l.store.ListGroupsByMember(ctx, member)
	if err != nil {
		return nil, fmt.Errorf("ledger: list groups for %s: %w", member.Hex(), err)
	}
	return groups, nil
}

// GetExpense returns an expense by id.
func (l *Ledger) GetExpense(ctx context.Context, id domain.ExpenseID) (domain.Expense, error) {
	expense, err := l.store.GetExpense(ctx, id)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("ledger: expense %d: %w", id, err)
	}
	return expense, nil
}

// GetExpenseShare returns the share a member carries in an expense, zero if
// the member is not a participant.
func (l *Ledger) GetExpenseShare(ctx context.Context, id domain.ExpenseID, member domain.Address) (*big.Int, error) {
	expense, err := l.store.GetExpense(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ledger: expense %d: %w", id, err)
	}
	return expense.ShareOf(member), nil
}

// GetBalance returns the member's net balance in one (group, asset) pocket.
// Pockets never touched by an expense or settlement read as zero.
func (l *Ledger) GetBalance(ctx context.Context, member domain.Address, groupID domain.GroupID, asset domain.Asset) (*big.Int, error) {
	balance, err := l.store.GetBalance(ctx, domain.BalanceKey{Member: member, Group: groupID, Asset: asset})
	if err != nil {
		return nil, fmt.Errorf("ledger: read balance: %w", err)
	}
	return balance, nil
}

// GetTotalBalance returns the member's balance in one asset summed across
// all groups.
func (l *Ledger) GetTotalBalance(ctx context.Context, member domain.Address, asset domain.Asset) (*big.Int, error) {
	total, err := l.store.GetTotalBalance(ctx, member, asset)
	if err != nil {
		return nil, fmt.Errorf("ledger: read total balance: %w", err)
	}
	return total, nil
}
