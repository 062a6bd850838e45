package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/splitledger/splitledger/internal/domain"
)

// overlay is the transactional view handed to Atomic callbacks. Reads see
// staged writes first, then the base store; commitLocked merges everything
// into the base. The engine serializes writers, so overlays never race each
// other on id assignment.
type overlay struct {
	base *Store

	nextGroupID   domain.GroupID
	nextExpenseID domain.ExpenseID

	groups     map[domain.GroupID]*domain.Group
	newMembers map[domain.GroupID][]domain.Address
	expenses   map[domain.ExpenseID]*domain.Expense
	balances   map[domain.BalanceKey]*big.Int
}

func newOverlay(base *Store) *overlay {
	return &overlay{
		base:          base,
		nextGroupID:   base.nextGroupID,
		nextExpenseID: base.nextExpenseID,
		groups:        make(map[domain.GroupID]*domain.Group),
		newMembers:    make(map[domain.GroupID][]domain.Address),
		expenses:      make(map[domain.ExpenseID]*domain.Expense),
		balances:      make(map[domain.BalanceKey]*big.Int),
	}
}

func (o *overlay) CreateGroup(ctx context.Context, group *domain.Group) (domain.GroupID, error) {
	id := o.nextGroupID
	o.nextGroupID++
	stored := cloneGroup(*group)
	stored.ID = id
	o.groups[id] = &stored
	return id, nil
}

func (o *overlay) GetGroup(ctx context.Context, id domain.GroupID) (domain.Group, error) {
	if group, ok := o.groups[id]; ok {
		return cloneGroup(*group), nil
	}
	group, err := o.base.GetGroup(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	group.Members = append(group.Members, o.newMembers[id]...)
	return group, nil
}

func (o *overlay) AddMember(ctx context.Context, id domain.GroupID, member domain.Address) error {
	if group, ok := o.groups[id]; ok {
		group.Members = append(group.Members, member)
		return nil
	}
	if _, err := o.base.GetGroup(ctx, id); err != nil {
		return err
	}
	o.newMembers[id] = append(o.newMembers[id], member)
	return nil
}

func (o *overlay) ListGroupsByMember(ctx context.Context, member domain.Address) ([]domain.Group, error) {
	groups, err := o.base.ListGroupsByMember(ctx, member)
	if err != nil {
		return nil, err
	}
	for _, group := range o.groups {
		if group.IsMember(member) {
			groups = append(groups, cloneGroup(*group))
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (o *overlay) CreateExpense(ctx context.Context, expense *domain.Expense) (domain.ExpenseID, error) {
	id := o.nextExpenseID
	o.nextExpenseID++
	stored := cloneExpense(*expense)
	stored.ID = id
	o.expenses[id] = &stored
	return id, nil
}

func (o *overlay) GetExpense(ctx context.Context, id domain.ExpenseID) (domain.Expense, error) {
	if expense, ok := o.expenses[id]; ok {
		return cloneExpense(*expense), nil
	}
	return o.base.GetExpense(ctx, id)
}

func (o *overlay) GetBalance(ctx context.Context, key domain.BalanceKey) (*big.Int, error) {
	if b, ok := o.balances[key]; ok {
		return domain.CopyAmount(b), nil
	}
	return o.base.GetBalance(ctx, key)
}

func (o *overlay) GetTotalBalance(ctx context.Context, member domain.Address, asset domain.Asset) (*big.Int, error) {
	total, err := o.base.GetTotalBalance(ctx, member, asset)
	if err != nil {
		return nil, err
	}
	for key, staged := range o.balances {
		if key.Member != member || key.Asset != asset {
			continue
		}
		base, err := o.base.GetBalance(ctx, key)
		if err != nil {
			return nil, err
		}
		total.Add(total, new(big.Int).Sub(staged, base))
	}
	return total, nil
}

func (o *overlay) ApplyDeltas(ctx context.Context, deltas []domain.BalanceDelta) error {
	if err := domain.CheckZeroSum(deltas); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	for _, d := range deltas {
		current, err := o.GetBalance(ctx, d.Key)
		if err != nil {
			return err
		}
		o.balances[d.Key] = current.Add(current, d.Delta)
	}
	return nil
}

// Atomic on an overlay runs fn directly: the enclosing transaction already
// owns the staging state.
func (o *overlay) Atomic(ctx context.Context, fn func(tx domain.Store) error) error {
	return fn(o)
}

func (o *overlay) Ping(ctx context.Context) error { return o.base.Ping(ctx) }

// commitLocked merges staged writes into the base. Caller holds base.mu.
func (o *overlay) commitLocked(base *Store) {
	base.nextGroupID = o.nextGroupID
	base.nextExpenseID = o.nextExpenseID
	for id, group := range o.groups {
		base.groups[id] = group
	}
	for id, members := range o.newMembers {
		if group, ok := base.groups[id]; ok {
			group.Members = append(group.Members, members...)
		}
	}
	for id, expense := range o.expenses {
		base.expenses[id] = expense
	}
	for key, b := range o.balances {
		base.balances[key] = b
	}
}
