// Package memory provides an in-process implementation of the ledger store.
// It backs tests and single-node deployments that do not need Postgres.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/splitledger/splitledger/internal/domain"
)

// Store keeps all ledger state in maps guarded by one mutex. Atomic stages
// writes in an overlay and merges them into the base only when the
// transaction function returns nil.
type Store struct {
	mu sync.Mutex

	nextGroupID   domain.GroupID
	nextExpenseID domain.ExpenseID

	groups   map[domain.GroupID]*domain.Group
	expenses map[domain.ExpenseID]*domain.Expense
	balances map[domain.BalanceKey]*big.Int
}

func New() *Store {
	return &Store{
		nextGroupID:   1,
		nextExpenseID: 1,
		groups:        make(map[domain.GroupID]*domain.Group),
		expenses:      make(map[domain.ExpenseID]*domain.Expense),
		balances:      make(map[domain.BalanceKey]*big.Int),
	}
}

func (s *Store) CreateGroup(ctx context.Context, group *domain.Group) (domain.GroupID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextGroupID
	s.nextGroupID++
	stored := cloneGroup(*group)
	stored.ID = id
	s.groups[id] = &stored
	return id, nil
}

func (s *Store) GetGroup(ctx context.Context, id domain.GroupID) (domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[id]
	if !ok {
		return domain.Group{}, fmt.Errorf("memory: group %d: %w", id, domain.ErrNotFound)
	}
	return cloneGroup(*group), nil
}

func (s *Store) AddMember(ctx context.Context, id domain.GroupID, member domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("memory: group %d: %w", id, domain.ErrNotFound)
	}
	group.Members = append(group.Members, member)
	return nil
}

func (s *Store) ListGroupsByMember(ctx context.Context, member domain.Address) ([]domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Group
	for _, group := range s.groups {
		if group.IsMember(member) {
			out = append(out, cloneGroup(*group))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense *domain.Expense) (domain.ExpenseID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextExpenseID
	s.nextExpenseID++
	stored := cloneExpense(*expense)
	stored.ID = id
	s.expenses[id] = &stored
	return id, nil
}

func (s *Store) GetExpense(ctx context.Context, id domain.ExpenseID) (domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expense, ok := s.expenses[id]
	if !ok {
		return domain.Expense{}, fmt.Errorf("memory: expense %d: %w", id, domain.ErrNotFound)
	}
	return cloneExpense(*expense), nil
}

func (s *Store) GetBalance(ctx context.Context, key domain.BalanceKey) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[key]; ok {
		return domain.CopyAmount(b), nil
	}
	return new(big.Int), nil
}

func (s *Store) GetTotalBalance(ctx context.Context, member domain.Address, asset domain.Asset) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := new(big.Int)
	for key, b := range s.balances {
		if key.Member == member && key.Asset == asset {
			total.Add(total, b)
		}
	}
	return total, nil
}

func (s *Store) ApplyDeltas(ctx context.Context, deltas []domain.BalanceDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := domain.CheckZeroSum(deltas); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	for _, d := range deltas {
		current, ok := s.balances[d.Key]
		if !ok {
			current = new(big.Int)
		}
		s.balances[d.Key] = new(big.Int).Add(current, d.Delta)
	}
	return nil
}

// Atomic runs fn against an overlay of this store. Writes land in the
// overlay; they merge into the base only when fn returns nil. A non-nil
// error discards the overlay entirely.
func (s *Store) Atomic(ctx context.Context, fn func(tx domain.Store) error) error {
	s.mu.Lock()
	overlay := newOverlay(s)
	s.mu.Unlock()

	if err := fn(overlay); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	overlay.commitLocked(s)
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func cloneGroup(g domain.Group) domain.Group {
	g.Members = append([]domain.Address(nil), g.Members...)
	return g
}

func cloneExpense(e domain.Expense) domain.Expense {
	e.Amount = domain.CopyAmount(e.Amount)
	e.Participants = append([]domain.Address(nil), e.Participants...)
	shares := make([]*big.Int, len(e.Shares))
	for i, s := range e.Shares {
		shares[i] = domain.CopyAmount(s)
	}
	e.Shares = shares
	return e
}
