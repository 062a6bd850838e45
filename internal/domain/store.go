package domain

import (
	"context"
	"math/big"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Store is the persistence boundary for the ledger state machine.
//
// Mutations are only valid inside Atomic: the engine wraps each public
// mutating operation in exactly one Atomic call, and the store must make the
// enclosed mutations visible all together or not at all. Reads outside
// Atomic observe only committed state.
type Store interface {
	// CreateGroup persists g, assigns the next monotonic id, and returns it.
	CreateGroup(ctx context.Context, g *Group) (GroupID, error)

	// AddMember appends member to the group's member set.
	AddMember(ctx context.Context, id GroupID, member Address) error

	// GetGroup returns the group or ErrNotFound.
	GetGroup(ctx context.Context, id GroupID) (Group, error)

	// ListGroupsByMember returns every group the member belongs to, ordered
	// by id.
	ListGroupsByMember(ctx context.Context, member Address) ([]Group, error)

	// CreateExpense persists e, assigns the next monotonic id, and returns it.
	CreateExpense(ctx context.Context, e *Expense) (ExpenseID, error)

	// GetExpense returns the expense or ErrNotFound.
	GetExpense(ctx context.Context, id ExpenseID) (Expense, error)

	// GetBalance returns the signed net balance for the key. Unseen keys are
	// zero, never an error.
	GetBalance(ctx context.Context, key BalanceKey) (*big.Int, error)

	// GetTotalBalance returns the member's balance in asset summed across all
	// groups.
	GetTotalBalance(ctx context.Context, member Address, asset Asset) (*big.Int, error)

	// ApplyDeltas applies a batch of signed balance adjustments. The batch
	// must satisfy CheckZeroSum; stores reject batches that do not.
	ApplyDeltas(ctx context.Context, deltas []BalanceDelta) error

	// Atomic runs fn against a transactional view of the store. If fn
	// returns an error the view's mutations are discarded; otherwise they
	// are committed before Atomic returns.
	Atomic(ctx context.Context, fn func(tx Store) error) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
