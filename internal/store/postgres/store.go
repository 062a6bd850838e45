package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splitledger/splitledger/internal/domain"
)

// querier is the subset of pgx shared by pgxpool.Pool and pgx.Tx, so the
// same store code serves both pooled and transactional calls.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store on PostgreSQL. Atomic opens a transaction
// and hands the callback a Store bound to it.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) CreateGroup(ctx context.Context, g *domain.Group) (domain.GroupID, error) {
	var id domain.GroupID
	err := s.q.QueryRow(ctx,
		`INSERT INTO groups (name, creator, created_at) VALUES ($1, $2, $3) RETURNING id`,
		g.Name, encodeAddr(g.Creator), g.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create group: %w", err)
	}

	for i, m := range g.Members {
		if _, err := s.q.Exec(ctx,
			`INSERT INTO group_members (group_id, position, member) VALUES ($1, $2, $3)`,
			id, i, encodeAddr(m),
		); err != nil {
			return 0, fmt.Errorf("postgres: add group member: %w", err)
		}
	}
	return id, nil
}

func (s *Store) GetGroup(ctx context.Context, id domain.GroupID) (domain.Group, error) {
	var g domain.Group
	var creator string
	err := s.q.QueryRow(ctx,
		`SELECT id, name, creator, created_at FROM groups WHERE id = $1`,
		id,
	).Scan(&g.ID, &g.Name, &creator, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Group{}, fmt.Errorf("postgres: group %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Group{}, fmt.Errorf("postgres: get group %d: %w", id, err)
	}
	g.Creator = decodeAddr(creator)

	members, err := s.groupMembers(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	g.Members = members
	return g, nil
}

func (s *Store) groupMembers(ctx context.Context, id domain.GroupID) ([]domain.Address, error) {
	rows, err := s.q.Query(ctx,
		`SELECT member FROM group_members WHERE group_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list group members: %w", err)
	}
	defer rows.Close()

	var members []domain.Address
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("postgres: scan group member: %w", err)
		}
		members = append(members, decodeAddr(m))
	}
	return members, rows.Err()
}

func (s *Store) AddMember(ctx context.Context, id domain.GroupID, member domain.Address) error {
	tag, err := s.q.Exec(ctx,
		`INSERT INTO group_members (group_id, position, member)
		 SELECT $1, COALESCE(MAX(position) + 1, 0), $2
		 FROM group_members WHERE group_id = $1`,
		id, encodeAddr(member),
	)
	if err != nil {
		return fmt.Errorf("postgres: add member: %w", err)
	}
	// Every group carries at least its creator, so zero rows means the
	// group does not exist.
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: group %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListGroupsByMember(ctx context.Context, member domain.Address) ([]domain.Group, error) {
	rows, err := s.q.Query(ctx,
		`SELECT g.id, g.name, g.creator, g.created_at
		 FROM groups g
		 JOIN group_members m ON m.group_id = g.id
		 WHERE m.member = $1
		 ORDER BY g.id`,
		encodeAddr(member),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list groups by member: %w", err)
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		var g domain.Group
		var creator string
		if err := rows.Scan(&g.ID, &g.Name, &creator, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan group: %w", err)
		}
		g.Creator = decodeAddr(creator)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list groups by member: %w", err)
	}

	for i := range groups {
		members, err := s.groupMembers(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Members = members
	}
	return groups, nil
}

func (s *Store) CreateExpense(ctx context.Context, e *domain.Expense) (domain.ExpenseID, error) {
	var id domain.ExpenseID
	err := s.q.QueryRow(ctx,
		`INSERT INTO expenses (group_id, payer, asset, amount, description, settled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		e.GroupID, encodeAddr(e.Payer), encodeAddr(e.Asset),
		e.Amount.String(), e.Description, e.Settled, e.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create expense: %w", err)
	}

	for i, p := range e.Participants {
		if _, err := s.q.Exec(ctx,
			`INSERT INTO expense_shares (expense_id, position, participant, share)
			 VALUES ($1, $2, $3, $4)`,
			id, i, encodeAddr(p), e.Shares[i].String(),
		); err != nil {
			return 0, fmt.Errorf("postgres: add expense share: %w", err)
		}
	}
	return id, nil
}

func (s *Store) GetExpense(ctx context.Context, id domain.ExpenseID) (domain.Expense, error) {
	var e domain.Expense
	var payer, asset, amount string
	err := s.q.QueryRow(ctx,
		`SELECT id, group_id, payer, asset, amount, description, settled, created_at
		 FROM expenses WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.GroupID, &payer, &asset, &amount, &e.Description, &e.Settled, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Expense{}, fmt.Errorf("postgres: expense %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Expense{}, fmt.Errorf("postgres: get expense %d: %w", id, err)
	}
	e.Payer = decodeAddr(payer)
	e.Asset = decodeAddr(asset)
	if e.Amount, err = parseNumeric(amount); err != nil {
		return domain.Expense{}, fmt.Errorf("postgres: expense %d amount: %w", id, err)
	}

	rows, err := s.q.Query(ctx,
		`SELECT participant, share FROM expense_shares WHERE expense_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("postgres: list expense shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var participant, share string
		if err := rows.Scan(&participant, &share); err != nil {
			return domain.Expense{}, fmt.Errorf("postgres: scan expense share: %w", err)
		}
		sh, err := parseNumeric(share)
		if err != nil {
			return domain.Expense{}, fmt.Errorf("postgres: expense %d share: %w", id, err)
		}
		e.Participants = append(e.Participants, decodeAddr(participant))
		e.Shares = append(e.Shares, sh)
	}
	return e, rows.Err()
}

func (s *Store) GetBalance(ctx context.Context, key domain.BalanceKey) (*big.Int, error) {
	var balance string
	err := s.q.QueryRow(ctx,
		`SELECT balance FROM balances WHERE member = $1 AND group_id = $2 AND asset = $3`,
		encodeAddr(key.Member), key.Group, encodeAddr(key.Asset),
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get balance: %w", err)
	}
	return parseNumeric(balance)
}

func (s *Store) GetTotalBalance(ctx context.Context, member domain.Address, asset domain.Asset) (*big.Int, error) {
	var total string
	err := s.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(balance), 0) FROM balances WHERE member = $1 AND asset = $2`,
		encodeAddr(member), encodeAddr(asset),
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("postgres: get total balance: %w", err)
	}
	return parseNumeric(total)
}

func (s *Store) ApplyDeltas(ctx context.Context, deltas []domain.BalanceDelta) error {
	if err := domain.CheckZeroSum(deltas); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	for _, d := range deltas {
		if _, err := s.q.Exec(ctx,
			`INSERT INTO balances (member, group_id, asset, balance)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (member, group_id, asset)
			 DO UPDATE SET balance = balances.balance + EXCLUDED.balance`,
			encodeAddr(d.Key.Member), d.Key.Group, encodeAddr(d.Key.Asset), d.Delta.String(),
		); err != nil {
			return fmt.Errorf("postgres: apply balance delta: %w", err)
		}
	}
	return nil
}

// Atomic runs fn inside a database transaction. A Store created by Atomic
// nests by running fn directly on the open transaction.
func (s *Store) Atomic(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	return nil
}

func encodeAddr(a domain.Address) string {
	return strings.ToLower(a.Hex())
}

func decodeAddr(s string) domain.Address {
	return common.HexToAddress(s)
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed numeric %q", s)
	}
	return v, nil
}
