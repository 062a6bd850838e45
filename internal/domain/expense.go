package domain

import (
	"math/big"
	"time"
)

// Expense records who paid what on behalf of whom. Participants and Shares
// are parallel slices; Shares sum to Amount exactly.
type Expense struct {
	ID           ExpenseID
	GroupID      GroupID
	Payer        Address
	Asset        Asset
	Amount       *big.Int
	Description  string
	Participants []Address
	Shares       []*big.Int

	// Settled is stored but never transitioned by any current operation.
	Settled bool

	CreatedAt time.Time
}

// ShareOf returns the share assigned to member, or zero if the member is not
// a participant. The returned value is a copy.
func (e Expense) ShareOf(member Address) *big.Int {
	for i, p := range e.Participants {
		if p == member {
			return CopyAmount(e.Shares[i])
		}
	}
	return new(big.Int)
}
