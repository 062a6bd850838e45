package domain

import (
	"fmt"
	"math/big"
)

// BalanceKey addresses one entry in the balance table.
type BalanceKey struct {
	Member Address
	Group  GroupID
	Asset  Asset
}

// Pocket is the scope within which balances must sum to zero.
type Pocket struct {
	Group GroupID
	Asset Asset
}

// BalanceDelta is one signed adjustment within an atomic batch.
type BalanceDelta struct {
	Key   BalanceKey
	Delta *big.Int
}

// CheckZeroSum verifies that the deltas in a batch cancel out within every
// (group, asset) pocket they touch. Stores call this before applying a batch;
// a non-zero pocket sum means the caller computed an effect that would create
// or destroy value.
func CheckZeroSum(deltas []BalanceDelta) error {
	sums := make(map[Pocket]*big.Int, 2)
	for _, d := range deltas {
		p := Pocket{Group: d.Key.Group, Asset: d.Key.Asset}
		sum, ok := sums[p]
		if !ok {
			sum = new(big.Int)
			sums[p] = sum
		}
		sum.Add(sum, d.Delta)
	}
	for p, sum := range sums {
		if sum.Sign() != 0 {
			return fmt.Errorf("balance batch for group %d asset %s sums to %s, want 0: %w",
				p.Group, p.Asset.Hex(), sum, ErrInvalidInput)
		}
	}
	return nil
}
