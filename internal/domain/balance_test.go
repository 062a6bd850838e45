package domain

import (
	"errors"
	"math/big"
	"testing"
)

func TestCheckZeroSum(t *testing.T) {
	var alice, bob Address
	alice[19] = 1
	bob[19] = 2
	asset := Asset{19: 0xAA}

	balanced := []BalanceDelta{
		{Key: BalanceKey{Member: alice, Group: 1, Asset: asset}, Delta: big.NewInt(-50)},
		{Key: BalanceKey{Member: bob, Group: 1, Asset: asset}, Delta: big.NewInt(50)},
	}
	if err := CheckZeroSum(balanced); err != nil {
		t.Errorf("balanced batch rejected: %v", err)
	}

	// Pockets are independent: each (group, asset) pair must cancel on its own.
	crossPocket := []BalanceDelta{
		{Key: BalanceKey{Member: alice, Group: 1, Asset: asset}, Delta: big.NewInt(-50)},
		{Key: BalanceKey{Member: alice, Group: 2, Asset: asset}, Delta: big.NewInt(50)},
	}
	if err := CheckZeroSum(crossPocket); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("cross-pocket batch: expected ErrInvalidInput, got %v", err)
	}

	unbalanced := []BalanceDelta{
		{Key: BalanceKey{Member: alice, Group: 1, Asset: asset}, Delta: big.NewInt(-50)},
		{Key: BalanceKey{Member: bob, Group: 1, Asset: asset}, Delta: big.NewInt(49)},
	}
	if err := CheckZeroSum(unbalanced); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unbalanced batch: expected ErrInvalidInput, got %v", err)
	}

	if err := CheckZeroSum(nil); err != nil {
		t.Errorf("empty batch rejected: %v", err)
	}
}

func TestShareOf(t *testing.T) {
	var alice, bob Address
	alice[19] = 1
	bob[19] = 2

	e := Expense{
		Participants: []Address{alice, bob},
		Shares:       []*big.Int{big.NewInt(60), big.NewInt(40)},
	}

	if got := e.ShareOf(bob); got.Cmp(big.NewInt(40)) != 0 {
		t.Errorf("bob share: expected 40, got %s", got)
	}
	if got := e.ShareOf(Address{19: 9}); got.Sign() != 0 {
		t.Errorf("stranger share: expected 0, got %s", got)
	}

	// Returned share is a copy.
	e.ShareOf(alice).SetInt64(999)
	if e.Shares[0].Cmp(big.NewInt(60)) != 0 {
		t.Error("ShareOf leaked internal state")
	}
}
