// Package domain defines the core types, errors, and persistence/collaborator
// interfaces for the splitledger balance ledger. Concrete storage, transfer,
// and transport implementations live in their own packages and depend on this
// one, never the other way around.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a participant. The zero value is the null sentinel and
// is never a valid member identity.
type Address = common.Address

// Asset discriminates the currency of a balance pocket. The zero value is the
// reserved native-asset sentinel; any other value identifies a fungible
// external asset by its contract address.
type Asset = common.Address

// NativeAsset is the reserved asset identifier for the chain's native value.
var NativeAsset = Asset{}

// GroupID identifies a group. IDs are assigned monotonically starting at 1.
type GroupID uint64

// ExpenseID identifies an expense. IDs are assigned monotonically starting at 1.
type ExpenseID uint64

// Scale is the fixed-point unit for conversion rates: a rate of Scale means
// one unit of the payment asset is worth exactly one unit of the owed asset.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// IsNative reports whether the asset is the native-asset sentinel.
func IsNative(asset Asset) bool {
	return asset == NativeAsset
}

// CopyAmount returns a defensive copy of a, treating nil as zero. Amounts are
// shared across store boundaries, and *big.Int is mutable.
func CopyAmount(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a)
}
