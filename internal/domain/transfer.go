package domain

import (
	"context"
	"math/big"
)

// ValueTransfer is the external collaborator that actually moves value. The
// ledger sequences calls to it but never implements asset movement itself.
//
// A Transfer or RefundNative error aborts the ledger operation that issued
// it; implementations should wrap ErrTransferFailed when the underlying
// system could not move the funds (insufficient balance or allowance,
// rejected transaction).
type ValueTransfer interface {
	// Transfer moves amount of asset from the caller to the recipient.
	Transfer(ctx context.Context, from, to Address, asset Asset, amount *big.Int) error

	// RefundNative returns excess native value supplied with a settlement
	// back to the caller.
	RefundNative(ctx context.Context, to Address, amount *big.Int) error
}
