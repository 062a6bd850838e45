// Package noop provides a value-transfer collaborator that moves nothing.
// It serves development and test deployments where balances are tracked but
// no chain is attached.
package noop

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/splitledger/splitledger/internal/domain"
)

// Transferor accepts every transfer and only logs it.
type Transferor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Transferor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transferor{logger: logger.With(slog.String("component", "transfer.noop"))}
}

func (t *Transferor) Transfer(ctx context.Context, from, to domain.Address, asset domain.Asset, amount *big.Int) error {
	t.logger.InfoContext(ctx, "transfer accepted",
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()),
		slog.String("asset", asset.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

func (t *Transferor) RefundNative(ctx context.Context, to domain.Address, amount *big.Int) error {
	t.logger.InfoContext(ctx, "native refund accepted",
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

var _ domain.ValueTransfer = (*Transferor)(nil)
