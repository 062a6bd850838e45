// Package evm implements the value-transfer collaborator against an
// EVM-compatible chain. The operator account custodies settlement flow:
// native value moves as plain transfers, fungible assets move with ERC-20
// transferFrom calls approved to the operator.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/splitledger/splitledger/internal/domain"
)

// transferFromSelector is the first four bytes of
// keccak256("transferFrom(address,address,uint256)").
var transferFromSelector = ethcrypto.Keccak256([]byte("transferFrom(address,address,uint256)"))[:4]

// Config holds the chain connection and operator key parameters.
type Config struct {
	RPCURL string
	// PrivateKey is the operator's hex-encoded secp256k1 key, with or
	// without the 0x prefix.
	PrivateKey string
	ChainID    int64
	// ConfirmTimeout bounds how long a settlement waits for its transaction
	// receipt. Zero means 90 seconds.
	ConfirmTimeout time.Duration
}

// Transferor implements domain.ValueTransfer by submitting transactions from
// the operator account. A mutex serializes nonce assignment.
type Transferor struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	timeout time.Duration

	mu        sync.Mutex
	nextNonce uint64
	nonceInit bool
}

// New dials the RPC endpoint and derives the operator address from the key.
func New(ctx context.Context, cfg Config) (*Transferor, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("evm: invalid private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}

	timeout := cfg.ConfirmTimeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}

	return &Transferor{
		client:  client,
		key:     key,
		from:    ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(cfg.ChainID),
		timeout: timeout,
	}, nil
}

// Operator returns the address transactions are sent from.
func (t *Transferor) Operator() common.Address {
	return t.from
}

// Close releases the RPC connection.
func (t *Transferor) Close() {
	t.client.Close()
}

// Transfer moves amount of asset from the ledger caller to the recipient.
// Native value is forwarded from the operator balance; other assets are
// pulled with transferFrom, which requires the caller's prior ERC-20
// approval of the operator.
func (t *Transferor) Transfer(ctx context.Context, from, to domain.Address, asset domain.Asset, amount *big.Int) error {
	if domain.IsNative(asset) {
		return t.sendNative(ctx, to, amount)
	}

	data := make([]byte, 0, 4+3*32)
	data = append(data, transferFromSelector...)
	data = append(data, common.LeftPadBytes(from.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)

	if err := t.submit(ctx, asset, new(big.Int), data); err != nil {
		return fmt.Errorf("evm: erc20 transfer %s: %w", asset.Hex(), err)
	}
	return nil
}

// RefundNative returns excess native value to the caller.
func (t *Transferor) RefundNative(ctx context.Context, to domain.Address, amount *big.Int) error {
	return t.sendNative(ctx, to, amount)
}

func (t *Transferor) sendNative(ctx context.Context, to common.Address, amount *big.Int) error {
	if err := t.submit(ctx, to, amount, nil); err != nil {
		return fmt.Errorf("evm: native transfer: %w", err)
	}
	return nil
}

// submit signs a transaction from the operator account and waits for its
// receipt. Any failure wraps domain.ErrTransferFailed so the ledger rolls
// the enclosing operation back.
func (t *Transferor) submit(ctx context.Context, to common.Address, value *big.Int, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	nonce, err := t.nonceLocked(ctx)
	if err != nil {
		return fmt.Errorf("%w: nonce: %v", domain.ErrTransferFailed, err)
	}

	gasTip, err := t.client.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("%w: gas tip: %v", domain.ErrTransferFailed, err)
	}
	head, err := t.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: chain head: %v", domain.ErrTransferFailed, err)
	}
	feeCap := new(big.Int).Add(gasTip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gasLimit, err := t.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  t.from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("%w: estimate gas: %v", domain.ErrTransferFailed, err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   t.chainID,
		Nonce:     nonce,
		GasTipCap: gasTip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainID), t.key)
	if err != nil {
		return fmt.Errorf("%w: sign: %v", domain.ErrTransferFailed, err)
	}

	if err := t.client.SendTransaction(ctx, signed); err != nil {
		t.nonceInit = false
		return fmt.Errorf("%w: send: %v", domain.ErrTransferFailed, err)
	}
	t.nextNonce = nonce + 1

	receipt, err := t.waitMined(ctx, signed.Hash())
	if err != nil {
		return fmt.Errorf("%w: confirm %s: %v", domain.ErrTransferFailed, signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: transaction %s reverted", domain.ErrTransferFailed, signed.Hash().Hex())
	}
	return nil
}

func (t *Transferor) nonceLocked(ctx context.Context) (uint64, error) {
	if t.nonceInit {
		return t.nextNonce, nil
	}
	nonce, err := t.client.PendingNonceAt(ctx, t.from)
	if err != nil {
		return 0, err
	}
	t.nextNonce = nonce
	t.nonceInit = true
	return nonce, nil
}

func (t *Transferor) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		receipt, err := t.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if err != ethereum.NotFound {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ domain.ValueTransfer = (*Transferor)(nil)
