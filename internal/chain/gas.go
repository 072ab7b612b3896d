package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"
)

// ErrNoBaseFee is returned by BaseFee on chains without EIP-1559
var ErrNoBaseFee = errors.New("latest block has no base fee")

// Nonce returns the next nonce of addr, counting pending transactions
func (c *Chain) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	var nonce hexutil.Uint64
	if err := c.CallContext(ctx, &nonce, "eth_getTransactionCount", addr, "pending"); err != nil {
		return 0, err
	}
	return uint64(nonce), nil
}

// GasPrice returns eth_gasPrice
func (c *Chain) GasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := c.CallContext(ctx, &price, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return price.ToInt(), nil
}

// MaxPriorityFee returns eth_maxPriorityFeePerGas
func (c *Chain) MaxPriorityFee(ctx context.Context) (*big.Int, error) {
	var tip hexutil.Big
	if err := c.CallContext(ctx, &tip, "eth_maxPriorityFeePerGas"); err != nil {
		return nil, err
	}
	return tip.ToInt(), nil
}

// BaseFee returns the base fee of the latest block
func (c *Chain) BaseFee(ctx context.Context) (*big.Int, error) {
	var head struct {
		BaseFee *hexutil.Big `json:"baseFeePerGas"`
	}
	if err := c.CallContext(ctx, &head, "eth_getBlockByNumber", "latest", false); err != nil {
		return nil, err
	}
	if head.BaseFee == nil {
		return nil, fmt.Errorf("%s: %w", c, ErrNoBaseFee)
	}
	return head.BaseFee.ToInt(), nil
}

// IsEIP1559 reports whether the chain prices gas with a base fee.
// The answer is cached until the client changes.
func (c *Chain) IsEIP1559(ctx context.Context) (bool, error) {
	c.mu.RLock()
	cached := c.eip1559
	c.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	var history struct {
		BaseFee []*hexutil.Big `json:"baseFeePerGas"`
	}
	if err := c.CallContext(ctx, &history, "eth_feeHistory", hexutil.Uint(1), "latest", []float64{}); err != nil {
		return false, err
	}
	supported := len(history.BaseFee) > 0 && history.BaseFee[0] != nil && history.BaseFee[0].ToInt().Sign() != 0

	c.mu.Lock()
	c.eip1559 = &supported
	c.mu.Unlock()
	return supported, nil
}

// SuggestGasPrice returns base fee plus tip on EIP-1559 chains, eth_gasPrice otherwise
func (c *Chain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	eip1559, err := c.IsEIP1559(ctx)
	if err != nil {
		return nil, err
	}
	if !eip1559 {
		return c.GasPrice(ctx)
	}

	base, tip, err := c.fees(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(base, tip), nil
}

// FillGasPrice sets the fee fields of tx that are unset. EIP-1559 chains get
// the suggested tip and maxFee = 1.2*base + tip, unless a legacy gas price was
// given; other chains get eth_gasPrice.
func (c *Chain) FillGasPrice(ctx context.Context, tx *TxParams) error {
	if tx.GasPrice != nil {
		return nil
	}
	eip1559, err := c.IsEIP1559(ctx)
	if err != nil {
		return err
	}

	if !eip1559 {
		price, err := c.GasPrice(ctx)
		if err != nil {
			return err
		}
		tx.GasPrice = price
		return nil
	}

	if tx.MaxFeePerGas != nil && tx.MaxPriorityFeePerGas != nil {
		return nil
	}
	base, tip, err := c.fees(ctx)
	if err != nil {
		return err
	}
	if tx.MaxPriorityFeePerGas == nil {
		tx.MaxPriorityFeePerGas = tip
	}
	if tx.MaxFeePerGas == nil {
		maxFee := new(big.Int).Mul(base, big.NewInt(12))
		maxFee.Div(maxFee, big.NewInt(10))
		tx.MaxFeePerGas = maxFee.Add(maxFee, tx.MaxPriorityFeePerGas)
	}
	return nil
}

// fees fetches base fee and tip together
func (c *Chain) fees(ctx context.Context) (base, tip *big.Int, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		base, err = c.BaseFee(gctx)
		return err
	})
	g.Go(func() (err error) {
		tip, err = c.MaxPriorityFee(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return base, tip, nil
}

// FillNonce sets the pending nonce of tx.From when unset
func (c *Chain) FillNonce(ctx context.Context, tx *TxParams) error {
	if tx.Nonce != nil {
		return nil
	}
	if tx.From == nil {
		return fmt.Errorf("%w: from is not set", ErrIncompleteTx)
	}
	nonce, err := c.Nonce(ctx, *tx.From)
	if err != nil {
		return err
	}
	tx.Nonce = &nonce
	return nil
}

// FillChainID sets the chain id when unset
func (c *Chain) FillChainID(tx *TxParams) {
	if tx.ChainID == nil {
		tx.ChainID = c.BigID()
	}
}

// FillGas sets the estimated gas when unset
func (c *Chain) FillGas(ctx context.Context, tx *TxParams) error {
	if tx.Gas != 0 {
		return nil
	}
	gas, err := c.EstimateGas(ctx, *tx, CallOpts{})
	if err != nil {
		return fmt.Errorf("estimate gas: %w", err)
	}
	tx.Gas = gas
	return nil
}

// Prepare fills every unset field of tx needed for signing. The lookups run
// concurrently, so inside a batch scope they share one request.
func (c *Chain) Prepare(ctx context.Context, tx *TxParams) error {
	c.FillChainID(tx)

	nonceTx, feeTx, gasTx := *tx, *tx, *tx
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.FillNonce(gctx, &nonceTx) })
	g.Go(func() error { return c.FillGasPrice(gctx, &feeTx) })
	g.Go(func() error { return c.FillGas(gctx, &gasTx) })
	if err := g.Wait(); err != nil {
		return err
	}

	tx.Nonce = nonceTx.Nonce
	tx.GasPrice = feeTx.GasPrice
	tx.MaxFeePerGas = feeTx.MaxFeePerGas
	tx.MaxPriorityFeePerGas = feeTx.MaxPriorityFeePerGas
	tx.Gas = gasTx.Gas
	return nil
}
