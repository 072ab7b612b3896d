package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"w3ext/internal/blockparam"
)

var (
	// ErrReceiptNotFound is returned while a transaction is not mined yet
	ErrReceiptNotFound = errors.New("transaction receipt not found")
	// ErrIncompleteTx is returned when a transaction lacks a field needed for signing
	ErrIncompleteTx = errors.New("incomplete transaction")
)

// TxParams are the fields of a transaction being built.
// Nil pointers and zero Gas mean unset.
type TxParams struct {
	From                 *common.Address
	To                   *common.Address
	Value                *big.Int
	Data                 []byte
	Gas                  uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Nonce                *uint64
	ChainID              *big.Int
}

// MarshalJSON encodes the set fields as a JSON-RPC transaction object
func (tx TxParams) MarshalJSON() ([]byte, error) {
	arg := map[string]interface{}{}
	if tx.From != nil {
		arg["from"] = tx.From
	}
	if tx.To != nil {
		arg["to"] = tx.To
	}
	if tx.Value != nil {
		arg["value"] = (*hexutil.Big)(tx.Value)
	}
	if len(tx.Data) > 0 {
		arg["data"] = hexutil.Bytes(tx.Data)
	}
	if tx.Gas != 0 {
		arg["gas"] = hexutil.Uint64(tx.Gas)
	}
	if tx.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(tx.GasPrice)
	}
	if tx.MaxFeePerGas != nil {
		arg["maxFeePerGas"] = (*hexutil.Big)(tx.MaxFeePerGas)
	}
	if tx.MaxPriorityFeePerGas != nil {
		arg["maxPriorityFeePerGas"] = (*hexutil.Big)(tx.MaxPriorityFeePerGas)
	}
	if tx.Nonce != nil {
		arg["nonce"] = hexutil.Uint64(*tx.Nonce)
	}
	if tx.ChainID != nil {
		arg["chainId"] = (*hexutil.Big)(tx.ChainID)
	}
	return json.Marshal(arg)
}

// IsDynamicFee reports whether the fee caps are set
func (tx TxParams) IsDynamicFee() bool {
	return tx.MaxFeePerGas != nil && tx.MaxPriorityFeePerGas != nil
}

// ToTransaction builds an unsigned transaction: DynamicFeeTx when the fee
// caps are set, LegacyTx otherwise.
func (tx TxParams) ToTransaction() (*types.Transaction, error) {
	if tx.Nonce == nil {
		return nil, fmt.Errorf("%w: nonce is not set", ErrIncompleteTx)
	}
	if tx.Gas == 0 {
		return nil, fmt.Errorf("%w: gas is not set", ErrIncompleteTx)
	}
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}

	if tx.IsDynamicFee() {
		if tx.ChainID == nil {
			return nil, fmt.Errorf("%w: chain id is not set", ErrIncompleteTx)
		}
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   tx.ChainID,
			Nonce:     *tx.Nonce,
			GasTipCap: tx.MaxPriorityFeePerGas,
			GasFeeCap: tx.MaxFeePerGas,
			Gas:       tx.Gas,
			To:        tx.To,
			Value:     value,
			Data:      tx.Data,
		}), nil
	}

	if tx.GasPrice == nil {
		return nil, fmt.Errorf("%w: gas price is not set", ErrIncompleteTx)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    *tx.Nonce,
		GasPrice: tx.GasPrice,
		Gas:      tx.Gas,
		To:       tx.To,
		Value:    value,
		Data:     tx.Data,
	}), nil
}

// OverrideAccount replaces parts of an account state for the duration of a call
type OverrideAccount struct {
	Nonce     *hexutil.Uint64             `json:"nonce,omitempty"`
	Code      hexutil.Bytes               `json:"code,omitempty"`
	Balance   *hexutil.Big                `json:"balance,omitempty"`
	State     map[common.Hash]common.Hash `json:"state,omitempty"`
	StateDiff map[common.Hash]common.Hash `json:"stateDiff,omitempty"`
}

// StateOverride is the state override set of eth_call and eth_estimateGas
type StateOverride map[common.Address]OverrideAccount

// CallOpts select the state a call runs against
type CallOpts struct {
	From          *common.Address
	Block         *big.Int // nil means latest
	StateOverride StateOverride
}

func (o CallOpts) args(tx TxParams, forceBlock bool) []interface{} {
	if o.From != nil && tx.From == nil {
		tx.From = o.From
	}
	args := []interface{}{tx}
	if forceBlock || o.Block != nil || len(o.StateOverride) > 0 {
		args = append(args, blockparam.ToArg(o.Block))
	}
	if len(o.StateOverride) > 0 {
		args = append(args, o.StateOverride)
	}
	return args
}

// Call executes a message call without creating a transaction
func (c *Chain) Call(ctx context.Context, tx TxParams, opts CallOpts) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.CallContext(ctx, &out, "eth_call", opts.args(tx, true)...); err != nil {
		return nil, err
	}
	return out, nil
}

// EstimateGas returns the gas tx would use
func (c *Chain) EstimateGas(ctx context.Context, tx TxParams, opts CallOpts) (uint64, error) {
	var gas hexutil.Uint64
	if err := c.CallContext(ctx, &gas, "eth_estimateGas", opts.args(tx, false)...); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

// SendTransaction sends tx. With a signer, given or active in ctx for tx.From,
// the transaction is completed, signed locally and sent raw. Without one it is
// handed to the node with eth_sendTransaction.
func (c *Chain) SendTransaction(ctx context.Context, tx TxParams, signer Signer) (common.Hash, error) {
	if signer == nil && tx.From != nil {
		signer, _ = c.ActiveSigner(ctx, *tx.From)
	}

	if signer == nil {
		var hash common.Hash
		if err := c.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
			return common.Hash{}, err
		}
		return hash, nil
	}

	from := signer.Address()
	tx.From = &from
	if err := c.Prepare(ctx, &tx); err != nil {
		return common.Hash{}, err
	}

	unsigned, err := tx.ToTransaction()
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := signer.SignTx(unsigned, tx.ChainID)
	if err != nil {
		return common.Hash{}, err
	}
	return c.SendSignedTransaction(ctx, signed)
}

// SendSignedTransaction sends a signed transaction
func (c *Chain) SendSignedTransaction(ctx context.Context, signed *types.Transaction) (common.Hash, error) {
	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode transaction: %w", err)
	}
	hash, err := c.SendRawTransaction(ctx, raw)
	if err != nil {
		return common.Hash{}, err
	}
	c.logger.Info().
		Str("hash", hash.Hex()).
		Uint64("nonce", signed.Nonce()).
		Str("scan", c.TxScanURL(hash)).
		Msg("transaction sent")
	return hash, nil
}

// SendRawTransaction submits an encoded signed transaction
func (c *Chain) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash common.Hash
	if err := c.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Bytes(raw)); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// TransactionReceipt returns the receipt of a mined transaction, ErrReceiptNotFound otherwise
func (c *Chain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	if err := c.CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ErrReceiptNotFound
	}
	return receipt, nil
}

// WaitForReceipt polls for the receipt of hash until it is mined or timeout
// passes; a zero timeout waits 180s.
func (c *Chain) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(timeout, DefaultReceiptTimeout))
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ErrReceiptNotFound):
		case ctx.Err() != nil:
			return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), ctx.Err())
		default:
			c.logger.Debug().Err(err).Str("hash", hash.Hex()).Msg("receipt poll failed")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
