package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract is a deployed contract on a chain
type Contract struct {
	chain   *Chain
	address common.Address
	abi     abi.ABI
}

// Contract binds the ABI to address on this chain
func (c *Chain) Contract(address common.Address, contractABI abi.ABI) *Contract {
	return &Contract{chain: c, address: address, abi: contractABI}
}

// Chain returns the chain of the contract
func (ct *Contract) Chain() *Chain {
	return ct.chain
}

// Address returns the contract address
func (ct *Contract) Address() common.Address {
	return ct.address
}

// ABI returns the contract ABI
func (ct *Contract) ABI() abi.ABI {
	return ct.abi
}

// Pack encodes a call of method
func (ct *Contract) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := ct.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// Call calls a view method at the latest block and returns its decoded outputs
func (ct *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	return ct.CallWith(ctx, CallOpts{}, method, args...)
}

// CallWith calls a view method with explicit call options
func (ct *Contract) CallWith(ctx context.Context, opts CallOpts, method string, args ...interface{}) ([]interface{}, error) {
	data, err := ct.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	to := ct.address
	out, err := ct.chain.Call(ctx, TxParams{To: &to, Data: data}, opts)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", ct.address.Hex(), method, err)
	}

	values, err := ct.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// CallAs calls a view method with a single output and converts it to T
func CallAs[T any](ctx context.Context, ct *Contract, opts CallOpts, method string, args ...interface{}) (T, error) {
	var zero T
	values, err := ct.CallWith(ctx, opts, method, args...)
	if err != nil {
		return zero, err
	}
	if len(values) == 0 {
		return zero, fmt.Errorf("%s returned no values", method)
	}
	return convert[T](method, values[0])
}

func convert[T any](method string, v interface{}) (result T, err error) {
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	// abi.ConvertType panics on incompatible types
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s returned %T: %v", method, v, r)
		}
	}()
	converted, ok := abi.ConvertType(v, new(T)).(*T)
	if !ok {
		return result, fmt.Errorf("%s returned %T", method, v)
	}
	return *converted, nil
}

// BuildTransaction packs a call of method from `from` into opts and fills the
// fields needed for signing
func (ct *Contract) BuildTransaction(ctx context.Context, from common.Address, opts TxParams, method string, args ...interface{}) (TxParams, error) {
	tx, err := ct.transaction(opts, method, args...)
	if err != nil {
		return TxParams{}, err
	}
	tx.From = &from
	if err := ct.chain.Prepare(ctx, &tx); err != nil {
		return TxParams{}, fmt.Errorf("prepare %s: %w", method, err)
	}
	return tx, nil
}

// Transact sends a call of method. A nil signer falls back to the signer
// active in ctx for opts.From, then to the node.
func (ct *Contract) Transact(ctx context.Context, signer Signer, opts TxParams, method string, args ...interface{}) (common.Hash, error) {
	tx, err := ct.transaction(opts, method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := ct.chain.SendTransaction(ctx, tx, signer)
	if err != nil {
		return common.Hash{}, fmt.Errorf("transact %s: %w", method, err)
	}
	return hash, nil
}

func (ct *Contract) transaction(opts TxParams, method string, args ...interface{}) (TxParams, error) {
	data, err := ct.Pack(method, args...)
	if err != nil {
		return TxParams{}, err
	}
	to := ct.address
	opts.To = &to
	opts.Data = data
	return opts, nil
}
