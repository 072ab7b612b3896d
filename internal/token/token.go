// Package token implements ERC20 tokens as currencies bound to a chain.
package token

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"golang.org/x/sync/errgroup"

	"w3ext/internal/abis"
	"w3ext/internal/chain"
	"w3ext/internal/currency"
)

// Token is an ERC20 contract together with its metadata
type Token struct {
	currency.Currency
	contract *chain.Contract
}

type options struct {
	name     *string
	symbol   *string
	decimals *uint8
	abi      *abi.ABI
	cacheAs  string
}

// Option configures Load
type Option func(*options)

// WithName skips the name() call
func WithName(name string) Option {
	return func(o *options) { o.name = &name }
}

// WithSymbol skips the symbol() call
func WithSymbol(symbol string) Option {
	return func(o *options) { o.symbol = &symbol }
}

// WithDecimals skips the decimals() call
func WithDecimals(decimals uint8) Option {
	return func(o *options) { o.decimals = &decimals }
}

// WithABI uses contractABI instead of the standard ERC20 ABI
func WithABI(contractABI abi.ABI) Option {
	return func(o *options) { o.abi = &contractABI }
}

// WithCacheAs registers the loaded token on its chain under alias
func WithCacheAs(alias string) Option {
	return func(o *options) { o.cacheAs = alias }
}

// Load reads the token metadata that was not given as an option. The reads
// run concurrently, so inside a batch scope they share one request.
func Load(ctx context.Context, c *chain.Chain, address common.Address, opts ...Option) (*Token, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	contractABI := abis.ERC20()
	if o.abi != nil {
		contractABI = *o.abi
	}
	contract := c.Contract(address, contractABI)

	var (
		name, symbol string
		decimals     uint8
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		name, err = field(gctx, contract, "name", o.name)
		return err
	})
	g.Go(func() (err error) {
		symbol, err = field(gctx, contract, "symbol", o.symbol)
		return err
	})
	g.Go(func() (err error) {
		decimals, err = field(gctx, contract, "decimals", o.decimals)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load token %s on %s: %w", address.Hex(), c, err)
	}

	t := New(contract, name, symbol, decimals)
	if o.cacheAs != "" {
		c.Register(o.cacheAs, t)
	}
	logger := c.Logger()
	logger.Debug().
		Str("token", t.Symbol).
		Str("address", address.Hex()).
		Uint8("decimals", decimals).
		Msg("token loaded")
	return t, nil
}

func field[T any](ctx context.Context, contract *chain.Contract, method string, override *T) (T, error) {
	if override != nil {
		return *override, nil
	}
	return chain.CallAs[T](ctx, contract, chain.CallOpts{}, method)
}

// New creates a token without touching the chain
func New(contract *chain.Contract, name, symbol string, decimals uint8) *Token {
	cur := currency.New(name, symbol, decimals)
	cur.ID = fmt.Sprintf("%d:%s", contract.Chain().ID(), contract.Address().Hex())
	return &Token{Currency: cur, contract: contract}
}

// FromChain returns the token registered on c under alias
func FromChain(c *chain.Chain, alias string) (*Token, bool) {
	v, ok := c.Lookup(alias)
	if !ok {
		return nil, false
	}
	t, ok := v.(*Token)
	return t, ok
}

// Address returns the contract address
func (t *Token) Address() common.Address {
	return t.contract.Address()
}

// Chain returns the chain the token lives on
func (t *Token) Chain() *chain.Chain {
	return t.contract.Chain()
}

// Contract returns the token contract
func (t *Token) Contract() *chain.Contract {
	return t.contract
}

// ToAmount wraps a raw amount
func (t *Token) ToAmount(raw *big.Int) Amount {
	return Amount{Amount: t.Currency.ToAmount(raw), Token: t}
}

// ParseAmount converts a human readable amount
func (t *Token) ParseAmount(human string) (Amount, error) {
	a, err := t.Currency.ParseAmount(human)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Amount: a, Token: t}, nil
}

// Balance returns the token balance of owner
func (t *Token) Balance(ctx context.Context, owner common.Address) (Amount, error) {
	raw, err := chain.CallAs[*big.Int](ctx, t.contract, chain.CallOpts{}, "balanceOf", owner)
	if err != nil {
		return Amount{}, err
	}
	return t.ToAmount(raw), nil
}

// Allowance returns how much spender may move on behalf of owner
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (Amount, error) {
	raw, err := chain.CallAs[*big.Int](ctx, t.contract, chain.CallOpts{}, "allowance", owner, spender)
	if err != nil {
		return Amount{}, err
	}
	return t.ToAmount(raw), nil
}

// Approve lets spender move amount of the signer's tokens; a nil amount approves the maximum
func (t *Token) Approve(ctx context.Context, signer chain.Signer, spender common.Address, amount *Amount, opts chain.TxParams) (common.Hash, error) {
	value := math.MaxBig256
	if amount != nil {
		value = amount.Int()
	}
	return t.contract.Transact(ctx, signer, opts, "approve", spender, value)
}

// Transfer sends amount to `to`
func (t *Token) Transfer(ctx context.Context, signer chain.Signer, to common.Address, amount Amount, opts chain.TxParams) (common.Hash, error) {
	return t.contract.Transact(ctx, signer, opts, "transfer", to, amount.Int())
}

// String returns the symbol
func (t *Token) String() string {
	return t.Currency.String()
}
