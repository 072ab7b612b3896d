// Package chain wraps a JSON-RPC client of one EVM chain with typed helpers,
// request batching scopes and transaction building.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"w3ext/internal/batcher"
	"w3ext/internal/currency"
	"w3ext/internal/jsonrpc"
	"w3ext/internal/upstream"
)

var (
	// ErrNotConnected is returned for calls on a chain without a client
	ErrNotConnected = errors.New("chain is not connected")
	// ErrChainIDMismatch is returned when the node serves another chain
	ErrChainIDMismatch = errors.New("unexpected chain id")
)

// Default values
const (
	DefaultRequestTimeout      = 60 * time.Second
	DefaultReceiptTimeout      = 180 * time.Second
	DefaultReceiptPollInterval = time.Second
)

// Chain is an EVM chain reachable through a JSON-RPC client
type Chain struct {
	id             uint64
	name           string
	currency       currency.Currency
	scan           string
	requestTimeout time.Duration
	pollInterval   time.Duration
	middlewares    []Middleware
	batchOpts      batcher.Options
	logger         zerolog.Logger

	mu       sync.RWMutex
	client   jsonrpc.Client
	eip1559  *bool
	registry map[string]interface{}
}

// Option configures a Chain
type Option func(*Chain)

// WithName sets the display name
func WithName(name string) Option {
	return func(c *Chain) { c.name = name }
}

// WithCurrency sets the native currency
func WithCurrency(cur currency.Currency) Option {
	return func(c *Chain) { c.currency = cur }
}

// WithScan sets the block explorer base URL
func WithScan(scan string) Option {
	return func(c *Chain) { c.scan = scan }
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

// WithRequestTimeout bounds every call that is not part of a batch
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Chain) { c.requestTimeout = d }
}

// WithReceiptPollInterval sets how often WaitForReceipt polls
func WithReceiptPollInterval(d time.Duration) Option {
	return func(c *Chain) { c.pollInterval = d }
}

// WithMiddlewares installs middlewares on every call of the chain
func WithMiddlewares(mws ...Middleware) Option {
	return func(c *Chain) { c.middlewares = append(c.middlewares, mws...) }
}

// WithBatchOptions sets the defaults of UseBatch
func WithBatchOptions(opts batcher.Options) Option {
	return func(c *Chain) { c.batchOpts = opts }
}

// WithClient attaches a client without verifying it
func WithClient(client jsonrpc.Client) Option {
	return func(c *Chain) { c.client = client }
}

// New creates a chain. It is not connected unless WithClient is given.
func New(chainID uint64, opts ...Option) *Chain {
	c := &Chain{
		id:             chainID,
		currency:       currency.Native("ETH"),
		requestTimeout: DefaultRequestTimeout,
		pollInterval:   DefaultReceiptPollInterval,
		logger:         zerolog.Nop(),
		registry:       make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "chain").Str("chain", c.String()).Logger()
	return c
}

// Connect creates a chain, dials rpcURL and verifies the chain id
func Connect(ctx context.Context, rpcURL string, chainID uint64, opts ...Option) (*Chain, error) {
	c := New(chainID, opts...)
	endpoint := upstream.NewEndpoint(upstream.EndpointConfig{
		URL:            rpcURL,
		RequestTimeout: c.requestTimeout,
		Logger:         c.logger,
	})
	if err := c.ConnectClient(ctx, endpoint); err != nil {
		endpoint.Close()
		return nil, err
	}
	return c, nil
}

// ConnectClient attaches client and verifies it serves this chain
func (c *Chain) ConnectClient(ctx context.Context, client jsonrpc.Client) error {
	c.mu.Lock()
	prev := c.client
	c.client = client
	c.eip1559 = nil
	c.mu.Unlock()

	if err := c.VerifyChainID(ctx); err != nil {
		c.mu.Lock()
		c.client = prev
		c.mu.Unlock()
		return err
	}
	if prev != nil && prev != client {
		prev.Close()
	}

	c.logger.Debug().Msg("connected")
	return nil
}

// VerifyChainID checks that eth_chainId matches the configured chain id
func (c *Chain) VerifyChainID(ctx context.Context) error {
	var got hexutil.Uint64
	if err := c.CallContext(ctx, &got, "eth_chainId"); err != nil {
		return fmt.Errorf("%s: get chain id: %w", c, err)
	}
	if uint64(got) != c.id {
		return fmt.Errorf("%s: %w (%d vs expected %d)", c, ErrChainIDMismatch, uint64(got), c.id)
	}
	return nil
}

// Client returns the attached client, nil when not connected
func (c *Chain) Client() jsonrpc.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *Chain) rpc() (jsonrpc.Client, error) {
	client := c.Client()
	if client == nil {
		return nil, fmt.Errorf("%s: %w", c, ErrNotConnected)
	}
	return client, nil
}

// Close closes the client
func (c *Chain) Close() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil {
		client.Close()
	}
}

// ID returns the chain id
func (c *Chain) ID() uint64 {
	return c.id
}

// BigID returns the chain id as a big.Int
func (c *Chain) BigID() *big.Int {
	return new(big.Int).SetUint64(c.id)
}

// Name returns the display name
func (c *Chain) Name() string {
	return c.name
}

// Currency returns the native currency
func (c *Chain) Currency() currency.Currency {
	return c.currency
}

// Scan returns the block explorer base URL
func (c *Chain) Scan() string {
	return c.scan
}

// Logger returns the chain logger
func (c *Chain) Logger() zerolog.Logger {
	return c.logger
}

// String returns the name, or Chain#<id>
func (c *Chain) String() string {
	if c.name != "" {
		return c.name
	}
	return fmt.Sprintf("Chain#%d", c.id)
}

// TxScanURL returns the explorer link of a transaction, or the hash when there is no explorer
func (c *Chain) TxScanURL(hash common.Hash) string {
	if c.scan == "" {
		return hash.Hex()
	}
	return strings.TrimSuffix(c.scan, "/") + "/tx/" + hash.Hex()
}

// Register keeps v under alias on the chain, so loaded tokens and
// collections can be looked up by name later
func (c *Chain) Register(alias string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry[alias] = v
}

// Lookup returns the value registered under alias
func (c *Chain) Lookup(alias string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.registry[alias]
	return v, ok
}

// Aliases returns every registered alias
func (c *Chain) Aliases() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	aliases := make([]string, 0, len(c.registry))
	for alias := range c.registry {
		aliases = append(aliases, alias)
	}
	return aliases
}

// Balance returns the native currency balance of addr at the latest block
func (c *Chain) Balance(ctx context.Context, addr common.Address) (currency.Amount, error) {
	var balance hexutil.Big
	if err := c.CallContext(ctx, &balance, "eth_getBalance", addr, "latest"); err != nil {
		return currency.Amount{}, err
	}
	return c.currency.ToAmount(balance.ToInt()), nil
}

// BatchCallContext sends b straight to the client, bypassing middlewares and batch scopes
func (c *Chain) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	client, err := c.rpc()
	if err != nil {
		return err
	}
	return client.BatchCallContext(ctx, b)
}
