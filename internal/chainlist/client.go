// Package chainlist discovers public RPC endpoints and block explorers from
// the chainlist.org registry.
package chainlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"w3ext/internal/cache"
	"w3ext/internal/upstream"
)

// DefaultURL is the registry location
const DefaultURL = "https://chainlist.org/rpcs.json"

// ErrNoRPC is returned when the registry lists no http(s) RPC for a chain
var ErrNoRPC = errors.New("no http rpc found on chainlist")

// Config for creating a new Client
type Config struct {
	URL     string
	TTL     time.Duration
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client fetches the registry and keeps it for TTL
type Client struct {
	url    string
	http   *resty.Client
	data   *cache.MemoryCache[[]Chain]
	logger zerolog.Logger

	// fetchMu serializes refreshes so concurrent callers share one download
	fetchMu sync.Mutex
}

// New creates a new Client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	data, err := cache.NewMemoryCache[[]Chain](1, cfg.TTL)
	if err != nil {
		return nil, err
	}

	return &Client{
		url:    cfg.URL,
		http:   resty.New().SetTimeout(cfg.Timeout).SetHeader("Accept", "application/json"),
		data:   data,
		logger: cfg.Logger.With().Str("component", "chainlist").Logger(),
	}, nil
}

// Chains returns the registry, downloading it when the cached copy expired
func (c *Client) Chains(ctx context.Context) ([]Chain, error) {
	if chains, ok := c.data.Get(c.url); ok {
		return chains, nil
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	if chains, ok := c.data.Get(c.url); ok {
		return chains, nil
	}

	var chains []Chain
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&chains).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("fetch chainlist: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch chainlist: unexpected status %d", resp.StatusCode())
	}

	c.logger.Debug().Int("chains", len(chains)).Dur("took", resp.Time()).Msg("chainlist fetched")
	c.data.Set(c.url, chains)
	return chains, nil
}

// Chain returns the registry entry of chainID
func (c *Client) Chain(ctx context.Context, chainID uint64) (*Chain, bool, error) {
	chains, err := c.Chains(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range chains {
		if id, ok := chains[i].ID(); ok && id == chainID {
			return &chains[i], true, nil
		}
	}
	return nil, false, nil
}

// HTTPRPCs returns all http(s) RPC URLs of chainID in registry order
func (c *Client) HTTPRPCs(ctx context.Context, chainID uint64) ([]string, error) {
	ch, ok, err := c.Chain(ctx, chainID)
	if err != nil || !ok {
		return nil, err
	}
	return ch.HTTPRPCs(), nil
}

// FirstHTTPRPC returns the first http(s) RPC URL of chainID
func (c *Client) FirstHTTPRPC(ctx context.Context, chainID uint64) (string, error) {
	urls, err := c.HTTPRPCs(ctx, chainID)
	if err != nil {
		return "", err
	}
	if len(urls) == 0 {
		return "", fmt.Errorf("chain %d: %w", chainID, ErrNoRPC)
	}
	return urls[0], nil
}

// ExplorerURL returns the EIP-3091 explorer base of chainID, empty when none is listed
func (c *Client) ExplorerURL(ctx context.Context, chainID uint64) (string, error) {
	ch, ok, err := c.Chain(ctx, chainID)
	if err != nil || !ok {
		return "", err
	}
	url, _ := ch.ExplorerURL()
	return url, nil
}

// Resolver returns an upstream.Resolver listing the RPCs of chainID.
// The list is re-read on every call so a refreshed registry is picked up.
func (c *Client) Resolver(chainID uint64) upstream.Resolver {
	return func(ctx context.Context) ([]string, error) {
		urls, err := c.HTTPRPCs(ctx, chainID)
		if err != nil {
			return nil, err
		}
		if len(urls) == 0 {
			return nil, fmt.Errorf("chain %d: %w", chainID, ErrNoRPC)
		}
		return urls, nil
	}
}

// Close stops the cache cleanup
func (c *Client) Close() {
	c.data.Close()
}
