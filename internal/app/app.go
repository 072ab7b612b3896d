// Package app assembles chains, tokens and collections from configuration.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"w3ext/internal/abis"
	"w3ext/internal/batcher"
	"w3ext/internal/cache"
	"w3ext/internal/chain"
	"w3ext/internal/chainlist"
	"w3ext/internal/config"
	"w3ext/internal/currency"
	"w3ext/internal/nft"
	"w3ext/internal/plugin"
	"w3ext/internal/token"
	"w3ext/internal/upstream"
)

var (
	// ErrUnknownChain is returned for a chain missing from the configuration
	ErrUnknownChain = errors.New("chain is not configured")
	// ErrUnknownProvider is returned for an NFT provider without an API key
	ErrUnknownProvider = errors.New("nft provider is not configured")
)

// App owns the shared infrastructure and the chains connected so far
type App struct {
	cfg       *config.Config
	chainlist *chainlist.Client
	abis      *abis.Loader
	metadata  *nft.MetadataFetcher
	plugins   *plugin.Manager
	rpcCache  cache.Cache[json.RawMessage]
	policy    *cache.Policy
	base      zerolog.Logger
	logger    zerolog.Logger

	mu     sync.Mutex
	chains map[uint64]*chain.Chain
}

// New creates the shared infrastructure. Chains connect on first use.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	cl, err := chainlist.New(chainlist.Config{
		URL:     cfg.Chainlist.URL,
		TTL:     cfg.Chainlist.GetTTLDuration(),
		Timeout: cfg.Chainlist.GetTimeoutDuration(),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chainlist client: %w", err)
	}

	loader, err := abis.NewLoader(cfg.GetRequestTimeoutDuration(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create abi loader: %w", err)
	}

	metadata, err := nft.NewMetadataFetcher(nft.MetadataFetcherConfig{
		IPFSGateway: cfg.NFT.IPFSGateway,
		Timeout:     cfg.GetRequestTimeoutDuration(),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata fetcher: %w", err)
	}

	var rpcCache cache.Cache[json.RawMessage]
	var policy *cache.Policy
	if cfg.IsCacheEnabled() {
		rpcCache, err = cache.NewMemoryCache[json.RawMessage](cfg.Cache.Size, cfg.Cache.GetTTLDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		policy = cache.NewPolicy(cfg.Cache.DisabledMethods)
		logger.Info().
			Int("size", cfg.Cache.Size).
			Int("ttl", cfg.Cache.TTL).
			Strs("disabledMethods", cfg.Cache.DisabledMethods).
			Msg("cache enabled")
	} else {
		rpcCache = cache.NewNoopCache[json.RawMessage]()
		logger.Debug().Msg("cache disabled")
	}

	var plugins *plugin.Manager
	if cfg.Plugins.Dir != "" {
		plugins = plugin.NewManager(cfg.Plugins.GetTimeoutDuration(), logger)
		if err := plugins.LoadFromDirectory(cfg.Plugins.Dir); err != nil {
			return nil, fmt.Errorf("failed to load plugins: %w", err)
		}
	}

	return &App{
		cfg:       cfg,
		chainlist: cl,
		abis:      loader,
		metadata:  metadata,
		plugins:   plugins,
		rpcCache:  rpcCache,
		policy:    policy,
		base:      logger,
		logger:    logger.With().Str("component", "app").Logger(),
		chains:    make(map[uint64]*chain.Chain),
	}, nil
}

// Config returns the configuration
func (a *App) Config() *config.Config {
	return a.cfg
}

// Chainlist returns the registry client
func (a *App) Chainlist() *chainlist.Client {
	return a.chainlist
}

// ABIs returns the ABI loader
func (a *App) ABIs() *abis.Loader {
	return a.abis
}

// Chain returns the configured chain named nameOrID, connecting it and
// loading its tokens and collections on first use
func (a *App) Chain(ctx context.Context, nameOrID string) (*chain.Chain, error) {
	chainCfg, ok := a.cfg.FindChain(nameOrID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, nameOrID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.chains[chainCfg.ChainID]; ok {
		return c, nil
	}
	c, err := a.connect(ctx, chainCfg)
	if err != nil {
		return nil, err
	}
	a.chains[chainCfg.ChainID] = c
	return c, nil
}

func (a *App) connect(ctx context.Context, chainCfg *config.ChainConfig) (*chain.Chain, error) {
	logger := a.logger.With().Str("chain", chainCfg.Name).Logger()
	pool := a.pool(chainCfg)

	scan := chainCfg.Scan
	if scan == "" {
		explorer, err := a.chainlist.ExplorerURL(ctx, chainCfg.ChainID)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to look up explorer")
		}
		scan = explorer
	}

	mws := []chain.Middleware{chain.LoggingMiddleware(logger)}
	if a.policy != nil {
		mws = append(mws, chain.CacheMiddleware(a.rpcCache, a.policy, strconv.FormatUint(chainCfg.ChainID, 10)))
	}

	c := chain.New(chainCfg.ChainID,
		chain.WithName(chainCfg.Name),
		chain.WithCurrency(currency.New(chainCfg.Currency.Name, chainCfg.Currency.Symbol, chainCfg.Currency.Decimals)),
		chain.WithScan(scan),
		chain.WithLogger(a.base),
		chain.WithRequestTimeout(a.cfg.GetChainRequestTimeoutDuration(chainCfg)),
		chain.WithMiddlewares(mws...),
		chain.WithBatchOptions(batcher.Options{
			MaxSize:       a.cfg.Batch.MaxSize,
			MaxWait:       a.cfg.Batch.GetMaxWaitDuration(),
			MaxConcurrent: a.cfg.Batch.MaxConcurrent,
		}),
	)
	if err := c.ConnectClient(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	if err := a.loadAssets(ctx, c, chainCfg); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info().
		Int("tokens", len(chainCfg.Tokens)).
		Int("nfts", len(chainCfg.NFTs)).
		Bool("chainlist", chainCfg.UsesChainlist()).
		Msg("chain connected")
	return c, nil
}

func (a *App) pool(chainCfg *config.ChainConfig) *upstream.Pool {
	resolver := upstream.StaticResolver(chainCfg.RPC...)
	if chainCfg.UsesChainlist() {
		resolver = a.chainlist.Resolver(chainCfg.ChainID)
	}
	return upstream.NewPool(upstream.PoolConfig{
		Name:           chainCfg.Name,
		Resolver:       resolver,
		MaxAttempts:    a.cfg.Chainlist.MaxAttempts,
		RequestTimeout: a.cfg.GetChainRequestTimeoutDuration(chainCfg),
		CircuitBreaker: upstream.CircuitBreakerConfig{Enabled: true},
		Logger:         a.base.With().Str("component", "upstream").Logger(),
	})
}

// loadAssets loads every configured token and collection inside one batch scope
func (a *App) loadAssets(ctx context.Context, c *chain.Chain, chainCfg *config.ChainConfig) error {
	if len(chainCfg.Tokens) == 0 && len(chainCfg.NFTs) == 0 {
		return nil
	}

	return c.WithBatch(ctx, batcher.Options{}, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, tc := range chainCfg.Tokens {
			tc := tc
			g.Go(func() error {
				opts, err := a.tokenOptions(gctx, tc)
				if err != nil {
					return err
				}
				_, err = token.Load(gctx, c, common.HexToAddress(tc.Address), opts...)
				return err
			})
		}
		for _, nc := range chainCfg.NFTs {
			nc := nc
			g.Go(func() error {
				opts := []nft.Option{nft.WithCacheAs(nc.Alias), nft.WithMetadataFetcher(a.metadata)}
				if nc.ABI != "" {
					parsed, err := a.abis.Load(gctx, nc.ABI)
					if err != nil {
						return err
					}
					opts = append(opts, nft.WithABI(parsed))
				}
				_, err := nft.Load(gctx, c, common.HexToAddress(nc.Address), opts...)
				return err
			})
		}
		return g.Wait()
	})
}

func (a *App) tokenOptions(ctx context.Context, tc config.TokenConfig) ([]token.Option, error) {
	opts := []token.Option{token.WithCacheAs(tc.Alias)}
	if tc.Name != "" {
		opts = append(opts, token.WithName(tc.Name))
	}
	if tc.Symbol != "" {
		opts = append(opts, token.WithSymbol(tc.Symbol))
	}
	if tc.Decimals != nil {
		opts = append(opts, token.WithDecimals(*tc.Decimals))
	}
	if tc.ABI != "" {
		parsed, err := a.abis.Load(ctx, tc.ABI)
		if err != nil {
			return nil, err
		}
		opts = append(opts, token.WithABI(parsed))
	}
	return opts, nil
}

// Token returns the token registered under alias on the chain
func (a *App) Token(ctx context.Context, chainName, alias string) (*token.Token, error) {
	c, err := a.Chain(ctx, chainName)
	if err != nil {
		return nil, err
	}
	if t, ok := token.FromChain(c, alias); ok {
		return t, nil
	}
	if !common.IsHexAddress(alias) {
		return nil, fmt.Errorf("%s: unknown token %s", c, alias)
	}
	return token.Load(ctx, c, common.HexToAddress(alias))
}

// Collection returns the collection registered under alias on the chain
func (a *App) Collection(ctx context.Context, chainName, alias string) (*nft.Collection, error) {
	c, err := a.Chain(ctx, chainName)
	if err != nil {
		return nil, err
	}
	if col, ok := nft.FromChain(c, alias); ok {
		return col, nil
	}
	if !common.IsHexAddress(alias) {
		return nil, fmt.Errorf("%s: unknown collection %s", c, alias)
	}
	return nft.Load(ctx, c, common.HexToAddress(alias), nft.WithMetadataFetcher(a.metadata))
}

// Provider returns the NFT provider by name ("alchemy" or "opensea"); an empty name returns nil
func (a *App) Provider(name string) (nft.DataProvider, error) {
	cfg := nft.ProviderConfig{Timeout: a.cfg.GetRequestTimeoutDuration(), Logger: a.base}
	switch name {
	case "":
		return nil, nil
	case "alchemy":
		if a.cfg.NFT.AlchemyKey == "" {
			break
		}
		cfg.APIKey = a.cfg.NFT.AlchemyKey
		return nft.NewAlchemy(cfg), nil
	case "opensea":
		if a.cfg.NFT.OpenseaKey == "" {
			break
		}
		cfg.APIKey = a.cfg.NFT.OpenseaKey
		return nft.NewOpenSea(cfg), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

// Call performs a raw JSON-RPC call on the chain. Methods served by a
// plugin are answered by it.
func (a *App) Call(ctx context.Context, nameOrID, method string, params ...interface{}) (json.RawMessage, error) {
	c, err := a.Chain(ctx, nameOrID)
	if err != nil {
		return nil, err
	}
	if a.plugins != nil {
		ctx = c.WithMiddleware(ctx, a.plugins.Middleware(c))
	}
	var raw json.RawMessage
	if err := c.CallContext(ctx, &raw, method, params...); err != nil {
		return nil, err
	}
	return raw, nil
}

// Probe checks every endpoint of the chain
func (a *App) Probe(ctx context.Context, nameOrID string) ([]upstream.ProbeResult, error) {
	chainCfg, ok := a.cfg.FindChain(nameOrID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, nameOrID)
	}
	pool := a.pool(chainCfg)
	defer pool.Close()
	return pool.Probe(ctx, chainCfg.ChainID)
}

// Close closes every chain and the shared caches
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, c := range a.chains {
		c.Close()
	}
	a.chains = make(map[uint64]*chain.Chain)

	a.rpcCache.Close()
	a.metadata.Close()
	a.abis.Close()
	a.chainlist.Close()
	if a.plugins != nil {
		a.plugins.Close()
	}
}
