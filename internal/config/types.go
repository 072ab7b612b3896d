package config

import "time"

// Config represents the main configuration structure
type Config struct {
	LogLevel       string          `json:"logLevel" yaml:"logLevel" validate:"oneof=debug info warn error"`
	RequestTimeout int             `json:"requestTimeout" yaml:"requestTimeout" validate:"gte=0"` // ms
	Chainlist      ChainlistConfig `json:"chainlist" yaml:"chainlist"`
	Batch          BatchConfig     `json:"batch" yaml:"batch"`
	Cache          *CacheConfig    `json:"cache,omitempty" yaml:"cache,omitempty"`
	NFT            NFTConfig       `json:"nft" yaml:"nft"`
	Plugins        PluginsConfig   `json:"plugins" yaml:"plugins"`
	Chains         []ChainConfig   `json:"chains" yaml:"chains" validate:"dive"`
}

// ChainlistConfig configures RPC and explorer discovery
type ChainlistConfig struct {
	URL         string `json:"url" yaml:"url" validate:"url"`
	TTL         int    `json:"ttl" yaml:"ttl" validate:"gte=0"`         // seconds
	Timeout     int    `json:"timeout" yaml:"timeout" validate:"gte=0"` // ms - timeout for fetching the list
	MaxAttempts int    `json:"maxAttempts" yaml:"maxAttempts" validate:"gte=0"`
}

// BatchConfig configures call batching
type BatchConfig struct {
	MaxSize       int `json:"maxSize" yaml:"maxSize" validate:"gte=0"`
	MaxWait       int `json:"maxWait" yaml:"maxWait" validate:"gte=0"` // ms
	MaxConcurrent int `json:"maxConcurrent" yaml:"maxConcurrent" validate:"gte=0"`
}

// CacheConfig represents RPC response cache configuration
type CacheConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	TTL             int      `json:"ttl" yaml:"ttl"`                         // seconds
	Size            int      `json:"size" yaml:"size"`                       // number of entries
	DisabledMethods []string `json:"disabledMethods" yaml:"disabledMethods"` // methods to exclude from caching
}

// NFTConfig holds NFT data provider settings
type NFTConfig struct {
	AlchemyKey  string `json:"alchemyKey" yaml:"alchemyKey"`
	OpenseaKey  string `json:"openseaKey" yaml:"openseaKey"`
	IPFSGateway string `json:"ipfsGateway" yaml:"ipfsGateway" validate:"omitempty,url"`
}

// PluginsConfig points at JavaScript plugins serving custom RPC methods
type PluginsConfig struct {
	Dir     string `json:"dir" yaml:"dir"`                          // empty - no plugins
	Timeout int    `json:"timeout" yaml:"timeout" validate:"gte=0"` // ms
}

// ChainConfig describes one EVM chain
type ChainConfig struct {
	Name           string             `json:"name" yaml:"name" validate:"required"`
	ChainID        uint64             `json:"chainId" yaml:"chainId" validate:"gt=0"`
	RPC            []string           `json:"rpc" yaml:"rpc" validate:"dive,url"`                    // empty - resolve from chainlist
	RequestTimeout int                `json:"requestTimeout" yaml:"requestTimeout" validate:"gte=0"` // ms
	Currency       CurrencyConfig     `json:"currency" yaml:"currency"`
	Scan           string             `json:"scan" yaml:"scan" validate:"omitempty,url"`
	Tokens         []TokenConfig      `json:"tokens" yaml:"tokens" validate:"dive"`
	NFTs           []CollectionConfig `json:"nfts" yaml:"nfts" validate:"dive"`
}

// CurrencyConfig describes the native currency of a chain
type CurrencyConfig struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// TokenConfig describes an ERC20 token loaded at startup.
// Metadata set here is not fetched from the contract.
type TokenConfig struct {
	Alias    string `json:"alias" yaml:"alias" validate:"required"`
	Address  string `json:"address" yaml:"address" validate:"required,eth_addr"`
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals *uint8 `json:"decimals,omitempty" yaml:"decimals,omitempty"`
	ABI      string `json:"abi" yaml:"abi"` // file path or URL, empty - standard ERC20
}

// CollectionConfig describes an ERC721 collection loaded at startup
type CollectionConfig struct {
	Alias   string `json:"alias" yaml:"alias" validate:"required"`
	Address string `json:"address" yaml:"address" validate:"required,eth_addr"`
	ABI     string `json:"abi" yaml:"abi"` // file path or URL, empty - standard ERC721
}

// Default values
const (
	DefaultLogLevel             = "info"
	DefaultRequestTimeout       = 60000 // ms
	DefaultChainlistRPCTimeout  = 30000 // ms - for chains resolved from chainlist
	DefaultChainlistURL         = "https://chainlist.org/rpcs.json"
	DefaultChainlistTTL         = 60    // seconds
	DefaultChainlistTimeout     = 60000 // ms
	DefaultChainlistMaxAttempts = 3
	DefaultBatchMaxSize         = 20
	DefaultBatchMaxWait         = 100 // ms
	DefaultBatchMaxConcurrent   = 3
	DefaultCurrency             = "ETH"
	DefaultCurrencyDecimals     = 18
	DefaultIPFSGateway          = "https://ipfs.io/ipfs/"
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetChainRequestTimeoutDuration returns the request timeout for a chain
func (c *Config) GetChainRequestTimeoutDuration(chain *ChainConfig) time.Duration {
	if chain.RequestTimeout > 0 {
		return time.Duration(chain.RequestTimeout) * time.Millisecond
	}
	return c.GetRequestTimeoutDuration()
}

// IsCacheEnabled returns true if cache is configured and enabled
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// FindChain returns the chain with the given name or chain id
func (c *Config) FindChain(nameOrID string) (*ChainConfig, bool) {
	for i := range c.Chains {
		ch := &c.Chains[i]
		if ch.Name == nameOrID || formatUint(ch.ChainID) == nameOrID {
			return ch, true
		}
	}
	return nil, false
}

// GetTTLDuration returns cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// GetTimeoutDuration returns plugin execution timeout as time.Duration
func (c *PluginsConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// GetTTLDuration returns chainlist cache TTL as time.Duration
func (c *ChainlistConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// GetTimeoutDuration returns chainlist fetch timeout as time.Duration
func (c *ChainlistConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// GetMaxWaitDuration returns batch max wait as time.Duration
func (c *BatchConfig) GetMaxWaitDuration() time.Duration {
	return time.Duration(c.MaxWait) * time.Millisecond
}

// UsesChainlist returns true if the chain has no static RPC endpoints
func (c *ChainConfig) UsesChainlist() bool {
	return len(c.RPC) == 0
}
