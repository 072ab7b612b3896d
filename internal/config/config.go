package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

var validate = validator.New()

// Load reads and parses the configuration file.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses configuration data; ext selects the format
func Parse(data []byte, ext string) (*Config, error) {
	cfg := &Config{}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied and no chains
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	if cfg.Chainlist.URL == "" {
		cfg.Chainlist.URL = DefaultChainlistURL
	}
	if cfg.Chainlist.TTL == 0 {
		cfg.Chainlist.TTL = DefaultChainlistTTL
	}
	if cfg.Chainlist.Timeout == 0 {
		cfg.Chainlist.Timeout = DefaultChainlistTimeout
	}
	if cfg.Chainlist.MaxAttempts == 0 {
		cfg.Chainlist.MaxAttempts = DefaultChainlistMaxAttempts
	}

	if cfg.Batch.MaxSize == 0 {
		cfg.Batch.MaxSize = DefaultBatchMaxSize
	}
	if cfg.Batch.MaxWait == 0 {
		cfg.Batch.MaxWait = DefaultBatchMaxWait
	}
	if cfg.Batch.MaxConcurrent == 0 {
		cfg.Batch.MaxConcurrent = DefaultBatchMaxConcurrent
	}

	if cfg.NFT.IPFSGateway == "" {
		cfg.NFT.IPFSGateway = DefaultIPFSGateway
	}

	// Apply defaults to chains
	for i := range cfg.Chains {
		ch := &cfg.Chains[i]
		if ch.Currency.Name == "" {
			ch.Currency.Name = DefaultCurrency
		}
		if ch.Currency.Symbol == "" {
			ch.Currency.Symbol = ch.Currency.Name
		}
		if ch.Currency.Decimals == 0 {
			ch.Currency.Decimals = DefaultCurrencyDecimals
		}
		if ch.UsesChainlist() && ch.RequestTimeout == 0 {
			ch.RequestTimeout = DefaultChainlistRPCTimeout
		}
	}
}

// validateConfig checks the configuration for errors
func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	chainIDs := make(map[uint64]bool)
	chainNames := make(map[string]bool)
	for i, ch := range cfg.Chains {
		if chainIDs[ch.ChainID] {
			return fmt.Errorf("chain[%d]: duplicate chainId %d", i, ch.ChainID)
		}
		chainIDs[ch.ChainID] = true

		if chainNames[ch.Name] {
			return fmt.Errorf("chain[%d]: duplicate chain name '%s'", i, ch.Name)
		}
		chainNames[ch.Name] = true

		aliases := make(map[string]bool)
		for _, t := range ch.Tokens {
			if aliases[t.Alias] {
				return fmt.Errorf("chain '%s': duplicate alias '%s'", ch.Name, t.Alias)
			}
			aliases[t.Alias] = true
		}
		for _, n := range ch.NFTs {
			if aliases[n.Alias] {
				return fmt.Errorf("chain '%s': duplicate alias '%s'", ch.Name, n.Alias)
			}
			aliases[n.Alias] = true
		}
	}

	// Validate cache config if provided
	if cfg.IsCacheEnabled() {
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive when cache is enabled")
		}
		if cfg.Cache.Size <= 0 {
			return fmt.Errorf("cache.size must be positive when cache is enabled")
		}
	}

	return nil
}

func formatUint(n uint64) string {
	return strconv.FormatUint(n, 10)
}
