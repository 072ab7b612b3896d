package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"w3ext/internal/account"
	"w3ext/internal/app"
	"w3ext/internal/config"
)

// keyEnv holds the private key when --key is not given
const keyEnv = "W3EXT_KEY"

var (
	configPath string
	chainName  string
	privateKey string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
	w3     *app.App
)

var rootCmd = &cobra.Command{
	Use:          "w3ext",
	Short:        "Batched EVM chain toolkit",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logger = setupLogger(cfg.LogLevel)

		w3, err = app.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if w3 != nil {
			w3.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "w3ext.yaml", "Path to the config file (.json, .yaml or .yml).")
	rootCmd.PersistentFlags().StringVarP(&chainName, "chain", "n", "", "Chain name or id from the config.")
	rootCmd.PersistentFlags().StringVarP(&privateKey, "key", "k", "", "Hex private key, defaults to $"+keyEnv+".")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level.")
}

// loadConfig reads the config file. A missing default file yields the
// default configuration so registry commands work without one.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	c, err := config.Load(path)
	if err == nil {
		return c, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

// loadAccount reads the private key from --key or the environment
func loadAccount() (*account.Account, error) {
	key := privateKey
	if key == "" {
		key = os.Getenv(keyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("no private key: pass --key or set %s", keyEnv)
	}
	return account.FromKey(key)
}

// requireChain returns the --chain flag value
func requireChain() (string, error) {
	if chainName == "" {
		return "", errors.New("--chain is required")
	}
	return chainName, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
