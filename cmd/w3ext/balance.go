package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"w3ext/internal/batcher"
	"w3ext/internal/chain"
)

var balanceToken string

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Print the native or token balance of an address.",
	Args:  cobra.ExactArgs(1),
	RunE:  balanceRun,
}

var balancesCmd = &cobra.Command{
	Use:   "balances <address>...",
	Short: "Print native balances of many addresses in batched requests.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  balancesRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(balancesCmd)
	balanceCmd.Flags().StringVarP(&balanceToken, "token", "t", "", "Token alias or address.")
}

func balanceRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name, err := requireChain()
	if err != nil {
		return err
	}
	owner, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	if balanceToken != "" {
		t, err := w3.Token(ctx, name, balanceToken)
		if err != nil {
			return err
		}
		amount, err := t.Balance(ctx, owner)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), amount)
		return nil
	}

	c, err := w3.Chain(ctx, name)
	if err != nil {
		return err
	}
	amount, err := c.Balance(ctx, owner)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), amount)
	return nil
}

func balancesRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name, err := requireChain()
	if err != nil {
		return err
	}
	owners := make([]common.Address, len(args))
	for i, arg := range args {
		if owners[i], err = parseAddress(arg); err != nil {
			return err
		}
	}

	c, err := w3.Chain(ctx, name)
	if err != nil {
		return err
	}

	lines, err := batchBalances(ctx, c, owners)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

// batchBalances fetches every balance concurrently inside one batch scope
func batchBalances(ctx context.Context, c *chain.Chain, owners []common.Address) ([]string, error) {
	lines := make([]string, len(owners))
	err := c.WithBatch(ctx, batcher.Options{}, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for i, owner := range owners {
			i, owner := i, owner
			g.Go(func() error {
				amount, err := c.Balance(gctx, owner)
				if err != nil {
					return fmt.Errorf("%s: %w", owner.Hex(), err)
				}
				lines[i] = owner.Hex() + " " + amount.String()
				return nil
			})
		}
		return g.Wait()
	})
	return lines, err
}
