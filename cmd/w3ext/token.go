package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <alias|address> [owner]",
	Short: "Print token metadata, and the balance of owner when given.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name, err := requireChain()
		if err != nil {
			return err
		}
		t, err := w3.Token(ctx, name, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "name:     %s\n", t.Name)
		fmt.Fprintf(out, "symbol:   %s\n", t.Symbol)
		fmt.Fprintf(out, "decimals: %d\n", t.Decimals)
		fmt.Fprintf(out, "address:  %s\n", t.Address().Hex())

		if len(args) == 1 {
			return nil
		}
		owner, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		amount, err := t.Balance(ctx, owner)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "balance:  %s\n", amount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
