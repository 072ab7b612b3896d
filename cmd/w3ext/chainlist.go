package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var chainlistCmd = &cobra.Command{
	Use:   "chainlist",
	Short: "Query the chainlist registry.",
}

var chainlistRPCsCmd = &cobra.Command{
	Use:   "rpcs <chain-id>",
	Short: "List the http(s) RPC endpoints of a chain.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chain id %q: %w", args[0], err)
		}
		urls, err := w3.Chainlist().HTTPRPCs(cmd.Context(), id)
		if err != nil {
			return err
		}
		for _, u := range urls {
			fmt.Fprintln(cmd.OutOrStdout(), u)
		}
		return nil
	},
}

var chainlistExplorerCmd = &cobra.Command{
	Use:   "explorer <chain-id>",
	Short: "Print the EIP-3091 explorer of a chain.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chain id %q: %w", args[0], err)
		}
		url, err := w3.Chainlist().ExplorerURL(cmd.Context(), id)
		if err != nil {
			return err
		}
		if url == "" {
			return fmt.Errorf("chain %d has no explorer on chainlist", id)
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chainlistCmd)
	chainlistCmd.AddCommand(chainlistRPCsCmd)
	chainlistCmd.AddCommand(chainlistExplorerCmd)
}
