package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <method> [params-json]",
	Short: "Perform a raw JSON-RPC call, plugin methods included.",
	Long: `Perform a raw JSON-RPC call on the chain. params-json is a JSON array,
for example '["0x0000000000000000000000000000000000000001", "latest"]'.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := requireChain()
		if err != nil {
			return err
		}
		var params []interface{}
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
				return fmt.Errorf("params must be a JSON array: %w", err)
			}
		}

		raw, err := w3.Call(cmd.Context(), name, args[0], params...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
}
