package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"w3ext/internal/upstream"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check chain id and head block of every endpoint of a chain.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := requireChain()
		if err != nil {
			return err
		}
		results, err := w3.Probe(cmd.Context(), name)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, r := range results {
			if !r.Healthy() {
				fmt.Fprintf(out, "%s\tdown\t%v\n", upstream.Redact(r.URL), r.Err)
				continue
			}
			fmt.Fprintf(out, "%s\tblock %d\t%s\n", upstream.Redact(r.URL), r.Block, r.Latency)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
