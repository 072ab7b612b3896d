package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"w3ext/internal/account"
)

var signCmd = &cobra.Command{
	Use:   "sign <message>",
	Short: "Sign text, 0x hex bytes or EIP-712 typed data JSON with the account key.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acc, err := loadAccount()
		if err != nil {
			return err
		}
		signed, err := acc.SignMessage(args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Address string `json:"address"`
			*account.SignedMessage
		}{acc.String(), signed})
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
}
