package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"w3ext/internal/currency"
)

var nftProvider string

var nftCmd = &cobra.Command{
	Use:   "nft",
	Short: "Inspect ERC721 collections.",
}

var nftOwnedCmd = &cobra.Command{
	Use:   "owned <collection> <owner>",
	Short: "List the items an address owns.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name, err := requireChain()
		if err != nil {
			return err
		}
		owner, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		provider, err := w3.Provider(nftProvider)
		if err != nil {
			return err
		}
		col, err := w3.Collection(ctx, name, args[0])
		if err != nil {
			return err
		}

		items, err := col.OwnedBy(ctx, owner, provider)
		if err != nil {
			return err
		}
		for _, item := range items {
			fmt.Fprintln(cmd.OutOrStdout(), item)
		}
		return nil
	},
}

var nftMetaCmd = &cobra.Command{
	Use:   "meta <collection> <id>",
	Short: "Print the metadata of an item.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name, err := requireChain()
		if err != nil {
			return err
		}
		id, ok := currency.ParseInt(args[1])
		if !ok {
			return fmt.Errorf("invalid token id %q", args[1])
		}
		col, err := w3.Collection(ctx, name, args[0])
		if err != nil {
			return err
		}

		item := col.Item(id)
		if err := item.RefreshMetadata(ctx); err != nil {
			return err
		}
		meta, err := item.Meta()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	},
}

func init() {
	rootCmd.AddCommand(nftCmd)
	nftCmd.AddCommand(nftOwnedCmd)
	nftCmd.AddCommand(nftMetaCmd)
	nftOwnedCmd.Flags().StringVarP(&nftProvider, "provider", "p", "", "Indexer to ask instead of the chain: alchemy or opensea.")
}
