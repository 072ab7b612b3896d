package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"w3ext/internal/chain"
	"w3ext/internal/wallet"
)

var (
	waitReceipt bool
	waitTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <to> <amount>",
	Short: "Send native currency, amount in human units (1.5).",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name, err := requireChain()
		if err != nil {
			return err
		}
		acc, err := loadAccount()
		if err != nil {
			return err
		}
		to, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		c, err := w3.Chain(ctx, name)
		if err != nil {
			return err
		}
		amount, err := c.Currency().ParseAmount(args[1])
		if err != nil {
			return err
		}

		hash, err := wallet.Bind(acc, c).Send(ctx, chain.TxParams{To: &to, Value: amount.Int()})
		if err != nil {
			return err
		}
		return report(ctx, cmd.OutOrStdout(), c, hash)
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <token> <to> <amount>",
	Short: "Transfer an ERC20 token, amount in human units.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name, err := requireChain()
		if err != nil {
			return err
		}
		acc, err := loadAccount()
		if err != nil {
			return err
		}
		to, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		t, err := w3.Token(ctx, name, args[0])
		if err != nil {
			return err
		}
		amount, err := t.ParseAmount(args[2])
		if err != nil {
			return err
		}

		hash, err := t.Transfer(ctx, acc, to, amount, chain.TxParams{})
		if err != nil {
			return err
		}
		return report(ctx, cmd.OutOrStdout(), t.Chain(), hash)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(transferCmd)
	for _, cmd := range []*cobra.Command{sendCmd, transferCmd} {
		cmd.Flags().BoolVarP(&waitReceipt, "wait", "w", false, "Wait for the receipt.")
		cmd.Flags().DurationVar(&waitTimeout, "timeout", chain.DefaultReceiptTimeout, "How long to wait for the receipt.")
	}
}

// report prints the hash and explorer link, then the receipt status with --wait
func report(ctx context.Context, out io.Writer, c *chain.Chain, hash common.Hash) error {
	fmt.Fprintln(out, hash.Hex())
	if link := c.TxScanURL(hash); link != hash.Hex() {
		fmt.Fprintln(out, link)
	}
	if !waitReceipt {
		return nil
	}

	receipt, err := c.WaitForReceipt(ctx, hash, waitTimeout)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "block %s status %d gas used %d\n", receipt.BlockNumber, receipt.Status, receipt.GasUsed)
	return nil
}
