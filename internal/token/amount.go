package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"w3ext/internal/chain"
	"w3ext/internal/currency"
)

// Amount is an amount of a token
type Amount struct {
	currency.Amount
	Token *Token
}

// Transfer sends the amount to `to`
func (a Amount) Transfer(ctx context.Context, signer chain.Signer, to common.Address, opts chain.TxParams) (common.Hash, error) {
	return a.Token.Transfer(ctx, signer, to, a, opts)
}

// Approve lets spender move the amount
func (a Amount) Approve(ctx context.Context, signer chain.Signer, spender common.Address, opts chain.TxParams) (common.Hash, error) {
	return a.Token.Approve(ctx, signer, spender, &a, opts)
}
