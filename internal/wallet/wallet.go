// Package wallet binds accounts to chains.
package wallet

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"w3ext/internal/account"
	"w3ext/internal/chain"
	"w3ext/internal/currency"
	"w3ext/internal/token"
)

// ChainAccount is an account bound to a chain
type ChainAccount struct {
	*account.Account
	chain *chain.Chain
}

// Bind binds acc to c
func Bind(acc *account.Account, c *chain.Chain) *ChainAccount {
	return &ChainAccount{Account: acc, chain: c}
}

// OnChain returns a copy of ctx in which acc signs its transactions on
// every given chain, together with acc bound to each of them
func OnChain(ctx context.Context, acc *account.Account, chains ...*chain.Chain) (context.Context, []*ChainAccount) {
	bound := make([]*ChainAccount, 0, len(chains))
	for _, c := range chains {
		ctx = c.UseAccount(ctx, acc)
		bound = append(bound, Bind(acc, c))
	}
	return ctx, bound
}

// Chain returns the bound chain
func (a *ChainAccount) Chain() *chain.Chain {
	return a.chain
}

// Balance returns the native currency balance
func (a *ChainAccount) Balance(ctx context.Context) (currency.Amount, error) {
	return a.chain.Balance(ctx, a.Address())
}

// TokenBalance returns the balance of t, which must live on the bound chain
func (a *ChainAccount) TokenBalance(ctx context.Context, t *token.Token) (token.Amount, error) {
	if t.Chain() != a.chain {
		return token.Amount{}, fmt.Errorf("token %s is on %s, account is bound to %s", t, t.Chain(), a.chain)
	}
	return t.Balance(ctx, a.Address())
}

// Send signs tx with the account and sends it on the bound chain
func (a *ChainAccount) Send(ctx context.Context, tx chain.TxParams) (common.Hash, error) {
	return a.chain.SendTransaction(ctx, tx, a.Account)
}

// String returns "<address>@<chain>"
func (a *ChainAccount) String() string {
	return a.Address().Hex() + "@" + a.chain.String()
}
