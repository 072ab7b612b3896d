package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer signs transactions for one address. *account.Account implements it.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type signersKey struct {
	chain *Chain
}

// UseAccount returns a copy of ctx in which transactions of this chain sent
// from signer's address are signed by signer
func (c *Chain) UseAccount(ctx context.Context, signers ...Signer) context.Context {
	prev, _ := ctx.Value(signersKey{c}).(map[common.Address]Signer)
	active := make(map[common.Address]Signer, len(prev)+len(signers))
	for addr, s := range prev {
		active[addr] = s
	}
	for _, s := range signers {
		active[s.Address()] = s
	}
	return context.WithValue(ctx, signersKey{c}, active)
}

// ActiveSigner returns the signer ctx holds for addr on this chain
func (c *Chain) ActiveSigner(ctx context.Context, addr common.Address) (Signer, bool) {
	active, _ := ctx.Value(signersKey{c}).(map[common.Address]Signer)
	s, ok := active[addr]
	return s, ok
}
