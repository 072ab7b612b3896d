package token

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"w3ext/internal/chain"
)

// maxAllowanceSlot bounds the storage slots probed for the allowance mapping
const maxAllowanceSlot = 8

var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	bytes32Type, _ = abi.NewType("bytes32", "", nil)

	ownerSlotArgs   = abi.Arguments{{Type: addressType}, {Type: uint256Type}}
	spenderSlotArgs = abi.Arguments{{Type: addressType}, {Type: bytes32Type}}
)

// AllowanceOverride returns a state override under which
// allowance(owner, spender) of t reads amount (the maximum when nil).
//
// The slot of the allowance mapping is found by overriding every candidate
// slot with a distinct sentinel and checking which one allowance() returns,
// then confirming it with a fresh sentinel. When no candidate matches the
// returned override is empty.
func AllowanceOverride(ctx context.Context, t *Token, owner, spender common.Address, amount *Amount) (chain.StateOverride, error) {
	seed := rand.Uint32()

	slots := make(map[common.Hash]common.Hash, maxAllowanceSlot)
	sentinels := make(map[int]common.Hash, maxAllowanceSlot)
	for p := 0; p < maxAllowanceSlot; p++ {
		slot, err := allowanceSlot(owner, spender, p)
		if err != nil {
			return nil, err
		}
		sentinels[p] = sentinel(p, seed)
		slots[slot] = sentinels[p]
	}

	read, err := t.readAllowance(ctx, owner, spender, slots)
	if err != nil {
		return nil, fmt.Errorf("probe allowance slot: %w", err)
	}

	found := -1
	for p := 0; p < maxAllowanceSlot; p++ {
		if read.Cmp(sentinels[p].Big()) != 0 {
			continue
		}
		slot, _ := allowanceSlot(owner, spender, p)
		confirm := sentinel(p, seed^0xA5A55A5A)
		read, err := t.readAllowance(ctx, owner, spender, map[common.Hash]common.Hash{slot: confirm})
		if err != nil {
			return nil, fmt.Errorf("confirm allowance slot: %w", err)
		}
		if read.Cmp(confirm.Big()) == 0 {
			found = p
		}
		break
	}

	if found < 0 {
		logger := t.Chain().Logger()
		logger.Debug().Str("token", t.Symbol).Msg("allowance slot not found")
		return chain.StateOverride{}, nil
	}

	value := math.MaxBig256
	if amount != nil {
		value = amount.Int()
	}
	slot, _ := allowanceSlot(owner, spender, found)
	return chain.StateOverride{
		t.Address(): {StateDiff: map[common.Hash]common.Hash{slot: common.BigToHash(value)}},
	}, nil
}

func (t *Token) readAllowance(ctx context.Context, owner, spender common.Address, diff map[common.Hash]common.Hash) (*big.Int, error) {
	opts := chain.CallOpts{
		StateOverride: chain.StateOverride{t.Address(): {StateDiff: diff}},
	}
	return chain.CallAs[*big.Int](ctx, t.contract, opts, "allowance", owner, spender)
}

// allowanceSlot is the storage slot of allowances[owner][spender] for a
// mapping(address => mapping(address => uint256)) declared at slot p
func allowanceSlot(owner, spender common.Address, p int) (common.Hash, error) {
	inner, err := ownerSlotArgs.Pack(owner, big.NewInt(int64(p)))
	if err != nil {
		return common.Hash{}, err
	}
	outer, err := spenderSlotArgs.Pack(spender, [32]byte(crypto.Keccak256Hash(inner)))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(outer), nil
}

func sentinel(p int, seed uint32) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("sentinel|%d|%d", seed, p)))
}
