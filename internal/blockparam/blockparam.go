// Package blockparam formats and inspects JSON-RPC block parameters.
package blockparam

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Latest is the default block tag for state reads
const Latest = "latest"

// ToArg formats a block number for a JSON-RPC call. nil means latest,
// negative numbers map to the special tags (pending, finalized, safe).
func ToArg(number *big.Int) string {
	if number == nil {
		return Latest
	}
	if number.Sign() >= 0 {
		return hexutil.EncodeBig(number)
	}
	if number.IsInt64() {
		return rpc.BlockNumber(number.Int64()).String()
	}
	return "<invalid " + number.String() + ">"
}

// index is the position of the block parameter per method
var index = map[string]int{
	"eth_getBlockByNumber":                    0,
	"eth_getBlockReceipts":                    0,
	"eth_getBlockTransactionCountByNumber":    0,
	"eth_getTransactionByBlockNumberAndIndex": 0,
	"eth_getBalance":                          1,
	"eth_getCode":                             1,
	"eth_getTransactionCount":                 1,
	"eth_call":                                1,
	"eth_estimateGas":                         1,
	"eth_feeHistory":                          1,
	"eth_getStorageAt":                        2,
	"eth_getProof":                            2,
}

// Index returns the position of the block parameter of method, -1 when it has none
func Index(method string) int {
	if i, ok := index[method]; ok {
		return i
	}
	return -1
}

// IsConcrete reports whether param names one block: a number, a hash, or an
// EIP-1898 object holding either. Tags other than earliest move with the chain.
func IsConcrete(param json.RawMessage) bool {
	var b rpc.BlockNumberOrHash
	if err := json.Unmarshal(param, &b); err != nil {
		return false
	}
	if _, ok := b.Hash(); ok {
		return true
	}
	n, ok := b.Number()
	return ok && n >= 0
}

// IsPinned reports whether the call reads from a concrete block.
// Methods without a block parameter are not pinned; a missing parameter defaults to latest.
func IsPinned(method string, params []json.RawMessage) bool {
	i := Index(method)
	if i < 0 || i >= len(params) {
		return false
	}
	return IsConcrete(params[i])
}

// IsPinnedRange reports whether an eth_getLogs filter is fixed to a block
// hash or to numbered fromBlock and toBlock
func IsPinnedRange(params []json.RawMessage) bool {
	if len(params) == 0 {
		return false
	}
	var filter struct {
		BlockHash *json.RawMessage `json:"blockHash"`
		FromBlock json.RawMessage  `json:"fromBlock"`
		ToBlock   json.RawMessage  `json:"toBlock"`
	}
	if err := json.Unmarshal(params[0], &filter); err != nil {
		return false
	}
	if filter.BlockHash != nil {
		return true
	}
	return len(filter.FromBlock) > 0 && len(filter.ToBlock) > 0 &&
		IsConcrete(filter.FromBlock) && IsConcrete(filter.ToBlock)
}
