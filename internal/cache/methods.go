package cache

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"w3ext/internal/blockparam"
)

// Rule says when the result of a method may be reused
type Rule int

const (
	// Never cache
	Never Rule = iota
	// Always cache: the result is addressed by hash or never changes
	Always
	// PinnedBlock caches calls whose block parameter is a number or hash
	PinnedBlock
	// PinnedRange caches log filters whose fromBlock and toBlock are numbers
	PinnedRange
)

// rules lists the cacheable methods. Receipts are absent: a missing
// receipt answers null and must be asked again.
var rules = map[string]Rule{
	"eth_chainId":                           Always,
	"net_version":                           Always,
	"eth_getBlockByHash":                    Always,
	"eth_getTransactionByHash":              Always,
	"eth_getBlockTransactionCountByHash":    Always,
	"eth_getTransactionByBlockHashAndIndex": Always,

	"eth_call":                                PinnedBlock,
	"eth_getBalance":                          PinnedBlock,
	"eth_getCode":                             PinnedBlock,
	"eth_getStorageAt":                        PinnedBlock,
	"eth_getTransactionCount":                 PinnedBlock,
	"eth_getProof":                            PinnedBlock,
	"eth_getBlockByNumber":                    PinnedBlock,
	"eth_getBlockReceipts":                    PinnedBlock,
	"eth_getBlockTransactionCountByNumber":    PinnedBlock,
	"eth_getTransactionByBlockNumberAndIndex": PinnedBlock,

	"eth_getLogs": PinnedRange,
}

// RuleOf returns the rule of method
func RuleOf(method string) Rule {
	return rules[method]
}

// Policy decides which calls may be served from a cache
type Policy struct {
	disabled map[string]bool
}

// NewPolicy creates a policy that never caches the given methods
func NewPolicy(disabledMethods []string) *Policy {
	p := &Policy{disabled: make(map[string]bool, len(disabledMethods))}
	for _, method := range disabledMethods {
		p.disabled[method] = true
	}
	return p
}

// IsMethodDisabled checks if a method is in the disabled list
func (p *Policy) IsMethodDisabled(method string) bool {
	return p.disabled[method]
}

// IsCacheable checks if a call is cacheable based on method and its encoded args
func (p *Policy) IsCacheable(method string, params json.RawMessage) bool {
	if p.disabled[method] {
		return false
	}

	rule := RuleOf(method)
	switch rule {
	case Never:
		return false
	case Always:
		return true
	}

	var args []json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return false
		}
	}
	if rule == PinnedRange {
		return blockparam.IsPinnedRange(args)
	}
	return blockparam.IsPinned(method, args)
}

// GenerateCacheKey returns "scope:method:hash". The hash covers the params
// with object keys sorted and strings lowercased, so equal calls spelled
// differently share a key.
func GenerateCacheKey(scope, method string, params json.RawMessage) string {
	canonical := []byte("[]")
	if len(params) > 0 {
		canonical = params
		var v interface{}
		if err := json.Unmarshal(params, &v); err == nil {
			if b, err := json.Marshal(lowercase(v)); err == nil {
				canonical = b
			}
		}
	}
	return scope + ":" + method + ":" + hexutil.Encode(crypto.Keccak256(canonical)[:8])
}

// lowercase folds the strings of a decoded JSON value; encoding/json
// writes map keys sorted
func lowercase(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		for k, item := range x {
			x[k] = lowercase(item)
		}
	case []interface{}:
		for i := range x {
			x[i] = lowercase(x[i])
		}
	case string:
		return strings.ToLower(x)
	}
	return v
}
