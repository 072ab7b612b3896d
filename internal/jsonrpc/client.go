package jsonrpc

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"
)

// Client is the JSON-RPC surface this module builds on.
// *rpc.Client satisfies it, as do the rotating upstream pool and test mocks.
type Client interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
	Close()
}

// unbatchable lists methods that nodes reject or mishandle inside a batch
var unbatchable = map[string]bool{
	"eth_subscribe":          true,
	"eth_unsubscribe":        true,
	"eth_sendRawTransaction": true,
	"eth_sendTransaction":    true,
	"eth_signTransaction":    true,
	"eth_sign":               true,
	"eth_signTypedData":      true,
	"eth_signTypedData_v4":   true,
}

// Batchable returns true if method may be coalesced into a batch request
func Batchable(method string) bool {
	return !unbatchable[method]
}
