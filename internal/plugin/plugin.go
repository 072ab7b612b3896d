// Package plugin serves custom JSON-RPC methods from JavaScript files.
//
// Plugins are JavaScript files loaded from a directory at startup.
// Each plugin must define:
//   - A @method directive specifying the RPC method name
//   - An execute(params, upstream) function
//
// upstream.call and upstream.batchCall go through the rest of the chain
// middlewares, and the calls of one batchCall share a batch request.
//
// Example plugin:
//
//	// @method custom_isContract
//	function execute(params, upstream) {
//	    var calls = params[0].map(function(addr) {
//	        return { method: "eth_getCode", params: [addr, "latest"] };
//	    });
//	    return upstream.batchCall(calls).map(function(code) {
//	        return code !== "0x" && code !== null;
//	    });
//	}
package plugin

import "w3ext/internal/jsonrpc"

// Plugin is a loaded JavaScript plugin
type Plugin struct {
	Name   string // file name without extension
	Method string // RPC method this plugin handles
	Script string
}

// CallRequest is one element of upstream.batchCall
type CallRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Plugin error codes
const (
	CodePluginExecution   = -32002
	CodePluginTimeout     = -32003
	CodePluginInvalidArgs = -32004
)

func executionError(msg string) *jsonrpc.Error {
	return jsonrpc.NewError(CodePluginExecution, msg)
}
