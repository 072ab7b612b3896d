package jsonrpc

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// nonRetryableMessages are logical errors of the request itself. Another endpoint
// would answer the same way.
var nonRetryableMessages = []string{
	"execution reverted",
	"insufficient funds",
	"nonce too low",
	"nonce too high",
	"already known",
	"replacement transaction underpriced",
}

// ErrorCode extracts the JSON-RPC error code carried by err
func ErrorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// IsRetryable checks if a call that failed with err may succeed on another endpoint.
// Transport failures and server errors are retryable; client errors
// (parse error, invalid request, invalid params) and execution errors are not.
// MethodNotFound is retryable: endpoints differ in the namespaces they expose.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if code, ok := ErrorCode(err); ok {
		switch code {
		case CodeParseError, CodeInvalidRequest, CodeInvalidParams, CodeExecutionError:
			return false
		}
		return !IsExecutionError(err)
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 401, 403, 404, 429:
			// endpoint specific: bad key, wrong path, rate limit
			return true
		}
		return httpErr.StatusCode < 400 || httpErr.StatusCode >= 500
	}

	return true
}

// IsExecutionError reports whether err is a contract or transaction validation failure
func IsExecutionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range nonRetryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
