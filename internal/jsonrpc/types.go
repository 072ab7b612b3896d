package jsonrpc

import "encoding/json"

// Error codes nodes answer with
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000 // -32000 to -32099

	// CodeExecutionError is returned by nodes for reverted eth_call / eth_estimateGas
	CodeExecutionError = 3
)

// Error is a JSON-RPC error object. It satisfies go-ethereum's rpc.Error and
// rpc.DataError, so errors produced by mocks and plugins classify the same
// way as errors decoded by the client.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorCode implements rpc.Error
func (e *Error) ErrorCode() int {
	return e.Code
}

// ErrorData implements rpc.DataError
func (e *Error) ErrorData() interface{} {
	if len(e.Data) == 0 {
		return nil
	}
	return string(e.Data)
}

// NewError creates a new JSON-RPC error
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Common errors
var (
	ErrParse          = NewError(CodeParseError, "Parse error")
	ErrInvalidRequest = NewError(CodeInvalidRequest, "Invalid Request")
	ErrInvalidParams  = NewError(CodeInvalidParams, "Invalid params")
	ErrInternal       = NewError(CodeInternalError, "Internal error")
)
