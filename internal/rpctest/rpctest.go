// Package rpctest provides in-process and HTTP JSON-RPC backends for tests.
package rpctest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"

	"w3ext/internal/jsonrpc"
)

// Handler answers one JSON-RPC call
type Handler func(method string, params []json.RawMessage) (interface{}, *jsonrpc.Error)

// Methods routes calls by method name
type Methods map[string]func(params []json.RawMessage) (interface{}, *jsonrpc.Error)

// Handle implements Handler
func (m Methods) Handle(method string, params []json.RawMessage) (interface{}, *jsonrpc.Error) {
	fn, ok := m[method]
	if !ok {
		return nil, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, fmt.Sprintf("the method %s does not exist/is not available", method))
	}
	return fn(params)
}

// Static returns a method handler that always answers v
func Static(v interface{}) func([]json.RawMessage) (interface{}, *jsonrpc.Error) {
	return func([]json.RawMessage) (interface{}, *jsonrpc.Error) {
		return v, nil
	}
}

// Client is an in-process jsonrpc.Client backed by a Handler
type Client struct {
	handler Handler

	mu      sync.Mutex
	calls   []string
	batches []int
	closed  bool
}

// NewClient creates a new Client
func NewClient(h Handler) *Client {
	return &Client{handler: h}
}

// CallContext implements jsonrpc.Client
func (c *Client) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.calls = append(c.calls, method)
	c.mu.Unlock()

	return c.call(result, method, args)
}

// BatchCallContext implements jsonrpc.Client
func (c *Client) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.batches = append(c.batches, len(b))
	for _, el := range b {
		c.calls = append(c.calls, el.Method)
	}
	c.mu.Unlock()

	for i := range b {
		if err := c.call(b[i].Result, b[i].Method, b[i].Args); err != nil {
			b[i].Error = err
		}
	}
	return nil
}

func (c *Client) call(result interface{}, method string, args []interface{}) error {
	params := make([]json.RawMessage, len(args))
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return err
		}
		params[i] = raw
	}

	v, rpcErr := c.handler(method, params)
	if rpcErr != nil {
		return rpcErr
	}
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

// Close implements jsonrpc.Client
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Calls returns the methods called so far, batch elements included
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// CountCalls returns how many times method was called
func (c *Client) CountCalls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.calls {
		if m == method {
			n++
		}
	}
	return n
}

// Batches returns the size of every batch request
func (c *Client) Batches() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.batches...)
}

// Closed returns true after Close
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
