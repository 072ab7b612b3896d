package chain

import (
	"context"
	"time"

	"w3ext/internal/batcher"
	"w3ext/internal/jsonrpc"
)

// Handler performs one JSON-RPC call
type Handler func(ctx context.Context, result interface{}, method string, args ...interface{}) error

// Middleware wraps a Handler
type Middleware func(next Handler) Handler

type middlewaresKey struct {
	chain *Chain
}

// CallContext performs a JSON-RPC call through the middlewares of ctx and of
// the chain. Inside a batch scope, batchable calls join the batch.
func (c *Chain) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	h := Handler(c.send)
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	ctxMws, _ := ctx.Value(middlewaresKey{c}).([]Middleware)
	for i := len(ctxMws) - 1; i >= 0; i-- {
		h = ctxMws[i](h)
	}
	return h(ctx, result, method, args...)
}

// send is the innermost handler
func (c *Chain) send(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	client, err := c.rpc()
	if err != nil {
		return err
	}

	if b := batcher.FromContext(ctx, c); b != nil && jsonrpc.Batchable(method) {
		return b.Do(ctx, result, method, args...)
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	return client.CallContext(ctx, result, method, args...)
}

// WithMiddleware returns a copy of ctx whose calls to this chain also pass
// through mws. They run outside the chain middlewares, first one outermost.
func (c *Chain) WithMiddleware(ctx context.Context, mws ...Middleware) context.Context {
	prev, _ := ctx.Value(middlewaresKey{c}).([]Middleware)
	merged := make([]Middleware, 0, len(prev)+len(mws))
	merged = append(merged, prev...)
	merged = append(merged, mws...)
	return context.WithValue(ctx, middlewaresKey{c}, merged)
}

// UseBatch opens a batch scope. Calls made with the returned context are
// coalesced into batch requests until the batch is closed; the caller must
// Close it. Zero fields of opts fall back to the chain batch options.
func (c *Chain) UseBatch(ctx context.Context, opts batcher.Options) (context.Context, *batcher.Batch) {
	opts = c.mergeBatchOptions(opts)
	b := batcher.New(context.WithoutCancel(ctx), c, opts, c.logger)
	return batcher.WithBatch(ctx, c, b), b
}

// WithBatch runs fn inside a batch scope and closes it when fn returns
func (c *Chain) WithBatch(ctx context.Context, opts batcher.Options, fn func(ctx context.Context) error) error {
	bctx, b := c.UseBatch(ctx, opts)
	defer b.Close()
	return fn(bctx)
}

// InBatch reports whether ctx carries a batch scope of this chain
func (c *Chain) InBatch(ctx context.Context) bool {
	return batcher.FromContext(ctx, c) != nil
}

func (c *Chain) mergeBatchOptions(opts batcher.Options) batcher.Options {
	if opts.MaxSize == 0 {
		opts.MaxSize = c.batchOpts.MaxSize
	}
	if opts.MaxWait == 0 {
		opts.MaxWait = c.batchOpts.MaxWait
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = c.batchOpts.MaxConcurrent
	}
	if opts.Timeout == 0 {
		opts.Timeout = c.batchOpts.Timeout
	}
	if opts.Timeout == 0 && c.requestTimeout > 0 {
		opts.Timeout = c.requestTimeout
	}
	return opts
}

// timeoutOr returns d, or def when d is not positive
func timeoutOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
