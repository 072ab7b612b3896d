package batcher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrClosed is returned by Do once the batch has been closed
var ErrClosed = errors.New("batch is closed")

// Default values
const (
	DefaultMaxSize       = 20
	DefaultMaxWait       = 100 * time.Millisecond
	DefaultMaxConcurrent = 3
)

// Executor executes a slice of calls as one batched JSON-RPC request.
// Per-call failures are reported in BatchElem.Error, a returned error fails the whole batch.
type Executor interface {
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

// Options configures a Batch
type Options struct {
	MaxSize       int           // calls per batch request
	MaxWait       time.Duration // time since the first pending call before a flush
	MaxConcurrent int           // batch requests in flight
	Timeout       time.Duration // per batch request, 0 means no timeout
}

// withDefaults fills unset options
func (o Options) withDefaults() Options {
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	return o
}

// Stats holds batch counters
type Stats struct {
	Calls   uint64 // calls enqueued
	Flushes uint64 // flushes with at least one call
	Chunks  uint64 // batch requests sent
	Failed  uint64 // batch requests that failed as a whole
}

// batchItem is a single call waiting in a batch.
// result and err are written once by the flushing goroutine before done is closed.
type batchItem struct {
	method string
	args   []interface{}
	result json.RawMessage
	err    error
	done   chan struct{}
}
