package batcher

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Batch accumulates calls and flushes them as batched requests.
// It is safe for concurrent use.
type Batch struct {
	ctx    context.Context
	exec   Executor
	opts   Options
	sem    *semaphore.Weighted
	logger zerolog.Logger

	mu     sync.Mutex
	items  []*batchItem
	timer  *time.Timer
	gen    uint64 // incremented on every take, invalidates stale timers
	closed bool
	wg     sync.WaitGroup // running flushes

	calls   atomic.Uint64
	flushes atomic.Uint64
	chunks  atomic.Uint64
	failed  atomic.Uint64
}

// New creates an open batch. ctx bounds every batch request sent by it.
func New(ctx context.Context, exec Executor, opts Options, logger zerolog.Logger) *Batch {
	opts = opts.withDefaults()
	return &Batch{
		ctx:    ctx,
		exec:   exec,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger: logger.With().Str("component", "batcher").Logger(),
	}
}

// Options returns the effective options
func (b *Batch) Options() Options {
	return b.opts
}

// Do enqueues a call and waits for its result.
// result is decoded on the calling goroutine, so a caller that gave up on ctx
// is never written to by a late flush.
func (b *Batch) Do(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	item := &batchItem{
		method: method,
		args:   args,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.items = append(b.items, item)
	b.calls.Add(1)

	var ready []*batchItem
	if len(b.items) >= b.opts.MaxSize {
		ready = b.takeLocked()
	} else if b.timer == nil {
		gen := b.gen
		b.timer = time.AfterFunc(b.opts.MaxWait, func() {
			b.onTimer(gen)
		})
	}
	b.mu.Unlock()

	if ready != nil {
		go b.flush(ready)
	}

	select {
	case <-item.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if item.err != nil {
		return item.err
	}
	if result == nil || len(item.result) == 0 {
		return nil
	}
	return json.Unmarshal(item.result, result)
}

// Flush sends the pending calls without waiting for a threshold
func (b *Batch) Flush() {
	b.mu.Lock()
	ready := b.takeLocked()
	b.mu.Unlock()

	if ready != nil {
		b.flush(ready)
	}
}

// Close flushes pending calls, waits for in-flight requests and rejects further calls
func (b *Batch) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.wg.Wait()
		return
	}
	b.closed = true
	ready := b.takeLocked()
	b.mu.Unlock()

	if ready != nil {
		b.flush(ready)
	}
	b.wg.Wait()

	b.logger.Debug().
		Uint64("calls", b.calls.Load()).
		Uint64("chunks", b.chunks.Load()).
		Msg("batch closed")
}

// Stats returns a snapshot of the batch counters
func (b *Batch) Stats() Stats {
	return Stats{
		Calls:   b.calls.Load(),
		Flushes: b.flushes.Load(),
		Chunks:  b.chunks.Load(),
		Failed:  b.failed.Load(),
	}
}

// onTimer flushes the window the timer was started for
func (b *Batch) onTimer(gen uint64) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	ready := b.takeLocked()
	b.mu.Unlock()

	if ready != nil {
		b.flush(ready)
	}
}

// takeLocked takes all pending items and registers the flush that will send them.
// Returns nil if nothing is pending. b.mu must be held.
func (b *Batch) takeLocked() []*batchItem {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++

	if len(b.items) == 0 {
		return nil
	}
	items := b.items
	b.items = nil
	b.wg.Add(1)
	return items
}

// flush splits items into chunks of MaxSize and executes them
func (b *Batch) flush(items []*batchItem) {
	defer b.wg.Done()
	b.flushes.Add(1)

	var wg sync.WaitGroup
	for start := 0; start < len(items); start += b.opts.MaxSize {
		end := start + b.opts.MaxSize
		if end > len(items) {
			end = len(items)
		}
		wg.Add(1)
		go func(chunk []*batchItem) {
			defer wg.Done()
			b.execute(chunk)
		}(items[start:end])
	}
	wg.Wait()
}

// send waits for a free slot, then runs the batch request under Timeout
func (b *Batch) send(chunk []*batchItem, elems []rpc.BatchElem) error {
	if err := b.sem.Acquire(b.ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)

	ctx := b.ctx
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	b.chunks.Add(1)
	b.logger.Debug().
		Int("calls", len(chunk)).
		Str("first", chunk[0].method).
		Msg("executing batch")
	return b.exec.BatchCallContext(ctx, elems)
}

// execute sends one chunk and distributes results
func (b *Batch) execute(chunk []*batchItem) {
	elems := make([]rpc.BatchElem, len(chunk))
	for i, item := range chunk {
		elems[i] = rpc.BatchElem{
			Method: item.method,
			Args:   item.args,
			Result: &chunk[i].result,
		}
	}

	err := b.send(chunk, elems)
	if err != nil {
		b.failed.Add(1)
		b.logger.Error().
			Err(err).
			Int("calls", len(chunk)).
			Msg("batch request failed")
	}

	for i, item := range chunk {
		if err != nil {
			item.err = err
		} else {
			item.err = elems[i].Error
		}
		close(item.done)
	}
}
