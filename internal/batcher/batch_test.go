package batcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

// echoExecutor answers every call with its first argument.
// Calls to the "fail" method get a per-element error.
type echoExecutor struct {
	mu    sync.Mutex
	sizes []int
	fail  error
	delay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (e *echoExecutor) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		cur := e.maxInFlight.Load()
		if n <= cur || e.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	e.mu.Lock()
	e.sizes = append(e.sizes, len(b))
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.fail != nil {
		return e.fail
	}
	for i := range b {
		if b[i].Method == "fail" {
			b[i].Error = errors.New("element failed")
			continue
		}
		raw, _ := json.Marshal(b[i].Args[0])
		if err := json.Unmarshal(raw, b[i].Result); err != nil {
			b[i].Error = err
		}
	}
	return nil
}

func (e *echoExecutor) batchSizes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.sizes...)
}

func TestBatchFlushOnMaxSize(t *testing.T) {
	exec := &echoExecutor{}
	b := New(context.Background(), exec, Options{MaxSize: 3, MaxWait: time.Hour}, zerolog.Nop())
	defer b.Close()

	var wg sync.WaitGroup
	results := make([]int, 3)
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = b.Do(context.Background(), &results[i], "echo", i*10)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		if errs[i] != nil {
			t.Fatalf("Do %d: %v", i, errs[i])
		}
		if results[i] != i*10 {
			t.Errorf("result[%d] = %d, want %d", i, results[i], i*10)
		}
	}

	sizes := exec.batchSizes()
	if len(sizes) != 1 || sizes[0] != 3 {
		t.Errorf("batch sizes = %v, want [3]", sizes)
	}
}

func TestBatchFlushOnMaxWait(t *testing.T) {
	exec := &echoExecutor{}
	b := New(context.Background(), exec, Options{MaxSize: 10, MaxWait: 20 * time.Millisecond}, zerolog.Nop())
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var got string
			if err := b.Do(context.Background(), &got, "echo", "v"); err != nil {
				t.Errorf("Do: %v", err)
			}
			if got != "v" {
				t.Errorf("got %q, want %q", got, "v")
			}
		}(i)
	}

	start := time.Now()
	wg.Wait()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("flush took %v, expected to be bounded by MaxWait", elapsed)
	}

	sizes := exec.batchSizes()
	if len(sizes) != 1 || sizes[0] != 2 {
		t.Errorf("batch sizes = %v, want [2]", sizes)
	}
}

func TestBatchElementErrorOnlyFailsItsCaller(t *testing.T) {
	exec := &echoExecutor{}
	b := New(context.Background(), exec, Options{MaxSize: 2, MaxWait: time.Hour}, zerolog.Nop())
	defer b.Close()

	var wg sync.WaitGroup
	var okErr, failErr error
	var got int
	wg.Add(2)
	go func() {
		defer wg.Done()
		okErr = b.Do(context.Background(), &got, "echo", 7)
	}()
	go func() {
		defer wg.Done()
		failErr = b.Do(context.Background(), nil, "fail", 0)
	}()
	wg.Wait()

	if okErr != nil {
		t.Errorf("echo call: %v", okErr)
	}
	if got != 7 {
		t.Errorf("got = %d, want 7", got)
	}
	if failErr == nil || failErr.Error() != "element failed" {
		t.Errorf("fail call error = %v, want element failed", failErr)
	}
}

func TestBatchWholeFailureFailsAllCallers(t *testing.T) {
	boom := errors.New("connection reset")
	exec := &echoExecutor{fail: boom}
	b := New(context.Background(), exec, Options{MaxSize: 3, MaxWait: time.Hour}, zerolog.Nop())
	defer b.Close()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = b.Do(context.Background(), nil, "echo", i)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("caller %d error = %v, want %v", i, err, boom)
		}
	}
	if s := b.Stats(); s.Failed != 1 {
		t.Errorf("Stats.Failed = %d, want 1", s.Failed)
	}
}

func TestBatchCloseFlushesPending(t *testing.T) {
	exec := &echoExecutor{}
	b := New(context.Background(), exec, Options{MaxSize: 10, MaxWait: time.Hour}, zerolog.Nop())

	done := make(chan error, 1)
	var got int
	go func() {
		done <- b.Do(context.Background(), &got, "echo", 42)
	}()

	// wait for the call to be enqueued
	deadline := time.Now().Add(time.Second)
	for b.Stats().Calls == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	b.Close()

	if err := <-done; err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 42 {
		t.Errorf("got = %d, want 42", got)
	}

	if err := b.Do(context.Background(), nil, "echo", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Do after Close = %v, want %v", err, ErrClosed)
	}

	// Close is idempotent
	b.Close()
}

func TestBatchLimitsConcurrentRequests(t *testing.T) {
	exec := &echoExecutor{delay: 30 * time.Millisecond}
	b := New(context.Background(), exec, Options{MaxSize: 1, MaxWait: time.Hour, MaxConcurrent: 2}, zerolog.Nop())
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := b.Do(context.Background(), nil, "echo", i); err != nil {
				t.Errorf("Do: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if peak := exec.maxInFlight.Load(); peak > 2 {
		t.Errorf("max in-flight batches = %d, want <= 2", peak)
	}
	if s := b.Stats(); s.Chunks != 6 {
		t.Errorf("Stats.Chunks = %d, want 6", s.Chunks)
	}
}

func TestBatchCallerContextCanceled(t *testing.T) {
	exec := &echoExecutor{}
	b := New(context.Background(), exec, Options{MaxSize: 10, MaxWait: time.Hour}, zerolog.Nop())
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var got int
	err := b.Do(ctx, &got, "echo", 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do = %v, want %v", err, context.DeadlineExceeded)
	}
	if got != 0 {
		t.Errorf("abandoned result was written: %d", got)
	}
}

func TestFromContextScopedByOwner(t *testing.T) {
	type owner struct{ name string }
	a, c := &owner{"a"}, &owner{"c"}

	b := New(context.Background(), &echoExecutor{}, Options{}, zerolog.Nop())
	defer b.Close()

	ctx := WithBatch(context.Background(), a, b)
	if got := FromContext(ctx, a); got != b {
		t.Errorf("FromContext(a) = %p, want %p", got, b)
	}
	if got := FromContext(ctx, c); got != nil {
		t.Errorf("FromContext(c) = %p, want nil", got)
	}

	opts := b.Options()
	if opts.MaxSize != DefaultMaxSize || opts.MaxWait != DefaultMaxWait || opts.MaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("defaults = %+v", opts)
	}
}

func TestBatchTimeoutStartsAfterQueueing(t *testing.T) {
	exec := &echoExecutor{delay: 60 * time.Millisecond}
	b := New(context.Background(), exec, Options{
		MaxSize:       2,
		MaxWait:       time.Hour,
		MaxConcurrent: 1,
		Timeout:       100 * time.Millisecond,
	}, zerolog.Nop())
	defer b.Close()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out int
			errs[i] = b.Do(context.Background(), &out, "echo", i)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d: %v", i, err)
		}
	}
	if got := exec.maxInFlight.Load(); got != 1 {
		t.Errorf("max in flight = %d, want 1", got)
	}
	if s := b.Stats(); s.Chunks != 2 {
		t.Errorf("Stats.Chunks = %d, want 2", s.Chunks)
	}
}
