// Package batcher provides request batching (coalescing) for JSON-RPC calls.
//
// Calls issued against one chain while a Batch is open are buffered and sent
// as a single batched JSON-RPC request once either MaxSize calls are pending or
// MaxWait has elapsed since the first pending call. Each result (or error) is
// delivered back to the goroutine that issued the call.
//
// Example:
//
//	b := batcher.New(ctx, client, batcher.Options{MaxSize: 20, MaxWait: 100 * time.Millisecond}, logger)
//	defer b.Close()
//
//	var balance hexutil.Big
//	err := b.Do(ctx, &balance, "eth_getBalance", addr, "latest")
package batcher
