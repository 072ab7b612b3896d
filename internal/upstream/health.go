package upstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

// ProbeResult is the outcome of probing one endpoint
type ProbeResult struct {
	URL     string
	ChainID uint64
	Block   uint64
	Latency time.Duration
	Err     error
}

// Healthy returns true if the endpoint answered with the expected chain
func (r ProbeResult) Healthy() bool {
	return r.Err == nil
}

// Probe asks every endpoint for its chain id and head block in parallel.
// An endpoint serving a different chain than expectedChainID is marked unhealthy.
// expectedChainID 0 accepts any chain.
func Probe(ctx context.Context, endpoints []*Endpoint, expectedChainID uint64, logger zerolog.Logger) []ProbeResult {
	results := make([]ProbeResult, len(endpoints))

	var wg sync.WaitGroup
	for i, e := range endpoints {
		wg.Add(1)
		go func(i int, e *Endpoint) {
			defer wg.Done()
			results[i] = probeEndpoint(ctx, e, expectedChainID)
		}(i, e)
	}
	wg.Wait()

	var maxBlock uint64
	healthy := 0
	for _, r := range results {
		if r.Err != nil {
			logger.Warn().
				Err(r.Err).
				Str("endpoint", Redact(r.URL)).
				Msg("failed to probe endpoint")
			continue
		}
		healthy++
		if r.Block > maxBlock {
			maxBlock = r.Block
		}
		logger.Info().
			Str("endpoint", Redact(r.URL)).
			Uint64("block", r.Block).
			Dur("latency", r.Latency).
			Msg("probed endpoint")
	}

	logger.Info().
		Uint64("maxBlock", maxBlock).
		Int("healthy", healthy).
		Int("endpoints", len(endpoints)).
		Msg("endpoints probed")

	return results
}

func probeEndpoint(ctx context.Context, e *Endpoint, expectedChainID uint64) ProbeResult {
	var chainID, block hexutil.Uint64
	batch := []rpc.BatchElem{
		{Method: "eth_chainId", Result: &chainID},
		{Method: "eth_blockNumber", Result: &block},
	}

	started := time.Now()
	res := ProbeResult{URL: e.URL()}

	err := e.BatchCallContext(ctx, batch)
	res.Latency = time.Since(started)
	if err == nil {
		for _, el := range batch {
			if el.Error != nil {
				err = fmt.Errorf("%s: %w", el.Method, el.Error)
				break
			}
		}
	}
	if err != nil {
		e.Status().SetHealthy(false)
		res.Err = err
		return res
	}

	res.ChainID = uint64(chainID)
	res.Block = uint64(block)
	if expectedChainID != 0 && res.ChainID != expectedChainID {
		e.Status().SetHealthy(false)
		res.Err = fmt.Errorf("chain id mismatch: got %d, want %d", res.ChainID, expectedChainID)
		return res
	}

	e.Status().UpdateBlock(res.Block)
	e.Status().SetHealthy(true)
	return res
}

// Probe probes every endpoint the pool currently resolves
func (p *Pool) Probe(ctx context.Context, expectedChainID uint64) ([]ProbeResult, error) {
	endpoints, err := p.Endpoints(ctx)
	if err != nil {
		return nil, err
	}
	return Probe(ctx, endpoints, expectedChainID, p.logger), nil
}
