package upstream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrNoEndpoints is returned when the resolver yields no usable URL
var ErrNoEndpoints = errors.New("no rpc endpoints available")

// Resolver returns the candidate RPC URLs of a chain in preference order
type Resolver func(ctx context.Context) ([]string, error)

// StaticResolver returns a Resolver over a fixed URL list
func StaticResolver(urls ...string) Resolver {
	list := append([]string(nil), urls...)
	return func(context.Context) ([]string, error) {
		return list, nil
	}
}

// Status represents the health status of an endpoint
type Status struct {
	healthy      atomic.Bool
	currentBlock atomic.Uint64
	requests     atomic.Uint64
	failures     atomic.Uint64
	lastFailure  atomic.Int64 // unix nano
}

// NewStatus creates a new Status
func NewStatus() *Status {
	s := &Status{}
	s.healthy.Store(true)
	return s
}

// IsHealthy returns the health status
func (s *Status) IsHealthy() bool {
	return s.healthy.Load()
}

// SetHealthy sets the health status
func (s *Status) SetHealthy(healthy bool) {
	s.healthy.Store(healthy)
}

// GetCurrentBlock returns the last block number seen on the endpoint
func (s *Status) GetCurrentBlock() uint64 {
	return s.currentBlock.Load()
}

// UpdateBlock updates the block if the new value is higher
// Returns true if the block was updated
func (s *Status) UpdateBlock(block uint64) bool {
	for {
		current := s.currentBlock.Load()
		if block <= current {
			return false
		}
		if s.currentBlock.CompareAndSwap(current, block) {
			return true
		}
	}
}

// Requests returns the number of calls sent (a batch counts once)
func (s *Status) Requests() uint64 {
	return s.requests.Load()
}

// Failures returns the number of retryable failures
func (s *Status) Failures() uint64 {
	return s.failures.Load()
}

// LastFailure returns the time of the last retryable failure
func (s *Status) LastFailure() time.Time {
	ns := s.lastFailure.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (s *Status) recordRequest() {
	s.requests.Add(1)
}

func (s *Status) recordFailure() {
	s.failures.Add(1)
	s.lastFailure.Store(time.Now().UnixNano())
	s.healthy.Store(false)
}
