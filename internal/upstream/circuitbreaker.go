package upstream

import (
	"sync"
	"time"
)

// BreakerState is the state of a CircuitBreaker
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// String returns the state name
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenProbes   int
}

// CircuitBreaker skips an endpoint during rotation after consecutive retryable failures
type CircuitBreaker struct {
	cfg      CircuitBreakerConfig
	state    BreakerState
	failures int
	probes   int
	openedAt time.Time
	mu       sync.Mutex
	nowFunc  func() time.Time
}

// NewCircuitBreaker creates a new CircuitBreaker
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   BreakerClosed,
		nowFunc: time.Now,
	}
}

// State returns the current state, moving an expired open breaker to half-open
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked()
	return cb.state
}

func (cb *CircuitBreaker) advanceLocked() {
	if cb.state == BreakerOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
		cb.state = BreakerHalfOpen
		cb.probes = 0
	}
}

// AllowRequest returns true if a request should be allowed
func (cb *CircuitBreaker) AllowRequest() bool {
	if !cb.cfg.Enabled {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advanceLocked()
	switch cb.state {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		return cb.probes < cb.cfg.HalfOpenProbes
	default:
		return true
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.cfg.Enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerHalfOpen {
		cb.probes++
		if cb.probes < cb.cfg.HalfOpenProbes {
			return
		}
	}
	cb.state = BreakerClosed
	cb.failures = 0
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	if !cb.cfg.Enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.state = BreakerOpen
			cb.openedAt = cb.nowFunc()
		}
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.openedAt = cb.nowFunc()
	}
}
