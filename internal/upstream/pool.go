package upstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"w3ext/internal/jsonrpc"
)

// errRetryableElements asks for another attempt when a batch came back with
// endpoint-specific element errors
var errRetryableElements = errors.New("batch returned retryable element errors")

// PoolConfig for creating a new Pool
type PoolConfig struct {
	Name           string
	Resolver       Resolver
	MaxAttempts    int
	RequestTimeout time.Duration
	CircuitBreaker CircuitBreakerConfig
	Logger         zerolog.Logger
}

// Pool is a sticky rotating set of endpoints for one chain.
// Calls go to the last endpoint that answered; on a retryable failure the
// endpoint is marked failed for the rest of the call and the next one in
// resolver order is tried.
type Pool struct {
	name           string
	resolver       Resolver
	maxAttempts    int
	requestTimeout time.Duration
	cbCfg          CircuitBreakerConfig
	logger         zerolog.Logger

	mu        sync.Mutex
	endpoints map[string]*Endpoint
	current   string
	closed    bool
}

// NewPool creates a new Pool
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Pool{
		name:           cfg.Name,
		resolver:       cfg.Resolver,
		maxAttempts:    cfg.MaxAttempts,
		requestTimeout: cfg.RequestTimeout,
		cbCfg:          cfg.CircuitBreaker,
		logger:         cfg.Logger.With().Str("chain", cfg.Name).Logger(),
		endpoints:      make(map[string]*Endpoint),
	}
}

// Name returns the pool name
func (p *Pool) Name() string {
	return p.name
}

// Current returns the URL of the sticky endpoint, empty before the first success
func (p *Pool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Endpoints resolves the current URL list and returns its endpoints
func (p *Pool) Endpoints(ctx context.Context) ([]*Endpoint, error) {
	urls, err := p.resolve(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]*Endpoint, 0, len(urls))
	for _, u := range urls {
		result = append(result, p.endpointLocked(u))
	}
	return result, nil
}

// CallContext performs a single call with rotation
func (p *Pool) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return p.withRotation(ctx, method, func(ctx context.Context, e *Endpoint, _ bool) error {
		return e.CallContext(ctx, result, method, args...)
	})
}

// BatchCallContext performs a batch call with rotation.
// Element errors are reset before every attempt; after the last attempt they are left in place.
func (p *Pool) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	if len(b) == 0 {
		return nil
	}
	err := p.withRotation(ctx, "batch", func(ctx context.Context, e *Endpoint, last bool) error {
		for i := range b {
			b[i].Error = nil
		}
		if err := e.BatchCallContext(ctx, b); err != nil {
			return err
		}
		if !last && hasRetryableElement(b) {
			return errRetryableElements
		}
		return nil
	})
	return err
}

// Close closes all endpoints
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for _, e := range p.endpoints {
		e.Close()
	}
}

func (p *Pool) withRotation(ctx context.Context, method string, call func(context.Context, *Endpoint, bool) error) error {
	urls, err := p.resolve(ctx)
	if err != nil {
		return err
	}

	failed := make(map[string]struct{})
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		e, err := p.pick(urls, failed, attempt)
		if err != nil {
			return err
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.requestTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.requestTimeout)
		}
		last := attempt == p.maxAttempts-1
		err = call(callCtx, e, last)
		cancel()

		if err == nil {
			p.markSuccess(e.URL())
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
		// a per-attempt deadline is the endpoint being slow, not the caller giving up
		if !jsonrpc.IsRetryable(err) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		failed[e.URL()] = struct{}{}
		p.markFailed(e.URL())
		if last {
			break
		}
		p.logger.Warn().
			Err(err).
			Str("method", method).
			Str("endpoint", Redact(e.URL())).
			Int("attempt", attempt+1).
			Msg("request failed, retrying")
	}

	return fmt.Errorf("%s: all %d attempts failed: %w", p.name, p.maxAttempts, lastErr)
}

func (p *Pool) resolve(ctx context.Context) ([]string, error) {
	if p.resolver == nil {
		return nil, ErrNoEndpoints
	}
	urls, err := p.resolver(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve endpoints of %s: %w", p.name, err)
	}
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}
	return urls, nil
}

// pick selects the endpoint for an attempt. The first attempt sticks to the
// current endpoint; otherwise the first endpoint in list order that has not
// failed is used. When every endpoint has failed the failed set is cleared
// and the list starts over.
func (p *Pool) pick(urls []string, failed map[string]struct{}, attempt int) (*Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.New("pool is closed")
	}

	if attempt == 0 && p.current != "" && p.usableLocked(p.current, failed) && contains(urls, p.current) {
		return p.endpointLocked(p.current), nil
	}

	for _, u := range urls {
		if p.usableLocked(u, failed) {
			return p.endpointLocked(u), nil
		}
	}

	p.logger.Debug().Int("endpoints", len(urls)).Msg("all endpoints failed, starting over")
	for u := range failed {
		delete(failed, u)
	}
	return p.endpointLocked(urls[0]), nil
}

func (p *Pool) usableLocked(url string, failed map[string]struct{}) bool {
	if _, ok := failed[url]; ok {
		return false
	}
	if e, ok := p.endpoints[url]; ok {
		return e.Available()
	}
	return true
}

func (p *Pool) endpointLocked(url string) *Endpoint {
	e, ok := p.endpoints[url]
	if !ok {
		e = NewEndpoint(EndpointConfig{
			URL:            url,
			RequestTimeout: p.requestTimeout,
			CircuitBreaker: p.cbCfg,
			Logger:         p.logger,
		})
		p.endpoints[url] = e
	}
	return e
}

func (p *Pool) markSuccess(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != url {
		p.logger.Debug().Str("endpoint", Redact(url)).Msg("switched endpoint")
		p.current = url
	}
}

func (p *Pool) markFailed(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == url {
		p.current = ""
	}
}

func hasRetryableElement(b []rpc.BatchElem) bool {
	for _, el := range b {
		if el.Error != nil && jsonrpc.IsRetryable(el.Error) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
