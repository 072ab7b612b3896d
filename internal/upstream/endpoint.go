package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"w3ext/internal/jsonrpc"
)

// EndpointConfig for creating a new Endpoint
type EndpointConfig struct {
	URL            string
	RequestTimeout time.Duration
	CircuitBreaker CircuitBreakerConfig
	Logger         zerolog.Logger
}

// Endpoint is a single RPC URL, dialled on first use
type Endpoint struct {
	url        string
	httpClient *http.Client
	wsDialer   websocket.Dialer
	status     *Status
	breaker    *CircuitBreaker
	logger     zerolog.Logger

	mu     sync.Mutex
	client *rpc.Client
}

// NewEndpoint creates a new Endpoint instance
func NewEndpoint(cfg EndpointConfig) *Endpoint {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Endpoint{
		url: cfg.URL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		wsDialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		status:  NewStatus(),
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		logger:  cfg.Logger.With().Str("endpoint", Redact(cfg.URL)).Logger(),
	}
}

// URL returns the endpoint URL
func (e *Endpoint) URL() string {
	return e.url
}

// Status returns the endpoint health status
func (e *Endpoint) Status() *Status {
	return e.status
}

// Available returns true if the circuit breaker lets requests through
func (e *Endpoint) Available() bool {
	return e.breaker.AllowRequest()
}

// dial connects lazily; http(s) endpoints share the pooled transport,
// ws(s) endpoints go through the gorilla dialer
func (e *Endpoint) dial(ctx context.Context) (*rpc.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		return e.client, nil
	}

	client, err := rpc.DialOptions(ctx, e.url,
		rpc.WithHTTPClient(e.httpClient),
		rpc.WithWebsocketDialer(e.wsDialer),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", Redact(e.url), err)
	}

	e.logger.Debug().Msg("connected")
	e.client = client
	return client, nil
}

// CallContext performs a single JSON-RPC call
func (e *Endpoint) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	client, err := e.dial(ctx)
	if err != nil {
		e.record(err)
		return err
	}

	e.status.recordRequest()
	err = client.CallContext(ctx, result, method, args...)
	e.record(err)
	return err
}

// BatchCallContext performs a batched JSON-RPC call
func (e *Endpoint) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	client, err := e.dial(ctx)
	if err != nil {
		e.record(err)
		return err
	}

	e.status.recordRequest()
	err = client.BatchCallContext(ctx, b)
	e.record(err)
	return err
}

// record feeds the call outcome into the breaker.
// Errors the node returned for the request itself do not count against the endpoint.
func (e *Endpoint) record(err error) {
	if err != nil && jsonrpc.IsRetryable(err) {
		e.status.recordFailure()
		e.breaker.RecordFailure()
		return
	}
	e.status.SetHealthy(true)
	e.breaker.RecordSuccess()
}

// Close closes the underlying client
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
}

// Redact strips credentials, path and query from an RPC URL for logging.
// Provider API keys usually live in the path.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid-url"
	}
	redacted := u.Scheme + "://" + u.Host
	if strings.Trim(u.Path, "/") != "" {
		redacted += "/***"
	}
	return redacted
}
