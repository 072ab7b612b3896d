package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"w3ext/internal/batcher"
	"w3ext/internal/chain"
	"w3ext/internal/jsonrpc"
)

// DefaultExecutionTimeout is the default timeout for plugin execution
const DefaultExecutionTimeout = 30 * time.Second

// methodDirectiveRegex matches @method directive in comments
var methodDirectiveRegex = regexp.MustCompile(`(?m)^//\s*@method\s+(\S+)`)

// Manager holds the loaded plugins by method
type Manager struct {
	plugins map[string]*Plugin
	logger  zerolog.Logger
	timeout time.Duration
	mu      sync.RWMutex
}

// NewManager creates a new Manager; a zero timeout means DefaultExecutionTimeout
func NewManager(timeout time.Duration, logger zerolog.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultExecutionTimeout
	}
	return &Manager{
		plugins: make(map[string]*Plugin),
		logger:  logger.With().Str("component", "plugin-manager").Logger(),
		timeout: timeout,
	}
}

// LoadFromDirectory loads all .js plugins from a directory.
// A missing directory is not an error; a broken plugin is logged and skipped.
func (m *Manager) LoadFromDirectory(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		m.logger.Warn().Str("directory", dir).Msg("plugins directory does not exist")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat plugins directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("plugins path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read plugins directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err == nil {
			err = m.Load(strings.TrimSuffix(entry.Name(), ".js"), string(content))
		}
		if err != nil {
			m.logger.Error().
				Err(err).
				Str("file", entry.Name()).
				Msg("failed to load plugin")
			continue
		}
		loaded++
	}

	m.logger.Info().
		Int("loaded", loaded).
		Str("directory", dir).
		Msg("plugins loaded")
	return nil
}

// Load registers the plugin script under the method of its @method directive
func (m *Manager) Load(name, script string) error {
	method := extractMethodDirective(script)
	if method == "" {
		return errors.New("plugin missing @method directive")
	}
	if _, err := goja.Compile(name, script, false); err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plugins[method]; exists {
		return fmt.Errorf("duplicate method: %s", method)
	}
	m.plugins[method] = &Plugin{Name: name, Method: method, Script: script}

	m.logger.Debug().
		Str("name", name).
		Str("method", method).
		Msg("plugin loaded")
	return nil
}

func extractMethodDirective(script string) string {
	matches := methodDirectiveRegex.FindStringSubmatch(script)
	if len(matches) >= 2 {
		return matches[1]
	}
	return ""
}

// HasPlugin checks if a plugin exists for the given method
func (m *Manager) HasPlugin(method string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.plugins[method]
	return exists
}

// Methods returns the plugin methods in sorted order
func (m *Manager) Methods() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	methods := make([]string, 0, len(m.plugins))
	for method := range m.plugins {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}

// Middleware answers plugin methods on c and passes every other call on.
// Plugin upstream calls continue down the handler chain.
func (m *Manager) Middleware(c *chain.Chain) chain.Middleware {
	return func(next chain.Handler) chain.Handler {
		return func(ctx context.Context, result interface{}, method string, args ...interface{}) error {
			if !m.HasPlugin(method) {
				return next(ctx, result, method, args...)
			}
			raw, err := m.Execute(ctx, c, next, method, args...)
			if err != nil {
				return err
			}
			if result == nil {
				return nil
			}
			return json.Unmarshal(raw, result)
		}
	}
}

// Execute runs the plugin of method with args and returns its JSON result.
// Upstream calls of the plugin go to next; c, when set, scopes their batches.
func (m *Manager) Execute(ctx context.Context, c *chain.Chain, next chain.Handler, method string, args ...interface{}) (json.RawMessage, error) {
	m.mu.RLock()
	p, exists := m.plugins[method]
	m.mu.RUnlock()
	if !exists {
		return nil, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, fmt.Sprintf("the method %s does not exist/is not available", method))
	}

	if args == nil {
		args = []interface{}{}
	}
	// plugins see params as plain JSON values
	params, err := plainJSON(args)
	if err != nil {
		return nil, jsonrpc.NewError(CodePluginInvalidArgs, fmt.Sprintf("invalid params: %v", err))
	}

	execCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	runtime := NewRuntime(m.logger.With().Str("plugin", p.Name).Logger())
	stop := context.AfterFunc(execCtx, func() {
		runtime.VM().Interrupt(execCtx.Err())
	})
	defer stop()

	caller := &handlerCaller{ctx: execCtx, chain: c, next: next}
	result, err := m.run(runtime, p, params, caller)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.logger.Warn().
				Str("method", method).
				Dur("timeout", m.timeout).
				Msg("plugin execution timed out")
			return nil, jsonrpc.NewError(CodePluginTimeout, "plugin execution timed out")
		}
		m.logger.Error().
			Err(err).
			Str("plugin", p.Name).
			Msg("plugin execution failed")
		return nil, executionError(err.Error())
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, fmt.Sprintf("failed to marshal result: %v", err))
	}
	return raw, nil
}

func (m *Manager) run(runtime *Runtime, p *Plugin, params interface{}, caller upstreamCaller) (interface{}, error) {
	if _, err := runtime.RunScript(p.Script); err != nil {
		return nil, fmt.Errorf("script error: %w", err)
	}

	value, err := runtime.CallFunction("execute", params, runtime.setupUpstream(caller))
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, err
		}
		var jsErr *goja.Exception
		if errors.As(err, &jsErr) {
			return nil, errors.New(jsErr.String())
		}
		return nil, err
	}
	return value.Export(), nil
}

// Close drops every plugin
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = make(map[string]*Plugin)
}

// handlerCaller sends plugin upstream calls to the next handler.
// The calls of one BatchCall run concurrently in a batch scope of the chain.
type handlerCaller struct {
	ctx   context.Context
	chain *chain.Chain
	next  chain.Handler
}

// Call implements upstreamCaller
func (h *handlerCaller) Call(method string, params []interface{}) (interface{}, error) {
	var raw json.RawMessage
	if err := h.next(h.ctx, &raw, method, params...); err != nil {
		return nil, err
	}
	return decodePlain(raw)
}

// BatchCall implements upstreamCaller. A failed element becomes an
// {"error": {"code", "message"}} object instead of failing the whole call.
func (h *handlerCaller) BatchCall(calls []CallRequest) ([]interface{}, error) {
	if len(calls) == 0 {
		return []interface{}{}, nil
	}

	results := make([]interface{}, len(calls))
	run := func(ctx context.Context) error {
		var g errgroup.Group
		for i, call := range calls {
			i, call := i, call
			g.Go(func() error {
				var raw json.RawMessage
				if err := h.next(ctx, &raw, call.Method, call.Params...); err != nil {
					if ctx.Err() != nil {
						return err
					}
					results[i] = elementError(err)
					return nil
				}
				v, err := decodePlain(raw)
				if err != nil {
					return err
				}
				results[i] = v
				return nil
			})
		}
		return g.Wait()
	}

	if h.chain == nil || h.chain.InBatch(h.ctx) {
		return results, run(h.ctx)
	}
	return results, h.chain.WithBatch(h.ctx, batcher.Options{}, run)
}

func elementError(err error) map[string]interface{} {
	code, ok := jsonrpc.ErrorCode(err)
	if !ok {
		code = jsonrpc.CodeInternalError
	}
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": err.Error(),
		},
	}
}

func plainJSON(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodePlain(raw)
}

func decodePlain(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
