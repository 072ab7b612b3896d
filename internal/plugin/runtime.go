package plugin

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/dop251/goja"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"w3ext/internal/currency"
)

// upstreamCaller performs the calls a plugin makes through the upstream object
type upstreamCaller interface {
	Call(method string, params []interface{}) (interface{}, error)
	BatchCall(calls []CallRequest) ([]interface{}, error)
}

// Runtime wraps a goja VM with the plugin bindings.
// A Runtime is used by one execution at a time.
type Runtime struct {
	vm     *goja.Runtime
	logger zerolog.Logger
}

// NewRuntime creates a new Runtime with console and utils bound
func NewRuntime(logger zerolog.Logger) *Runtime {
	r := &Runtime{
		vm:     goja.New(),
		logger: logger,
	}
	r.setupConsole()
	r.setupUtils()
	return r
}

// VM returns the underlying goja runtime
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

// throw raises a JavaScript exception from a Go binding
func (r *Runtime) throw(format string, args ...interface{}) {
	panic(r.vm.ToValue(fmt.Sprintf(format, args...)))
}

func (r *Runtime) setupConsole() {
	console := r.vm.NewObject()
	levels := map[string]zerolog.Level{
		"log":   zerolog.InfoLevel,
		"error": zerolog.ErrorLevel,
		"warn":  zerolog.WarnLevel,
		"debug": zerolog.DebugLevel,
	}
	for name, level := range levels {
		name, level := name, level
		_ = console.Set(name, func(call goja.FunctionCall) goja.Value {
			args := make([]interface{}, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.Export()
			}
			r.logger.WithLevel(level).Msgf("[plugin] %v", args)
			return goja.Undefined()
		})
	}
	_ = r.vm.Set("console", console)
}

func (r *Runtime) setupUtils() {
	utils := r.vm.NewObject()

	_ = utils.Set("hexToBytes", func(s string) []byte {
		b, err := hexutil.Decode(with0x(s))
		if err != nil {
			r.throw("invalid hex string: %v", err)
		}
		return b
	})

	_ = utils.Set("bytesToHex", func(v goja.Value) string {
		return hexutil.Encode(r.bytes(v))
	})

	// strings without 0x are hashed as text
	_ = utils.Set("keccak256", func(v goja.Value) string {
		return hexutil.Encode(crypto.Keccak256(r.bytes(v)))
	})

	_ = utils.Set("getFunctionSelector", func(signature string) string {
		return hexutil.Encode(crypto.Keccak256([]byte(signature))[:4])
	})

	_ = utils.Set("encodeAddress", func(s string) string {
		if !common.IsHexAddress(s) {
			r.throw("invalid address %q", s)
		}
		return hexutil.Encode(common.LeftPadBytes(common.HexToAddress(s).Bytes(), 32))
	})

	_ = utils.Set("encodeUint256", func(v goja.Value) string {
		n := r.bigInt(v)
		if n.Sign() < 0 || n.BitLen() > 256 {
			r.throw("%s does not fit uint256", n)
		}
		return hexutil.Encode(math.U256Bytes(n))
	})

	_ = utils.Set("parseJSON", func(s string) interface{} {
		var result interface{}
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			r.throw("invalid JSON: %v", err)
		}
		return result
	})

	_ = utils.Set("stringifyJSON", func(v goja.Value) string {
		data, err := json.Marshal(v.Export())
		if err != nil {
			r.throw("JSON stringify error: %v", err)
		}
		return string(data)
	})

	_ = r.vm.Set("utils", utils)
}

// setupUpstream binds the upstream object passed to execute
func (r *Runtime) setupUpstream(caller upstreamCaller) goja.Value {
	upstream := r.vm.NewObject()

	_ = upstream.Set("call", func(method string, params goja.Value) interface{} {
		result, err := caller.Call(method, r.params(params))
		if err != nil {
			r.throw("upstream call failed: %v", err)
		}
		return result
	})

	_ = upstream.Set("batchCall", func(v goja.Value) []interface{} {
		list, ok := v.Export().([]interface{})
		if !ok {
			r.throw("upstream.batchCall requires array")
		}
		calls := make([]CallRequest, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]interface{})
			if !ok {
				r.throw("each call must be object with method and params")
			}
			method, _ := m["method"].(string)
			params, _ := m["params"].([]interface{})
			calls = append(calls, CallRequest{Method: method, Params: params})
		}

		results, err := caller.BatchCall(calls)
		if err != nil {
			r.throw("upstream batch call failed: %v", err)
		}
		return results
	})

	return upstream
}

// RunScript executes JavaScript code and returns the result
func (r *Runtime) RunScript(script string) (goja.Value, error) {
	return r.vm.RunString(script)
}

// CallFunction calls a global JavaScript function by name
func (r *Runtime) CallFunction(name string, args ...interface{}) (goja.Value, error) {
	fn, ok := goja.AssertFunction(r.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("function %s not found", name)
	}

	jsArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		if v, ok := arg.(goja.Value); ok {
			jsArgs[i] = v
			continue
		}
		jsArgs[i] = r.vm.ToValue(arg)
	}
	return fn(goja.Undefined(), jsArgs...)
}

func (r *Runtime) params(v goja.Value) []interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return []interface{}{}
	}
	params, ok := v.Export().([]interface{})
	if !ok {
		r.throw("params must be an array")
	}
	return params
}

// bytes reads a 0x hex string, a text string or a byte array
func (r *Runtime) bytes(v goja.Value) []byte {
	switch x := v.Export().(type) {
	case string:
		if strings.HasPrefix(x, "0x") {
			b, err := hexutil.Decode(x)
			if err != nil {
				r.throw("invalid hex string: %v", err)
			}
			return b
		}
		return []byte(x)
	case []byte:
		return x
	case []interface{}:
		b := make([]byte, len(x))
		for i, item := range x {
			switch n := item.(type) {
			case int64:
				b[i] = byte(n)
			case float64:
				b[i] = byte(n)
			default:
				r.throw("byte %d is not a number", i)
			}
		}
		return b
	default:
		r.throw("expected string or byte array, got %T", x)
		return nil
	}
}

func (r *Runtime) bigInt(v goja.Value) *big.Int {
	switch x := v.Export().(type) {
	case int64:
		return big.NewInt(x)
	case float64:
		return big.NewInt(int64(x))
	case string:
		n, ok := currency.ParseInt(x)
		if !ok {
			r.throw("invalid number %q", x)
		}
		return n
	default:
		r.throw("expected number or string, got %T", x)
		return nil
	}
}

func with0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
