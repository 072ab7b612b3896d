package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"w3ext/internal/cache"
)

// LoggingMiddleware logs every call with its duration
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, result interface{}, method string, args ...interface{}) error {
			started := time.Now()
			err := next(ctx, result, method, args...)
			if err != nil {
				logger.Debug().
					Err(err).
					Str("method", method).
					Dur("duration", time.Since(started)).
					Msg("rpc call failed")
				return err
			}
			logger.Debug().
				Str("method", method).
				Dur("duration", time.Since(started)).
				Msg("rpc call")
			return nil
		}
	}
}

// CacheMiddleware serves calls the policy marks cacheable from c.
// Keys are scoped, so one cache can be shared by several chains.
func CacheMiddleware(c cache.Cache[json.RawMessage], policy *cache.Policy, scope string) Middleware {
	if policy == nil {
		policy = cache.NewPolicy(nil)
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, result interface{}, method string, args ...interface{}) error {
			if args == nil {
				args = []interface{}{}
			}
			params, err := json.Marshal(args)
			if err != nil || !policy.IsCacheable(method, params) {
				return next(ctx, result, method, args...)
			}

			key := cache.GenerateCacheKey(scope, method, params)
			if raw, ok := c.Get(key); ok {
				return decodeInto(raw, result)
			}

			var raw json.RawMessage
			if err := next(ctx, &raw, method, args...); err != nil {
				return err
			}
			if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
				c.Set(key, raw)
			}
			return decodeInto(raw, result)
		}
	}
}

func decodeInto(raw json.RawMessage, result interface{}) error {
	if result == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, result)
}
