// Package middleware composes cross-cutting behavior around external calls
package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/heurist-network/reply-bridge/internal/metrics"
	"github.com/heurist-network/reply-bridge/internal/retry"
)

// Func is a single-argument call to an external service
type Func[A, R any] func(ctx context.Context, arg A) (R, error)

// Chain applies wrappers so that the first one is the outermost
func Chain[A, R any](fn Func[A, R], wrappers ...func(Func[A, R]) Func[A, R]) Func[A, R] {
	for i := len(wrappers) - 1; i >= 0; i-- {
		fn = wrappers[i](fn)
	}
	return fn
}

// Retry retries fn with exponential backoff
func Retry[A, R any](cfg retry.RetryConfig, logger zerolog.Logger) func(Func[A, R]) Func[A, R] {
	return func(fn Func[A, R]) Func[A, R] {
		return func(ctx context.Context, arg A) (R, error) {
			v, result := retry.Value(ctx, cfg, logger, func(ctx context.Context) (R, error) {
				return fn(ctx, arg)
			})
			if !result.Success {
				var zero R
				return zero, fmt.Errorf("failed after %d attempts: %w", result.Attempts, result.LastError)
			}
			return v, nil
		}
	}
}

// Cached memoizes successful results for ttl, keyed by name and argument
func Cached[A, R any](name string, size int, ttl time.Duration) func(Func[A, R]) Func[A, R] {
	return func(fn Func[A, R]) Func[A, R] {
		cache := expirable.NewLRU[string, R](size, nil, ttl)
		return func(ctx context.Context, arg A) (R, error) {
			key := fmt.Sprintf("%s:%v", name, arg)
			if v, ok := cache.Get(key); ok {
				return v, nil
			}
			v, err := fn(ctx, arg)
			if err != nil {
				return v, err
			}
			cache.Add(key, v)
			return v, nil
		}
	}
}

// Timed logs and records the duration of each call
func Timed[A, R any](name string, logger zerolog.Logger) func(Func[A, R]) Func[A, R] {
	return func(fn Func[A, R]) Func[A, R] {
		return func(ctx context.Context, arg A) (R, error) {
			start := time.Now()
			v, err := fn(ctx, arg)
			elapsed := time.Since(start)

			status := "ok"
			if err != nil {
				status = "error"
			}
			metrics.CallDuration.WithLabelValues(name, status).Observe(elapsed.Seconds())
			logger.Debug().Str("call", name).Dur("elapsed", elapsed).Str("status", status).Msg("call finished")
			return v, err
		}
	}
}
