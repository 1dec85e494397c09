package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig configures retry behavior with exponential backoff
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first (default: 3)
	BaseDelay   time.Duration // Delay before the first retry (default: 1s)
	MaxDelay    time.Duration // Cap on a single delay (default: 30s)
	Multiplier  float64       // Backoff multiplier (default: 2.0)
	Jitter      bool          // Add up to ±10% random jitter

	// RetryIf decides whether an error is worth another attempt; nil retries every error
	RetryIf func(error) bool
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
	Success       bool
}

// DefaultRetryConfig returns the backoff used for platform calls
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// LLMRetryConfig returns the backoff used for LLM requests
func LLMRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Do executes operation until it succeeds, attempts run out, or ctx is done
func Do(ctx context.Context, config RetryConfig, logger zerolog.Logger, operation func(ctx context.Context) error) RetryResult {
	startTime := time.Now()
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result RetryResult
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result.Attempts = attempt + 1

		err := operation(ctx)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(startTime)
			if attempt > 0 {
				logger.Debug().Int("attempts", result.Attempts).Dur("total", result.TotalDuration).Msg("operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if attempt == maxAttempts-1 {
			break
		}
		if config.RetryIf != nil && !config.RetryIf(err) {
			logger.Debug().Err(err).Msg("error is not retryable")
			break
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			break
		}

		delay := calculateDelay(config, attempt)
		logger.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Dur("backoff", delay).
			Msg("operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		case <-timer.C:
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// Value runs a value-returning operation under Do
func Value[T any](ctx context.Context, config RetryConfig, logger zerolog.Logger, operation func(ctx context.Context) (T, error)) (T, RetryResult) {
	var value T
	result := Do(ctx, config, logger, func(ctx context.Context) error {
		v, err := operation(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, result
}

// calculateDelay returns baseDelay * multiplier^attempt, capped at MaxDelay
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	multiplier := config.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := float64(config.BaseDelay) * math.Pow(multiplier, float64(attempt))

	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// StatusError is implemented by errors that carry an HTTP status code
type StatusError interface {
	error
	HTTPStatus() int
}

// IsRetryableError reports whether err looks transient
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatus()
		return code == 429 || code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"no such host",
		"broken pipe",
		"eof",
	}
	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}

	return false
}

// IsRetryableWriteError reports whether a failed write can be sent again
// without risking a duplicate: only 429 and 5xx answers qualify, since a
// timeout or dropped connection may hide a write that went through.
func IsRetryableWriteError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatus()
		return code == 429 || code >= 500
	}
	return false
}
