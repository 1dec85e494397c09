package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heurist-network/reply-bridge/internal/retry"
)

func counting(results ...error) (Func[string, string], *int) {
	calls := 0
	return func(ctx context.Context, arg string) (string, error) {
		i := calls
		calls++
		if i < len(results) && results[i] != nil {
			return "", results[i]
		}
		return "v:" + arg, nil
	}, &calls
}

func TestCached_HitsAndExpiry(t *testing.T) {
	fn, calls := counting()
	cached := Cached[string, string]("lookup", 10, 50*time.Millisecond)(fn)

	v, err := cached(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "v:a", v)

	_, _ = cached(context.Background(), "a")
	assert.Equal(t, 1, *calls, "second call should be served from cache")

	_, _ = cached(context.Background(), "b")
	assert.Equal(t, 2, *calls, "different argument is a different key")

	time.Sleep(120 * time.Millisecond)
	_, _ = cached(context.Background(), "a")
	assert.Equal(t, 3, *calls, "entry should expire after ttl")
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	fn, calls := counting(errors.New("down"))
	cached := Cached[string, string]("lookup", 10, time.Minute)(fn)

	_, err := cached(context.Background(), "a")
	require.Error(t, err)

	v, err := cached(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "v:a", v)
	assert.Equal(t, 2, *calls)
}

func TestRetry_WrapsFinalError(t *testing.T) {
	boom := errors.New("boom")
	fn, calls := counting(boom, boom, boom, boom)
	cfg := retry.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}

	_, err := Retry[string, string](cfg, zerolog.Nop())(fn)(context.Background(), "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, *calls)
}

func TestChain_OrderAndTiming(t *testing.T) {
	fn, calls := counting(errors.New("flaky"))
	cfg := retry.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}

	wrapped := Chain(fn,
		Timed[string, string]("host", zerolog.Nop()),
		Cached[string, string]("host", 10, time.Minute),
		Retry[string, string](cfg, zerolog.Nop()),
	)

	v, err := wrapped(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "v:x", v)
	assert.Equal(t, 2, *calls)

	_, err = wrapped(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 2, *calls, "cache sits outside retry")
}
