package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatus() int { return e.code }

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), zerolog.Nop(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.NoError(t, result.LastError)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	result := Do(context.Background(), fastConfig(), zerolog.Nop(), func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.ErrorIs(t, result.LastError, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_RetryIfStopsEarly(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryIf = IsRetryableError

	calls := 0
	result := Do(context.Background(), cfg, zerolog.Nop(), func(ctx context.Context) error {
		calls++
		return &statusErr{code: 400}
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	cfg := fastConfig()
	cfg.BaseDelay = time.Hour
	cfg.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := Do(ctx, cfg, zerolog.Nop(), func(ctx context.Context) error {
		calls++
		return errors.New("timeout")
	})

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.LastError, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestValue(t *testing.T) {
	calls := 0
	v, result := Value(context.Background(), fastConfig(), zerolog.Nop(), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("eof")
		}
		return "ok", nil
	})

	require.True(t, result.Success)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, result.Attempts)
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2.0}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateDelay(cfg, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestCalculateDelay_Jitter(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2.0, Jitter: true}
	for i := 0; i < 50; i++ {
		d := calculateDelay(cfg, 1)
		assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"429", &statusErr{code: 429}, true},
		{"503", &statusErr{code: 503}, true},
		{"404", &statusErr{code: 404}, false},
		{"wrapped 502", fmt.Errorf("search: %w", &statusErr{code: 502}), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"bad json", errors.New("invalid character 'x'"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestIsRetryableWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &statusErr{code: 429}, true},
		{"wrapped 503", fmt.Errorf("post: %w", &statusErr{code: 503}), true},
		{"400", &statusErr{code: 400}, false},
		{"deadline", context.DeadlineExceeded, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableWriteError(tt.err))
		})
	}
}
