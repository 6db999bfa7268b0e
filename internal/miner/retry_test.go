package miner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSniper/internal/ports"
)

func TestDefaultRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", ports.ErrRateLimited, true},
		{"wrapped unavailable", fmt.Errorf("FetchPage failed: %w: boom", ports.ErrExchangeUnavailable), true},
		{"connection", ports.ErrConnectionFailed, true},
		{"timeout", ports.ErrTimeout, true},
		{"auth", ports.ErrAuthenticationFailed, false},
		{"invalid request", ports.ErrInvalidRequest, false},
		{"circuit open", fmt.Errorf("%w: %w", ports.ErrCircuitOpen, ports.ErrExchangeUnavailable), false},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryable(tt.err))
		})
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls, retries := 0, 0
		attempts, err := fastRetry(4).Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return ports.ErrTimeout
			}
			return nil
		}, func(attempt int, err error, wait time.Duration) {
			retries++
			assert.LessOrEqual(t, wait, 2*time.Millisecond)
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 2, retries)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		attempts, err := fastRetry(3).Do(context.Background(), func(ctx context.Context) error {
			return ports.ErrRateLimited
		}, nil)
		assert.ErrorIs(t, err, ports.ErrRateLimited)
		assert.Equal(t, 3, attempts)
	})

	t.Run("custom retryable", func(t *testing.T) {
		sentinel := errors.New("flaky")
		p := fastRetry(2)
		p.Retryable = func(err error) bool { return errors.Is(err, sentinel) }
		attempts, err := p.Do(context.Background(), func(ctx context.Context) error { return sentinel }, nil)
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 2, attempts)
	})

	t.Run("stops on canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
		attempts, err := p.Do(ctx, func(ctx context.Context) error {
			cancel()
			return ports.ErrRateLimited
		}, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}
