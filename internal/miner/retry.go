package miner

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"

	"cryptoSniper/internal/ports"
)

// RetryPolicy controls how a single page fetch is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether an error is transient. Nil means DefaultRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries transient exchange failures five times starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Retryable:   DefaultRetryable,
	}
}

// DefaultRetryable treats rate limiting, exchange outages, connection failures and timeouts as transient.
// An open circuit breaker is not retried: the breaker already decided the source is down.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ports.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ports.ErrRateLimited) ||
		errors.Is(err, ports.ErrExchangeUnavailable) ||
		errors.Is(err, ports.ErrConnectionFailed) ||
		errors.Is(err, ports.ErrTimeout)
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Retryable == nil {
		p.Retryable = DefaultRetryable
	}
	return p
}

// Do runs op until it succeeds, returns a non-retryable error, or MaxAttempts is reached.
// onRetry, when set, is called before each wait. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error, onRetry func(attempt int, err error, wait time.Duration)) (int, error) {
	p = p.normalized()
	b := &backoff.Backoff{
		Min:    p.BaseDelay,
		Max:    p.MaxDelay,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt - 1, ctxErr
		}
		err = op(ctx)
		if err == nil {
			return attempt, nil
		}
		if !p.Retryable(err) || attempt == p.MaxAttempts {
			return attempt, err
		}

		wait := b.ForAttempt(float64(attempt - 1))
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return p.MaxAttempts, err
}
