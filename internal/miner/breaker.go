package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/ports"
)

// BreakerConfig configures the circuit breaker around a candle source.
type BreakerConfig struct {
	Name string
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a probe through.
	OpenTimeout time.Duration
	Logger      ports.Logger
}

// BreakerSource wraps a CandleSource with a circuit breaker.
type BreakerSource struct {
	next   ports.CandleSource
	cb     *gobreaker.CircuitBreaker
	logger ports.Logger
}

var _ ports.CandleSource = (*BreakerSource)(nil)

// NewBreakerSource decorates next with a gobreaker circuit breaker.
func NewBreakerSource(next ports.CandleSource, cfg BreakerConfig) (*BreakerSource, error) {
	if next == nil {
		return nil, errors.New("candle source is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required for breaker source")
	}
	if cfg.Name == "" {
		cfg.Name = "candle-source"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	s := &BreakerSource{next: next, logger: cfg.Logger}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Warn(context.Background(), "Candle source circuit breaker changed state", map[string]interface{}{
				"breaker": name, "from": from.String(), "to": to.String(),
			})
		},
		// Caller mistakes and cancellations say nothing about the source's health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ports.ErrInvalidRequest) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, ports.ErrContextCanceled)
		},
	})
	return s, nil
}

// FetchPage forwards to the wrapped source unless the breaker is open.
func (s *BreakerSource) FetchPage(ctx context.Context, req ports.PageRequest) ([]domain.Candle, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.FetchPage(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("FetchPage failed: %w: %w", ports.ErrCircuitOpen, err)
		}
		return nil, err
	}
	page, _ := out.([]domain.Candle)
	return page, nil
}

// State returns the breaker's current state name.
func (s *BreakerSource) State() string {
	return s.cb.State().String()
}
