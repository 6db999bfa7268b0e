package ports

import (
	"errors"
	"fmt"
	"time"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market data source errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrCircuitOpen          = errors.New("market data circuit breaker is open")

	// Pipeline errors
	ErrDataAcquisition    = errors.New("data acquisition failed")
	ErrDataIntegrity      = errors.New("candle store integrity violated")
	ErrInsufficientSignal = errors.New("insufficient BUY signal to score any fold")
	ErrStationarityPolicy = errors.New("stationarity policy violation")
	ErrInsufficientData   = errors.New("not enough data")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)

// DataAcquisitionError reports a page window that could not be fetched after exhausting retries.
// The candles merged before the failure are kept by the caller.
type DataAcquisitionError struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Attempts    int
	Err         error
}

func (e *DataAcquisitionError) Error() string {
	return fmt.Sprintf("fetching window %s..%s failed after %d attempt(s): %v",
		e.WindowStart.Format(time.RFC3339), e.WindowEnd.Format(time.RFC3339), e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *DataAcquisitionError) Unwrap() []error {
	return []error{ErrDataAcquisition, e.Err}
}

// DataIntegrityError is raised when missing candles exceed the tolerated fraction of the horizon.
type DataIntegrityError struct {
	Missing     int
	Expected    int
	MaxFraction float64
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("%d of %d expected candles missing (%.4f > max %.4f)",
		e.Missing, e.Expected, e.Fraction(), e.MaxFraction)
}

// Fraction returns the missing share of the expected candles.
func (e *DataIntegrityError) Fraction() float64 {
	if e.Expected == 0 {
		return 0
	}
	return float64(e.Missing) / float64(e.Expected)
}

func (e *DataIntegrityError) Unwrap() error { return ErrDataIntegrity }

// InsufficientSignalError is returned when no fold of any candidate could be scored.
type InsufficientSignalError struct {
	Folds        int
	MinPositives int
}

func (e *InsufficientSignalError) Error() string {
	return fmt.Sprintf("all %d folds skipped: fewer than %d BUY rows in every validation range", e.Folds, e.MinPositives)
}

func (e *InsufficientSignalError) Unwrap() error { return ErrInsufficientSignal }

// StationarityPolicyViolation is a configuration-time methodology error.
type StationarityPolicyViolation struct {
	Feature string
	Reason  string
	PValue  float64
}

func (e *StationarityPolicyViolation) Error() string {
	return fmt.Sprintf("feature %q rejected: %s (p=%.4f)", e.Feature, e.Reason, e.PValue)
}

func (e *StationarityPolicyViolation) Unwrap() error { return ErrStationarityPolicy }
