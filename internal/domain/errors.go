package domain

import "errors"

// ErrInvalidCandle is returned when a candle violates the OHLCV invariants.
var ErrInvalidCandle = errors.New("invalid candle")
