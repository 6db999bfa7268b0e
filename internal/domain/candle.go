package domain

import (
	"fmt"
	"math"
	"time"
)

// Candle represents a single hourly OHLCV record. OpenTime is the identity key.
type Candle struct {
	OpenTime time.Time // Start of the granule, UTC
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Validate checks the OHLC invariants of a candle.
func (c Candle) Validate() error {
	fields := [...]struct {
		name string
		v    float64
	}{{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}, {"volume", c.Volume}}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v <= 0 {
			return fmt.Errorf("%w: %s=%v at %s", ErrInvalidCandle, f.name, f.v, c.OpenTime.Format(time.RFC3339))
		}
	}
	if c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) || c.Low > c.High {
		return fmt.Errorf("%w: inconsistent range o=%v h=%v l=%v c=%v at %s",
			ErrInvalidCandle, c.Open, c.High, c.Low, c.Close, c.OpenTime.Format(time.RFC3339))
	}
	return nil
}
