package indicators

import "math"

// MACDConfig holds the three MACD periods.
type MACDConfig struct {
	Fast   int
	Slow   int
	Signal int
}

// DefaultMACDConfig returns the classic 12/26/9 setup.
func DefaultMACDConfig() MACDConfig {
	return MACDConfig{Fast: 12, Slow: 26, Signal: 9}
}

// MACDResult holds the aligned MACD line, signal line and histogram.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the moving average convergence divergence of closes.
type MACD struct {
	config MACDConfig
}

// NewMACD creates a MACD indicator.
func NewMACD(config MACDConfig) *MACD {
	return &MACD{config: config}
}

// Compute returns every MACD component for a price series.
func (m *MACD) Compute(closes []float64) MACDResult {
	fast := EMA(closes, m.config.Fast)
	slow := EMA(closes, m.config.Slow)
	line := nanSeries(len(closes))
	for i := range closes {
		if !math.IsNaN(fast[i]) && !math.IsNaN(slow[i]) {
			line[i] = fast[i] - slow[i]
		}
	}
	signal := EMA(line, m.config.Signal)
	hist := nanSeries(len(closes))
	for i := range closes {
		if !math.IsNaN(line[i]) && !math.IsNaN(signal[i]) {
			hist[i] = line[i] - signal[i]
		}
	}
	return MACDResult{Line: line, Signal: signal, Histogram: hist}
}
