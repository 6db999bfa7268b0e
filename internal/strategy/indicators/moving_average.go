package indicators

import "math"

// SMA computes the simple moving average. Windows containing NaN are NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}
	total, valid := 0.0, 0
	for i, v := range values {
		if math.IsNaN(v) {
			valid = 0
			total = 0
			continue
		}
		total += v
		valid++
		if valid > period {
			total -= values[i-period]
			valid = period
		}
		if valid == period {
			out[i] = total / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average seeded with the SMA of the first
// period values after any leading NaNs.
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	start := firstValid(values)
	if period <= 0 || len(values)-start < period {
		return out
	}

	multiplier := 2.0 / float64(period+1)

	// Calculate initial SMA for the first 'period' values
	ema := 0.0
	for i := start; i < start+period; i++ {
		ema += values[i]
	}
	ema /= float64(period)
	out[start+period-1] = ema

	// Apply EMA formula for the rest of the values
	for i := start + period; i < len(values); i++ {
		if math.IsNaN(values[i]) {
			continue
		}
		ema = (values[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out
}
