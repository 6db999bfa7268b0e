package indicators

import "math"

// WilderRSI computes RSI for a price series; the first defined value is at index period.
func WilderRSI(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	// Calculate initial average gain and loss
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	// Calculate smoothed average gain and loss using Wilder's smoothing
	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain = (avgGain*(p-1) + change) / p
			avgLoss = (avgLoss * (p - 1)) / p
		} else {
			avgGain = (avgGain * (p - 1)) / p
			avgLoss = (avgLoss*(p-1) - change) / p
		}
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	// Handle edge cases
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50 // Neutral if no change
		}
		return 100 // Max RSI if only gains
	}
	rs := avgGain / avgLoss
	return math.Max(0, math.Min(100, 100-(100/(1+rs))))
}
