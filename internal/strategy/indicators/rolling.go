package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RollingMean is the trailing mean over period values; windows with NaN are NaN.
func RollingMean(values []float64, period int) []float64 {
	return SMA(values, period)
}

// RollingStd is the trailing sample standard deviation over period values.
func RollingStd(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period < 2 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		w := values[i-period+1 : i+1]
		if hasNaN(w) {
			continue
		}
		out[i] = stat.StdDev(w, nil)
	}
	return out
}

// RollingZScore is (v - rolling mean) / rolling std. A flat window scores 0.
func RollingZScore(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period < 2 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		w := values[i-period+1 : i+1]
		if hasNaN(w) {
			continue
		}
		mean, std := stat.MeanStdDev(w, nil)
		if std == 0 {
			out[i] = 0
			continue
		}
		out[i] = (values[i] - mean) / std
	}
	return out
}

// RollingCorrelation is the trailing Pearson correlation of x and y. Flat windows score 0.
func RollingCorrelation(x, y []float64, period int) []float64 {
	out := nanSeries(len(x))
	if period < 2 || len(x) != len(y) {
		return out
	}
	for i := period - 1; i < len(x); i++ {
		wx, wy := x[i-period+1:i+1], y[i-period+1:i+1]
		if hasNaN(wx) || hasNaN(wy) {
			continue
		}
		if stat.Variance(wx, nil) == 0 || stat.Variance(wy, nil) == 0 {
			out[i] = 0
			continue
		}
		out[i] = stat.Correlation(wx, wy, nil)
	}
	return out
}

// LogReturns returns ln(v[i]/v[i-1]); the first value is NaN.
func LogReturns(values []float64) []float64 {
	out := nanSeries(len(values))
	for i := 1; i < len(values); i++ {
		if values[i] > 0 && values[i-1] > 0 {
			out[i] = math.Log(values[i] / values[i-1])
		}
	}
	return out
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
