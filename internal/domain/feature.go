package domain

import "time"

// FeatureRow is the engineered view of one eligible candle.
// Values are aligned with the names of the FeatureSet that produced them.
type FeatureRow struct {
	OpenTime      time.Time
	Values        []float64
	Label         Label
	ForwardReturn float64 // (close[t+1]-close[t])/close[t]; zero for unlabeled rows
	Threshold     float64 // volatility-scaled BUY threshold used for the label
}

// FeatureStat holds the training-time distribution of a single feature.
type FeatureStat struct {
	Name   string
	Mean   float64
	StdDev float64
}

// ZScore returns the standardized value, or 0 when the feature had no spread.
func (s FeatureStat) ZScore(v float64) float64 {
	if s.StdDev == 0 {
		return 0
	}
	return (v - s.Mean) / s.StdDev
}
