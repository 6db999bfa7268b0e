package validation

import (
	"fmt"
	"sort"
	"strings"

	"cryptoSniper/internal/ports"
)

// Confusion is a binary confusion matrix with BUY as the positive class.
type Confusion struct {
	TP int
	FP int
	TN int
	FN int
}

// NewConfusion compares labels with thresholded probabilities. A row is predicted BUY
// when its probability is above threshold.
func NewConfusion(labels []int, probs []float64, threshold float64) Confusion {
	var c Confusion
	for i, y := range labels {
		pred := probs[i] > threshold
		switch {
		case pred && y == 1:
			c.TP++
		case pred && y == 0:
			c.FP++
		case !pred && y == 0:
			c.TN++
		default:
			c.FN++
		}
	}
	return c
}

// Total returns the number of scored rows.
func (c Confusion) Total() int { return c.TP + c.FP + c.TN + c.FN }

// Precision is TP/(TP+FP); 0 when nothing was predicted BUY.
func (c Confusion) Precision() float64 { return ratio(c.TP, c.TP+c.FP) }

// Recall is TP/(TP+FN).
func (c Confusion) Recall() float64 { return ratio(c.TP, c.TP+c.FN) }

// Specificity is TN/(TN+FP).
func (c Confusion) Specificity() float64 { return ratio(c.TN, c.TN+c.FP) }

// Accuracy is the share of correct predictions.
func (c Confusion) Accuracy() float64 { return ratio(c.TP+c.TN, c.Total()) }

// FBeta weighs recall beta times as much as precision.
func (c Confusion) FBeta(beta float64) float64 {
	p, r := c.Precision(), c.Recall()
	b2 := beta * beta
	if p == 0 && r == 0 {
		return 0
	}
	return (1 + b2) * p * r / (b2*p + r)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Scorer maps a confusion matrix to a score where higher is better.
type Scorer func(Confusion) float64

// DefaultMetric penalises false BUY predictions hardest.
const DefaultMetric = "precision"

var scorers = map[string]Scorer{
	"precision":         Confusion.Precision,
	"f0.5":              func(c Confusion) float64 { return c.FBeta(0.5) },
	"f1":                func(c Confusion) float64 { return c.FBeta(1) },
	"accuracy":          Confusion.Accuracy,
	"balanced_accuracy": func(c Confusion) float64 { return (c.Recall() + c.Specificity()) / 2 },
}

// ScorerByName looks up a named scoring metric.
func ScorerByName(name string) (Scorer, error) {
	s, ok := scorers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown scoring metric %q (available: %s)",
			ports.ErrConfigurationError, name, strings.Join(MetricNames(), ", "))
	}
	return s, nil
}

// MetricNames lists the available metrics.
func MetricNames() []string {
	names := make([]string, 0, len(scorers))
	for n := range scorers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
