package stationarity

import (
	"context"
	"fmt"
	"math"

	"cryptoSniper/internal/ports"
)

const (
	// DefaultSignificance is the p-value below which the unit-root null is rejected.
	DefaultSignificance = 0.05
	// MinObservations is the shortest series the test accepts.
	MinObservations = 20
)

// Config holds the ADF test parameters.
type Config struct {
	Significance float64
	MaxLags      int // 0 means Schwert's rule
	Selection    LagSelection
}

// DefaultConfig returns a 5% test with AIC lag selection.
func DefaultConfig() Config {
	return Config{Significance: DefaultSignificance, Selection: LagAIC}
}

// Result is the outcome of one augmented Dickey-Fuller test.
type Result struct {
	IsStationary   bool
	PValue         float64
	Statistic      float64
	Lags           int
	NObs           int
	CriticalValues map[string]float64
}

// Comparison contrasts the raw close series with its first log-difference.
type Comparison struct {
	Raw     Result
	LogDiff Result
}

// Validator runs unit-root tests.
type Validator struct {
	cfg    Config
	logger ports.Logger
}

// NewValidator creates a Validator.
func NewValidator(cfg Config, logger ports.Logger) (*Validator, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.Significance <= 0 || cfg.Significance >= 1 {
		return nil, fmt.Errorf("%w: significance must be in (0,1), got %f", ports.ErrConfigurationError, cfg.Significance)
	}
	if cfg.MaxLags < 0 {
		return nil, fmt.Errorf("%w: max lags must not be negative", ports.ErrConfigurationError)
	}
	switch cfg.Selection {
	case "":
		cfg.Selection = LagAIC
	case LagAIC, LagFixed:
	default:
		return nil, fmt.Errorf("%w: unknown lag selection %q", ports.ErrConfigurationError, cfg.Selection)
	}
	return &Validator{cfg: cfg, logger: logger}, nil
}

// Significance returns the configured test level.
func (v *Validator) Significance() float64 { return v.cfg.Significance }

// Test runs the ADF test with a constant on series.
// IsStationary is true when the p-value is below the significance level.
func (v *Validator) Test(series []float64) (Result, error) {
	n := len(series)
	if n < MinObservations {
		return Result{}, fmt.Errorf("%w: ADF needs at least %d observations, got %d", ports.ErrInsufficientData, MinObservations, n)
	}
	for i, x := range series {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Result{}, fmt.Errorf("%w: non-finite value at index %d", ports.ErrInvalidRequest, i)
		}
	}

	y := normalize(series)
	maxLag := schwertLags(n)
	if v.cfg.MaxLags > 0 && v.cfg.MaxLags < maxLag {
		maxLag = v.cfg.MaxLags
	}
	// Leave enough rows for the regression.
	if limit := n/2 - 3; maxLag > limit {
		maxLag = limit
	}
	if maxLag < 0 {
		maxLag = 0
	}

	lags := maxLag
	if v.cfg.Selection == LagAIC && maxLag > 0 {
		best := math.Inf(1)
		for p := 0; p <= maxLag; p++ {
			fit, err := adfRegress(y, p, maxLag)
			if err != nil {
				continue
			}
			if a := fit.aic(); a < best {
				best = a
				lags = p
			}
		}
	}

	fit, err := adfRegress(y, lags, lags)
	if err != nil {
		return Result{}, fmt.Errorf("ADF regression failed: %w", err)
	}
	p := MacKinnonPValue(fit.stat)
	return Result{
		IsStationary:   p < v.cfg.Significance,
		PValue:         p,
		Statistic:      fit.stat,
		Lags:           lags,
		NObs:           fit.nobs,
		CriticalValues: CriticalValues(fit.nobs),
	}, nil
}

// Compare tests the raw close series and its first log-difference.
func (v *Validator) Compare(ctx context.Context, closes []float64) (Comparison, error) {
	raw, err := v.Test(closes)
	if err != nil {
		return Comparison{}, fmt.Errorf("raw close series: %w", err)
	}
	diffs, err := LogDiff(closes)
	if err != nil {
		return Comparison{}, err
	}
	ld, err := v.Test(diffs)
	if err != nil {
		return Comparison{}, fmt.Errorf("log-differenced series: %w", err)
	}

	v.logger.Info(ctx, "Stationarity comparison", map[string]interface{}{
		"rawPValue": raw.PValue, "rawStationary": raw.IsStationary,
		"logDiffPValue": ld.PValue, "logDiffStationary": ld.IsStationary,
	})
	return Comparison{Raw: raw, LogDiff: ld}, nil
}

// LogDiff returns ln(x_t) - ln(x_{t-1}); the result is one element shorter than series.
func LogDiff(series []float64) ([]float64, error) {
	if len(series) < 2 {
		return nil, fmt.Errorf("%w: log-difference needs at least 2 values", ports.ErrInsufficientData)
	}
	out := make([]float64, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i] <= 0 || series[i-1] <= 0 {
			return nil, fmt.Errorf("%w: non-positive value at index %d", ports.ErrInvalidRequest, i)
		}
		out[i-1] = math.Log(series[i] / series[i-1])
	}
	return out, nil
}
