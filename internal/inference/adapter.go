package inference

import (
	"context"
	"fmt"
	"math"
	"time"

	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/metrics"
	"cryptoSniper/internal/ports"
)

const (
	DefaultConfidenceThreshold = 0.65
	DefaultExtremeZ            = 1.5
	DefaultTopN                = 5
)

// Config holds the signal and explanation parameters.
type Config struct {
	ConfidenceThreshold float64 // BUY only when the probability is strictly above this
	ExtremeZ            float64 // minimum |z| against training stats for a feature to be explained
	TopN                int
}

// DefaultConfig returns the default WAIT-biased posture.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		ExtremeZ:            DefaultExtremeZ,
		TopN:                DefaultTopN,
	}
}

// Adapter applies a trained artifact to a single feature row.
type Adapter struct {
	cfg     Config
	logger  ports.Logger
	metrics *metrics.Registry
}

// NewAdapter creates a new Adapter instance.
func NewAdapter(cfg Config, logger ports.Logger, reg *metrics.Registry) (*Adapter, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for inference", ports.ErrConfigurationError)
	}
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold >= 1 {
		return nil, fmt.Errorf("%w: confidence threshold must be in (0,1), got %f", ports.ErrConfigurationError, cfg.ConfidenceThreshold)
	}
	if cfg.ExtremeZ < 0 {
		return nil, fmt.Errorf("%w: extreme z must not be negative, got %f", ports.ErrConfigurationError, cfg.ExtremeZ)
	}
	if cfg.TopN <= 0 {
		return nil, fmt.Errorf("%w: top N must be positive, got %d", ports.ErrConfigurationError, cfg.TopN)
	}
	return &Adapter{cfg: cfg, logger: logger, metrics: reg}, nil
}

// Signal scores row with the artifact's model.
func (a *Adapter) Signal(ctx context.Context, artifact *domain.ModelArtifact, row domain.FeatureRow) (domain.Signal, error) {
	if err := checkInputs(artifact, row); err != nil {
		return domain.Signal{}, err
	}

	probs := artifact.Model.PredictProba([][]float64{row.Values})
	if len(probs) != 1 || math.IsNaN(probs[0]) || probs[0] < 0 || probs[0] > 1 {
		return domain.Signal{}, fmt.Errorf("%w: model returned invalid probability %v", ports.ErrUnknown, probs)
	}
	p := probs[0]

	class := domain.ClassWait
	if p > a.cfg.ConfidenceThreshold {
		class = domain.ClassBuy
	}

	sig := domain.Signal{
		OpenTime:    row.OpenTime,
		Class:       class,
		Probability: p,
		Threshold:   a.cfg.ConfidenceThreshold,
		TopFeatures: a.TopFeatures(artifact, row),
		ModelID:     artifact.ID,
	}
	a.metrics.SignalProbability(p)

	fields := map[string]interface{}{
		"openTime":    row.OpenTime.Format(time.RFC3339),
		"class":       string(class),
		"probability": p,
		"threshold":   a.cfg.ConfidenceThreshold,
		"modelId":     artifact.ID,
		"explained":   len(sig.TopFeatures),
	}
	if sig.IsBuy() {
		a.logger.Info(ctx, "BUY signal", fields)
	} else {
		a.logger.Debug(ctx, "WAIT signal", fields)
	}
	return sig, nil
}

// TopFeatures walks the global importance ranking and keeps features whose value in row is
// extreme against the training distribution, up to TopN.
func (a *Adapter) TopFeatures(artifact *domain.ModelArtifact, row domain.FeatureRow) []domain.Contribution {
	index := make(map[string]int, len(artifact.FeatureNames))
	for i, name := range artifact.FeatureNames {
		index[name] = i
	}

	out := make([]domain.Contribution, 0, a.cfg.TopN)
	for _, imp := range artifact.Importances {
		if len(out) == a.cfg.TopN {
			break
		}
		i, ok := index[imp.Name]
		if !ok || i >= len(artifact.FeatureStats) || i >= len(row.Values) {
			continue
		}
		z := artifact.FeatureStats[i].ZScore(row.Values[i])
		if math.Abs(z) < a.cfg.ExtremeZ {
			continue
		}
		out = append(out, domain.Contribution{
			Name:       imp.Name,
			Importance: imp.Score,
			Value:      row.Values[i],
			ZScore:     z,
		})
	}
	return out
}

func checkInputs(artifact *domain.ModelArtifact, row domain.FeatureRow) error {
	if artifact == nil || artifact.Model == nil {
		return fmt.Errorf("%w: no trained model", ports.ErrInvalidRequest)
	}
	if len(row.Values) != len(artifact.FeatureNames) {
		return fmt.Errorf("%w: row has %d values, model expects %d", ports.ErrInvalidRequest, len(row.Values), len(artifact.FeatureNames))
	}
	for i, v := range row.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: feature %s is not finite", ports.ErrInvalidRequest, artifact.FeatureNames[i])
		}
	}
	return nil
}
