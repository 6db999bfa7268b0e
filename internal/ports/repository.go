package ports

import (
	"context"
	"time"

	"cryptoSniper/internal/domain"
)

// CandleRepository persists the candle store as a flat timestamp-indexed file.
type CandleRepository interface {
	// Load returns the persisted candles in ascending order. A missing file yields an empty slice.
	Load(ctx context.Context) ([]domain.Candle, error)
	// Save replaces the persisted candles atomically.
	Save(ctx context.Context, candles []domain.Candle) error
}

// ModelRepository records every training run together with its encoded model.
type ModelRepository interface {
	// SaveArtifact stores the artifact metadata and the model bytes produced by a ModelCodec.
	SaveArtifact(ctx context.Context, symbol string, artifact *domain.ModelArtifact, model []byte) error
	// LatestArtifact returns the most recent run for a symbol, or nil if none.
	LatestArtifact(ctx context.Context, symbol string) (*ArtifactRecord, error)
}

// SignalRepository records emitted signals.
type SignalRepository interface {
	// SaveSignal stores a signal and returns its assigned ID.
	SaveSignal(ctx context.Context, symbol string, sig domain.Signal) (int64, error)
	// RecentSignals returns up to limit signals, newest first.
	RecentSignals(ctx context.Context, symbol string, limit int) ([]domain.Signal, error)
}

// ArtifactRecord is the persisted summary of a ModelArtifact.
type ArtifactRecord struct {
	ID              string
	Symbol          string
	Metric          string
	CVScore         float64
	FoldScores      []float64
	Hyperparameters domain.Hyperparameters
	FeatureNames    []string
	Importances     []domain.FeatureImportance
	FeatureStats    []domain.FeatureStat
	Model           []byte
	TrainRows       int
	TrainedThrough  time.Time
	CreatedAt       time.Time
}

// Artifact rebuilds a ModelArtifact around a decoded model.
func (r *ArtifactRecord) Artifact(model domain.Predictor) *domain.ModelArtifact {
	return &domain.ModelArtifact{
		ID:              r.ID,
		CreatedAt:       r.CreatedAt,
		Model:           model,
		Hyperparameters: r.Hyperparameters,
		FeatureNames:    r.FeatureNames,
		Importances:     r.Importances,
		FeatureStats:    r.FeatureStats,
		Metric:          r.Metric,
		CVScore:         r.CVScore,
		FoldScores:      r.FoldScores,
		TrainRows:       r.TrainRows,
		TrainedThrough:  r.TrainedThrough,
	}
}
