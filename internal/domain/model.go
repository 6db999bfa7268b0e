package domain

import (
	"time"
)

// Hyperparameters drives the tree-ensemble classifier.
type Hyperparameters struct {
	NEstimators       int     `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth          int     `json:"max_depth" yaml:"max_depth"`
	MinSamplesLeaf    int     `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	MaxFeatures       float64 `json:"max_features" yaml:"max_features"`             // fraction of features tried per split
	BootstrapFraction float64 `json:"bootstrap_fraction" yaml:"bootstrap_fraction"` // sample size per tree relative to the train set
	Seed              int64   `json:"seed" yaml:"seed"`
}

// FeatureImportance pairs a feature name with its global importance score.
type FeatureImportance struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// ModelArtifact is the immutable result of a training run.
// Retraining produces a new artifact instead of mutating an existing one.
type ModelArtifact struct {
	ID              string
	CreatedAt       time.Time
	Model           Predictor
	Hyperparameters Hyperparameters
	FeatureNames    []string
	Importances     []FeatureImportance // sorted by Score descending
	FeatureStats    []FeatureStat       // aligned with FeatureNames
	Metric          string
	CVScore         float64
	FoldScores      []float64
	TrainRows       int
	TrainedThrough  time.Time
}

// Predictor is the part of a trained model the domain needs for inference.
type Predictor interface {
	// PredictProba returns the class-1 probability for each row.
	PredictProba(x [][]float64) []float64
}
