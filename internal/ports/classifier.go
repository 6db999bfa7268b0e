package ports

import "cryptoSniper/internal/domain"

// Model is a trained classifier.
type Model interface {
	// PredictProba returns the class-1 probability for each row of x.
	PredictProba(x [][]float64) []float64
	// FeatureImportances returns one non-negative score per input column.
	FeatureImportances() []float64
}

// Classifier is the external tree-ensemble capability driven by the validation orchestrator.
type Classifier interface {
	// Train fits a model on x (rows by columns) and binary labels y.
	Train(x [][]float64, y []int, params domain.Hyperparameters) (Model, error)
}

// ModelCodec persists trained models produced by a Classifier.
type ModelCodec interface {
	Encode(m Model) ([]byte, error)
	Decode(data []byte) (Model, error)
}
