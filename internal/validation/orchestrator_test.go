package validation

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/features"
	"cryptoSniper/internal/metrics"
	"cryptoSniper/internal/ml/forest"
	"cryptoSniper/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// spyClassifier reads column 0 as the row index and column 1 as the answer.
type spyClassifier struct {
	mu    sync.Mutex
	pairs [][2]int // last train index, first predicted index
	fits  []int    // train sizes
	err   error
}

type spyModel struct {
	owner     *spyClassifier
	lastTrain int
	weight    float64
}

func (s *spyClassifier) Train(x [][]float64, y []int, params domain.Hyperparameters) (ports.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	s.fits = append(s.fits, len(x))
	s.mu.Unlock()
	// Deeper candidates answer more confidently so candidates score differently.
	return &spyModel{owner: s, lastTrain: int(x[len(x)-1][0]), weight: float64(params.MaxDepth) / 12}, nil
}

func (m *spyModel) PredictProba(x [][]float64) []float64 {
	m.owner.mu.Lock()
	m.owner.pairs = append(m.owner.pairs, [2]int{m.lastTrain, int(x[0][0])})
	m.owner.mu.Unlock()
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = 0.5 + (row[1]-0.5)*m.weight
	}
	return out
}

func (m *spyModel) FeatureImportances() []float64 { return []float64{0.25, 0.75} }

var t0 = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

// indexedDataset builds n rows whose label is positive when isBuy(i).
func indexedDataset(n int, isBuy func(i int) bool) *features.Dataset {
	ds := &features.Dataset{
		Set: features.FeatureSet{
			{Name: "index", Kind: features.KindBounded},
			{Name: "answer", Kind: features.KindBounded},
		},
	}
	for i := 0; i < n; i++ {
		row := domain.FeatureRow{OpenTime: t0.Add(time.Duration(i) * time.Hour), Values: []float64{float64(i), 0}}
		if isBuy(i) {
			row.Label = domain.LabelBuy
			row.Values[1] = 1
			row.ForwardReturn = 0.02
		} else {
			row.ForwardReturn = -0.01
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Folds = 4
	cfg.Trials = 6
	cfg.MinPositives = 3
	cfg.Workers = 3
	cfg.Space = SearchSpace{
		NEstimators:       IntUniform{Min: 5, Max: 10},
		MaxDepth:          Choice{Values: []float64{2, 4, 6}},
		MinSamplesLeaf:    IntUniform{Min: 2, Max: 5},
		MaxFeatures:       Uniform{Min: 0.5, Max: 1},
		BootstrapFraction: Uniform{Min: 0.8, Max: 1},
	}
	return cfg
}

func TestSearch_TrainingNeverSeesValidationRows(t *testing.T) {
	spy := &spyClassifier{}
	cfg := testConfig()
	cfg.Gap = 3
	o, err := NewOrchestrator(cfg, spy, &mockLogger{}, metrics.NewRegistry())
	require.NoError(t, err)

	ds := indexedDataset(250, func(i int) bool { return i%4 == 0 })
	artifact, report, err := o.Search(context.Background(), ds)
	require.NoError(t, err)

	require.Len(t, spy.pairs, cfg.Trials*cfg.Folds)
	for _, p := range spy.pairs {
		assert.Less(t, p[0], p[1]-cfg.Gap, "train row %d leaks into validation starting at %d", p[0], p[1])
	}
	assert.Equal(t, 250, spy.fits[len(spy.fits)-1], "final refit uses every row")
	assert.Empty(t, report.SkippedFolds)

	assert.Equal(t, 1.0, artifact.CVScore)
	assert.Equal(t, "precision", artifact.Metric)
	assert.Equal(t, []string{"index", "answer"}, artifact.FeatureNames)
	assert.Equal(t, "answer", artifact.Importances[0].Name)
	assert.Len(t, artifact.FoldScores, cfg.Folds)
	assert.Equal(t, 250, artifact.TrainRows)
	assert.Equal(t, ds.Rows[249].OpenTime, artifact.TrainedThrough)
	assert.NotEmpty(t, artifact.ID)
	require.Len(t, artifact.FeatureStats, 2)
	assert.InDelta(t, 124.5, artifact.FeatureStats[0].Mean, 1e-9)

	require.NotNil(t, report.OutOfSample)
	assert.Greater(t, report.OutOfSample.TotalTrades, 0)
	assert.Equal(t, 1.0, report.OutOfSample.WinRate)
}

func TestSearch_TiesGoToLowerCandidate(t *testing.T) {
	spy := &spyClassifier{}
	cfg := testConfig()
	o, err := NewOrchestrator(cfg, spy, &mockLogger{}, nil)
	require.NoError(t, err)

	// Perfect separation makes every candidate score 1.
	_, report, err := o.Search(context.Background(), indexedDataset(200, func(i int) bool { return i%3 == 0 }))
	require.NoError(t, err)
	for _, c := range report.Candidates {
		assert.Equal(t, 1.0, c.Mean)
	}
	assert.Equal(t, 0, report.BestIndex)
}

func TestSearch_SkipsFoldsWithoutPositives(t *testing.T) {
	spy := &spyClassifier{}
	o, err := NewOrchestrator(testConfig(), spy, &mockLogger{}, nil)
	require.NoError(t, err)

	// 250 rows, 4 folds: block 50, first block 50. Positives only in the first 120 rows,
	// so validation blocks [100,150) keep some and the later ones have none.
	ds := indexedDataset(250, func(i int) bool { return i < 120 && i%4 == 0 })
	_, report, err := o.Search(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, report.SkippedFolds)
	for _, c := range report.Candidates {
		assert.Len(t, c.FoldScores, 2)
	}
}

func TestSearch_InsufficientSignal(t *testing.T) {
	o, err := NewOrchestrator(testConfig(), &spyClassifier{}, &mockLogger{}, nil)
	require.NoError(t, err)

	artifact, report, err := o.Search(context.Background(), indexedDataset(250, func(int) bool { return false }))
	assert.Nil(t, artifact)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInsufficientSignal)

	var sigErr *ports.InsufficientSignalError
	require.True(t, errors.As(err, &sigErr))
	assert.Equal(t, 4, sigErr.Folds)
	assert.Equal(t, 3, sigErr.MinPositives)
	assert.Len(t, report.SkippedFolds, 4)
}

func TestSearch_ClassifierErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	o, err := NewOrchestrator(testConfig(), &spyClassifier{err: boom}, &mockLogger{}, nil)
	require.NoError(t, err)

	_, _, err = o.Search(context.Background(), indexedDataset(250, func(i int) bool { return i%4 == 0 }))
	assert.ErrorIs(t, err, boom)
}

func TestSearch_CanceledContext(t *testing.T) {
	o, err := NewOrchestrator(testConfig(), &spyClassifier{}, &mockLogger{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = o.Search(ctx, indexedDataset(250, func(i int) bool { return i%4 == 0 }))
	assert.ErrorIs(t, err, context.Canceled)
}

func noisyDataset(n int, seed int64) *features.Dataset {
	rng := rand.New(rand.NewSource(seed))
	ds := &features.Dataset{
		Set: features.FeatureSet{
			{Name: "signal", Kind: features.KindBounded},
			{Name: "noise", Kind: features.KindBounded},
			{Name: "drift", Kind: features.KindBounded},
		},
	}
	for i := 0; i < n; i++ {
		signal := rng.Float64()
		row := domain.FeatureRow{
			OpenTime:      t0.Add(time.Duration(i) * time.Hour),
			Values:        []float64{signal, rng.NormFloat64(), math.Sin(float64(i) / 10)},
			ForwardReturn: rng.NormFloat64() * 0.01,
		}
		if signal+rng.NormFloat64()*0.1 > 0.65 {
			row.Label = domain.LabelBuy
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func TestSearch_DeterministicAcrossWorkers(t *testing.T) {
	ds := noisyDataset(400, 5)

	run := func(workers int) (*domain.ModelArtifact, *SearchReport) {
		cfg := testConfig()
		cfg.Workers = workers
		cfg.Trials = 4
		o, err := NewOrchestrator(cfg, &forest.Classifier{Workers: workers}, &mockLogger{}, nil)
		require.NoError(t, err)
		artifact, report, err := o.Search(context.Background(), ds)
		require.NoError(t, err)
		return artifact, report
	}

	a, ra := run(1)
	b, rb := run(4)
	assert.Equal(t, ra.Candidates, rb.Candidates)
	assert.Equal(t, ra.BestIndex, rb.BestIndex)
	assert.Equal(t, a.Hyperparameters, b.Hyperparameters)
	assert.Equal(t, a.Importances, b.Importances)
	assert.Equal(t, a.Model.PredictProba(ds.Matrix()[:50]), b.Model.PredictProba(ds.Matrix()[:50]))
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "signal", a.Importances[0].Name)
	assert.Greater(t, a.CVScore, 0.5)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"one fold", func(c *Config) { c.Folds = 1 }},
		{"no trials", func(c *Config) { c.Trials = 0 }},
		{"no min positives", func(c *Config) { c.MinPositives = 0 }},
		{"threshold at one", func(c *Config) { c.DecisionThreshold = 1 }},
		{"unknown metric", func(c *Config) { c.Metric = "auc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewOrchestrator(cfg, &spyClassifier{}, &mockLogger{}, nil)
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
		})
	}

	_, err := NewOrchestrator(testConfig(), nil, &mockLogger{}, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
