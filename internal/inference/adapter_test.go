package inference

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/features"
	"cryptoSniper/internal/metrics"
	"cryptoSniper/internal/ml/forest"
	"cryptoSniper/internal/ports"
	"cryptoSniper/internal/strategy/indicators"
	"cryptoSniper/internal/validation"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fixedModel struct{ p float64 }

func (m fixedModel) PredictProba(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = m.p
	}
	return out
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testArtifact(p float64) *domain.ModelArtifact {
	return &domain.ModelArtifact{
		ID:           "model-1",
		Model:        fixedModel{p: p},
		FeatureNames: []string{"a", "b", "c", "d"},
		Importances: []domain.FeatureImportance{
			{Name: "c", Score: 0.4}, {Name: "a", Score: 0.3}, {Name: "d", Score: 0.2}, {Name: "b", Score: 0.1},
		},
		FeatureStats: []domain.FeatureStat{
			{Name: "a", Mean: 0, StdDev: 1},
			{Name: "b", Mean: 10, StdDev: 2},
			{Name: "c", Mean: 0.5, StdDev: 0.1},
			{Name: "d", Mean: 3, StdDev: 0},
		},
	}
}

func newAdapter(t *testing.T, mutate func(*Config)) *Adapter {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := NewAdapter(cfg, &mockLogger{}, metrics.NewRegistry())
	require.NoError(t, err)
	return a
}

func TestSignal_ConfidenceThreshold(t *testing.T) {
	row := domain.FeatureRow{OpenTime: now, Values: []float64{0, 10, 0.5, 3}}
	tests := []struct {
		name string
		p    float64
		want domain.SignalClass
	}{
		{"above threshold", 0.66, domain.ClassBuy},
		{"at threshold waits", 0.65, domain.ClassWait},
		{"above raw boundary still waits", 0.6, domain.ClassWait},
		{"low", 0.1, domain.ClassWait},
	}
	a := newAdapter(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := a.Signal(context.Background(), testArtifact(tt.p), row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig.Class)
			assert.Equal(t, tt.p, sig.Probability)
			assert.Equal(t, 0.65, sig.Threshold)
			assert.Equal(t, "model-1", sig.ModelID)
			assert.Equal(t, now, sig.OpenTime)
		})
	}
}

func TestTopFeatures_IntersectsRankingWithExtremes(t *testing.T) {
	a := newAdapter(t, nil)
	// a: z=2, b: z=-2, c: z=1, d: flat training column.
	row := domain.FeatureRow{OpenTime: now, Values: []float64{2, 6, 0.6, 100}}

	top := a.TopFeatures(testArtifact(0.9), row)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].Name, "ranking order is kept")
	assert.InDelta(t, 2.0, top[0].ZScore, 1e-12)
	assert.Equal(t, 0.3, top[0].Importance)
	assert.Equal(t, "b", top[1].Name)
	assert.InDelta(t, -2.0, top[1].ZScore, 1e-12)

	limited := newAdapter(t, func(c *Config) { c.TopN = 1 })
	assert.Len(t, limited.TopFeatures(testArtifact(0.9), row), 1)

	loose := newAdapter(t, func(c *Config) { c.ExtremeZ = 0 })
	all := loose.TopFeatures(testArtifact(0.9), row)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"c", "a", "d", "b"}, []string{all[0].Name, all[1].Name, all[2].Name, all[3].Name})
}

func TestSignal_InvalidInput(t *testing.T) {
	a := newAdapter(t, nil)
	tests := []struct {
		name     string
		artifact *domain.ModelArtifact
		row      domain.FeatureRow
	}{
		{"nil artifact", nil, domain.FeatureRow{Values: []float64{1, 2, 3, 4}}},
		{"width mismatch", testArtifact(0.5), domain.FeatureRow{Values: []float64{1, 2}}},
		{"non-finite value", testArtifact(0.5), domain.FeatureRow{Values: []float64{1, math.NaN(), 3, 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Signal(context.Background(), tt.artifact, tt.row)
			assert.ErrorIs(t, err, ports.ErrInvalidRequest)
		})
	}

	_, err := a.Signal(context.Background(), testArtifact(1.5), domain.FeatureRow{Values: []float64{1, 2, 3, 4}})
	assert.ErrorIs(t, err, ports.ErrUnknown)
}

func TestNewAdapter_Validation(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.ConfidenceThreshold = 0 },
		func(c *Config) { c.ConfidenceThreshold = 1 },
		func(c *Config) { c.ExtremeZ = -1 },
		func(c *Config) { c.TopN = 0 },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := NewAdapter(cfg, &mockLogger{}, nil)
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	}
	_, err := NewAdapter(DefaultConfig(), nil, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestExplain(t *testing.T) {
	sig := domain.Signal{
		OpenTime: now, Class: domain.ClassBuy, Probability: 0.8, Threshold: 0.65, ModelID: "m",
		TopFeatures: []domain.Contribution{{Name: "rsi", Importance: 0.2, Value: 0.9, ZScore: 2.1}},
	}
	in := Explain("BTCUSDT", sig)
	sig.TopFeatures[0].Name = "mutated"
	assert.Equal(t, "rsi", in.Features[0].Name)

	data, err := in.JSON()
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "BUY", decoded["class"])
	assert.Equal(t, "BTCUSDT", decoded["symbol"])
	assert.Len(t, decoded["features"], 1)
}

// driftSeries is a flat random walk that turns into a strong uptrend after a volatility spike at bar 400.
func driftSeries(n int, seed int64) []domain.Candle {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, n)
	price := 20000.0
	for i := range out {
		open := price
		wick := 0.003
		switch {
		case i >= 400 && i < 405:
			price *= math.Exp(rng.NormFloat64() * 0.04)
			wick = 0.02
		case i >= 405:
			price *= math.Exp(0.02 + rng.NormFloat64()*0.003)
		default:
			price *= math.Exp(rng.NormFloat64() * 0.005)
		}
		out[i] = domain.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     open,
			High:     math.Max(open, price) * (1 + rng.Float64()*wick),
			Low:      math.Min(open, price) * (1 - rng.Float64()*wick),
			Close:    price,
			Volume:   100 + rng.Float64()*50,
		}
	}
	return out
}

func TestEndToEnd_DriftRaisesBuyProbability(t *testing.T) {
	ctx := context.Background()
	candles := driftSeries(500, 21)

	fcfg := features.DefaultConfig()
	fcfg.ShortWindow = 6
	fcfg.LongWindow = 48
	fcfg.ZWindow = 24
	fcfg.RSIPeriod = 14
	fcfg.MACD = indicators.MACDConfig{Fast: 6, Slow: 13, Signal: 5}
	fcfg.ROCPeriod = 12
	fcfg.VolatilityWindow = 12
	fcfg.VolumeWindow = 12
	engine, err := features.NewEngine(fcfg, &mockLogger{}, nil)
	require.NoError(t, err)
	ds, err := engine.Build(ctx, candles)
	require.NoError(t, err)

	vcfg := validation.DefaultConfig()
	vcfg.Folds = 3
	vcfg.Trials = 3
	vcfg.MinPositives = 2
	vcfg.Workers = 2
	vcfg.Space = validation.SearchSpace{
		NEstimators:       validation.IntUniform{Min: 30, Max: 40},
		MaxDepth:          validation.Choice{Values: []float64{6}},
		MinSamplesLeaf:    validation.IntUniform{Min: 2, Max: 4},
		MaxFeatures:       validation.Uniform{Min: 0.4, Max: 0.6},
		BootstrapFraction: validation.Uniform{Min: 0.9, Max: 1},
	}
	orch, err := validation.NewOrchestrator(vcfg, forest.New(), &mockLogger{}, nil)
	require.NoError(t, err)
	artifact, _, err := orch.Search(ctx, ds)
	require.NoError(t, err)

	probs := artifact.Model.PredictProba(ds.Matrix())
	var pre, post []float64
	spike := candles[400].OpenTime
	for i, row := range ds.Rows {
		switch {
		case row.OpenTime.Before(spike):
			pre = append(pre, probs[i])
		case !row.OpenTime.Before(candles[410].OpenTime):
			post = append(post, probs[i])
		}
	}
	require.NotEmpty(t, pre)
	require.NotEmpty(t, post)
	assert.Greater(t, mean(post), mean(pre))

	adapter := newAdapter(t, nil)
	latest, err := engine.Latest(ctx, candles)
	require.NoError(t, err)
	sig, err := adapter.Signal(ctx, artifact, latest)
	require.NoError(t, err)
	assert.Equal(t, candles[len(candles)-1].OpenTime, sig.OpenTime)
	assert.Equal(t, artifact.ID, sig.ModelID)
}

func mean(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
