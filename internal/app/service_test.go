package app

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSniper/config"
	"cryptoSniper/internal/adapters/csvstore"
	"cryptoSniper/internal/adapters/sqlite"
	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/metrics"
	"cryptoSniper/internal/ml/forest"
	"cryptoSniper/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu       sync.Mutex
	infoMsgs []string
	warnMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func (m *mockLogger) count(msg string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, got := range m.infoMsgs {
		if got == msg {
			n++
		}
	}
	return n
}

var testNow = time.Date(2024, 6, 1, 0, 30, 0, 0, time.UTC)

// lastClosed is the newest candle that has closed at testNow.
var lastClosed = testNow.Truncate(time.Hour).Add(-time.Hour)

// hourlySource serves a seeded random walk whose last candle is still forming at testNow.
type hourlySource struct {
	mu     sync.Mutex
	series []domain.Candle
	calls  int
	fail   error
}

func newHourlySource(n int, seed int64) *hourlySource {
	rng := rand.New(rand.NewSource(seed))
	end := testNow.Truncate(time.Hour)
	start := end.Add(-time.Duration(n-1) * time.Hour)
	src := &hourlySource{series: make([]domain.Candle, n)}
	price := 30000.0
	for i := range src.series {
		open := price
		price *= math.Exp(rng.NormFloat64() * 0.006)
		src.series[i] = domain.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     open,
			High:     math.Max(open, price) * (1 + rng.Float64()*0.003),
			Low:      math.Min(open, price) * (1 - rng.Float64()*0.003),
			Close:    price,
			Volume:   50 + rng.Float64()*40,
		}
	}
	return src
}

func (s *hourlySource) FetchPage(ctx context.Context, req ports.PageRequest) ([]domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	hi := sort.Search(len(s.series), func(i int) bool { return s.series[i].OpenTime.After(req.End) })
	lo := hi - req.Limit
	if lo < 0 {
		lo = 0
	}
	out := make([]domain.Candle, hi-lo)
	copy(out, s.series[lo:hi])
	return out, nil
}

type fixture struct {
	cfg     *config.Config
	logger  *mockLogger
	source  *hourlySource
	candles *csvstore.Repository
	db      *sqlite.Repository
	metrics *metrics.Registry
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	cfg.CandleFile = filepath.Join(dir, "BTCUSDT_1h.csv")
	cfg.DBPath = filepath.Join(dir, "sniper.db")
	cfg.RequestsPerSecond = 1000
	cfg.MaxRetries = 1
	cfg.RetryBaseDelay = time.Millisecond
	cfg.FoldCount = 3
	cfg.SearchTrialCount = 2
	cfg.MinPositives = 2
	cfg.SearchWorkers = 2
	cfg.SearchSpaceFile = filepath.Join(dir, "space.yaml")
	require.NoError(t, os.WriteFile(cfg.SearchSpaceFile, []byte(`
n_estimators: {type: int_uniform, min: 15, max: 20}
max_depth: {type: choice, values: [4]}
min_samples_leaf: {type: int_uniform, min: 3, max: 5}
`), 0o600))

	log := &mockLogger{}
	candles, err := csvstore.New(csvstore.Config{Path: cfg.CandleFile, Logger: log})
	require.NoError(t, err)
	db, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &fixture{
		cfg:     cfg,
		logger:  log,
		source:  newHourlySource(n, 11),
		candles: candles,
		db:      db,
		metrics: metrics.NewRegistry(),
	}
}

func (f *fixture) service(t *testing.T, withSource bool) *PipelineService {
	t.Helper()
	clf := forest.New()
	deps := Dependencies{
		Candles:    f.candles,
		Models:     f.db,
		Signals:    f.db,
		Classifier: clf,
		Codec:      clf,
		Metrics:    f.metrics,
	}
	if withSource {
		deps.Source = f.source
	}
	svc, err := NewPipelineService(f.cfg, f.logger, deps, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return svc
}

func TestNewPipelineService_Validation(t *testing.T) {
	f := newFixture(t, 10)
	clf := forest.New()
	full := Dependencies{Candles: f.candles, Models: f.db, Signals: f.db, Classifier: clf, Codec: clf}

	tests := []struct {
		name   string
		cfg    *config.Config
		deps   func(d Dependencies) Dependencies
		logger ports.Logger
	}{
		{"nil config", nil, func(d Dependencies) Dependencies { return d }, f.logger},
		{"nil logger", f.cfg, func(d Dependencies) Dependencies { return d }, nil},
		{"missing candles", f.cfg, func(d Dependencies) Dependencies { d.Candles = nil; return d }, f.logger},
		{"missing codec", f.cfg, func(d Dependencies) Dependencies { d.Codec = nil; return d }, f.logger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPipelineService(tt.cfg, tt.logger, tt.deps(full))
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
		})
	}

	t.Run("bad search space file", func(t *testing.T) {
		cfg := *f.cfg
		cfg.SearchSpaceFile = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := NewPipelineService(&cfg, f.logger, full)
		assert.Error(t, err)
	})
}

func TestMine_PersistsStore(t *testing.T) {
	f := newFixture(t, 300)
	svc := f.service(t, true)
	ctx := context.Background()

	report, err := svc.Mine(ctx)
	require.NoError(t, err)
	assert.Equal(t, 299, report.Stored, "the forming candle is not stored")
	assert.Equal(t, 299, report.Added)

	stored, err := f.candles.Load(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 299)
	assert.Equal(t, lastClosed, stored[len(stored)-1].OpenTime)

	// A second run is incremental and adds nothing new.
	report, err = svc.Mine(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 299, report.Stored)
}

func TestMine_WithoutSource(t *testing.T) {
	f := newFixture(t, 10)
	_, err := f.service(t, false).Mine(context.Background())
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t, 900)
	ctx := context.Background()

	sig, err := f.service(t, true).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, lastClosed, sig.OpenTime)
	assert.Contains(t, []domain.SignalClass{domain.ClassBuy, domain.ClassWait}, sig.Class)
	assert.GreaterOrEqual(t, sig.Probability, 0.0)
	assert.LessOrEqual(t, sig.Probability, 1.0)
	assert.Equal(t, f.cfg.ConfidenceThreshold, sig.Threshold)

	assert.Equal(t, 1, f.logger.count("Stationarity policy passed"), "one gate, one log line")

	rec, err := f.db.LatestArtifact(ctx, f.cfg.Symbol)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, rec.ID, sig.ModelID)
	assert.NotEmpty(t, rec.Model)
	assert.NotEmpty(t, rec.FoldScores)
	assert.LessOrEqual(t, len(rec.FoldScores), f.cfg.FoldCount)

	signals, err := f.db.RecentSignals(ctx, f.cfg.Symbol, 5)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, sig.Probability, signals[0].Probability)

	// A fresh service without a source reloads the model from the registry.
	again, err := f.service(t, false).Signal(ctx)
	require.NoError(t, err)
	assert.Equal(t, sig.ModelID, again.ModelID)
	assert.InDelta(t, sig.Probability, again.Probability, 1e-12)
	assert.Equal(t, sig.Class, again.Class)

	cmp, err := f.service(t, false).Stationarity(ctx)
	require.NoError(t, err)
	assert.True(t, cmp.LogDiff.IsStationary, "log returns of a random walk are stationary")
}

func TestRun_ContinuesAfterAcquisitionFailure(t *testing.T) {
	f := newFixture(t, 900)
	ctx := context.Background()

	// Seed the store, then make the exchange unavailable.
	_, err := f.service(t, true).Mine(ctx)
	require.NoError(t, err)
	f.source.fail = ports.ErrExchangeUnavailable

	sig, err := f.service(t, true).Run(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sig.ModelID)
	assert.Contains(t, f.logger.warnMsgs, "Continuing with partial candle store")
}

func TestSignal_NoModel(t *testing.T) {
	f := newFixture(t, 300)
	_, err := f.service(t, false).Signal(context.Background())
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestTrain_InsufficientData(t *testing.T) {
	f := newFixture(t, 120)
	svc := f.service(t, true)
	ctx := context.Background()

	_, err := svc.Mine(ctx)
	require.NoError(t, err)
	_, _, err = svc.Train(ctx)
	assert.ErrorIs(t, err, ports.ErrInsufficientData)

	rec, err := f.db.LatestArtifact(ctx, f.cfg.Symbol)
	require.NoError(t, err)
	assert.Nil(t, rec, "failed training records nothing")
}

func TestSameColumns(t *testing.T) {
	assert.NoError(t, sameColumns([]string{"a", "b"}, []string{"a", "b"}))
	assert.ErrorIs(t, sameColumns([]string{"a"}, []string{"a", "b"}), ports.ErrInvalidRequest)
	assert.ErrorIs(t, sameColumns([]string{"a", "c"}, []string{"a", "b"}), ports.ErrInvalidRequest)
}
