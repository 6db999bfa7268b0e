package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptoSniper/config"
	"cryptoSniper/internal/candles"
	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/features"
	"cryptoSniper/internal/inference"
	"cryptoSniper/internal/metrics"
	"cryptoSniper/internal/miner"
	"cryptoSniper/internal/ports"
	"cryptoSniper/internal/stationarity"
	"cryptoSniper/internal/validation"
)

// Dependencies are the adapters the pipeline runs on.
type Dependencies struct {
	Source     ports.CandleSource // optional; required only by Mine
	Candles    ports.CandleRepository
	Models     ports.ModelRepository
	Signals    ports.SignalRepository
	Classifier ports.Classifier
	Codec      ports.ModelCodec
	Metrics    *metrics.Registry
}

// Option customises a PipelineService.
type Option func(*PipelineService)

// WithClock replaces time.Now as the mining end reference.
func WithClock(now func() time.Time) Option {
	return func(s *PipelineService) { s.now = now }
}

// PipelineService orchestrates mining, training and signalling for one symbol.
type PipelineService struct {
	cfg    *config.Config
	logger ports.Logger
	deps   Dependencies
	now    func() time.Time

	miner        *miner.Miner
	engine       *features.Engine
	validator    *stationarity.Validator
	orchestrator *validation.Orchestrator
	adapter      *inference.Adapter

	mu       sync.Mutex // Protects artifact
	artifact *domain.ModelArtifact
}

// NewPipelineService creates a new application service instance.
func NewPipelineService(cfg *config.Config, logger ports.Logger, deps Dependencies, opts ...Option) (*PipelineService, error) {
	if cfg == nil || logger == nil || deps.Candles == nil || deps.Models == nil || deps.Signals == nil ||
		deps.Classifier == nil || deps.Codec == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for PipelineService", ports.ErrConfigurationError)
	}

	s := &PipelineService{cfg: cfg, logger: logger, deps: deps, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	halvings, err := cfg.Halvings()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
	}
	if s.engine, err = features.NewEngine(featureConfig(cfg, halvings), logger, deps.Metrics); err != nil {
		return nil, err
	}
	if s.validator, err = stationarity.NewValidator(stationarityConfig(cfg), logger); err != nil {
		return nil, err
	}
	vcfg, err := validationConfig(cfg)
	if err != nil {
		return nil, err
	}
	if s.orchestrator, err = validation.NewOrchestrator(vcfg, deps.Classifier, logger, deps.Metrics); err != nil {
		return nil, err
	}
	if s.adapter, err = inference.NewAdapter(inferenceConfig(cfg), logger, deps.Metrics); err != nil {
		return nil, err
	}

	if deps.Source != nil {
		source, err := miner.NewBreakerSource(deps.Source, miner.BreakerConfig{
			Name:                cfg.Symbol + "-klines",
			ConsecutiveFailures: uint32(cfg.BreakerFailures),
			Logger:              logger,
		})
		if err != nil {
			return nil, err
		}
		s.miner, err = miner.New(minerConfig(cfg), source, logger,
			miner.WithRepository(deps.Candles), miner.WithMetrics(deps.Metrics))
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Mine extends the persisted candle store up to the last closed candle.
// A failed page window still returns the report; the candles merged before it are persisted.
func (s *PipelineService) Mine(ctx context.Context) (miner.Report, error) {
	if s.miner == nil {
		return miner.Report{}, fmt.Errorf("%w: no candle source configured", ports.ErrConfigurationError)
	}
	started := time.Now()
	defer s.deps.Metrics.ObserveStep("mine", started)

	store, err := s.loadStore(ctx)
	if err != nil {
		return miner.Report{}, err
	}
	report, mineErr := s.miner.Mine(ctx, store, s.now())

	if err := s.deps.Candles.Save(ctx, store.Candles()); err != nil {
		s.logger.Error(ctx, err, "Failed to persist candle store")
		if mineErr == nil {
			mineErr = err
		}
	}
	return report, mineErr
}

// Train builds the dataset, enforces the stationarity policy, runs the search and records the artifact.
func (s *PipelineService) Train(ctx context.Context) (*domain.ModelArtifact, *validation.SearchReport, error) {
	started := time.Now()
	defer s.deps.Metrics.ObserveStep("train", started)

	store, err := s.loadStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	ds, err := s.engine.Build(ctx, store.Candles())
	if err != nil {
		return nil, nil, fmt.Errorf("building dataset: %w", err)
	}
	if ds.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: no labelled rows from %d candles", ports.ErrInsufficientData, store.Len())
	}

	if _, err := s.validator.Gate(ctx, ds.Set, ds); err != nil {
		return nil, nil, err
	}

	artifact, report, err := s.orchestrator.Search(ctx, ds)
	if err != nil {
		return nil, report, err
	}

	model, ok := artifact.Model.(ports.Model)
	if !ok {
		return nil, report, fmt.Errorf("%w: classifier returned a model the codec cannot encode", ports.ErrConfigurationError)
	}
	encoded, err := s.deps.Codec.Encode(model)
	if err != nil {
		return nil, report, fmt.Errorf("encoding model %s: %w", artifact.ID, err)
	}
	if err := s.deps.Models.SaveArtifact(ctx, s.cfg.Symbol, artifact, encoded); err != nil {
		return nil, report, err
	}

	s.mu.Lock()
	s.artifact = artifact
	s.mu.Unlock()

	if oos := report.OutOfSample; oos != nil {
		s.logger.Info(ctx, "Out-of-sample BUY performance", map[string]interface{}{
			"trades": oos.TotalTrades, "winRate": oos.WinRate, "profitFactor": oos.ProfitFactor,
			"sharpe": oos.SharpeRatio, "maxDrawdown": oos.MaxDrawdown,
		})
	}
	return artifact, report, nil
}

// Signal scores the most recent candle with the current artifact and records the result.
func (s *PipelineService) Signal(ctx context.Context) (domain.Signal, error) {
	started := time.Now()
	defer s.deps.Metrics.ObserveStep("signal", started)

	artifact, err := s.currentArtifact(ctx)
	if err != nil {
		return domain.Signal{}, err
	}
	store, err := s.loadStore(ctx)
	if err != nil {
		return domain.Signal{}, err
	}
	row, err := s.engine.Latest(ctx, store.Candles())
	if err != nil {
		return domain.Signal{}, fmt.Errorf("computing latest features: %w", err)
	}
	if err := sameColumns(s.engine.FeatureSet().Names(), artifact.FeatureNames); err != nil {
		return domain.Signal{}, err
	}

	sig, err := s.adapter.Signal(ctx, artifact, row)
	if err != nil {
		return domain.Signal{}, err
	}
	id, err := s.deps.Signals.SaveSignal(ctx, s.cfg.Symbol, sig)
	if err != nil {
		return sig, err
	}

	payload, err := inference.Explain(s.cfg.Symbol, sig).JSON()
	if err == nil {
		s.logger.Debug(ctx, "Explanation input", map[string]interface{}{"signalID": id, "payload": string(payload)})
	}
	return sig, nil
}

// Stationarity compares the raw close series with its log-difference.
func (s *PipelineService) Stationarity(ctx context.Context) (stationarity.Comparison, error) {
	store, err := s.loadStore(ctx)
	if err != nil {
		return stationarity.Comparison{}, err
	}
	return s.validator.Compare(ctx, store.Closes())
}

// Run mines, trains and emits a signal. An acquisition failure keeps the partial store and
// continues; integrity and methodology errors stop the run.
func (s *PipelineService) Run(ctx context.Context) (domain.Signal, error) {
	report, err := s.Mine(ctx)
	if err != nil {
		var acqErr *ports.DataAcquisitionError
		if !errors.As(err, &acqErr) {
			return domain.Signal{}, err
		}
		s.logger.Warn(ctx, "Continuing with partial candle store", map[string]interface{}{
			"stored": report.Stored, "windowEnd": acqErr.WindowEnd.Format(time.RFC3339),
		})
	}
	if _, _, err := s.Train(ctx); err != nil {
		return domain.Signal{}, err
	}
	return s.Signal(ctx)
}

func (s *PipelineService) loadStore(ctx context.Context) (*candles.Store, error) {
	cs, err := s.deps.Candles.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading candle store: %w", err)
	}
	store, stats := candles.FromCandles(time.Hour, cs)
	if stats.Duplicates > 0 || stats.Invalid > 0 {
		s.logger.Warn(ctx, "Persisted candle store had rejected rows", map[string]interface{}{
			"duplicates": stats.Duplicates, "invalid": stats.Invalid,
		})
	}
	return store, nil
}

// currentArtifact returns the in-memory artifact or the latest one recorded for the symbol.
func (s *PipelineService) currentArtifact(ctx context.Context) (*domain.ModelArtifact, error) {
	s.mu.Lock()
	artifact := s.artifact
	s.mu.Unlock()
	if artifact != nil {
		return artifact, nil
	}

	rec, err := s.deps.Models.LatestArtifact(ctx, s.cfg.Symbol)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no trained model for %s: %w", s.cfg.Symbol, ports.ErrNotFound)
	}
	model, err := s.deps.Codec.Decode(rec.Model)
	if err != nil {
		return nil, fmt.Errorf("decoding model %s: %w", rec.ID, err)
	}
	artifact = rec.Artifact(model)
	s.logger.Info(ctx, "Loaded model from registry", map[string]interface{}{
		"artifactId": rec.ID, "trainedThrough": rec.TrainedThrough.Format(time.RFC3339), "cvScore": rec.CVScore,
	})

	s.mu.Lock()
	s.artifact = artifact
	s.mu.Unlock()
	return artifact, nil
}

func sameColumns(engine, model []string) error {
	if len(engine) != len(model) {
		return fmt.Errorf("%w: model has %d features, engine produces %d; retrain", ports.ErrInvalidRequest, len(model), len(engine))
	}
	for i := range engine {
		if engine[i] != model[i] {
			return fmt.Errorf("%w: feature %d is %q in the model but %q in the engine; retrain",
				ports.ErrInvalidRequest, i, model[i], engine[i])
		}
	}
	return nil
}
