package validation

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/features"
	"cryptoSniper/internal/metrics"
	"cryptoSniper/internal/ports"
	"cryptoSniper/internal/strategy/analytics"
)

// Config holds the search parameters.
type Config struct {
	Folds             int
	Gap               int // embargo rows between train and validation
	Trials            int
	Metric            string
	MinPositives      int
	DecisionThreshold float64 // probability above which a row counts as predicted BUY
	Workers           int
	Seed              int64
	Space             SearchSpace
	Granule           time.Duration
}

// DefaultConfig returns five folds, twenty trials and the precision metric.
func DefaultConfig() Config {
	return Config{
		Folds:             5,
		Trials:            20,
		Metric:            DefaultMetric,
		MinPositives:      5,
		DecisionThreshold: 0.5,
		Workers:           runtime.GOMAXPROCS(0),
		Seed:              42,
		Space:             DefaultSearchSpace(),
		Granule:           time.Hour,
	}
}

// CandidateResult is the cross-validated outcome of one hyperparameter set.
type CandidateResult struct {
	Index      int
	Params     domain.Hyperparameters
	FoldScores []float64 // one per scored fold, in fold order
	Mean       float64
}

// SearchReport describes a finished search.
type SearchReport struct {
	Metric       string
	Folds        []Fold
	SkippedFolds []int
	Candidates   []CandidateResult
	BestIndex    int
	// OutOfSample is the signal performance of the selected candidate's validation predictions.
	OutOfSample *analytics.PerformanceMetrics
	Duration    time.Duration
}

// Best returns the selected candidate.
func (r *SearchReport) Best() CandidateResult {
	return r.Candidates[r.BestIndex]
}

// Orchestrator runs the time-ordered randomized hyperparameter search.
type Orchestrator struct {
	cfg        Config
	scorer     Scorer
	classifier ports.Classifier
	logger     ports.Logger
	metrics    *metrics.Registry
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg Config, classifier ports.Classifier, logger ports.Logger, reg *metrics.Registry) (*Orchestrator, error) {
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is required", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.Folds < 2 {
		return nil, fmt.Errorf("%w: fold count must be at least 2, got %d", ports.ErrConfigurationError, cfg.Folds)
	}
	if cfg.Trials < 1 {
		return nil, fmt.Errorf("%w: trial count must be positive, got %d", ports.ErrConfigurationError, cfg.Trials)
	}
	if cfg.MinPositives < 1 {
		return nil, fmt.Errorf("%w: min positives must be positive, got %d", ports.ErrConfigurationError, cfg.MinPositives)
	}
	if cfg.DecisionThreshold <= 0 || cfg.DecisionThreshold >= 1 {
		return nil, fmt.Errorf("%w: decision threshold must be in (0,1), got %f", ports.ErrConfigurationError, cfg.DecisionThreshold)
	}
	if cfg.Metric == "" {
		cfg.Metric = DefaultMetric
	}
	scorer, err := ScorerByName(cfg.Metric)
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Space.NEstimators == nil {
		cfg.Space = DefaultSearchSpace()
	}
	if cfg.Granule <= 0 {
		cfg.Granule = time.Hour
	}
	return &Orchestrator{cfg: cfg, scorer: scorer, classifier: classifier, logger: logger, metrics: reg}, nil
}

type task struct {
	candidate int
	fold      int
}

type taskResult struct {
	task
	score float64
	probs []float64
	err   error
}

// Search scores every sampled candidate on every eligible fold, picks the best mean score
// (ties go to the lower candidate index), refits it on all rows and returns the artifact.
func (o *Orchestrator) Search(ctx context.Context, ds *features.Dataset) (*domain.ModelArtifact, *SearchReport, error) {
	started := time.Now()
	defer o.metrics.ObserveStep("search", started)

	x, y := ds.Matrix(), ds.Labels()
	folds, err := TimeSeriesSplit(len(x), o.cfg.Folds, o.cfg.Gap)
	if err != nil {
		return nil, nil, err
	}
	report := &SearchReport{Metric: o.cfg.Metric, Folds: folds}

	var eligible []int
	for _, f := range folds {
		valPos := countPositives(y, f.Validation)
		trainPos := countPositives(y, f.Train)
		if valPos < o.cfg.MinPositives || trainPos == 0 || trainPos == f.Train.Len() {
			report.SkippedFolds = append(report.SkippedFolds, f.Index)
			o.metrics.FoldSkipped()
			o.logger.Warn(ctx, "Skipping fold without enough BUY rows", map[string]interface{}{
				"fold": f.Index, "validationPositives": valPos, "trainPositives": trainPos,
				"trainRows": f.Train.Len(), "minPositives": o.cfg.MinPositives,
			})
			continue
		}
		eligible = append(eligible, f.Index)
	}
	if len(eligible) == 0 {
		err := &ports.InsufficientSignalError{Folds: len(folds), MinPositives: o.cfg.MinPositives}
		o.logger.Error(ctx, err, "Every fold was skipped, no model produced")
		return nil, report, err
	}

	rng := rand.New(rand.NewSource(o.cfg.Seed))
	candidates := o.cfg.Space.Sample(rng, o.cfg.Trials, o.cfg.Seed)
	o.logger.Info(ctx, "Starting hyperparameter search", map[string]interface{}{
		"rows": len(x), "folds": len(folds), "eligibleFolds": len(eligible),
		"candidates": len(candidates), "metric": o.cfg.Metric, "workers": o.cfg.Workers,
	})

	results, err := o.evaluate(ctx, x, y, folds, eligible, candidates)
	if err != nil {
		return nil, report, err
	}

	// Aggregate in candidate order so ties resolve to the lower index.
	report.BestIndex = -1
	for ci, params := range candidates {
		cr := CandidateResult{Index: ci, Params: params}
		sum := 0.0
		for _, fi := range eligible {
			s := results[ci][fi].score
			cr.FoldScores = append(cr.FoldScores, s)
			sum += s
		}
		cr.Mean = sum / float64(len(eligible))
		report.Candidates = append(report.Candidates, cr)
		if report.BestIndex < 0 || cr.Mean > report.Candidates[report.BestIndex].Mean {
			report.BestIndex = ci
		}
	}
	best := report.Best()
	report.OutOfSample = o.outOfSample(ds, folds, eligible, results[best.Index])

	model, err := o.classifier.Train(x, y, best.Params)
	if err != nil {
		return nil, report, fmt.Errorf("final refit failed: %w", err)
	}

	artifact := o.artifact(ds, model, best)
	report.Duration = time.Since(started)
	o.metrics.ModelScore(best.Mean)
	o.logger.Info(ctx, "Hyperparameter search completed", map[string]interface{}{
		"artifactId": artifact.ID, "bestCandidate": best.Index, "cvScore": best.Mean,
		"nEstimators": best.Params.NEstimators, "maxDepth": best.Params.MaxDepth,
		"minSamplesLeaf": best.Params.MinSamplesLeaf, "skippedFolds": len(report.SkippedFolds),
		"oosTrades": report.OutOfSample.TotalTrades, "oosWinRate": report.OutOfSample.WinRate,
		"duration": report.Duration.String(),
	})
	return artifact, report, nil
}

// evaluate trains and scores every (candidate, eligible fold) pair on a bounded worker pool.
// Results are indexed by candidate and fold, so completion order does not matter.
func (o *Orchestrator) evaluate(ctx context.Context, x [][]float64, y []int, folds []Fold, eligible []int, candidates []domain.Hyperparameters) ([][]taskResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan task)
	resultChan := make(chan taskResult, o.cfg.Workers)
	var wg sync.WaitGroup

	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				resultChan <- o.runTask(ctx, x, y, folds[t.fold], candidates[t.candidate], t)
			}
		}()
	}

	go func() {
		defer close(tasks)
		for ci := range candidates {
			for _, fi := range eligible {
				select {
				case tasks <- task{candidate: ci, fold: fi}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// Wait for all goroutines to complete
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([][]taskResult, len(candidates))
	for i := range results {
		results[i] = make([]taskResult, len(folds))
	}
	var firstErr error
	for r := range resultChan {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
			continue
		}
		results[r.candidate][r.fold] = r
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) runTask(ctx context.Context, x [][]float64, y []int, f Fold, params domain.Hyperparameters, t task) taskResult {
	if err := ctx.Err(); err != nil {
		return taskResult{task: t, err: err}
	}
	model, err := o.classifier.Train(x[f.Train.Start:f.Train.End], y[f.Train.Start:f.Train.End], params)
	if err != nil {
		return taskResult{task: t, err: fmt.Errorf("training candidate %d on fold %d: %w", t.candidate, t.fold, err)}
	}
	probs := model.PredictProba(x[f.Validation.Start:f.Validation.End])
	conf := NewConfusion(y[f.Validation.Start:f.Validation.End], probs, o.cfg.DecisionThreshold)
	o.logger.Debug(ctx, "Scored fold", map[string]interface{}{
		"candidate": t.candidate, "fold": t.fold, "tp": conf.TP, "fp": conf.FP, "fn": conf.FN, "tn": conf.TN,
	})
	return taskResult{task: t, score: o.scorer(conf), probs: probs}
}

// outOfSample evaluates the one-bar trades implied by the winner's validation predictions.
func (o *Orchestrator) outOfSample(ds *features.Dataset, folds []Fold, eligible []int, results []taskResult) *analytics.PerformanceMetrics {
	var times []time.Time
	var returns []float64
	var buy []bool
	for _, fi := range eligible {
		f := folds[fi]
		for k, p := range results[fi].probs {
			row := ds.Rows[f.Validation.Start+k]
			times = append(times, row.OpenTime)
			returns = append(returns, row.ForwardReturn)
			buy = append(buy, p > o.cfg.DecisionThreshold)
		}
	}
	trades := analytics.TradesFromSignals(times, returns, buy, o.cfg.Granule, 1)
	return analytics.AnalyzePerformance(trades, 1)
}

func (o *Orchestrator) artifact(ds *features.Dataset, model ports.Model, best CandidateResult) *domain.ModelArtifact {
	names := ds.Set.Names()
	raw := model.FeatureImportances()
	importances := make([]domain.FeatureImportance, len(names))
	for j, name := range names {
		score := 0.0
		if j < len(raw) {
			score = raw[j]
		}
		importances[j] = domain.FeatureImportance{Name: name, Score: score}
	}
	sort.SliceStable(importances, func(a, b int) bool { return importances[a].Score > importances[b].Score })

	stats := make([]domain.FeatureStat, len(names))
	for j, name := range names {
		col, _ := ds.Column(name)
		mean, std := stat.MeanStdDev(col, nil)
		stats[j] = domain.FeatureStat{Name: name, Mean: mean, StdDev: std}
	}

	return &domain.ModelArtifact{
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
		Model:           model,
		Hyperparameters: best.Params,
		FeatureNames:    names,
		Importances:     importances,
		FeatureStats:    stats,
		Metric:          o.cfg.Metric,
		CVScore:         best.Mean,
		FoldScores:      append([]float64(nil), best.FoldScores...),
		TrainRows:       ds.Len(),
		TrainedThrough:  ds.Rows[ds.Len()-1].OpenTime,
	}
}

func countPositives(y []int, r Range) int {
	n := 0
	for _, v := range y[r.Start:r.End] {
		if v == 1 {
			n++
		}
	}
	return n
}
