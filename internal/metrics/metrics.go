package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the Prometheus collectors of one pipeline run.
// All methods are safe to call on a nil *Registry, which records nothing.
type Registry struct {
	reg *prometheus.Registry

	PagesFetched   *prometheus.CounterVec
	PageRetries    prometheus.Counter
	CandlesMerged  *prometheus.CounterVec
	StoreGaps      prometheus.Gauge
	MissingCandles prometheus.Gauge
	RowsDropped    *prometheus.CounterVec
	FoldsSkipped   prometheus.Counter
	StepDuration   *prometheus.HistogramVec
	CVScore        prometheus.Gauge
	BuyProbability prometheus.Gauge
}

// NewRegistry creates a registry with every pipeline collector registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		PagesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sniper_miner_pages_total",
				Help: "Market data pages requested by the historical miner, by result",
			},
			[]string{"result"},
		),
		PageRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sniper_miner_page_retries_total",
			Help: "Page fetch attempts that were retried after a transient failure",
		}),
		CandlesMerged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sniper_store_candles_total",
				Help: "Candles offered to the store, by outcome (added, duplicate, invalid)",
			},
			[]string{"outcome"},
		),
		StoreGaps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_store_gaps",
			Help: "Number of gap runs in the candle store",
		}),
		MissingCandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_store_missing_candles",
			Help: "Missing granules inside the stored span",
		}),
		RowsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sniper_feature_rows_dropped_total",
				Help: "Candles excluded from the feature dataset, by reason",
			},
			[]string{"reason"},
		),
		FoldsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sniper_validation_folds_skipped_total",
			Help: "Candidate folds skipped for lack of BUY rows",
		}),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sniper_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"step"},
		),
		CVScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_model_cv_score",
			Help: "Mean out-of-sample score of the selected hyperparameters",
		}),
		BuyProbability: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_signal_buy_probability",
			Help: "Class-1 probability of the latest signal",
		}),
	}

	r.reg.MustRegister(
		r.PagesFetched, r.PageRetries, r.CandlesMerged, r.StoreGaps, r.MissingCandles,
		r.RowsDropped, r.FoldsSkipped, r.StepDuration, r.CVScore, r.BuyProbability,
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// WriteTextfile dumps the current values in the node-exporter textfile format.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}

// PageFetched records one page request outcome ("ok", "empty", "failed").
func (r *Registry) PageFetched(result string) {
	if r == nil {
		return
	}
	r.PagesFetched.WithLabelValues(result).Inc()
}

// Retry records one retried attempt.
func (r *Registry) Retry() {
	if r == nil {
		return
	}
	r.PageRetries.Inc()
}

// Merged records a store merge.
func (r *Registry) Merged(added, duplicates, invalid int) {
	if r == nil {
		return
	}
	r.CandlesMerged.WithLabelValues("added").Add(float64(added))
	r.CandlesMerged.WithLabelValues("duplicate").Add(float64(duplicates))
	r.CandlesMerged.WithLabelValues("invalid").Add(float64(invalid))
}

// StoreQuality records the gap statistics of the store.
func (r *Registry) StoreQuality(gaps, missing int) {
	if r == nil {
		return
	}
	r.StoreGaps.Set(float64(gaps))
	r.MissingCandles.Set(float64(missing))
}

// Dropped records excluded feature rows.
func (r *Registry) Dropped(reason string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.RowsDropped.WithLabelValues(reason).Add(float64(n))
}

// FoldSkipped records one skipped fold evaluation.
func (r *Registry) FoldSkipped() {
	if r == nil {
		return
	}
	r.FoldsSkipped.Inc()
}

// ObserveStep records how long a pipeline step took.
func (r *Registry) ObserveStep(step string, started time.Time) {
	if r == nil {
		return
	}
	r.StepDuration.WithLabelValues(step).Observe(time.Since(started).Seconds())
}

// ModelScore records the selected model's cross-validated score.
func (r *Registry) ModelScore(score float64) {
	if r == nil {
		return
	}
	r.CVScore.Set(score)
}

// SignalProbability records the latest BUY probability.
func (r *Registry) SignalProbability(p float64) {
	if r == nil {
		return
	}
	r.BuyProbability.Set(p)
}
