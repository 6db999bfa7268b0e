package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"cryptoSniper/internal/candles"
	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/metrics"
	"cryptoSniper/internal/ports"
)

const maxLoggedGaps = 20

// Config holds the parameters of one mining run.
type Config struct {
	Symbol            string
	Interval          string
	Granule           time.Duration
	LookbackYears     int
	PageLimit         int
	MaxGapFraction    float64 // tolerated missing share of the horizon; 0 tolerates no gaps
	RequestsPerSecond float64 // 0 disables pacing
	Retry             RetryPolicy
}

// Report summarises a mining run.
type Report struct {
	HorizonStart   time.Time
	End            time.Time
	Calls          int
	Pages          int
	Added          int
	Duplicates     int
	Invalid        int
	Gaps           int
	MissingCandles int
	Expected       int
	Stored         int
}

// Option customises a Miner.
type Option func(*Miner)

// WithRepository persists the store after every merged page.
func WithRepository(repo ports.CandleRepository) Option {
	return func(m *Miner) { m.repo = repo }
}

// WithMetrics records page and merge counters.
func WithMetrics(reg *metrics.Registry) Option {
	return func(m *Miner) { m.metrics = reg }
}

// Miner acquires the historical candle series by walking backwards from an end timestamp.
type Miner struct {
	cfg     Config
	source  ports.CandleSource
	logger  ports.Logger
	limiter *rate.Limiter
	repo    ports.CandleRepository
	metrics *metrics.Registry
}

// New creates a Miner.
func New(cfg Config, source ports.CandleSource, logger ports.Logger, opts ...Option) (*Miner, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: candle source is required", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.Symbol == "" || cfg.Interval == "" {
		return nil, fmt.Errorf("%w: symbol and interval are required", ports.ErrConfigurationError)
	}
	if cfg.LookbackYears <= 0 {
		return nil, fmt.Errorf("%w: lookback years must be positive, got %d", ports.ErrConfigurationError, cfg.LookbackYears)
	}
	if cfg.PageLimit <= 0 {
		return nil, fmt.Errorf("%w: page limit must be positive, got %d", ports.ErrConfigurationError, cfg.PageLimit)
	}
	if cfg.MaxGapFraction < 0 || cfg.MaxGapFraction > 1 {
		return nil, fmt.Errorf("%w: max gap fraction must be in [0,1], got %f", ports.ErrConfigurationError, cfg.MaxGapFraction)
	}
	if cfg.Granule <= 0 {
		cfg.Granule = time.Hour
	}

	m := &Miner{cfg: cfg, source: source, logger: logger}
	if cfg.RequestsPerSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Mine fills store with the closed candles of [end - LookbackYears, end]. A zero end means now.
// end is an instant, not an open time: the candle opening at end.Truncate(Granule) is still
// forming and is never requested, so the newest stored candle is the last one closed by end.
// When the store already holds data only the uncovered spans are requested: first from end
// back to the newest stored candle, then from the oldest stored candle back to the horizon.
// On a failed window the report and the candles merged so far are kept and a
// *ports.DataAcquisitionError is returned.
func (m *Miner) Mine(ctx context.Context, store *candles.Store, end time.Time) (Report, error) {
	if end.IsZero() {
		end = time.Now()
	}
	g := m.cfg.Granule
	end = LastClosed(end, g)
	horizon := end.AddDate(-m.cfg.LookbackYears, 0, 0)
	report := Report{HorizonStart: horizon, End: end}

	m.logger.Info(ctx, "Starting historical mining", map[string]interface{}{
		"symbol": m.cfg.Symbol, "interval": m.cfg.Interval,
		"horizonStart": horizon.Format(time.RFC3339), "end": end.Format(time.RFC3339),
		"stored": store.Len(),
	})

	type span struct{ from, to time.Time } // newest -> oldest
	var spans []span
	first, hasFirst := store.First()
	last, _ := store.Last()
	if !hasFirst {
		spans = append(spans, span{from: end, to: horizon})
	} else {
		if last.OpenTime.Before(end) {
			lower := last.OpenTime.Add(g)
			if lower.Before(horizon) {
				lower = horizon
			}
			spans = append(spans, span{from: end, to: lower})
		}
		if first.OpenTime.After(horizon) {
			upper := first.OpenTime.Add(-g)
			if upper.After(end) {
				upper = end
			}
			spans = append(spans, span{from: upper, to: horizon})
		}
	}

	for _, sp := range spans {
		if err := m.walk(ctx, store, sp.from, sp.to, &report); err != nil {
			m.finish(ctx, store, &report)
			return report, err
		}
	}

	m.finish(ctx, store, &report)
	if report.Expected > 0 {
		fraction := float64(report.MissingCandles) / float64(report.Expected)
		if fraction > m.cfg.MaxGapFraction {
			err := &ports.DataIntegrityError{
				Missing: report.MissingCandles, Expected: report.Expected, MaxFraction: m.cfg.MaxGapFraction,
			}
			m.logger.Error(ctx, err, "Candle store failed the integrity check", map[string]interface{}{
				"gaps": report.Gaps, "missing": report.MissingCandles, "expected": report.Expected,
			})
			return report, err
		}
	}

	m.logger.Info(ctx, "Historical mining completed", map[string]interface{}{
		"calls": report.Calls, "added": report.Added, "duplicates": report.Duplicates,
		"gaps": report.Gaps, "missing": report.MissingCandles, "stored": report.Stored,
	})
	return report, nil
}

// LastClosed returns the open time of the newest candle that has closed at instant t.
func LastClosed(t time.Time, granule time.Duration) time.Time {
	return t.UTC().Add(-granule).Truncate(granule)
}

// walk fetches pages ending at cursor and moves the cursor below the oldest returned candle
// until it passes stop or the source runs dry.
func (m *Miner) walk(ctx context.Context, store *candles.Store, cursor, stop time.Time, report *Report) error {
	g := m.cfg.Granule
	for !cursor.Before(stop) {
		limit := m.cfg.PageLimit
		if remaining := store.Expected(stop, cursor); remaining < limit {
			limit = remaining
		}
		req := ports.PageRequest{Symbol: m.cfg.Symbol, Interval: m.cfg.Interval, End: cursor, Limit: limit}

		page, attempts, err := m.fetch(ctx, req)
		report.Calls += attempts
		if err != nil {
			m.metrics.PageFetched("failed")
			acqErr := &ports.DataAcquisitionError{
				WindowStart: cursor.Add(-time.Duration(limit-1) * g),
				WindowEnd:   cursor,
				Attempts:    attempts,
				Err:         err,
			}
			m.logger.Error(ctx, err, "Page window could not be fetched", map[string]interface{}{
				"windowStart": acqErr.WindowStart.Format(time.RFC3339),
				"windowEnd":   acqErr.WindowEnd.Format(time.RFC3339),
				"attempts":    attempts,
			})
			return acqErr
		}
		if len(page) == 0 {
			m.metrics.PageFetched("empty")
			m.logger.Info(ctx, "Source returned an empty page, no older data", map[string]interface{}{
				"cursor": cursor.Format(time.RFC3339),
			})
			return nil
		}
		m.metrics.PageFetched("ok")
		report.Pages++

		stats := store.Merge(page)
		report.Added += stats.Added
		report.Duplicates += stats.Duplicates
		report.Invalid += stats.Invalid
		m.metrics.Merged(stats.Added, stats.Duplicates, stats.Invalid)
		if stats.Invalid > 0 {
			m.logger.Warn(ctx, "Rejected candles violating OHLC invariants", map[string]interface{}{"invalid": stats.Invalid})
		}

		if m.repo != nil {
			if err := m.repo.Save(ctx, store.Candles()); err != nil {
				return fmt.Errorf("persisting candle store: %w", err)
			}
		}

		earliest := page[0].OpenTime
		for _, c := range page[1:] {
			if c.OpenTime.Before(earliest) {
				earliest = c.OpenTime
			}
		}
		next := earliest.UTC().Truncate(g).Add(-g)
		if !next.Before(cursor) {
			m.logger.Warn(ctx, "Source ignored the end bound, stopping walk", map[string]interface{}{
				"cursor": cursor.Format(time.RFC3339), "earliest": earliest.Format(time.RFC3339),
			})
			return nil
		}
		cursor = next
	}
	return nil
}

func (m *Miner) fetch(ctx context.Context, req ports.PageRequest) ([]domain.Candle, int, error) {
	var page []domain.Candle
	attempts, err := m.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var fetchErr error
		page, fetchErr = m.source.FetchPage(ctx, req)
		return fetchErr
	}, func(attempt int, err error, wait time.Duration) {
		m.metrics.Retry()
		m.logger.Warn(ctx, "Retrying page fetch", map[string]interface{}{
			"attempt": attempt, "wait": wait.String(), "end": req.End.Format(time.RFC3339), "error": err.Error(),
		})
	})
	if err != nil && errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
	}
	return page, attempts, err
}

// finish fills the quality fields of the report from the horizon window of the store.
func (m *Miner) finish(ctx context.Context, store *candles.Store, report *Report) {
	window, _ := candles.FromCandles(m.cfg.Granule, store.Window(report.HorizonStart, report.End))
	report.Stored = store.Len()
	gaps := window.Gaps()
	report.Gaps = len(gaps)
	report.MissingCandles = window.MissingCount()
	if first, ok := window.First(); ok {
		last, _ := window.Last()
		report.Expected = window.Expected(first.OpenTime, last.OpenTime)
	}
	m.metrics.StoreQuality(report.Gaps, report.MissingCandles)

	for i, gap := range gaps {
		if i == maxLoggedGaps {
			m.logger.Warn(ctx, "Further gaps not logged", map[string]interface{}{"remaining": len(gaps) - i})
			break
		}
		m.logger.Warn(ctx, "Gap in candle series", map[string]interface{}{
			"after": gap.After.Format(time.RFC3339), "before": gap.Before.Format(time.RFC3339), "missing": gap.Missing,
		})
	}
}
