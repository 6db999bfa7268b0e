package features

import (
	"context"
	"fmt"
	"math"
	"time"

	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/metrics"
	"cryptoSniper/internal/ports"
	"cryptoSniper/internal/strategy/indicators"
)

// Config holds indicator windows and the label multiplier.
type Config struct {
	Granule          time.Duration
	ShortWindow      int // short EMA
	LongWindow       int // long EMA, price z-score, ATR ratio baseline
	ZWindow          int // z-scores of oscillators
	RSIPeriod        int
	MACD             indicators.MACDConfig
	ROCPeriod        int
	BollingerWindow  int
	BollingerK       float64
	VolatilityWindow int // ATR and realized volatility
	VolumeWindow     int
	// ThresholdMultiplier scales atr_pct into the BUY threshold.
	ThresholdMultiplier float64
	Halvings            domain.HalvingSchedule
}

// DefaultConfig returns the hourly defaults.
func DefaultConfig() Config {
	return Config{
		Granule:             time.Hour,
		ShortWindow:         24,
		LongWindow:          168,
		ZWindow:             72,
		RSIPeriod:           14,
		MACD:                indicators.DefaultMACDConfig(),
		ROCPeriod:           24,
		BollingerWindow:     20,
		BollingerK:          2,
		VolatilityWindow:    24,
		VolumeWindow:        24,
		ThresholdMultiplier: 0.5,
		Halvings:            domain.NewHalvingSchedule(domain.DefaultHalvings(), domain.DefaultCycleLengthDays),
	}
}

// Validate checks window sizes and the label multiplier.
func (c Config) Validate() error {
	windows := map[string]int{
		"short window": c.ShortWindow, "long window": c.LongWindow, "z window": c.ZWindow,
		"rsi period": c.RSIPeriod, "roc period": c.ROCPeriod, "bollinger window": c.BollingerWindow,
		"volatility window": c.VolatilityWindow, "volume window": c.VolumeWindow,
		"macd fast": c.MACD.Fast, "macd slow": c.MACD.Slow, "macd signal": c.MACD.Signal,
	}
	for name, w := range windows {
		if w < 2 {
			return fmt.Errorf("%w: %s must be at least 2, got %d", ports.ErrConfigurationError, name, w)
		}
	}
	if c.MACD.Fast >= c.MACD.Slow {
		return fmt.Errorf("%w: macd fast period must be below slow period", ports.ErrConfigurationError)
	}
	if c.ThresholdMultiplier <= 0 || math.IsNaN(c.ThresholdMultiplier) {
		return fmt.Errorf("%w: threshold multiplier must be positive, got %f", ports.ErrConfigurationError, c.ThresholdMultiplier)
	}
	if len(c.Halvings.Epochs()) == 0 {
		return fmt.Errorf("%w: halving schedule is empty", ports.ErrConfigurationError)
	}
	return nil
}

// Engine turns a candle series into labelled feature rows. It holds no mutable state.
type Engine struct {
	cfg     Config
	set     FeatureSet
	logger  ports.Logger
	metrics *metrics.Registry
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, logger ports.Logger, reg *metrics.Registry) (*Engine, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.Granule <= 0 {
		cfg.Granule = time.Hour
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, set: Catalog(), logger: logger, metrics: reg}, nil
}

// FeatureSet returns the columns produced by the engine.
func (e *Engine) FeatureSet() FeatureSet { return e.set }

// Build computes features and labels for every eligible candle. Candles must be ascending.
// Rows without a full warm-up, without a next candle, or whose window spans a gap are
// excluded and counted in Dataset.Dropped.
func (e *Engine) Build(ctx context.Context, candles []domain.Candle) (*Dataset, error) {
	if err := e.checkOrder(candles); err != nil {
		return nil, err
	}

	ds := &Dataset{Set: e.set}
	segments := e.segments(candles)
	for si, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols := e.compute(seg)
		warm := true
		for i := range seg {
			if i == len(seg)-1 {
				// No t+1 inside the segment.
				if si == len(segments)-1 {
					ds.Dropped.Horizon++
				} else {
					ds.Dropped.Gap++
				}
				continue
			}
			values, ok := rowValues(cols, i)
			if !ok {
				switch {
				case warm && si == 0:
					ds.Dropped.Warmup++
				case warm:
					ds.Dropped.Gap++
				default:
					ds.Dropped.NonFinite++
				}
				continue
			}
			warm = false

			threshold := cols[e.set.Index(ATRPct)][i] * e.cfg.ThresholdMultiplier
			forward := (seg[i+1].Close - seg[i].Close) / seg[i].Close
			ds.Rows = append(ds.Rows, domain.FeatureRow{
				OpenTime:      seg[i].OpenTime,
				Values:        values,
				Label:         Label(forward, threshold),
				ForwardReturn: forward,
				Threshold:     threshold,
			})
		}
	}

	e.metrics.Dropped("warmup", ds.Dropped.Warmup)
	e.metrics.Dropped("horizon", ds.Dropped.Horizon)
	e.metrics.Dropped("gap", ds.Dropped.Gap)
	e.metrics.Dropped("non_finite", ds.Dropped.NonFinite)
	e.logger.Info(ctx, "Feature dataset built", map[string]interface{}{
		"candles": len(candles), "rows": len(ds.Rows), "features": e.set.Len(),
		"segments": len(segments), "positiveRate": ds.PositiveRate(),
		"droppedWarmup": ds.Dropped.Warmup, "droppedHorizon": ds.Dropped.Horizon,
		"droppedGap": ds.Dropped.Gap, "droppedNonFinite": ds.Dropped.NonFinite,
	})
	return ds, nil
}

// Latest returns the unlabelled features of the most recent candle.
func (e *Engine) Latest(ctx context.Context, candles []domain.Candle) (domain.FeatureRow, error) {
	if err := e.checkOrder(candles); err != nil {
		return domain.FeatureRow{}, err
	}
	if len(candles) == 0 {
		return domain.FeatureRow{}, fmt.Errorf("%w: no candles", ports.ErrInsufficientData)
	}
	segments := e.segments(candles)
	seg := segments[len(segments)-1]
	cols := e.compute(seg)
	last := len(seg) - 1
	values, ok := rowValues(cols, last)
	if !ok {
		return domain.FeatureRow{}, fmt.Errorf("%w: latest candle %s lacks a full warm-up (%d contiguous candles)",
			ports.ErrInsufficientData, seg[last].OpenTime.Format(time.RFC3339), len(seg))
	}
	return domain.FeatureRow{
		OpenTime:  seg[last].OpenTime,
		Values:    values,
		Threshold: cols[e.set.Index(ATRPct)][last] * e.cfg.ThresholdMultiplier,
	}, nil
}

// Label applies the volatility-adaptive rule: BUY iff the forward return strictly exceeds the threshold.
func Label(forwardReturn, threshold float64) domain.Label {
	if forwardReturn > threshold {
		return domain.LabelBuy
	}
	return domain.LabelWait
}

func (e *Engine) checkOrder(candles []domain.Candle) error {
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return fmt.Errorf("%w: candles not strictly ascending at index %d", ports.ErrInvalidRequest, i)
		}
	}
	return nil
}

// segments splits the series into gap-free runs.
func (e *Engine) segments(candles []domain.Candle) [][]domain.Candle {
	if len(candles) == 0 {
		return nil
	}
	var out [][]domain.Candle
	start := 0
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime.Sub(candles[i-1].OpenTime) != e.cfg.Granule {
			out = append(out, candles[start:i])
			start = i
		}
	}
	return append(out, candles[start:])
}

func rowValues(cols [][]float64, i int) ([]float64, bool) {
	values := make([]float64, len(cols))
	for j, col := range cols {
		v := col[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		values[j] = v
	}
	return values, true
}

// compute returns one column per catalogue entry for a gap-free segment.
func (e *Engine) compute(seg []domain.Candle) [][]float64 {
	n := len(seg)
	cfg := e.cfg
	closes := indicators.Closes(seg)
	volumes := indicators.Volumes(seg)

	col := make(map[string][]float64, e.set.Len())
	series := func(name string) []float64 {
		s := make([]float64, n)
		col[name] = s
		return s
	}

	// Macro cycle and calendar.
	days, progress := series(DaysSinceHalving), series(HalvingProgress)
	cycSin, cycCos := series(HalvingCycleSin), series(HalvingCycleCos)
	hourSin, hourCos := series(HourSin), series(HourCos)
	wdSin, wdCos := series(WeekdaySin), series(WeekdayCos)
	for i, c := range seg {
		t := c.OpenTime.UTC()
		d, ok := cfg.Halvings.DaysSince(t)
		p, _ := cfg.Halvings.Progress(t)
		if !ok {
			d, p = math.NaN(), math.NaN()
		}
		days[i], progress[i] = math.Min(d, cfg.Halvings.CycleLengthDays()), p
		cycSin[i], cycCos[i] = math.Sin(2*math.Pi*p), math.Cos(2*math.Pi*p)

		h := float64(t.Hour()) / 24
		w := float64(t.Weekday()) / 7
		hourSin[i], hourCos[i] = math.Sin(2*math.Pi*h), math.Cos(2*math.Pi*h)
		wdSin[i], wdCos[i] = math.Sin(2*math.Pi*w), math.Cos(2*math.Pi*w)
	}

	// Trend and momentum.
	emaShort := indicators.EMA(closes, cfg.ShortWindow)
	emaLong := indicators.EMA(closes, cfg.LongWindow)
	rsi := indicators.WilderRSI(closes, cfg.RSIPeriod)
	macd := indicators.NewMACD(cfg.MACD).Compute(closes)
	logRet := indicators.LogReturns(closes)
	sma := indicators.SMA(closes, cfg.BollingerWindow)
	bbStd := indicators.RollingStd(closes, cfg.BollingerWindow)

	distLong, distShort, cross := series(EMADistLong), series(EMADistShort), series(EMACross)
	rsiScaled := series(RSI)
	macdNorm, macdSig, macdHist := series(MACDNorm), series(MACDSignalNorm), series(MACDHistNorm)
	roc, bb := series(ROC), series(BBPosition)
	for i, c := range closes {
		distLong[i] = (c - emaLong[i]) / emaLong[i]
		distShort[i] = (c - emaShort[i]) / emaShort[i]
		cross[i] = (emaShort[i] - emaLong[i]) / emaLong[i]
		rsiScaled[i] = rsi[i] / 100
		macdNorm[i] = macd.Line[i] / c
		macdSig[i] = macd.Signal[i] / c
		macdHist[i] = macd.Histogram[i] / c
		if i >= cfg.ROCPeriod {
			roc[i] = c/closes[i-cfg.ROCPeriod] - 1
		} else {
			roc[i] = math.NaN()
		}
		switch {
		case math.IsNaN(bbStd[i]):
			bb[i] = math.NaN()
		case bbStd[i] == 0:
			bb[i] = 0
		default:
			bb[i] = clip((c-sma[i])/(cfg.BollingerK*bbStd[i]), -1.5, 1.5)
		}
	}
	col[RSIZ] = indicators.RollingZScore(rsi, cfg.ZWindow)
	col[MACDHistZ] = indicators.RollingZScore(macd.Histogram, cfg.ZWindow)
	col[LogReturn] = logRet
	col[PriceZ] = indicators.RollingZScore(closes, cfg.LongWindow)

	// Volatility.
	atr := indicators.WilderATR(seg, cfg.VolatilityWindow)
	atrPct, rangePct := series(ATRPct), series(RangePct)
	for i, c := range seg {
		atrPct[i] = atr[i] / c.Close
		rangePct[i] = (c.High - c.Low) / c.Close
	}
	atrMean := indicators.RollingMean(atrPct, cfg.LongWindow)
	atrRatio := series(ATRRatio)
	for i := range atrRatio {
		atrRatio[i] = atrPct[i] / atrMean[i]
	}
	col[RealizedVol] = indicators.RollingStd(logRet, cfg.VolatilityWindow)

	// Volume.
	volMean := indicators.RollingMean(volumes, cfg.VolumeWindow)
	volRatio := series(VolumeRatio)
	for i, v := range volumes {
		volRatio[i] = v / volMean[i]
	}
	col[VolumeZ] = indicators.RollingZScore(volumes, cfg.VolumeWindow)
	col[VolumePriceCorr] = indicators.RollingCorrelation(indicators.LogReturns(volumes), logRet, cfg.VolumeWindow)

	out := make([][]float64, e.set.Len())
	for j, spec := range e.set {
		out[j] = col[spec.Name]
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
