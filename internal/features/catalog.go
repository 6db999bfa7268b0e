package features

// Kind classifies a feature for the stationarity policy.
type Kind int

const (
	// KindBounded features are stationary by construction: ratios, z-scores, oscillators,
	// fractions, cyclic encodings and counters that reset within a fixed range.
	KindBounded Kind = iota
	// KindTested features must pass the unit-root test on their column.
	KindTested
	// KindRawLevel features are unbounded price or volume levels and are always rejected.
	KindRawLevel
)

func (k Kind) String() string {
	switch k {
	case KindBounded:
		return "bounded"
	case KindTested:
		return "tested"
	case KindRawLevel:
		return "raw_level"
	default:
		return "unknown"
	}
}

// Feature families.
const (
	FamilyMacro      = "macro"
	FamilyTrend      = "trend"
	FamilyVolatility = "volatility"
	FamilyVolume     = "volume"
	FamilyCalendar   = "calendar"
)

// Spec describes one engineered feature.
type Spec struct {
	Name        string
	Family      string
	Kind        Kind
	Description string
}

// FeatureSet is the ordered list of features every FeatureRow is aligned with.
type FeatureSet []Spec

// Names returns the feature names in column order.
func (s FeatureSet) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Index returns the column of name, or -1.
func (s FeatureSet) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Len returns the number of features.
func (s FeatureSet) Len() int { return len(s) }

// Column names.
const (
	DaysSinceHalving = "days_since_halving"
	HalvingProgress  = "halving_progress"
	HalvingCycleSin  = "halving_cycle_sin"
	HalvingCycleCos  = "halving_cycle_cos"

	EMADistLong    = "ema_dist_long"
	EMADistShort   = "ema_dist_short"
	EMACross       = "ema_cross"
	RSI            = "rsi"
	RSIZ           = "rsi_z"
	MACDNorm       = "macd_norm"
	MACDSignalNorm = "macd_signal_norm"
	MACDHistNorm   = "macd_hist_norm"
	MACDHistZ      = "macd_hist_z"
	ROC            = "roc_24"
	LogReturn      = "log_return"
	PriceZ         = "price_z"
	BBPosition     = "bb_position"

	ATRPct      = "atr_pct"
	ATRRatio    = "atr_ratio"
	RangePct    = "range_pct"
	RealizedVol = "realized_vol"

	VolumeRatio     = "volume_ratio"
	VolumeZ         = "volume_z"
	VolumePriceCorr = "volume_price_corr"

	HourSin    = "hour_sin"
	HourCos    = "hour_cos"
	WeekdaySin = "weekday_sin"
	WeekdayCos = "weekday_cos"
)

// Catalog is the full feature set in column order.
func Catalog() FeatureSet {
	return FeatureSet{
		// Resets at each halving; capped at the cycle length (1461 days by default) when the schedule
		// lacks the next epoch, so it stays in [0, cycle length].
		{DaysSinceHalving, FamilyMacro, KindBounded, "days since the last halving, in [0, cycle length]"},
		{HalvingProgress, FamilyMacro, KindBounded, "fraction of the nominal cycle elapsed, clamped to [0,1]"},
		{HalvingCycleSin, FamilyMacro, KindBounded, "sine of the cycle phase"},
		{HalvingCycleCos, FamilyMacro, KindBounded, "cosine of the cycle phase"},

		{EMADistLong, FamilyTrend, KindBounded, "(close - long EMA) / long EMA"},
		{EMADistShort, FamilyTrend, KindBounded, "(close - short EMA) / short EMA"},
		{EMACross, FamilyTrend, KindBounded, "(short EMA - long EMA) / long EMA"},
		{RSI, FamilyTrend, KindBounded, "Wilder RSI scaled to [0,1]"},
		{RSIZ, FamilyTrend, KindBounded, "rolling z-score of RSI"},
		{MACDNorm, FamilyTrend, KindBounded, "MACD line / close"},
		{MACDSignalNorm, FamilyTrend, KindBounded, "MACD signal line / close"},
		{MACDHistNorm, FamilyTrend, KindBounded, "MACD histogram / close"},
		{MACDHistZ, FamilyTrend, KindBounded, "rolling z-score of the MACD histogram"},
		{ROC, FamilyTrend, KindBounded, "rate of change over the ROC period"},
		{LogReturn, FamilyTrend, KindTested, "one-period log return"},
		{PriceZ, FamilyTrend, KindBounded, "rolling z-score of close over the long window"},
		{BBPosition, FamilyTrend, KindBounded, "position inside the Bollinger bands, clipped to [-1.5,1.5]"},

		{ATRPct, FamilyVolatility, KindBounded, "Wilder ATR / close"},
		{ATRRatio, FamilyVolatility, KindBounded, "atr_pct / its long-window mean"},
		{RangePct, FamilyVolatility, KindBounded, "(high - low) / close"},
		{RealizedVol, FamilyVolatility, KindBounded, "standard deviation of log returns over the volatility window"},

		{VolumeRatio, FamilyVolume, KindBounded, "volume / rolling mean volume"},
		{VolumeZ, FamilyVolume, KindBounded, "rolling z-score of volume"},
		{VolumePriceCorr, FamilyVolume, KindBounded, "rolling correlation of log volume change and log return"},

		{HourSin, FamilyCalendar, KindBounded, "sine of the hour of day"},
		{HourCos, FamilyCalendar, KindBounded, "cosine of the hour of day"},
		{WeekdaySin, FamilyCalendar, KindBounded, "sine of the weekday"},
		{WeekdayCos, FamilyCalendar, KindBounded, "cosine of the weekday"},
	}
}
