package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSniper/internal/adapters/logger"
	"cryptoSniper/internal/domain"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.Equal(t, "1h", cfg.Interval)
	assert.Equal(t, 4, cfg.LookbackYears)
	assert.Equal(t, 1000, cfg.PageLimit)
	assert.Equal(t, 24, cfg.VolatilityWindow)
	assert.Equal(t, 0.5, cfg.ThresholdMultiplierK)
	assert.Equal(t, 5, cfg.FoldCount)
	assert.Equal(t, 20, cfg.SearchTrialCount)
	assert.Equal(t, 0.65, cfg.ConfidenceThreshold)
	assert.Equal(t, 0.05, cfg.SignificanceLevel)
	assert.Equal(t, "precision", cfg.ScoringMetric)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, "./data/BTCUSDT_1h.csv", cfg.CandleFile)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SYMBOL", "ethusdt")
	t.Setenv("LOOKBACK_YEARS", "2")
	t.Setenv("PAGE_LIMIT", "500")
	t.Setenv("THRESHOLD_MULTIPLIER_K", "0.75")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.7")
	t.Setenv("SCORING_METRIC", "F0.5")
	t.Setenv("RETRY_BASE_DELAY_MS", "250")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, 2, cfg.LookbackYears)
	assert.Equal(t, 500, cfg.PageLimit)
	assert.Equal(t, 0.75, cfg.ThresholdMultiplierK)
	assert.Equal(t, 0.7, cfg.ConfidenceThreshold)
	assert.Equal(t, "f0.5", cfg.ScoringMetric)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, "./data/ETHUSDT_1h.csv", cfg.CandleFile)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestFromEnv_CollectsValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"page limit too large", "PAGE_LIMIT", "5000"},
		{"page limit not a number", "PAGE_LIMIT", "many"},
		{"zero lookback", "LOOKBACK_YEARS", "0"},
		{"gap fraction above one", "MAX_GAP_FRACTION", "1.5"},
		{"single fold", "FOLD_COUNT", "1"},
		{"confidence at one", "CONFIDENCE_THRESHOLD", "1"},
		{"significance zero", "SIGNIFICANCE_LEVEL", "0"},
		{"negative multiplier", "THRESHOLD_MULTIPLIER_K", "-1"},
		{"other interval", "INTERVAL", "4h"},
		{"unknown log format", "LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}

	t.Run("errors are joined", func(t *testing.T) {
		t.Setenv("FOLD_COUNT", "1")
		t.Setenv("PAGE_LIMIT", "0")
		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FOLD_COUNT")
		assert.Contains(t, err.Error(), "PAGE_LIMIT")
	})
}

func TestHalvings(t *testing.T) {
	cfg := &Config{}
	schedule, err := cfg.Halvings()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultHalvings(), schedule.Epochs())

	path := filepath.Join(t.TempDir(), "halvings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cycle_length_days: 1400
halvings:
  - 2024-04-20
  - 2020-05-11T00:00:00Z
`), 0o600))
	cfg.HalvingFile = path
	schedule, err = cfg.Halvings()
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2020, 5, 11, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC),
	}, schedule.Epochs())
	assert.Equal(t, 1400.0, schedule.CycleLengthDays())
}

func TestParseHalvingSchedule_Errors(t *testing.T) {
	for _, doc := range []string{
		"halvings: []",
		"halvings: [yesterday]",
		"halvings: {",
	} {
		_, err := ParseHalvingSchedule([]byte(doc))
		assert.Error(t, err, doc)
	}
}
