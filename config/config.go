package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cryptoSniper/internal/adapters/logger" // Import the logger package for LogLevel
	"cryptoSniper/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (klines are public, keys are optional)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market
	Symbol   string
	Interval string

	// Mining
	LookbackYears     int
	PageLimit         int     // rows per klines call, at most 1000
	MaxGapFraction    float64 // tolerated missing share of the horizon
	RequestsPerSecond float64
	MaxRetries        int
	RetryBaseDelay    time.Duration
	BreakerFailures   int // consecutive failures before the source circuit opens

	// Features and labels
	VolatilityWindow     int
	ThresholdMultiplierK float64
	HalvingFile          string // optional YAML override of the halving schedule

	// Stationarity
	SignificanceLevel float64

	// Search
	FoldCount        int
	FoldGap          int
	SearchTrialCount int
	ScoringMetric    string
	MinPositives     int
	RandomSeed       int64
	SearchWorkers    int
	SearchSpaceFile  string

	// Signal
	ConfidenceThreshold float64
	ExtremeZ            float64
	TopFeatures         int

	// Files
	CandleFile  string
	DBPath      string
	MetricsFile string // Prometheus textfile written at the end of a run; empty disables

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // "console" or "json"
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false) // Testnet history is too short for research

	// Market
	cfg.Symbol = strings.ToUpper(getEnv("SYMBOL", "BTCUSDT"))
	cfg.Interval = getEnv("INTERVAL", "1h")
	if cfg.Interval != "1h" {
		errs = append(errs, fmt.Sprintf("INTERVAL must be 1h, got %s", cfg.Interval))
	}

	// Mining
	cfg.LookbackYears, err = getEnvAsIntRequired("LOOKBACK_YEARS", 4)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOOKBACK_YEARS: %v", err))
	} else if cfg.LookbackYears <= 0 {
		errs = append(errs, "LOOKBACK_YEARS must be positive")
	}

	cfg.PageLimit, err = getEnvAsIntRequired("PAGE_LIMIT", 1000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAGE_LIMIT: %v", err))
	} else if cfg.PageLimit <= 0 || cfg.PageLimit > 1000 {
		errs = append(errs, "PAGE_LIMIT must be between 1 and 1000")
	}

	cfg.MaxGapFraction, err = getEnvAsFloatRequired("MAX_GAP_FRACTION", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_GAP_FRACTION: %v", err))
	} else if cfg.MaxGapFraction < 0 || cfg.MaxGapFraction > 1 {
		errs = append(errs, "MAX_GAP_FRACTION must be between 0.0 and 1.0")
	}

	cfg.RequestsPerSecond, err = getEnvAsFloatRequired("REQUESTS_PER_SECOND", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REQUESTS_PER_SECOND: %v", err))
	} else if cfg.RequestsPerSecond < 0 {
		errs = append(errs, "REQUESTS_PER_SECOND cannot be negative")
	}

	cfg.MaxRetries = getEnvAsInt("MAX_RETRIES", 5)
	if cfg.MaxRetries <= 0 {
		errs = append(errs, "MAX_RETRIES must be positive")
	}
	retryDelayMs := getEnvAsInt("RETRY_BASE_DELAY_MS", 500)
	if retryDelayMs <= 0 {
		errs = append(errs, "RETRY_BASE_DELAY_MS must be positive")
	}
	cfg.RetryBaseDelay = time.Duration(retryDelayMs) * time.Millisecond

	cfg.BreakerFailures = getEnvAsInt("BREAKER_FAILURES", 5)
	if cfg.BreakerFailures <= 0 {
		errs = append(errs, "BREAKER_FAILURES must be positive")
	}

	// Features and labels
	cfg.VolatilityWindow, err = getEnvAsIntRequired("VOLATILITY_WINDOW", 24)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid VOLATILITY_WINDOW: %v", err))
	} else if cfg.VolatilityWindow < 2 {
		errs = append(errs, "VOLATILITY_WINDOW must be at least 2")
	}

	cfg.ThresholdMultiplierK, err = getEnvAsFloatRequired("THRESHOLD_MULTIPLIER_K", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid THRESHOLD_MULTIPLIER_K: %v", err))
	} else if cfg.ThresholdMultiplierK <= 0 {
		errs = append(errs, "THRESHOLD_MULTIPLIER_K must be positive")
	}
	cfg.HalvingFile = getEnv("HALVING_FILE", "")

	// Stationarity
	cfg.SignificanceLevel, err = getEnvAsFloatRequired("SIGNIFICANCE_LEVEL", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIGNIFICANCE_LEVEL: %v", err))
	} else if cfg.SignificanceLevel <= 0 || cfg.SignificanceLevel >= 1 {
		errs = append(errs, "SIGNIFICANCE_LEVEL must be between 0.0 and 1.0 (exclusive)")
	}

	// Search
	cfg.FoldCount, err = getEnvAsIntRequired("FOLD_COUNT", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FOLD_COUNT: %v", err))
	} else if cfg.FoldCount < 2 {
		errs = append(errs, "FOLD_COUNT must be at least 2")
	}

	cfg.FoldGap = getEnvAsInt("FOLD_GAP", 0)
	if cfg.FoldGap < 0 {
		errs = append(errs, "FOLD_GAP cannot be negative")
	}

	cfg.SearchTrialCount, err = getEnvAsIntRequired("SEARCH_TRIAL_COUNT", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SEARCH_TRIAL_COUNT: %v", err))
	} else if cfg.SearchTrialCount <= 0 {
		errs = append(errs, "SEARCH_TRIAL_COUNT must be positive")
	}

	cfg.ScoringMetric = strings.ToLower(getEnv("SCORING_METRIC", "precision"))
	cfg.MinPositives = getEnvAsInt("MIN_POSITIVES", 5)
	if cfg.MinPositives <= 0 {
		errs = append(errs, "MIN_POSITIVES must be positive")
	}
	cfg.RandomSeed = int64(getEnvAsInt("RANDOM_SEED", 42))
	cfg.SearchWorkers = getEnvAsInt("SEARCH_WORKERS", runtime.GOMAXPROCS(0))
	if cfg.SearchWorkers <= 0 {
		errs = append(errs, "SEARCH_WORKERS must be positive")
	}
	cfg.SearchSpaceFile = getEnv("SEARCH_SPACE_FILE", "")

	// Signal
	cfg.ConfidenceThreshold, err = getEnvAsFloatRequired("CONFIDENCE_THRESHOLD", 0.65)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CONFIDENCE_THRESHOLD: %v", err))
	} else if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold >= 1 {
		errs = append(errs, "CONFIDENCE_THRESHOLD must be between 0.0 and 1.0 (exclusive)")
	}
	cfg.ExtremeZ = getEnvAsFloat("EXTREME_Z", 1.5)
	if cfg.ExtremeZ < 0 {
		errs = append(errs, "EXTREME_Z cannot be negative")
	}
	cfg.TopFeatures = getEnvAsInt("TOP_FEATURES", 5)
	if cfg.TopFeatures <= 0 {
		errs = append(errs, "TOP_FEATURES must be positive")
	}

	// Files
	cfg.CandleFile = getEnv("CANDLE_FILE", fmt.Sprintf("./data/%s_%s.csv", cfg.Symbol, cfg.Interval))
	cfg.DBPath = getEnv("DB_PATH", "./data/sniper.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}
	cfg.MetricsFile = getEnv("METRICS_FILE", "")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "console"))
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be console or json")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Halvings returns the halving schedule, read from HalvingFile when set.
func (c *Config) Halvings() (domain.HalvingSchedule, error) {
	if c.HalvingFile == "" {
		return domain.NewHalvingSchedule(domain.DefaultHalvings(), domain.DefaultCycleLengthDays), nil
	}
	return LoadHalvingSchedule(c.HalvingFile)
}

// halvingFile is the YAML layout of a halving override.
type halvingFile struct {
	CycleLengthDays float64  `yaml:"cycle_length_days"`
	Halvings        []string `yaml:"halvings"`
}

// LoadHalvingSchedule reads a YAML file listing halving dates (YYYY-MM-DD or RFC3339).
func LoadHalvingSchedule(path string) (domain.HalvingSchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.HalvingSchedule{}, fmt.Errorf("reading halving file %s: %w", path, err)
	}
	return ParseHalvingSchedule(data)
}

// ParseHalvingSchedule decodes the YAML halving layout.
func ParseHalvingSchedule(data []byte) (domain.HalvingSchedule, error) {
	var file halvingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return domain.HalvingSchedule{}, fmt.Errorf("parsing halving file: %w", err)
	}
	if len(file.Halvings) == 0 {
		return domain.HalvingSchedule{}, fmt.Errorf("halving file lists no dates")
	}
	epochs := make([]time.Time, 0, len(file.Halvings))
	for _, s := range file.Halvings {
		t, err := parseDate(s)
		if err != nil {
			return domain.HalvingSchedule{}, err
		}
		epochs = append(epochs, t)
	}
	return domain.NewHalvingSchedule(epochs, file.CycleLengthDays), nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid halving date %q (want YYYY-MM-DD or RFC3339)", s)
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
