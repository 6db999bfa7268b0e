package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"cryptoSniper/config"
	"cryptoSniper/internal/adapters/binanceclient"
	"cryptoSniper/internal/adapters/csvstore"
	"cryptoSniper/internal/adapters/logger"
	"cryptoSniper/internal/candles"
	"cryptoSniper/internal/miner"
)

// fetch_klines mines candles into a CSV file without touching the model registry.
func main() {
	symbol := flag.String("symbol", "", "Trading pair, defaults to SYMBOL")
	years := flag.Int("years", 0, "Lookback in years, defaults to LOOKBACK_YEARS")
	out := flag.String("out", "", "CSV output path, defaults to CANDLE_FILE")
	endFlag := flag.String("end", "", "Mine candles closed by this instant (RFC3339), defaults to now")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	if *symbol != "" {
		cfg.Symbol = strings.ToUpper(*symbol)
		cfg.CandleFile = fmt.Sprintf("./data/%s_%s.csv", cfg.Symbol, cfg.Interval)
	}
	if *years > 0 {
		cfg.LookbackYears = *years
	}
	if *out != "" {
		cfg.CandleFile = *out
	}
	var end time.Time
	if *endFlag != "" {
		if end, err = time.Parse(time.RFC3339, *endFlag); err != nil {
			log.Fatalf("FATAL: Invalid -end: %v", err)
		}
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	source, err := miner.NewBreakerSource(binanceClient, miner.BreakerConfig{
		Name:                cfg.Symbol + "-klines",
		ConsecutiveFailures: uint32(cfg.BreakerFailures),
		Logger:              appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	repo, err := csvstore.New(csvstore.Config{Path: cfg.CandleFile, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	existing, err := repo.Load(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading candle store")
		log.Fatalf("Error loading candle store: %v", err)
	}
	store, _ := candles.FromCandles(time.Hour, existing)

	retry := miner.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxRetries
	retry.BaseDelay = cfg.RetryBaseDelay
	m, err := miner.New(miner.Config{
		Symbol:            cfg.Symbol,
		Interval:          cfg.Interval,
		Granule:           time.Hour,
		LookbackYears:     cfg.LookbackYears,
		PageLimit:         cfg.PageLimit,
		MaxGapFraction:    cfg.MaxGapFraction,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Retry:             retry,
	}, source, appLogger, miner.WithRepository(repo))
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	fmt.Printf("Mining %s %s klines, %d years back, into %s...\n", cfg.Symbol, cfg.Interval, cfg.LookbackYears, cfg.CandleFile)
	report, mineErr := m.Mine(ctx, store, end)
	if err := repo.Save(ctx, store.Candles()); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	fmt.Printf("stored=%d added=%d duplicates=%d invalid=%d gaps=%d missing=%d calls=%d\n",
		report.Stored, report.Added, report.Duplicates, report.Invalid, report.Gaps, report.MissingCandles, report.Calls)
	if mineErr != nil {
		log.Fatalf("Mining stopped: %v", mineErr)
	}
}
