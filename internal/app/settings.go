package app

import (
	"time"

	"cryptoSniper/config"
	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/features"
	"cryptoSniper/internal/inference"
	"cryptoSniper/internal/miner"
	"cryptoSniper/internal/stationarity"
	"cryptoSniper/internal/validation"
)

func minerConfig(cfg *config.Config) miner.Config {
	retry := miner.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxRetries
	retry.BaseDelay = cfg.RetryBaseDelay
	return miner.Config{
		Symbol:            cfg.Symbol,
		Interval:          cfg.Interval,
		Granule:           time.Hour,
		LookbackYears:     cfg.LookbackYears,
		PageLimit:         cfg.PageLimit,
		MaxGapFraction:    cfg.MaxGapFraction,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Retry:             retry,
	}
}

func featureConfig(cfg *config.Config, halvings domain.HalvingSchedule) features.Config {
	fc := features.DefaultConfig()
	fc.VolatilityWindow = cfg.VolatilityWindow
	fc.ThresholdMultiplier = cfg.ThresholdMultiplierK
	fc.Halvings = halvings
	return fc
}

func stationarityConfig(cfg *config.Config) stationarity.Config {
	sc := stationarity.DefaultConfig()
	sc.Significance = cfg.SignificanceLevel
	return sc
}

func validationConfig(cfg *config.Config) (validation.Config, error) {
	vc := validation.DefaultConfig()
	vc.Folds = cfg.FoldCount
	vc.Gap = cfg.FoldGap
	vc.Trials = cfg.SearchTrialCount
	vc.Metric = cfg.ScoringMetric
	vc.MinPositives = cfg.MinPositives
	vc.Seed = cfg.RandomSeed
	vc.Workers = cfg.SearchWorkers
	if cfg.SearchSpaceFile != "" {
		space, err := validation.LoadSearchSpace(cfg.SearchSpaceFile)
		if err != nil {
			return validation.Config{}, err
		}
		vc.Space = space
	}
	return vc, nil
}

func inferenceConfig(cfg *config.Config) inference.Config {
	return inference.Config{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		ExtremeZ:            cfg.ExtremeZ,
		TopN:                cfg.TopFeatures,
	}
}
