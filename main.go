package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cryptoSniper/config"
	"cryptoSniper/internal/adapters/binanceclient"
	"cryptoSniper/internal/adapters/csvstore"
	"cryptoSniper/internal/adapters/logger"
	"cryptoSniper/internal/adapters/sqlite"
	"cryptoSniper/internal/app"
	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/metrics"
	"cryptoSniper/internal/ml/forest"
	"cryptoSniper/internal/ports"
)

var (
	symbolFlag  string
	jsonOutput  bool
	signalLimit int
)

// runtime holds everything a command needs; close releases the database.
type runtime struct {
	cfg     *config.Config
	logger  ports.Logger
	service *app.PipelineService
	db      *sqlite.Repository
	metrics *metrics.Registry
}

var current *runtime

var rootCmd = &cobra.Command{
	Use:   "sniper",
	Short: "Hourly BUY/WAIT signal pipeline for a crypto spot pair",
	Long: `sniper mines hourly klines from Binance, builds stationary features with
volatility-adaptive labels, tunes a random forest under walk-forward validation
and emits a BUY or WAIT signal for the latest closed candle.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Name() == "mine" || cmd.Name() == "run")
		if err != nil {
			return err
		}
		current = rt
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		current.close()
	},
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Extend the local candle store up to the last closed candle",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := current.service.Mine(cmd.Context())
		printValue(cmd, map[string]interface{}{
			"added": report.Added, "duplicates": report.Duplicates, "invalid": report.Invalid,
			"gaps": report.Gaps, "missing": report.MissingCandles, "stored": report.Stored, "calls": report.Calls,
		})
		return err
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Build the dataset, run the walk-forward search and record a model",
	RunE: func(cmd *cobra.Command, args []string) error {
		artifact, report, err := current.service.Train(cmd.Context())
		if err != nil {
			return err
		}
		out := map[string]interface{}{
			"model_id": artifact.ID, "metric": report.Metric, "cv_score": artifact.CVScore,
			"fold_scores": artifact.FoldScores, "skipped_folds": report.SkippedFolds,
			"train_rows": artifact.TrainRows, "trained_through": artifact.TrainedThrough,
			"duration": report.Duration.String(),
		}
		if len(artifact.Importances) > 0 {
			n := len(artifact.Importances)
			if n > 10 {
				n = 10
			}
			out["top_importances"] = artifact.Importances[:n]
		}
		printValue(cmd, out)
		return nil
	},
}

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Score the latest candle with the most recent model",
	RunE: func(cmd *cobra.Command, args []string) error {
		sig, err := current.service.Signal(cmd.Context())
		if err != nil {
			return err
		}
		printSignal(cmd, sig)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Mine, train and emit a signal in one pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		sig, err := current.service.Run(cmd.Context())
		if err != nil {
			return err
		}
		printSignal(cmd, sig)
		return nil
	},
}

var stationarityCmd = &cobra.Command{
	Use:   "stationarity",
	Short: "Compare the raw close series with its log-difference",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmp, err := current.service.Stationarity(cmd.Context())
		if err != nil {
			return err
		}
		printValue(cmd, map[string]interface{}{
			"raw_p_value": cmp.Raw.PValue, "raw_stationary": cmp.Raw.IsStationary,
			"log_diff_p_value": cmp.LogDiff.PValue, "log_diff_stationary": cmp.LogDiff.IsStationary,
			"log_diff_statistic": cmp.LogDiff.Statistic, "lags": cmp.LogDiff.Lags,
		})
		return nil
	},
}

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "List recently emitted signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		sigs, err := current.db.RecentSignals(cmd.Context(), current.cfg.Symbol, signalLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printValue(cmd, sigs)
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "OPEN TIME\tCLASS\tPROBABILITY\tMODEL")
		for _, s := range sigs {
			fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\n", s.OpenTime.Format(time.RFC3339), s.Class, s.Probability, s.ModelID)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&symbolFlag, "symbol", "", "Trading pair, overrides SYMBOL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	signalsCmd.Flags().IntVar(&signalLimit, "limit", 24, "Number of signals to list")

	rootCmd.AddCommand(mineCmd, trainCmd, signalCmd, runCmd, stationarityCmd, signalsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if current != nil {
			current.close()
		}
		os.Exit(1)
	}
}

func bootstrap(withSource bool) (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if symbolFlag != "" {
		cfg.Symbol = strings.ToUpper(symbolFlag)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "symbol": cfg.Symbol})

	candleRepo, err := csvstore.New(csvstore.Config{Path: cfg.CandleFile, Logger: appLogger})
	if err != nil {
		return nil, err
	}
	db, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "Failed to initialize database repository")
		return nil, err
	}

	reg := metrics.NewRegistry()
	clf := forest.New()
	deps := app.Dependencies{
		Candles:    candleRepo,
		Models:     db,
		Signals:    db,
		Classifier: clf,
		Codec:      clf,
		Metrics:    reg,
	}
	if withSource {
		client, err := binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     appLogger,
		})
		if err != nil {
			db.Close()
			appLogger.Error(ctx, err, "Failed to initialize Binance client")
			return nil, err
		}
		deps.Source = client
	}

	svc, err := app.NewPipelineService(cfg, appLogger, deps)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, logger: appLogger, service: svc, db: db, metrics: reg}, nil
}

func (rt *runtime) close() {
	if rt == nil || rt.db == nil {
		return
	}
	ctx := context.Background()
	if rt.cfg.MetricsFile != "" {
		if err := rt.metrics.WriteTextfile(rt.cfg.MetricsFile); err != nil {
			rt.logger.Error(ctx, err, "Failed to write metrics textfile", map[string]interface{}{"path": rt.cfg.MetricsFile})
		}
	}
	if err := rt.db.Close(); err != nil {
		rt.logger.Error(ctx, err, "Error closing database repository")
	}
	rt.db = nil
}

func printSignal(cmd *cobra.Command, sig domain.Signal) {
	if jsonOutput {
		printValue(cmd, sig)
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s  %s  p=%.4f (threshold %.2f)  model %s\n",
		current.cfg.Symbol, sig.OpenTime.Format(time.RFC3339), sig.Class, sig.Probability, sig.Threshold, sig.ModelID)
	for _, c := range sig.TopFeatures {
		fmt.Fprintf(out, "  %-22s value=%.5f z=%+.2f importance=%.4f\n", c.Name, c.Value, c.ZScore, c.Importance)
	}
}

func printValue(cmd *cobra.Command, v interface{}) {
	if !jsonOutput {
		if m, ok := v.(map[string]interface{}); ok {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%v\n", k, m[k])
			}
			w.Flush()
			return
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
