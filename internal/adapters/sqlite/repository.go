package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.ModelRepository and ports.SignalRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for SQLite repository", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/sniper.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite registry ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS model_runs (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		metric TEXT NOT NULL,
		cv_score REAL NOT NULL,
		fold_scores TEXT NOT NULL,
		hyperparameters TEXT NOT NULL,
		feature_names TEXT NOT NULL,
		importances TEXT NOT NULL,
		feature_stats TEXT NOT NULL,
		model BLOB NOT NULL,
		train_rows INTEGER NOT NULL,
		trained_through TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		open_time TIMESTAMP NOT NULL,
		class TEXT NOT NULL,
		probability REAL NOT NULL,
		threshold REAL NOT NULL,
		top_features TEXT NOT NULL,
		model_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_model_runs_symbol_created ON model_runs (symbol, created_at);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol_open_time ON signals (symbol, open_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- ModelRepository Implementation ---

// SaveArtifact stores a training run. Artifacts are immutable, so saving an existing ID fails.
func (r *Repository) SaveArtifact(ctx context.Context, symbol string, artifact *domain.ModelArtifact, model []byte) error {
	if artifact == nil || artifact.ID == "" {
		return fmt.Errorf("%w: artifact with an ID is required", ports.ErrInvalidRequest)
	}
	const query = `
	INSERT INTO model_runs (id, symbol, metric, cv_score, fold_scores, hyperparameters, feature_names,
	                        importances, feature_stats, model, train_rows, trained_through, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	encoded, err := marshalAll(artifact.FoldScores, artifact.Hyperparameters, artifact.FeatureNames,
		artifact.Importances, artifact.FeatureStats)
	if err != nil {
		return fmt.Errorf("failed to encode artifact %s: %w", artifact.ID, err)
	}

	_, err = r.db.ExecContext(ctx, query,
		artifact.ID, symbol, artifact.Metric, artifact.CVScore, encoded[0], encoded[1], encoded[2],
		encoded[3], encoded[4], model, artifact.TrainRows, artifact.TrainedThrough.UTC(), artifact.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert model run %s for symbol %s: %w: %w", artifact.ID, symbol, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Model run saved", map[string]interface{}{
		"artifactId": artifact.ID, "symbol": symbol, "cvScore": artifact.CVScore, "modelBytes": len(model),
	})
	return nil
}

// LatestArtifact returns the most recent run for symbol, or nil when none exists.
func (r *Repository) LatestArtifact(ctx context.Context, symbol string) (*ports.ArtifactRecord, error) {
	const query = `
	SELECT id, symbol, metric, cv_score, fold_scores, hyperparameters, feature_names, importances,
	       feature_stats, model, train_rows, trained_through, created_at
	FROM model_runs
	WHERE symbol = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`

	rec, err := scanArtifact(r.db.QueryRowContext(ctx, query, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "No model run found for symbol", map[string]interface{}{"symbol": symbol})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query latest model run for symbol %s: %w", symbol, err)
	}
	return rec, nil
}

// --- SignalRepository Implementation ---

// SaveSignal saves a signal and returns its assigned ID.
func (r *Repository) SaveSignal(ctx context.Context, symbol string, sig domain.Signal) (int64, error) {
	const query = `
	INSERT INTO signals (symbol, open_time, class, probability, threshold, top_features, model_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	top, err := json.Marshal(nonNil(sig.TopFeatures))
	if err != nil {
		return 0, fmt.Errorf("failed to encode top features: %w", err)
	}
	result, err := r.db.ExecContext(ctx, query,
		symbol, sig.OpenTime.UTC(), string(sig.Class), sig.Probability, sig.Threshold, string(top), sig.ModelID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert signal for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for signal %s: %w", symbol, err)
	}
	r.logger.Debug(ctx, "Signal saved", map[string]interface{}{"signalID": id, "symbol": symbol, "class": string(sig.Class)})
	return id, nil
}

// RecentSignals retrieves the most recent signals for a symbol, up to a limit.
func (r *Repository) RecentSignals(ctx context.Context, symbol string, limit int) ([]domain.Signal, error) {
	const query = `
	SELECT open_time, class, probability, threshold, top_features, model_id
	FROM signals
	WHERE symbol = ? ORDER BY open_time DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	signals := make([]domain.Signal, 0)
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal during RecentSignals: %w", err)
		}
		signals = append(signals, sig)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", err)
	}
	return signals, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanArtifact(s scanner) (*ports.ArtifactRecord, error) {
	rec := &ports.ArtifactRecord{}
	var foldScores, params, names, importances, stats string
	err := s.Scan(&rec.ID, &rec.Symbol, &rec.Metric, &rec.CVScore, &foldScores, &params, &names,
		&importances, &stats, &rec.Model, &rec.TrainRows, &rec.TrainedThrough, &rec.CreatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	targets := []struct {
		raw string
		dst interface{}
	}{
		{foldScores, &rec.FoldScores},
		{params, &rec.Hyperparameters},
		{names, &rec.FeatureNames},
		{importances, &rec.Importances},
		{stats, &rec.FeatureStats},
	}
	for _, t := range targets {
		if err := json.Unmarshal([]byte(t.raw), t.dst); err != nil {
			return nil, fmt.Errorf("decoding model run %s: %w", rec.ID, err)
		}
	}
	rec.TrainedThrough = rec.TrainedThrough.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func scanSignal(s scanner) (domain.Signal, error) {
	var sig domain.Signal
	var class, top string
	if err := s.Scan(&sig.OpenTime, &class, &sig.Probability, &sig.Threshold, &top, &sig.ModelID); err != nil {
		return domain.Signal{}, err
	}
	sig.Class = domain.SignalClass(class)
	sig.OpenTime = sig.OpenTime.UTC()
	if err := json.Unmarshal([]byte(top), &sig.TopFeatures); err != nil {
		return domain.Signal{}, fmt.Errorf("decoding top features: %w", err)
	}
	return sig, nil
}

func marshalAll(values ...interface{}) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = string(data)
	}
	return out, nil
}

func nonNil(c []domain.Contribution) []domain.Contribution {
	if c == nil {
		return []domain.Contribution{}
	}
	return c
}
