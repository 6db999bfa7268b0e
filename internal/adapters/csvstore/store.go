package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/ports"
)

var header = []string{"open_time", "open", "high", "low", "close", "volume"}

// Repository implements ports.CandleRepository on a single CSV file.
type Repository struct {
	path   string
	logger ports.Logger
}

// Config holds configuration for the CSV candle repository.
type Config struct {
	Path   string
	Logger ports.Logger
}

// New creates a CSV-backed candle repository.
func New(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for CSV candle repository")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: candle file path must be set", ports.ErrConfigurationError)
	}
	return &Repository{path: cfg.Path, logger: cfg.Logger}, nil
}

// Path returns the backing file path.
func (r *Repository) Path() string { return r.path }

// Load reads all candles from the file. A missing file is not an error.
func (r *Repository) Load(ctx context.Context) ([]domain.Candle, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Info(ctx, "Candle file not found, starting with an empty store", map[string]interface{}{"path": r.path})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open candle file '%s': %w", r.path, err)
	}
	defer f.Close()

	candles, err := ReadCandles(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read candle file '%s': %w", r.path, err)
	}
	r.logger.Debug(ctx, "Candles loaded", map[string]interface{}{"path": r.path, "count": len(candles)})
	return candles, nil
}

// Save writes candles to a temporary file in the target directory and renames it over the
// target, so a crash never leaves a truncated store behind.
func (r *Repository) Save(ctx context.Context, candles []domain.Candle) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in '%s': %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := WriteCandles(tmp, candles); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write candles: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace candle file '%s': %w", r.path, err)
	}
	r.logger.Debug(ctx, "Candles saved", map[string]interface{}{"path": r.path, "count": len(candles)})
	return nil
}

// WriteCandles encodes candles as CSV with a header row.
func WriteCandles(w io.Writer, candles []domain.Candle) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, c := range candles {
		err := writer.Write([]string{
			c.OpenTime.UTC().Format(time.RFC3339),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCandles decodes CSV produced by WriteCandles.
func ReadCandles(r io.Reader) ([]domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	if records[0][0] == header[0] {
		records = records[1:]
	}

	candles := make([]domain.Candle, 0, len(records))
	for i, rec := range records {
		c, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseRecord(rec []string) (domain.Candle, error) {
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing open_time '%s': %w", rec[0], err)
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parsing %s '%s': %w", header[i+1], rec[i+1], err)
		}
		vals[i] = v
	}
	return domain.Candle{
		OpenTime: ts.UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}
