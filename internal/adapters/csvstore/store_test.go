package csvstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSniper/internal/domain"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func sampleCandles() []domain.Candle {
	t0 := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Candle{
		{OpenTime: t0, Open: 23000.5, High: 23100, Low: 22950.25, Close: 23050, Volume: 812.125},
		{OpenTime: t0.Add(time.Hour), Open: 23050, High: 23075, Low: 22900, Close: 22910.75, Volume: 1001},
	}
}

func TestRepository_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	repo, err := New(Config{Path: filepath.Join(dir, "nested", "BTCUSDT_1h.csv"), Logger: &mockLogger{}})
	require.NoError(t, err)
	ctx := context.Background()

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded, "missing file should load as empty store")

	want := sampleCandles()
	require.NoError(t, repo.Save(ctx, want))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// No temp files are left behind after the atomic rename.
	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRepository_SaveReplacesContents(t *testing.T) {
	repo, err := New(Config{Path: filepath.Join(t.TempDir(), "c.csv"), Logger: &mockLogger{}})
	require.NoError(t, err)
	ctx := context.Background()

	all := sampleCandles()
	require.NoError(t, repo.Save(ctx, all))
	require.NoError(t, repo.Save(ctx, all[:1]))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReadCandles_BadRecord(t *testing.T) {
	in := "open_time,open,high,low,close,volume\n2023-03-01T00:00:00Z,1,2,0.5,x,3\n"
	_, err := ReadCandles(strings.NewReader(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	assert.Error(t, err)
}
