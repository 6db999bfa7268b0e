package candles

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSniper/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candleAt(h int, price float64) domain.Candle {
	return domain.Candle{
		OpenTime: t0.Add(time.Duration(h) * time.Hour),
		Open:     price,
		High:     price * 1.01,
		Low:      price * 0.99,
		Close:    price,
		Volume:   10,
	}
}

func hours(from, to int) []domain.Candle {
	out := make([]domain.Candle, 0, to-from)
	for h := from; h < to; h++ {
		out = append(out, candleAt(h, 100+float64(h)))
	}
	return out
}

func assertStrictlyIncreasing(t *testing.T, s *Store) {
	t.Helper()
	cs := s.Candles()
	for i := 1; i < len(cs); i++ {
		require.True(t, cs[i].OpenTime.After(cs[i-1].OpenTime), "timestamps not strictly increasing at %d", i)
	}
}

func TestStore_MergeOverlappingPages(t *testing.T) {
	tests := []struct {
		name      string
		pages     [][]domain.Candle
		wantLen   int
		wantDups  int
		wantAdded int
	}{
		{
			name:      "reverse pages overlapping by one candle",
			pages:     [][]domain.Candle{hours(10, 20), hours(0, 11)},
			wantLen:   20,
			wantDups:  1,
			wantAdded: 20,
		},
		{
			name:      "identical page merged twice",
			pages:     [][]domain.Candle{hours(0, 5), hours(0, 5)},
			wantLen:   5,
			wantDups:  5,
			wantAdded: 5,
		},
		{
			name:      "duplicates inside a single page",
			pages:     [][]domain.Candle{append(hours(0, 3), hours(1, 3)...)},
			wantLen:   3,
			wantDups:  2,
			wantAdded: 3,
		},
		{
			name:      "unsorted page",
			pages:     [][]domain.Candle{{candleAt(3, 1), candleAt(1, 1), candleAt(2, 1)}},
			wantLen:   3,
			wantAdded: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(time.Hour)
			var dups, added int
			for _, p := range tt.pages {
				st := s.Merge(p)
				dups += st.Duplicates
				added += st.Added
			}
			assert.Equal(t, tt.wantLen, s.Len())
			assert.Equal(t, tt.wantDups, dups)
			assert.Equal(t, tt.wantAdded, added)
			assertStrictlyIncreasing(t, s)
			assert.True(t, s.Monotonic())
		})
	}
}

func TestStore_MergeKeepsExistingCandleOnConflict(t *testing.T) {
	s := NewStore(time.Hour)
	s.Merge([]domain.Candle{candleAt(0, 100)})
	s.Merge([]domain.Candle{candleAt(0, 200)})

	first, ok := s.First()
	require.True(t, ok)
	assert.Equal(t, 100.0, first.Close)
}

func TestStore_MergeRejectsInvalidCandles(t *testing.T) {
	bad := candleAt(1, 100)
	bad.High = 50 // below open/close

	s := NewStore(time.Hour)
	st := s.Merge([]domain.Candle{candleAt(0, 100), bad})
	assert.Equal(t, 1, st.Invalid)
	assert.Equal(t, 1, s.Len())
}

func TestStore_Gaps(t *testing.T) {
	s := NewStore(time.Hour)
	s.Merge(hours(0, 5))
	s.Merge(hours(8, 10))
	s.Merge(hours(11, 12))

	gaps := s.Gaps()
	require.Len(t, gaps, 2)
	assert.Equal(t, 3, gaps[0].Missing)
	assert.Equal(t, t0.Add(4*time.Hour), gaps[0].After)
	assert.Equal(t, 1, gaps[1].Missing)
	assert.Equal(t, 4, s.MissingCount())
	assert.Equal(t, 12, s.Expected(t0, t0.Add(11*time.Hour)))
}

func TestStore_WindowAndContains(t *testing.T) {
	s, _ := FromCandles(time.Hour, hours(0, 10))

	w := s.Window(t0.Add(2*time.Hour), t0.Add(4*time.Hour))
	require.Len(t, w, 3)
	assert.Equal(t, t0.Add(2*time.Hour), w[0].OpenTime)
	assert.True(t, s.Contains(t0.Add(9*time.Hour)))
	assert.False(t, s.Contains(t0.Add(10*time.Hour)))

	closes := s.Closes()
	assert.Equal(t, 100.0, closes[0])
	assert.Equal(t, 109.0, closes[9])
}
