package candles

import (
	"sort"
	"time"

	"cryptoSniper/internal/domain"
)

// MergeStats summarises one merge into the store.
type MergeStats struct {
	Added      int
	Duplicates int
	Invalid    int
}

// Gap is a run of missing granules between two stored candles.
type Gap struct {
	After   time.Time // open time of the candle preceding the gap
	Before  time.Time // open time of the candle following the gap
	Missing int
}

// Store is an ordered, deduplicated candle sequence at a fixed granule.
// It is owned by a single pipeline run and is not safe for concurrent use.
type Store struct {
	granule time.Duration
	candles []domain.Candle
}

// NewStore creates an empty store for the given granule (e.g. time.Hour).
func NewStore(granule time.Duration) *Store {
	if granule <= 0 {
		granule = time.Hour
	}
	return &Store{granule: granule}
}

// FromCandles builds a store and merges the given candles into it.
func FromCandles(granule time.Duration, cs []domain.Candle) (*Store, MergeStats) {
	s := NewStore(granule)
	stats := s.Merge(cs)
	return s, stats
}

// Granule returns the store's bar duration.
func (s *Store) Granule() time.Duration { return s.granule }

// Len returns the number of stored candles.
func (s *Store) Len() int { return len(s.candles) }

// Candles returns a copy of the stored candles in ascending order.
func (s *Store) Candles() []domain.Candle {
	out := make([]domain.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// First returns the oldest candle.
func (s *Store) First() (domain.Candle, bool) {
	if len(s.candles) == 0 {
		return domain.Candle{}, false
	}
	return s.candles[0], true
}

// Last returns the newest candle.
func (s *Store) Last() (domain.Candle, bool) {
	if len(s.candles) == 0 {
		return domain.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Closes returns the close prices in time order.
func (s *Store) Closes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Close
	}
	return out
}

// Contains reports whether a candle with the given open time is stored.
func (s *Store) Contains(t time.Time) bool {
	_, ok := s.index(t.UTC())
	return ok
}

// Window returns a copy of candles with from <= OpenTime <= to.
func (s *Store) Window(from, to time.Time) []domain.Candle {
	lo := sort.Search(len(s.candles), func(i int) bool { return !s.candles[i].OpenTime.Before(from) })
	hi := sort.Search(len(s.candles), func(i int) bool { return s.candles[i].OpenTime.After(to) })
	if lo >= hi {
		return nil
	}
	out := make([]domain.Candle, hi-lo)
	copy(out, s.candles[lo:hi])
	return out
}

// Merge inserts a page of candles keyed by open time. Candles already present are
// discarded and counted as duplicates; candles violating OHLC invariants are counted as invalid.
// The page does not need to be sorted.
func (s *Store) Merge(page []domain.Candle) MergeStats {
	var stats MergeStats
	if len(page) == 0 {
		return stats
	}

	incoming := make([]domain.Candle, 0, len(page))
	for _, c := range page {
		if err := c.Validate(); err != nil {
			stats.Invalid++
			continue
		}
		c.OpenTime = c.OpenTime.UTC().Truncate(s.granule)
		incoming = append(incoming, c)
	}
	sort.SliceStable(incoming, func(i, j int) bool { return incoming[i].OpenTime.Before(incoming[j].OpenTime) })

	// Merge two sorted sequences; the stored candle wins on equal keys.
	merged := make([]domain.Candle, 0, len(s.candles)+len(incoming))
	i, j := 0, 0
	for i < len(s.candles) || j < len(incoming) {
		switch {
		case j == len(incoming):
			merged = append(merged, s.candles[i])
			i++
		case i == len(s.candles):
			if n := len(merged); n > 0 && merged[n-1].OpenTime.Equal(incoming[j].OpenTime) {
				stats.Duplicates++
			} else {
				merged = append(merged, incoming[j])
				stats.Added++
			}
			j++
		case s.candles[i].OpenTime.Before(incoming[j].OpenTime):
			merged = append(merged, s.candles[i])
			i++
		case s.candles[i].OpenTime.Equal(incoming[j].OpenTime):
			stats.Duplicates++
			j++
		default:
			if n := len(merged); n > 0 && merged[n-1].OpenTime.Equal(incoming[j].OpenTime) {
				stats.Duplicates++
			} else {
				merged = append(merged, incoming[j])
				stats.Added++
			}
			j++
		}
	}
	s.candles = merged
	return stats
}

// Gaps lists every run of missing granules between consecutive candles.
func (s *Store) Gaps() []Gap {
	var gaps []Gap
	for i := 1; i < len(s.candles); i++ {
		prev, cur := s.candles[i-1].OpenTime, s.candles[i].OpenTime
		steps := int(cur.Sub(prev) / s.granule)
		if steps > 1 {
			gaps = append(gaps, Gap{After: prev, Before: cur, Missing: steps - 1})
		}
	}
	return gaps
}

// MissingCount returns the total number of missing granules inside the stored span.
func (s *Store) MissingCount() int {
	total := 0
	for _, g := range s.Gaps() {
		total += g.Missing
	}
	return total
}

// Expected returns how many candles a gap-free store would hold between from and to inclusive.
func (s *Store) Expected(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from)/s.granule) + 1
}

// Monotonic reports whether timestamps are strictly increasing. It always holds for a store
// mutated only through Merge; the check exists for data loaded from outside.
func (s *Store) Monotonic() bool {
	for i := 1; i < len(s.candles); i++ {
		if !s.candles[i].OpenTime.After(s.candles[i-1].OpenTime) {
			return false
		}
	}
	return true
}

func (s *Store) index(t time.Time) (int, bool) {
	idx := sort.Search(len(s.candles), func(i int) bool { return !s.candles[i].OpenTime.Before(t) })
	if idx < len(s.candles) && s.candles[idx].OpenTime.Equal(t) {
		return idx, true
	}
	return idx, false
}
