package domain

import (
	"math"
	"sort"
	"time"
)

// DefaultCycleLengthDays approximates the 210,000-block halving interval.
const DefaultCycleLengthDays = 1461.0

// HalvingSchedule is the fixed macro-cycle reference. It is injected configuration
// and never mutated after construction.
type HalvingSchedule struct {
	epochs          []time.Time
	cycleLengthDays float64
}

// DefaultHalvings returns the known bitcoin halving dates.
func DefaultHalvings() []time.Time {
	return []time.Time{
		time.Date(2012, 11, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2016, 7, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 5, 11, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC),
	}
}

// NewHalvingSchedule builds a schedule from the given epochs. Epochs are copied and sorted.
// A non-positive cycle length falls back to DefaultCycleLengthDays.
func NewHalvingSchedule(epochs []time.Time, cycleLengthDays float64) HalvingSchedule {
	sorted := make([]time.Time, len(epochs))
	for i, e := range epochs {
		sorted[i] = e.UTC()
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	if cycleLengthDays <= 0 {
		cycleLengthDays = DefaultCycleLengthDays
	}
	return HalvingSchedule{epochs: sorted, cycleLengthDays: cycleLengthDays}
}

// Epochs returns a copy of the halving timestamps.
func (h HalvingSchedule) Epochs() []time.Time {
	out := make([]time.Time, len(h.epochs))
	copy(out, h.epochs)
	return out
}

// CycleLengthDays returns the nominal cycle length.
func (h HalvingSchedule) CycleLengthDays() float64 {
	return h.cycleLengthDays
}

// LastBefore returns the latest epoch <= t. ok is false when t precedes every epoch.
func (h HalvingSchedule) LastBefore(t time.Time) (time.Time, bool) {
	idx := sort.Search(len(h.epochs), func(i int) bool { return h.epochs[i].After(t) })
	if idx == 0 {
		return time.Time{}, false
	}
	return h.epochs[idx-1], true
}

// DaysSince returns the fractional days elapsed since the last halving at or before t.
func (h HalvingSchedule) DaysSince(t time.Time) (float64, bool) {
	last, ok := h.LastBefore(t)
	if !ok {
		return 0, false
	}
	return t.Sub(last).Hours() / 24, true
}

// Progress returns DaysSince / cycle length clamped to [0,1].
func (h HalvingSchedule) Progress(t time.Time) (float64, bool) {
	days, ok := h.DaysSince(t)
	if !ok {
		return 0, false
	}
	return math.Min(1, math.Max(0, days/h.cycleLengthDays)), true
}
