package features

import (
	"cryptoSniper/internal/domain"
)

// DropStats counts candles that did not become labelled rows.
type DropStats struct {
	Warmup    int // leading candles before every indicator is defined
	Horizon   int // the newest candle, which has no t+1
	Gap       int // candles whose window or next candle crosses a gap
	NonFinite int // rows with a non-finite value after warm-up
}

// Total returns the number of excluded candles.
func (d DropStats) Total() int {
	return d.Warmup + d.Horizon + d.Gap + d.NonFinite
}

// Dataset is an ordered set of labelled feature rows.
type Dataset struct {
	Set     FeatureSet
	Rows    []domain.FeatureRow
	Dropped DropStats
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// Matrix returns the feature values row by row. Rows share storage with the dataset.
func (d *Dataset) Matrix() [][]float64 {
	out := make([][]float64, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Values
	}
	return out
}

// Labels returns the labels as 0/1 integers.
func (d *Dataset) Labels() []int {
	out := make([]int, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = int(r.Label)
	}
	return out
}

// Column returns a copy of one feature column.
func (d *Dataset) Column(name string) ([]float64, bool) {
	j := d.Set.Index(name)
	if j < 0 {
		return nil, false
	}
	out := make([]float64, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Values[j]
	}
	return out, true
}

// Positives counts BUY rows.
func (d *Dataset) Positives() int {
	n := 0
	for _, r := range d.Rows {
		if r.Label == domain.LabelBuy {
			n++
		}
	}
	return n
}

// PositiveRate returns the BUY share, 0 for an empty dataset.
func (d *Dataset) PositiveRate() float64 {
	if len(d.Rows) == 0 {
		return 0
	}
	return float64(d.Positives()) / float64(len(d.Rows))
}
