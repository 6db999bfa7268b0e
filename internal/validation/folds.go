package validation

import (
	"fmt"

	"cryptoSniper/internal/ports"
)

// Range is a half-open row interval [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of rows in the range.
func (r Range) Len() int { return r.End - r.Start }

// Fold is one train/validation split. Train always ends before Validation starts.
type Fold struct {
	Index      int
	Train      Range
	Validation Range
}

// TimeSeriesSplit builds k expanding-window folds over n ordered rows. The rows are cut into
// k+1 contiguous blocks of n/(k+1) rows; fold i trains on every row before block i+1 (minus
// gap embargo rows) and validates on block i+1. The remainder of the division joins the first block.
func TimeSeriesSplit(n, k, gap int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: at least 2 folds required, got %d", ports.ErrInvalidRequest, k)
	}
	if gap < 0 {
		return nil, fmt.Errorf("%w: gap must not be negative, got %d", ports.ErrInvalidRequest, gap)
	}
	block := n / (k + 1)
	if block < 1 {
		return nil, fmt.Errorf("%w: %d rows cannot form %d folds", ports.ErrInsufficientData, n, k)
	}
	first := n - k*block
	if first-gap < 1 {
		return nil, fmt.Errorf("%w: gap of %d rows leaves no training data", ports.ErrInsufficientData, gap)
	}

	folds := make([]Fold, k)
	for i := 0; i < k; i++ {
		valStart := first + i*block
		folds[i] = Fold{
			Index:      i,
			Train:      Range{Start: 0, End: valStart - gap},
			Validation: Range{Start: valStart, End: valStart + block},
		}
	}
	return folds, nil
}
