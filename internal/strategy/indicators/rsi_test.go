package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWilderRSI(t *testing.T) {
	tests := []struct {
		name          string
		period        int
		closes        []float64
		expectedValue float64
		expectNaN     bool
	}{
		{
			name:          "wilder smoothing",
			period:        3,
			closes:        []float64{100, 102, 101, 103, 102, 104},
			expectedValue: 77.272727,
		},
		{
			name:      "insufficient data",
			period:    7,
			closes:    []float64{100, 102, 101, 103, 102, 104},
			expectNaN: true,
		},
		{
			name:          "all gains",
			period:        3,
			closes:        []float64{100, 102, 104, 106},
			expectedValue: 100,
		},
		{
			name:          "all losses",
			period:        3,
			closes:        []float64{106, 104, 102, 100},
			expectedValue: 0,
		},
		{
			name:          "flat",
			period:        3,
			closes:        []float64{100, 100, 100, 100},
			expectedValue: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := WilderRSI(tt.closes, tt.period)
			require.Len(t, series, len(tt.closes))
			last := series[len(series)-1]
			if tt.expectNaN {
				assert.True(t, math.IsNaN(last))
				return
			}
			assert.InDelta(t, tt.expectedValue, last, 1e-4)
		})
	}
}

func TestWilderRSI_Warmup(t *testing.T) {
	series := WilderRSI([]float64{100, 102, 101, 103, 102, 104}, 3)
	require.Len(t, series, 6)
	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(series[i]), "index %d", i)
	}
	assert.InDelta(t, 80.0, series[3], 1e-9)
	assert.InDelta(t, 61.538461, series[4], 1e-5)

	assert.True(t, math.IsNaN(WilderRSI([]float64{1, 2}, 3)[1]))
}
