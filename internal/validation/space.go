package validation

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/ports"
)

// Distribution draws one hyperparameter value.
type Distribution interface {
	Sample(rng *rand.Rand) float64
}

// IntUniform draws an integer uniformly from [Min, Max].
type IntUniform struct {
	Min int
	Max int
}

func (d IntUniform) Sample(rng *rand.Rand) float64 {
	return float64(d.Min + rng.Intn(d.Max-d.Min+1))
}

// Uniform draws a float uniformly from [Min, Max).
type Uniform struct {
	Min float64
	Max float64
}

func (d Uniform) Sample(rng *rand.Rand) float64 {
	return d.Min + rng.Float64()*(d.Max-d.Min)
}

// Choice draws one of Values with equal probability.
type Choice struct {
	Values []float64
}

func (d Choice) Sample(rng *rand.Rand) float64 {
	return d.Values[rng.Intn(len(d.Values))]
}

// SearchSpace holds one distribution per tunable hyperparameter.
type SearchSpace struct {
	NEstimators       Distribution
	MaxDepth          Distribution
	MinSamplesLeaf    Distribution
	MaxFeatures       Distribution
	BootstrapFraction Distribution
}

// DefaultSearchSpace is a moderate forest search for hourly data.
func DefaultSearchSpace() SearchSpace {
	return SearchSpace{
		NEstimators:       IntUniform{Min: 50, Max: 200},
		MaxDepth:          Choice{Values: []float64{4, 6, 8, 10, 12}},
		MinSamplesLeaf:    IntUniform{Min: 5, Max: 50},
		MaxFeatures:       Uniform{Min: 0.2, Max: 0.7},
		BootstrapFraction: Uniform{Min: 0.5, Max: 1.0},
	}
}

// Sample draws n candidates from rng. Candidate i gets seed baseSeed+i.
func (s SearchSpace) Sample(rng *rand.Rand, n int, baseSeed int64) []domain.Hyperparameters {
	out := make([]domain.Hyperparameters, n)
	for i := range out {
		out[i] = domain.Hyperparameters{
			NEstimators:       int(math.Round(s.NEstimators.Sample(rng))),
			MaxDepth:          int(math.Round(s.MaxDepth.Sample(rng))),
			MinSamplesLeaf:    int(math.Round(s.MinSamplesLeaf.Sample(rng))),
			MaxFeatures:       s.MaxFeatures.Sample(rng),
			BootstrapFraction: s.BootstrapFraction.Sample(rng),
			Seed:              baseSeed + int64(i),
		}
	}
	return out
}

// DistributionSpec is the YAML form of a Distribution.
type DistributionSpec struct {
	Type   string    `yaml:"type"` // int_uniform, uniform or choice
	Min    float64   `yaml:"min"`
	Max    float64   `yaml:"max"`
	Values []float64 `yaml:"values"`
}

// SearchSpaceFile is the YAML document accepted by LoadSearchSpace. Missing entries keep defaults.
type SearchSpaceFile struct {
	NEstimators       *DistributionSpec `yaml:"n_estimators"`
	MaxDepth          *DistributionSpec `yaml:"max_depth"`
	MinSamplesLeaf    *DistributionSpec `yaml:"min_samples_leaf"`
	MaxFeatures       *DistributionSpec `yaml:"max_features"`
	BootstrapFraction *DistributionSpec `yaml:"bootstrap_fraction"`
}

// LoadSearchSpace reads a YAML search space file.
func LoadSearchSpace(path string) (SearchSpace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SearchSpace{}, fmt.Errorf("reading search space file %s: %w", path, err)
	}
	return ParseSearchSpace(data)
}

// ParseSearchSpace decodes a YAML search space over the defaults.
func ParseSearchSpace(data []byte) (SearchSpace, error) {
	var file SearchSpaceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return SearchSpace{}, fmt.Errorf("%w: parsing search space: %v", ports.ErrConfigurationError, err)
	}

	space := DefaultSearchSpace()
	entries := []struct {
		name   string
		spec   *DistributionSpec
		target *Distribution
		lo, hi float64
	}{
		{"n_estimators", file.NEstimators, &space.NEstimators, 1, 5000},
		{"max_depth", file.MaxDepth, &space.MaxDepth, 0, 64},
		{"min_samples_leaf", file.MinSamplesLeaf, &space.MinSamplesLeaf, 1, 1e6},
		{"max_features", file.MaxFeatures, &space.MaxFeatures, 1e-9, 1},
		{"bootstrap_fraction", file.BootstrapFraction, &space.BootstrapFraction, 1e-9, 1},
	}
	for _, e := range entries {
		if e.spec == nil {
			continue
		}
		d, err := e.spec.build(e.lo, e.hi)
		if err != nil {
			return SearchSpace{}, fmt.Errorf("%w: %s: %v", ports.ErrConfigurationError, e.name, err)
		}
		*e.target = d
	}
	return space, nil
}

func (s DistributionSpec) build(lo, hi float64) (Distribution, error) {
	inBounds := func(v float64) bool { return v >= lo && v <= hi }
	switch s.Type {
	case "int_uniform":
		if s.Min > s.Max || !inBounds(s.Min) || !inBounds(s.Max) || s.Min != math.Trunc(s.Min) || s.Max != math.Trunc(s.Max) {
			return nil, fmt.Errorf("int_uniform needs integer bounds %g <= min <= max <= %g", lo, hi)
		}
		return IntUniform{Min: int(s.Min), Max: int(s.Max)}, nil
	case "uniform":
		if s.Min > s.Max || !inBounds(s.Min) || !inBounds(s.Max) {
			return nil, fmt.Errorf("uniform needs %g <= min <= max <= %g", lo, hi)
		}
		return Uniform{Min: s.Min, Max: s.Max}, nil
	case "choice":
		if len(s.Values) == 0 {
			return nil, fmt.Errorf("choice needs at least one value")
		}
		for _, v := range s.Values {
			if !inBounds(v) {
				return nil, fmt.Errorf("choice value %g outside [%g, %g]", v, lo, hi)
			}
		}
		return Choice{Values: append([]float64(nil), s.Values...)}, nil
	default:
		return nil, fmt.Errorf("unknown distribution type %q", s.Type)
	}
}
