package forest

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"cryptoSniper/internal/domain"
	"cryptoSniper/internal/ports"
)

// Forest is a trained random forest of CART trees.
type Forest struct {
	Trees       []Tree    `json:"trees"`
	NFeatures   int       `json:"n_features"`
	Importances []float64 `json:"importances"`
}

var _ ports.Model = (*Forest)(nil)

// PredictProba averages the class-1 leaf fractions of every tree.
func (f *Forest) PredictProba(x [][]float64) []float64 {
	out := make([]float64, len(x))
	if len(f.Trees) == 0 {
		return out
	}
	for i, row := range x {
		sum := 0.0
		for t := range f.Trees {
			sum += f.Trees[t].predict(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out
}

// FeatureImportances returns mean decrease in impurity, normalised to sum to 1.
func (f *Forest) FeatureImportances() []float64 {
	out := make([]float64, len(f.Importances))
	copy(out, f.Importances)
	return out
}

// Classifier trains random forests. Workers bounds tree-level parallelism.
type Classifier struct {
	Workers int
}

var _ ports.Classifier = (*Classifier)(nil)

// New creates a Classifier using every CPU.
func New() *Classifier {
	return &Classifier{Workers: runtime.GOMAXPROCS(0)}
}

// ValidateParams rejects hyperparameters the trainer cannot use.
func ValidateParams(p domain.Hyperparameters) error {
	switch {
	case p.NEstimators <= 0:
		return fmt.Errorf("%w: n_estimators must be positive, got %d", ports.ErrInvalidRequest, p.NEstimators)
	case p.MaxDepth < 0:
		return fmt.Errorf("%w: max_depth must not be negative, got %d", ports.ErrInvalidRequest, p.MaxDepth)
	case p.MinSamplesLeaf < 1:
		return fmt.Errorf("%w: min_samples_leaf must be at least 1, got %d", ports.ErrInvalidRequest, p.MinSamplesLeaf)
	case p.MaxFeatures < 0 || p.MaxFeatures > 1:
		return fmt.Errorf("%w: max_features must be in (0,1], got %f", ports.ErrInvalidRequest, p.MaxFeatures)
	case p.BootstrapFraction < 0 || p.BootstrapFraction > 1:
		return fmt.Errorf("%w: bootstrap_fraction must be in (0,1], got %f", ports.ErrInvalidRequest, p.BootstrapFraction)
	}
	return nil
}

// Train fits a forest. Each tree draws a bootstrap sample and its own feature subsets from a
// generator seeded with params.Seed and the tree index, so results do not depend on scheduling.
func (c *Classifier) Train(x [][]float64, y []int, params domain.Hyperparameters) (ports.Model, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}
	n := len(x)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("%w: %d rows and %d labels", ports.ErrInvalidRequest, n, len(y))
	}
	nFeatures := len(x[0])
	if nFeatures == 0 {
		return nil, fmt.Errorf("%w: no feature columns", ports.ErrInvalidRequest)
	}
	for i, row := range x {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ports.ErrInvalidRequest, i, len(row), nFeatures)
		}
		if y[i] != 0 && y[i] != 1 {
			return nil, fmt.Errorf("%w: label %d at row %d is not binary", ports.ErrInvalidRequest, y[i], i)
		}
	}

	tp := treeParams{
		maxDepth:       params.MaxDepth,
		minSamplesLeaf: params.MinSamplesLeaf,
		maxFeatures:    maxFeatureCount(params.MaxFeatures, nFeatures),
	}
	sampleSize := n
	if params.BootstrapFraction > 0 {
		sampleSize = int(math.Max(1, math.Round(params.BootstrapFraction*float64(n))))
	}

	forest := &Forest{
		Trees:       make([]Tree, params.NEstimators),
		NFeatures:   nFeatures,
		Importances: make([]float64, nFeatures),
	}
	treeImportances := make([][]float64, params.NEstimators)

	workers := c.Workers
	if workers <= 0 {
		workers = 1
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				rng := rand.New(rand.NewSource(params.Seed*1_000_003 + int64(t)))
				idx := make([]int, sampleSize)
				for i := range idx {
					idx[i] = rng.Intn(n)
				}
				tree, imp := grow(x, y, idx, tp, rng, nFeatures)
				forest.Trees[t] = *tree
				treeImportances[t] = imp
			}
		}()
	}
	for t := 0; t < params.NEstimators; t++ {
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	// Per-tree normalisation, then average.
	for _, imp := range treeImportances {
		total := 0.0
		for _, v := range imp {
			total += v
		}
		if total == 0 {
			continue
		}
		for j, v := range imp {
			forest.Importances[j] += v / total
		}
	}
	total := 0.0
	for _, v := range forest.Importances {
		total += v
	}
	if total > 0 {
		for j := range forest.Importances {
			forest.Importances[j] /= total
		}
	}
	return forest, nil
}

func maxFeatureCount(fraction float64, nFeatures int) int {
	if fraction <= 0 {
		return int(math.Max(1, math.Round(math.Sqrt(float64(nFeatures)))))
	}
	k := int(math.Round(fraction * float64(nFeatures)))
	if k < 1 {
		k = 1
	}
	if k > nFeatures {
		k = nFeatures
	}
	return k
}

// Encode serialises a trained forest.
func (c *Classifier) Encode(m ports.Model) ([]byte, error) {
	f, ok := m.(*Forest)
	if !ok {
		return nil, fmt.Errorf("%w: cannot encode model of type %T", ports.ErrInvalidRequest, m)
	}
	return json.Marshal(f)
}

// Decode restores a forest produced by Encode.
func (c *Classifier) Decode(data []byte) (ports.Model, error) {
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding forest: %w", err)
	}
	for t, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("%w: tree %d has no nodes", ports.ErrInvalidRequest, t)
		}
		for i, n := range tree.Nodes {
			if n.Feature >= f.NFeatures || (n.Feature >= 0 && !validChild(i, n.Left, len(tree.Nodes))) ||
				(n.Feature >= 0 && !validChild(i, n.Right, len(tree.Nodes))) {
				return nil, fmt.Errorf("%w: tree %d references a missing node or feature", ports.ErrInvalidRequest, t)
			}
		}
	}
	return &f, nil
}

// Children are stored after their parent.
func validChild(parent, child, size int) bool {
	return child > parent && child < size
}
