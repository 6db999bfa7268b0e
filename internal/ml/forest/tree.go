package forest

import (
	"math/rand"
	"sort"
)

// Node is one decision tree node. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Prob      float64 `json:"p"` // class-1 fraction of the training samples in the node
}

// Tree is a binary CART classification tree stored as a flat node slice; Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Prob
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type treeParams struct {
	maxDepth       int // 0 is unlimited
	minSamplesLeaf int
	maxFeatures    int
}

type builder struct {
	x          [][]float64
	y          []int
	params     treeParams
	rng        *rand.Rand
	tree       *Tree
	importance []float64
	features   []int
}

func gini(pos, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(pos) / float64(total)
	return 2 * p * (1 - p)
}

func countPositive(y []int, idx []int) int {
	pos := 0
	for _, i := range idx {
		if y[i] == 1 {
			pos++
		}
	}
	return pos
}

// grow builds the tree over the sample indices. idx may contain repeats (bootstrap).
func grow(x [][]float64, y []int, idx []int, params treeParams, rng *rand.Rand, nFeatures int) (*Tree, []float64) {
	b := &builder{
		x:          x,
		y:          y,
		params:     params,
		rng:        rng,
		tree:       &Tree{},
		importance: make([]float64, nFeatures),
		features:   make([]int, nFeatures),
	}
	for i := range b.features {
		b.features[i] = i
	}
	b.split(idx, 0)
	return b.tree, b.importance
}

func (b *builder) leaf(pos, total int) int {
	prob := 0.0
	if total > 0 {
		prob = float64(pos) / float64(total)
	}
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: -1, Prob: prob})
	return len(b.tree.Nodes) - 1
}

func (b *builder) split(idx []int, depth int) int {
	total := len(idx)
	pos := countPositive(b.y, idx)
	if pos == 0 || pos == total ||
		total < 2*b.params.minSamplesLeaf ||
		(b.params.maxDepth > 0 && depth >= b.params.maxDepth) {
		return b.leaf(pos, total)
	}

	feature, threshold, gain, ok := b.bestSplit(idx, pos)
	if !ok {
		return b.leaf(pos, total)
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importance[feature] += gain

	self := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: feature, Threshold: threshold, Prob: float64(pos) / float64(total)})
	l := b.split(left, depth+1)
	r := b.split(right, depth+1)
	b.tree.Nodes[self].Left = l
	b.tree.Nodes[self].Right = r
	return self
}

// bestSplit scans a random subset of features for the threshold with the largest
// weighted gini decrease respecting the minimum leaf size.
func (b *builder) bestSplit(idx []int, pos int) (feature int, threshold, gain float64, ok bool) {
	total := len(idx)
	parent := float64(total) * gini(pos, total)
	minLeaf := b.params.minSamplesLeaf

	// Partial Fisher-Yates picks maxFeatures distinct candidates.
	for i := 0; i < b.params.maxFeatures; i++ {
		j := i + b.rng.Intn(len(b.features)-i)
		b.features[i], b.features[j] = b.features[j], b.features[i]
	}
	candidates := make([]int, b.params.maxFeatures)
	copy(candidates, b.features[:b.params.maxFeatures])
	sort.Ints(candidates)

	sorted := make([]int, total)
	best := 0.0
	for _, f := range candidates {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.x[sorted[a]][f] < b.x[sorted[c]][f] })

		leftPos := 0
		for k := 0; k < total-1; k++ {
			if b.y[sorted[k]] == 1 {
				leftPos++
			}
			nLeft := k + 1
			v, next := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if v == next || nLeft < minLeaf || total-nLeft < minLeaf {
				continue
			}
			nRight := total - nLeft
			impurity := float64(nLeft)*gini(leftPos, nLeft) + float64(nRight)*gini(pos-leftPos, nRight)
			if g := parent - impurity; g > best+1e-12 {
				best = g
				feature = f
				threshold = v + (next-v)/2
				ok = true
			}
		}
	}
	return feature, threshold, best, ok
}
