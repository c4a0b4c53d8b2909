package models

import (
	"math/rand/v2"
	"sort"
)

// treeNode is a split (Left >= 0) or a leaf holding one value per output.
type treeNode struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t"`
	Left      int       `json:"l"`
	Right     int       `json:"r"`
	Value     []float64 `json:"v,omitempty"`
}

// Tree is a multi-output regression tree. A split minimizes the summed squared
// error over all outputs, so one tree serves every horizon.
type Tree struct {
	Nodes []treeNode `json:"nodes"`
}

type treeParams struct {
	maxDepth        int
	minLeaf         int
	featureFraction float64
	rng             *rand.Rand
}

type treeBuilder struct {
	X, Y   [][]float64
	params treeParams
	nodes  []treeNode
	k      int
}

func growTree(X, Y [][]float64, idx []int, params treeParams) *Tree {
	b := &treeBuilder{X: X, Y: Y, params: params, k: len(Y[0])}
	if b.params.minLeaf < 1 {
		b.params.minLeaf = 1
	}
	b.grow(idx, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Left: -1, Right: -1})

	if depth >= b.params.maxDepth || len(idx) < 2*b.params.minLeaf {
		b.nodes[id].Value = b.mean(idx)
		return id
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		b.nodes[id].Value = b.mean(idx)
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *treeBuilder) mean(idx []int) []float64 {
	v := make([]float64, b.k)
	for _, i := range idx {
		for o := 0; o < b.k; o++ {
			v[o] += b.Y[i][o]
		}
	}
	for o := range v {
		v[o] /= float64(len(idx))
	}
	return v
}

// bestSplit scans sorted values of each sampled feature and maximizes
// sum_o(sumL²/nL + sumR²/nR), which is equivalent to minimizing child SSE.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	total := make([]float64, b.k)
	for _, i := range idx {
		for o := 0; o < b.k; o++ {
			total[o] += b.Y[i][o]
		}
	}
	var parentScore float64
	for o := 0; o < b.k; o++ {
		parentScore += total[o] * total[o] / float64(n)
	}

	bestScore := parentScore
	bestFeature, bestThreshold, found := -1, 0.0, false

	order := make([]int, n)
	left := make([]float64, b.k)
	for _, f := range b.sampleFeatures() {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })
		for o := range left {
			left[o] = 0
		}

		for s := 1; s < n; s++ {
			prev := order[s-1]
			for o := 0; o < b.k; o++ {
				left[o] += b.Y[prev][o]
			}
			if s < b.params.minLeaf || n-s < b.params.minLeaf {
				continue
			}
			lo, hi := b.X[prev][f], b.X[order[s]][f]
			if lo == hi {
				continue
			}

			var score float64
			for o := 0; o < b.k; o++ {
				r := total[o] - left[o]
				score += left[o]*left[o]/float64(s) + r*r/float64(n-s)
			}
			if score > bestScore+1e-12 {
				bestScore = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func (b *treeBuilder) sampleFeatures() []int {
	p := len(b.X[0])
	all := make([]int, p)
	for i := range all {
		all[i] = i
	}
	m := int(float64(p)*b.params.featureFraction + 0.5)
	if m < 1 {
		m = 1
	}
	if m >= p || b.params.rng == nil {
		return all
	}
	b.params.rng.Shuffle(p, func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:m]
}

func (t *Tree) predict(x []float64) []float64 {
	n := 0
	for t.Nodes[n].Left >= 0 {
		node := t.Nodes[n]
		if x[node.Feature] <= node.Threshold {
			n = node.Left
		} else {
			n = node.Right
		}
	}
	return t.Nodes[n].Value
}
