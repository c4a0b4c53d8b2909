package models

import "math/rand/v2"

// Forest averages trees grown on bootstrap samples with random feature subsets.
type Forest struct {
	Trees   []*Tree `json:"trees"`
	Outputs int     `json:"outputs"`

	cfg ForestConfig
}

func (f *Forest) Fit(X, Y [][]float64) error {
	n, _, k, err := checkXY(X, Y)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(f.cfg.Seed, 0x5eed))
	f.Trees = make([]*Tree, f.cfg.Trees)
	f.Outputs = k
	idx := make([]int, n)
	for t := range f.Trees {
		for i := range idx {
			idx[i] = rng.IntN(n)
		}
		f.Trees[t] = growTree(X, Y, idx, treeParams{
			maxDepth:        f.cfg.MaxDepth,
			minLeaf:         f.cfg.MinSamplesLeaf,
			featureFraction: f.cfg.FeatureFraction,
			rng:             rng,
		})
	}
	return nil
}

func (f *Forest) Predict(X [][]float64) ([][]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errNotFitted
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		y := make([]float64, f.Outputs)
		for _, t := range f.Trees {
			for o, v := range t.predict(x) {
				y[o] += v
			}
		}
		for o := range y {
			y[o] /= float64(len(f.Trees))
		}
		out[i] = y
	}
	return out, nil
}
