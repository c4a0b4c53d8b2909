package models

import "math/rand/v2"

// Boosting fits shallow trees to squared-loss residuals, starting from the
// target means.
type Boosting struct {
	Init         []float64 `json:"init"`
	LearningRate float64   `json:"learning_rate"`
	Trees        []*Tree   `json:"trees"`

	cfg BoostingConfig
}

func (b *Boosting) Fit(X, Y [][]float64) error {
	n, _, k, err := checkXY(X, Y)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(b.cfg.Seed, 0xb005))
	b.Init = columnMeans(Y, k)
	b.LearningRate = b.cfg.LearningRate
	b.Trees = make([]*Tree, 0, b.cfg.Rounds)

	pred := make([][]float64, n)
	resid := make([][]float64, n)
	for i := range pred {
		pred[i] = append([]float64(nil), b.Init...)
		resid[i] = make([]float64, k)
	}

	sampleSize := int(float64(n)*b.cfg.Subsample + 0.5)
	if sampleSize < 1 {
		sampleSize = 1
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	for round := 0; round < b.cfg.Rounds; round++ {
		for i := range resid {
			for o := 0; o < k; o++ {
				resid[i][o] = Y[i][o] - pred[i][o]
			}
		}

		idx := perm
		if sampleSize < n {
			rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
			idx = append([]int(nil), perm[:sampleSize]...)
		}

		tree := growTree(X, resid, idx, treeParams{
			maxDepth:        b.cfg.MaxDepth,
			minLeaf:         b.cfg.MinSamplesLeaf,
			featureFraction: b.cfg.FeatureFraction,
			rng:             rng,
		})
		b.Trees = append(b.Trees, tree)

		for i, x := range X {
			for o, v := range tree.predict(x) {
				pred[i][o] += b.LearningRate * v
			}
		}
	}
	return nil
}

func (b *Boosting) Predict(X [][]float64) ([][]float64, error) {
	if len(b.Init) == 0 {
		return nil, errNotFitted
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		y := append([]float64(nil), b.Init...)
		for _, t := range b.Trees {
			for o, v := range t.predict(x) {
				y[o] += b.LearningRate * v
			}
		}
		out[i] = y
	}
	return out, nil
}
