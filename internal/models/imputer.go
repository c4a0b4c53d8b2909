package models

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// MeanImputer replaces NaN with the training mean of its column. A column with
// no observed value is imputed as 0.
type MeanImputer struct {
	Means []float64 `json:"means"`
}

func (m *MeanImputer) Fit(X [][]float64) {
	if len(X) == 0 {
		m.Means = nil
		return
	}
	p := len(X[0])
	m.Means = make([]float64, p)
	col := make([]float64, 0, len(X))
	for j := 0; j < p; j++ {
		col = col[:0]
		for _, row := range X {
			if !math.IsNaN(row[j]) {
				col = append(col, row[j])
			}
		}
		if len(col) > 0 {
			m.Means[j] = stat.Mean(col, nil)
		}
	}
}

// Transform returns a copy of X with NaN replaced.
func (m *MeanImputer) Transform(X [][]float64) ([][]float64, error) {
	if err := checkWidth(X, len(m.Means)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = m.Means[j]
			}
			r[j] = v
		}
		out[i] = r
	}
	return out, nil
}
