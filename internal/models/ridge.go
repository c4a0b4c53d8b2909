package models

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Ridge is multi-output linear regression with an L2 penalty on the weights.
// The intercept is not penalized.
type Ridge struct {
	Alpha     float64     `json:"alpha"`
	Weights   [][]float64 `json:"weights"` // [feature][output]
	Intercept []float64   `json:"intercept"`
}

// Fit solves (XcᵀXc + αI)W = XcᵀYc on centered data.
func (r *Ridge) Fit(X, Y [][]float64) error {
	n, p, k, err := checkXY(X, Y)
	if err != nil {
		return err
	}

	xMean := columnMeans(X, p)
	yMean := columnMeans(Y, k)

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			xc.Set(i, j, X[i][j]-xMean[j])
		}
		for j := 0; j < k; j++ {
			yc.Set(i, j, Y[i][j]-yMean[j])
		}
	}

	var a mat.Dense
	a.Mul(xc.T(), xc)
	for j := 0; j < p; j++ {
		a.Set(j, j, a.At(j, j)+r.Alpha)
	}
	var b mat.Dense
	b.Mul(xc.T(), yc)

	var w mat.Dense
	if err := w.Solve(&a, &b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return fmt.Errorf("ridge solve: %w", err)
		}
		// ill-conditioned but solved
	}

	r.Weights = make([][]float64, p)
	for j := 0; j < p; j++ {
		r.Weights[j] = make([]float64, k)
		for o := 0; o < k; o++ {
			r.Weights[j][o] = w.At(j, o)
		}
	}
	r.Intercept = make([]float64, k)
	for o := 0; o < k; o++ {
		b0 := yMean[o]
		for j := 0; j < p; j++ {
			b0 -= xMean[j] * r.Weights[j][o]
		}
		r.Intercept[o] = b0
	}
	return nil
}

func (r *Ridge) Predict(X [][]float64) ([][]float64, error) {
	if len(r.Weights) == 0 {
		return nil, errNotFitted
	}
	p, k := len(r.Weights), len(r.Intercept)
	if err := checkWidth(X, p); err != nil {
		return nil, err
	}

	out := make([][]float64, len(X))
	for i, row := range X {
		y := make([]float64, k)
		copy(y, r.Intercept)
		for j, x := range row {
			for o := 0; o < k; o++ {
				y[o] += x * r.Weights[j][o]
			}
		}
		out[i] = y
	}
	return out, nil
}

func columnMeans(M [][]float64, width int) []float64 {
	means := make([]float64, width)
	for _, row := range M {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(len(M))
	}
	return means
}
