// Package models holds the forecast candidates. Every candidate implements Regressor and
// is built from a typed, validated config.
package models

import (
	"errors"
	"fmt"
)

// Kind identifies a candidate algorithm family.
type Kind string

const (
	KindRidge            Kind = "ridge"
	KindRandomForest     Kind = "random_forest"
	KindGradientBoosting Kind = "gradient_boosting"
	KindMLP              Kind = "mlp"
)

// Regressor is a multi-output regression model. X must not contain NaN.
type Regressor interface {
	Fit(X, Y [][]float64) error
	Predict(X [][]float64) ([][]float64, error)
}

var (
	errEmptyInput = errors.New("empty training set")
	errNotFitted  = errors.New("model is not fitted")
)

// checkXY validates matrix shapes and returns (rows, features, outputs).
func checkXY(X, Y [][]float64) (int, int, int, error) {
	if len(X) == 0 || len(X) != len(Y) {
		return 0, 0, 0, fmt.Errorf("%w: %d feature rows, %d target rows", errEmptyInput, len(X), len(Y))
	}
	p, k := len(X[0]), len(Y[0])
	if p == 0 || k == 0 {
		return 0, 0, 0, fmt.Errorf("%w: %d features, %d outputs", errEmptyInput, p, k)
	}
	for i := range X {
		if len(X[i]) != p || len(Y[i]) != k {
			return 0, 0, 0, fmt.Errorf("ragged input at row %d", i)
		}
	}
	return len(X), p, k, nil
}

func checkWidth(X [][]float64, p int) error {
	for i, row := range X {
		if len(row) != p {
			return fmt.Errorf("row %d has %d features, model expects %d", i, len(row), p)
		}
	}
	return nil
}
