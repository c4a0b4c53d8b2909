package models

import (
	"encoding/json"
	"fmt"
)

// Forecaster is a candidate bundled with its own imputer and the input and
// output schema it was trained on. It is the unit persisted in the registry.
type Forecaster struct {
	Kind         Kind
	FeatureNames []string
	Targets      []string
	Params       map[string]any

	imputer MeanImputer
	model   Regressor
}

// NewForecaster validates cfg and returns an unfitted forecaster.
func NewForecaster(cfg Config, featureNames, targets []string) (*Forecaster, error) {
	if len(featureNames) == 0 || len(targets) == 0 {
		return nil, fmt.Errorf("%w: %d features, %d targets", errEmptyInput, len(featureNames), len(targets))
	}
	model, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &Forecaster{
		Kind:         cfg.Kind(),
		FeatureNames: append([]string(nil), featureNames...),
		Targets:      append([]string(nil), targets...),
		Params:       cfg.Params(),
		model:        model,
	}, nil
}

// Fit imputes X with its own column means and fits the model. X may contain NaN;
// Y must not.
func (f *Forecaster) Fit(X, Y [][]float64) error {
	if err := checkWidth(X, len(f.FeatureNames)); err != nil {
		return err
	}
	f.imputer.Fit(X)
	filled, err := f.imputer.Transform(X)
	if err != nil {
		return err
	}
	if err := f.model.Fit(filled, Y); err != nil {
		return fmt.Errorf("fit %s: %w", f.Kind, err)
	}
	return nil
}

// Predict returns one row of len(Targets) predictions per input row.
func (f *Forecaster) Predict(X [][]float64) ([][]float64, error) {
	filled, err := f.imputer.Transform(X)
	if err != nil {
		return nil, err
	}
	return f.model.Predict(filled)
}

type artifact struct {
	Kind         Kind            `json:"kind"`
	FeatureNames []string        `json:"feature_names"`
	Targets      []string        `json:"targets"`
	Params       map[string]any  `json:"params"`
	Imputer      MeanImputer     `json:"imputer"`
	Model        json.RawMessage `json:"model"`
}

// Marshal serializes the fitted forecaster.
func (f *Forecaster) Marshal() ([]byte, error) {
	model, err := json.Marshal(f.model)
	if err != nil {
		return nil, fmt.Errorf("encode %s model: %w", f.Kind, err)
	}
	return json.Marshal(artifact{
		Kind:         f.Kind,
		FeatureNames: f.FeatureNames,
		Targets:      f.Targets,
		Params:       f.Params,
		Imputer:      f.imputer,
		Model:        model,
	})
}

// LoadForecaster decodes an artifact produced by Marshal.
func LoadForecaster(data []byte) (*Forecaster, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	model, err := empty(a.Kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(a.Model, model); err != nil {
		return nil, fmt.Errorf("decode %s model: %w", a.Kind, err)
	}
	if len(a.Imputer.Means) != len(a.FeatureNames) {
		return nil, fmt.Errorf("artifact imputer has %d columns, schema has %d", len(a.Imputer.Means), len(a.FeatureNames))
	}
	return &Forecaster{
		Kind:         a.Kind,
		FeatureNames: a.FeatureNames,
		Targets:      a.Targets,
		Params:       a.Params,
		imputer:      a.Imputer,
		model:        model,
	}, nil
}
