package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config is the typed hyperparameter set of one candidate.
type Config interface {
	Kind() Kind
	Params() map[string]any
	build() Regressor
}

// RidgeConfig configures L2-regularized linear regression.
type RidgeConfig struct {
	Alpha float64 `validate:"gte=0"`
}

func (c RidgeConfig) Kind() Kind { return KindRidge }

func (c RidgeConfig) Params() map[string]any {
	return map[string]any{"alpha": c.Alpha}
}

func (c RidgeConfig) build() Regressor { return &Ridge{Alpha: c.Alpha} }

// ForestConfig configures a bagged ensemble of regression trees.
type ForestConfig struct {
	Trees           int     `validate:"min=1,max=2000"`
	MaxDepth        int     `validate:"min=1,max=64"`
	MinSamplesLeaf  int     `validate:"min=1"`
	FeatureFraction float64 `validate:"gt=0,lte=1"`
	Seed            uint64
}

func (c ForestConfig) Kind() Kind { return KindRandomForest }

func (c ForestConfig) Params() map[string]any {
	return map[string]any{
		"n_estimators":     c.Trees,
		"max_depth":        c.MaxDepth,
		"min_samples_leaf": c.MinSamplesLeaf,
		"max_features":     c.FeatureFraction,
		"random_state":     c.Seed,
	}
}

func (c ForestConfig) build() Regressor { return &Forest{cfg: c} }

// BoostingConfig configures gradient-boosted regression trees with squared loss.
type BoostingConfig struct {
	Rounds          int     `validate:"min=1,max=5000"`
	LearningRate    float64 `validate:"gt=0,lte=1"`
	MaxDepth        int     `validate:"min=1,max=32"`
	MinSamplesLeaf  int     `validate:"min=1"`
	Subsample       float64 `validate:"gt=0,lte=1"`
	FeatureFraction float64 `validate:"gt=0,lte=1"`
	Seed            uint64
}

func (c BoostingConfig) Kind() Kind { return KindGradientBoosting }

func (c BoostingConfig) Params() map[string]any {
	return map[string]any{
		"n_estimators":     c.Rounds,
		"learning_rate":    c.LearningRate,
		"max_depth":        c.MaxDepth,
		"min_samples_leaf": c.MinSamplesLeaf,
		"subsample":        c.Subsample,
		"colsample_bytree": c.FeatureFraction,
		"random_state":     c.Seed,
	}
}

func (c BoostingConfig) build() Regressor { return &Boosting{cfg: c} }

// MLPConfig configures a feedforward network trained with Adam.
type MLPConfig struct {
	Hidden       []int   `validate:"min=1,dive,min=1"`
	Epochs       int     `validate:"min=1"`
	BatchSize    int     `validate:"min=1"`
	LearningRate float64 `validate:"gt=0"`
	Seed         uint64
}

func (c MLPConfig) Kind() Kind { return KindMLP }

func (c MLPConfig) Params() map[string]any {
	return map[string]any{
		"hidden_layers": c.Hidden,
		"epochs":        c.Epochs,
		"batch_size":    c.BatchSize,
		"learning_rate": c.LearningRate,
		"random_state":  c.Seed,
	}
}

func (c MLPConfig) build() Regressor { return &MLP{cfg: c} }

// New validates cfg and returns an unfitted regressor.
func New(cfg Config) (Regressor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil candidate config")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", cfg.Kind(), err)
	}
	return cfg.build(), nil
}

// DefaultCandidates returns the candidate set trained on every run.
func DefaultCandidates() []Config {
	return []Config{
		RidgeConfig{Alpha: 1.0},
		ForestConfig{Trees: 100, MaxDepth: 12, MinSamplesLeaf: 2, FeatureFraction: 0.33, Seed: 42},
		BoostingConfig{Rounds: 300, LearningRate: 0.05, MaxDepth: 6, MinSamplesLeaf: 5, Subsample: 0.8, FeatureFraction: 0.8, Seed: 42},
		MLPConfig{Hidden: []int{64, 32}, Epochs: 60, BatchSize: 64, LearningRate: 0.001, Seed: 42},
	}
}

// empty returns a zero-valued regressor of kind k, ready for JSON decoding.
func empty(k Kind) (Regressor, error) {
	switch k {
	case KindRidge:
		return &Ridge{}, nil
	case KindRandomForest:
		return &Forest{}, nil
	case KindGradientBoosting:
		return &Boosting{}, nil
	case KindMLP:
		return &MLP{}, nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", k)
	}
}
