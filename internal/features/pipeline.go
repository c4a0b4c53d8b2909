package features

import (
	"fmt"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

// Stage is one pure transform in the feature pipeline.
type Stage struct {
	Name  string
	Apply func(*Frame) *Frame
}

// Pipeline runs the preprocessing and feature stages in their fixed order.
type Pipeline struct {
	Outliers OutlierPolicy
}

// NewPipeline creates a Pipeline with the given outlier policy.
func NewPipeline(policy OutlierPolicy) *Pipeline {
	return &Pipeline{Outliers: policy}
}

// Stages returns clean, derive ground truth, cap outliers, temporal, cyclical, lag,
// rolling, interaction, and future targets, in that order.
func (p *Pipeline) Stages() []Stage {
	return []Stage{
		{Name: "clean", Apply: Clean},
		{Name: "real_aqi", Apply: DeriveAQI},
		{Name: "cap_outliers", Apply: func(f *Frame) *Frame { return CapOutliers(f, p.Outliers) }},
		{Name: "temporal", Apply: AddTemporal},
		{Name: "cyclical", Apply: AddCyclical},
		{Name: "lag", Apply: AddLags},
		{Name: "rolling", Apply: AddRolling},
		{Name: "interaction", Apply: AddInteractions},
		{Name: "targets", Apply: AddTargets},
	}
}

// Run applies every stage to a raw frame. The frame must already be sorted by
// timestamp with no duplicates; rows are never reordered.
func (p *Pipeline) Run(raw *Frame) (*Frame, error) {
	if raw.Len() == 0 {
		return nil, fmt.Errorf("%w: empty batch", airquality.ErrDataQuality)
	}
	if err := raw.CheckSorted(); err != nil {
		return nil, fmt.Errorf("%w: %w", airquality.ErrDataQuality, err)
	}

	f := raw
	for _, s := range p.Stages() {
		f = s.Apply(f)
	}
	return f, nil
}
