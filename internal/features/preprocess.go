package features

import (
	"math"
	"sort"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/aqi"
)

// MaxFillGap is the longest run of missing pollutant samples that gets filled.
const MaxFillGap = 3

// CapColumns are clipped at the outlier threshold.
var CapColumns = []string{airquality.ColPM25, airquality.ColPM10, airquality.ColNO2, airquality.ColO3, airquality.ColUSAQI}

// OutlierPolicy decides the per-column upper clip.
type OutlierPolicy struct {
	// Quantile in (0, 1] computed over the current batch.
	Quantile float64
	// Fixed caps override the batch quantile for the named columns.
	Fixed map[string]float64
}

// DefaultOutlierPolicy caps at the batch 99th percentile.
func DefaultOutlierPolicy() OutlierPolicy {
	return OutlierPolicy{Quantile: 0.99}
}

// Clean marks negative pollutant concentrations as missing and fills gaps of at most
// MaxFillGap consecutive samples from the nearest preceding value, or the nearest
// following one when the gap opens the batch. Longer gaps stay missing.
func Clean(f *Frame) *Frame {
	out := f.Clone()
	for _, name := range airquality.PollutantColumns {
		src, ok := out.Col(name)
		if !ok {
			continue
		}
		c := make([]float64, len(src))
		for i, v := range src {
			if v < 0 {
				v = math.NaN()
			}
			c[i] = v
		}
		out.Set(name, fillShortGaps(c, MaxFillGap))
	}
	return out
}

func fillShortGaps(c []float64, limit int) []float64 {
	n := len(c)
	for i := 0; i < n; {
		if !math.IsNaN(c[i]) {
			i++
			continue
		}
		start := i
		for i < n && math.IsNaN(c[i]) {
			i++
		}
		if i-start > limit {
			continue
		}
		fill := math.NaN()
		switch {
		case start > 0:
			fill = c[start-1]
		case i < n:
			fill = c[i]
		}
		for j := start; j < i; j++ {
			c[j] = fill
		}
	}
	return c
}

// DeriveAQI adds the ground-truth real_aqi column computed from the pollutant columns.
func DeriveAQI(f *Frame) *Frame {
	out := f.Clone()
	cols := make(map[aqi.Pollutant][]float64, len(aqi.Pollutants))
	for _, p := range aqi.Pollutants {
		if c, ok := out.Col(string(p)); ok {
			cols[p] = c
		}
	}

	values := make([]float64, out.Len())
	for i := range values {
		conc := make(map[aqi.Pollutant]float64, len(cols))
		for p, c := range cols {
			conc[p] = c[i]
		}
		values[i] = aqi.OverallOrNaN(conc)
	}
	out.Set(airquality.ColRealAQI, values)
	return out
}

// CapOutliers clips CapColumns at the policy threshold. Without a fixed cap the threshold
// is the batch quantile, so the same raw value may be clipped in one batch and not another.
func CapOutliers(f *Frame, policy OutlierPolicy) *Frame {
	out := f.Clone()
	for _, name := range CapColumns {
		src, ok := out.Col(name)
		if !ok {
			continue
		}
		upper, ok := policy.Fixed[name]
		if !ok {
			if upper, ok = Quantile(src, policy.Quantile); !ok {
				continue
			}
		}
		c := make([]float64, len(src))
		for i, v := range src {
			if v > upper {
				v = upper
			}
			c[i] = v
		}
		out.Set(name, c)
	}
	return out
}

// Quantile returns the q-th quantile of the non-missing values using linear interpolation
// between closest ranks, h = (n-1)q. ok is false when there are no values.
func Quantile(values []float64, q float64) (float64, bool) {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return 0, false
	}
	sort.Float64s(sorted)

	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1], true
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo]), true
}
