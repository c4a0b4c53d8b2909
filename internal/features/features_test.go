package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

// Monday.
var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func hourly(n int) []time.Time {
	ts := make([]time.Time, n)
	for i := range ts {
		ts[i] = t0.Add(time.Duration(i) * time.Hour)
	}
	return ts
}

func seq(n int, fn func(i int) float64) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = fn(i)
	}
	return c
}

func rawFrame(n int) *Frame {
	f := NewFrame("Karachi", hourly(n))
	f.Set(airquality.ColPM25, seq(n, func(i int) float64 { return 10 + float64(i%7) }))
	f.Set(airquality.ColPM10, seq(n, func(i int) float64 { return 30 + float64(i%5) }))
	f.Set(airquality.ColNO2, seq(n, func(i int) float64 { return 20 }))
	f.Set(airquality.ColSO2, seq(n, func(i int) float64 { return 5 }))
	f.Set(airquality.ColO3, seq(n, func(i int) float64 { return 60 }))
	f.Set(airquality.ColCO, seq(n, func(i int) float64 { return 1 }))
	f.Set(airquality.ColTemperature, seq(n, func(i int) float64 { return 25 }))
	f.Set(airquality.ColHumidity, seq(n, func(i int) float64 { return 60 }))
	f.Set(airquality.ColPressure, seq(n, func(i int) float64 { return 1010 }))
	f.Set(airquality.ColWindSpeed, seq(n, func(i int) float64 { return 4 }))
	return f
}

func nan() float64 { return math.NaN() }

func TestCleanTreatsNegativesAsMissingAndFillsShortGaps(t *testing.T) {
	f := NewFrame("x", hourly(6))
	f.Set(airquality.ColPM25, []float64{5, -1, 7, nan(), nan(), 9})

	out := Clean(f)
	pm, _ := out.Col(airquality.ColPM25)
	assert.Equal(t, []float64{5, 5, 7, 7, 7, 9}, pm)

	// input untouched
	orig, _ := f.Col(airquality.ColPM25)
	assert.Equal(t, -1.0, orig[1])
}

func TestCleanLeavesLongGapsMissing(t *testing.T) {
	f := NewFrame("x", hourly(7))
	f.Set(airquality.ColNO2, []float64{1, nan(), nan(), nan(), nan(), 6, 7})

	out := Clean(f)
	no2, _ := out.Col(airquality.ColNO2)
	for i := 1; i <= 4; i++ {
		assert.True(t, math.IsNaN(no2[i]), "row %d", i)
	}
	assert.Equal(t, 6.0, no2[5])
}

func TestCleanBackfillsLeadingGap(t *testing.T) {
	f := NewFrame("x", hourly(4))
	f.Set(airquality.ColCO, []float64{nan(), nan(), 3, 4})

	co, _ := Clean(f).Col(airquality.ColCO)
	assert.Equal(t, []float64{3, 3, 3, 4}, co)
}

func TestCleanIgnoresWeatherColumns(t *testing.T) {
	f := NewFrame("x", hourly(3))
	f.Set(airquality.ColTemperature, []float64{-5, nan(), -3})

	temp, _ := Clean(f).Col(airquality.ColTemperature)
	assert.Equal(t, -5.0, temp[0])
	assert.True(t, math.IsNaN(temp[1]))
}

func TestCapOutliersBatchQuantile(t *testing.T) {
	values := seq(100, func(i int) float64 { return 10 })
	values[57] = 1000
	f := NewFrame("x", hourly(100))
	f.Set(airquality.ColPM25, values)

	threshold, ok := Quantile(values, 0.99)
	require.True(t, ok)
	assert.InDelta(t, 19.9, threshold, 1e-9)

	pm, _ := CapOutliers(f, DefaultOutlierPolicy()).Col(airquality.ColPM25)
	assert.LessOrEqual(t, pm[57], threshold)
	assert.Equal(t, 10.0, pm[0])
}

func TestCapOutliersFixedCapOverridesBatch(t *testing.T) {
	f := NewFrame("x", hourly(3))
	f.Set(airquality.ColPM10, []float64{100, 200, 300})
	f.Set(airquality.ColSO2, []float64{900, 900, 900})

	out := CapOutliers(f, OutlierPolicy{Quantile: 0.99, Fixed: map[string]float64{airquality.ColPM10: 150}})
	pm10, _ := out.Col(airquality.ColPM10)
	assert.Equal(t, []float64{100, 150, 150}, pm10)

	// so2 is not a capped column
	so2, _ := out.Col(airquality.ColSO2)
	assert.Equal(t, []float64{900, 900, 900}, so2)
}

func TestQuantileSkipsMissing(t *testing.T) {
	v, ok := Quantile([]float64{nan(), 1, 3, nan()}, 0.5)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = Quantile([]float64{nan()}, 0.5)
	assert.False(t, ok)
}

func TestDeriveAQI(t *testing.T) {
	f := NewFrame("x", hourly(2))
	f.Set(airquality.ColPM25, []float64{12.0, nan()})
	f.Set(airquality.ColPM10, []float64{10, nan()})

	real, ok := DeriveAQI(f).Col(airquality.ColRealAQI)
	require.True(t, ok)
	assert.InDelta(t, 50, real[0], 1e-9)
	assert.True(t, math.IsNaN(real[1]), "no pollutant means undefined, not zero")
}

func TestTemporalAndCyclical(t *testing.T) {
	// 2024-01-06 is a Saturday.
	sat := time.Date(2024, 1, 6, 6, 0, 0, 0, time.UTC)
	f := NewFrame("x", []time.Time{t0, sat})

	out := AddCyclical(AddTemporal(f))
	dow, _ := out.Col(ColDayOfWeek)
	weekend, _ := out.Col(ColIsWeekend)
	hourSin, _ := out.Col(ColHourSin)
	hourCos, _ := out.Col(ColHourCos)

	assert.Equal(t, []float64{0, 5}, dow)
	assert.Equal(t, []float64{0, 1}, weekend)
	assert.InDelta(t, 1, hourSin[1], 1e-9)
	assert.InDelta(t, 1, hourCos[0], 1e-9)
}

func TestLagAlignment(t *testing.T) {
	f := DeriveAQI(rawFrame(80))
	out := AddLags(f)

	pm, _ := out.Col(airquality.ColPM25)
	lag1, _ := out.Col(PM25Lag(1))
	assert.True(t, math.IsNaN(lag1[0]))
	for i := 1; i < out.Len(); i++ {
		assert.Equal(t, pm[i-1], lag1[i])
	}

	real, _ := out.Col(airquality.ColRealAQI)
	lag72, _ := out.Col(AQILag(72))
	for i := 0; i < 72; i++ {
		assert.True(t, math.IsNaN(lag72[i]))
	}
	assert.Equal(t, real[0], lag72[72])
}

func TestRollingAQIExcludesCurrentRow(t *testing.T) {
	f := NewFrame("x", hourly(10))
	f.Set(airquality.ColPM25, seq(10, func(i int) float64 { return float64(i) }))
	f.Set(airquality.ColRealAQI, seq(10, func(i int) float64 { return float64(i * 10) }))

	before, _ := AddRolling(f).Col(AQIRollMean(3))
	// rows 6, 7, 8 before row 9
	assert.InDelta(t, 70, before[9], 1e-9)
	assert.True(t, math.IsNaN(before[2]))
	assert.InDelta(t, 10, before[3], 1e-9)

	changed := f.Clone()
	real, _ := changed.Col(airquality.ColRealAQI)
	real[9] = 99999
	after, _ := AddRolling(changed).Col(AQIRollMean(3))
	assert.Equal(t, before[9], after[9])
}

func TestRollingPM25IncludesCurrentRow(t *testing.T) {
	f := NewFrame("x", hourly(5))
	f.Set(airquality.ColPM25, []float64{1, 2, 3, nan(), 5})

	out := AddRolling(f)
	mean, _ := out.Col(PM25RollMean(3))
	std, _ := out.Col(PM25RollStd(3))

	assert.True(t, math.IsNaN(mean[1]))
	assert.InDelta(t, 2, mean[2], 1e-9)
	assert.InDelta(t, 1, std[2], 1e-9)
	assert.True(t, math.IsNaN(mean[4]), "window containing a missing value")
}

func TestInteractions(t *testing.T) {
	f := NewFrame("x", hourly(1))
	f.Set(airquality.ColPM25, []float64{10})
	f.Set(airquality.ColTemperature, []float64{30})
	f.Set(airquality.ColWindSpeed, []float64{2})
	f.Set(airquality.ColHumidity, []float64{50})

	out := AddInteractions(f)
	tp, _ := out.Col(ColTempXPM25)
	wp, _ := out.Col(ColWindXPM25)
	hp, _ := out.Col(ColHumidityXPM25)
	assert.Equal(t, 300.0, tp[0])
	assert.Equal(t, 20.0, wp[0])
	assert.Equal(t, 500.0, hp[0])
}

func TestTargetsLookAhead(t *testing.T) {
	f := NewFrame("x", hourly(100))
	f.Set(airquality.ColRealAQI, seq(100, func(i int) float64 { return float64(i) }))

	out := AddTargets(f)
	t24, _ := out.Col(TargetPlus24)
	t72, _ := out.Col(TargetPlus72)
	assert.Equal(t, 24.0, t24[0])
	assert.Equal(t, 99.0, t24[75])
	assert.True(t, math.IsNaN(t24[76]))
	assert.Equal(t, 99.0, t72[27])
	assert.True(t, math.IsNaN(t72[28]))
}

func TestPipelineKeepsRowsAndOrder(t *testing.T) {
	raw := rawFrame(120)
	out, err := NewPipeline(DefaultOutlierPolicy()).Run(raw)
	require.NoError(t, err)

	assert.Equal(t, raw.Len(), out.Len())
	assert.Equal(t, raw.Timestamps, out.Timestamps)
	for _, col := range []string{airquality.ColRealAQI, ColHourSin, PM25Lag(72), AQIRollMean(48), ColWindXPM25, TargetPlus72} {
		assert.True(t, out.Has(col), col)
	}
	// raw input is not mutated
	assert.False(t, raw.Has(airquality.ColRealAQI))
}

func TestPipelineRejectsUnsortedBatch(t *testing.T) {
	raw := NewFrame("x", []time.Time{t0.Add(time.Hour), t0})
	raw.Set(airquality.ColPM25, []float64{1, 2})

	_, err := NewPipeline(DefaultOutlierPolicy()).Run(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotSorted)
	assert.ErrorIs(t, err, airquality.ErrDataQuality)

	sorted := raw.SortByTimestamp()
	require.NoError(t, sorted.CheckSorted())
	pm, _ := sorted.Col(airquality.ColPM25)
	assert.Equal(t, []float64{2, 1}, pm)
}

func TestPipelineRejectsEmptyBatch(t *testing.T) {
	_, err := NewPipeline(DefaultOutlierPolicy()).Run(NewFrame("x", nil))
	assert.ErrorIs(t, err, airquality.ErrDataQuality)
}

func TestRowsRoundTripDropsMissing(t *testing.T) {
	f := NewFrame("Karachi", hourly(2))
	f.Set(airquality.ColPM25, []float64{1, nan()})

	rows := f.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "Karachi", rows[0].Location)
	assert.Equal(t, 1.0, rows[0].Values[airquality.ColPM25])
	_, present := rows[1].Values[airquality.ColPM25]
	assert.False(t, present)

	back := FromRows("Karachi", rows)
	pm, ok := back.Col(airquality.ColPM25)
	require.True(t, ok)
	assert.True(t, math.IsNaN(pm[1]))
}
