package features

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

// Derived column names.
const (
	ColHour          = "hour"
	ColDayOfWeek     = "day_of_week"
	ColIsWeekend     = "is_weekend"
	ColHourSin       = "hour_sin"
	ColHourCos       = "hour_cos"
	ColDowSin        = "dow_sin"
	ColDowCos        = "dow_cos"
	ColTempXPM25     = "temp_x_pm25"
	ColWindXPM25     = "wind_x_pm25"
	ColHumidityXPM25 = "humidity_x_pm25"
	TargetPlus24     = "aqi_t_plus_24"
	TargetPlus48     = "aqi_t_plus_48"
	TargetPlus72     = "aqi_t_plus_72"
)

var (
	// LagOffsets are the hour offsets of the lag features.
	LagOffsets = []int{1, 2, 3, 6, 12, 24, 48, 72}
	// RollingWindows are the trailing window lengths of the rolling features.
	RollingWindows = []int{3, 6, 12, 24, 48}
	// Horizons are the forecast lead times in hours.
	Horizons = []int{24, 48, 72}
	// TargetColumns are the supervised targets, one per horizon.
	TargetColumns = []string{TargetPlus24, TargetPlus48, TargetPlus72}
)

func PM25Lag(l int) string { return fmt.Sprintf("pm2_5_lag_%d", l) }
func AQILag(l int) string { return fmt.Sprintf("aqi_lag_%d", l) }
func PM25RollMean(w int) string { return fmt.Sprintf("pm2_5_roll_mean_%d", w) }
func PM25RollStd(w int) string { return fmt.Sprintf("pm2_5_roll_std_%d", w) }
func AQIRollMean(w int) string { return fmt.Sprintf("aqi_roll_mean_%d", w) }
func TargetColumn(h int) string { return fmt.Sprintf("aqi_t_plus_%d", h) }

// AddTemporal adds hour of day, day of week (Monday=0), and the weekend flag.
func AddTemporal(f *Frame) *Frame {
	out := f.Clone()
	hour := make([]float64, out.Len())
	dow := make([]float64, out.Len())
	weekend := make([]float64, out.Len())
	for i, ts := range out.Timestamps {
		hour[i] = float64(ts.Hour())
		dow[i] = float64(mondayFirst(ts))
		if dow[i] >= 5 {
			weekend[i] = 1
		}
	}
	out.Set(ColHour, hour)
	out.Set(ColDayOfWeek, dow)
	out.Set(ColIsWeekend, weekend)
	return out
}

func mondayFirst(ts time.Time) int {
	return (int(ts.Weekday()) + 6) % 7
}

// AddCyclical adds sine/cosine encodings of hour and day of week. Requires AddTemporal.
func AddCyclical(f *Frame) *Frame {
	out := f.Clone()
	hour := out.ColOrNaN(ColHour)
	dow := out.ColOrNaN(ColDayOfWeek)

	hs, hc := make([]float64, out.Len()), make([]float64, out.Len())
	ds, dc := make([]float64, out.Len()), make([]float64, out.Len())
	for i := range hs {
		hs[i] = math.Sin(2 * math.Pi * hour[i] / 24)
		hc[i] = math.Cos(2 * math.Pi * hour[i] / 24)
		ds[i] = math.Sin(2 * math.Pi * dow[i] / 7)
		dc[i] = math.Cos(2 * math.Pi * dow[i] / 7)
	}
	out.Set(ColHourSin, hs)
	out.Set(ColHourCos, hc)
	out.Set(ColDowSin, ds)
	out.Set(ColDowCos, dc)
	return out
}

// AddLags adds pm2_5 and AQI values from L rows earlier; the first L rows are missing.
func AddLags(f *Frame) *Frame {
	out := f.Clone()
	pm := out.ColOrNaN(airquality.ColPM25)
	truth := out.ColOrNaN(airquality.ColRealAQI)
	for _, l := range LagOffsets {
		out.Set(PM25Lag(l), shift(pm, l))
		out.Set(AQILag(l), shift(truth, l))
	}
	return out
}

// AddRolling adds trailing-window pm2_5 mean and sample standard deviation (current row
// included) and the AQI mean over the W rows before the current one. A window with any
// missing value, or one that reaches past the start of the batch, is missing.
func AddRolling(f *Frame) *Frame {
	out := f.Clone()
	pm := out.ColOrNaN(airquality.ColPM25)
	priorAQI := shift(out.ColOrNaN(airquality.ColRealAQI), 1)
	for _, w := range RollingWindows {
		mean, std := rolling(pm, w)
		aqiMean, _ := rolling(priorAQI, w)
		out.Set(PM25RollMean(w), mean)
		out.Set(PM25RollStd(w), std)
		out.Set(AQIRollMean(w), aqiMean)
	}
	return out
}

// AddInteractions adds weather x pm2_5 products.
func AddInteractions(f *Frame) *Frame {
	out := f.Clone()
	pm := out.ColOrNaN(airquality.ColPM25)
	out.Set(ColTempXPM25, product(out.ColOrNaN(airquality.ColTemperature), pm))
	out.Set(ColWindXPM25, product(out.ColOrNaN(airquality.ColWindSpeed), pm))
	out.Set(ColHumidityXPM25, product(out.ColOrNaN(airquality.ColHumidity), pm))
	return out
}

// AddTargets adds the AQI value H rows ahead for every horizon; the last H rows are missing.
func AddTargets(f *Frame) *Frame {
	out := f.Clone()
	truth := out.ColOrNaN(airquality.ColRealAQI)
	for _, h := range Horizons {
		out.Set(TargetColumn(h), shift(truth, -h))
	}
	return out
}

// shift moves values down by n rows (up when n is negative), padding with NaN.
func shift(c []float64, n int) []float64 {
	out := nanColumn(len(c))
	for i := range c {
		j := i - n
		if j >= 0 && j < len(c) {
			out[i] = c[j]
		}
	}
	return out
}

func rolling(c []float64, w int) (mean, std []float64) {
	mean, std = nanColumn(len(c)), nanColumn(len(c))
	for i := w - 1; i < len(c); i++ {
		window := c[i-w+1 : i+1]
		if hasNaN(window) {
			continue
		}
		mean[i], std[i] = stat.MeanStdDev(window, nil)
	}
	return mean, std
}

func product(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}

func hasNaN(c []float64) bool {
	for _, v := range c {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
