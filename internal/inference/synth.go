package inference

import (
	"math"
	"sort"
	"time"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/features"
)

// WeatherTolerance is the widest gap between a future hour and the forecast
// sample used for it.
const WeatherTolerance = 30 * time.Minute

// carriedColumns are held at their last observed value in future rows; no
// pollutant forecast exists.
var carriedColumns = append(append([]string{}, airquality.PollutantColumns...), airquality.ColRealAQI)

// weatherIndex finds the forecast sample nearest to an hour.
type weatherIndex []airquality.WeatherReading

func newWeatherIndex(readings []airquality.WeatherReading) weatherIndex {
	idx := append(weatherIndex(nil), readings...)
	sort.Slice(idx, func(i, j int) bool { return idx[i].Timestamp.Before(idx[j].Timestamp) })
	return idx
}

func (w weatherIndex) nearest(ts time.Time, tolerance time.Duration) (airquality.WeatherReading, bool) {
	i := sort.Search(len(w), func(i int) bool { return !w[i].Timestamp.Before(ts) })
	best, bestGap := -1, tolerance+1
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(w) {
			continue
		}
		gap := w[j].Timestamp.Sub(ts)
		if gap < 0 {
			gap = -gap
		}
		if gap <= tolerance && gap < bestGap {
			best, bestGap = j, gap
		}
	}
	if best < 0 {
		return airquality.WeatherReading{}, false
	}
	return w[best], true
}

// synthesize appends hours future rows after the last row of history. Weather
// comes from the nearest forecast sample, pollutants and ground-truth AQI are
// carried forward, and time, lag, rolling and interaction features are
// recomputed over history plus future so lag windows are seeded by real rows.
// It returns only the future rows.
func synthesize(history *features.Frame, forecast []airquality.WeatherReading, hours int) *features.Frame {
	n := history.Len()
	last := history.Timestamps[n-1]

	ts := make([]time.Time, n+hours)
	copy(ts, history.Timestamps)
	for h := 1; h <= hours; h++ {
		ts[n+h-1] = last.Add(time.Duration(h) * time.Hour)
	}
	combined := features.NewFrame(history.Location, ts)

	for _, name := range carriedColumns {
		src := history.ColOrNaN(name)
		c := make([]float64, n+hours)
		copy(c, src)
		for i := n; i < len(c); i++ {
			c[i] = src[n-1]
		}
		combined.Set(name, c)
	}

	index := newWeatherIndex(forecast)
	weather := make(map[string][]float64, len(airquality.WeatherColumns))
	for _, name := range airquality.WeatherColumns {
		c := make([]float64, n+hours)
		copy(c, history.ColOrNaN(name))
		weather[name] = c
	}
	for i := n; i < len(ts); i++ {
		w, ok := index.nearest(ts[i], WeatherTolerance)
		if !ok {
			w = airquality.WeatherReading{Temperature: math.NaN(), Humidity: math.NaN(), Pressure: math.NaN(), WindSpeed: math.NaN()}
		}
		weather[airquality.ColTemperature][i] = w.Temperature
		weather[airquality.ColHumidity][i] = w.Humidity
		weather[airquality.ColPressure][i] = w.Pressure
		weather[airquality.ColWindSpeed][i] = w.WindSpeed
	}
	for name, c := range weather {
		combined.Set(name, c)
	}

	for _, stage := range []func(*features.Frame) *features.Frame{
		features.AddTemporal,
		features.AddCyclical,
		features.AddLags,
		features.AddRolling,
		features.AddInteractions,
	} {
		combined = stage(combined)
	}
	return combined.Slice(n, n+hours)
}

// align reindexes future to exactly names and fills missing values forward from
// seed (the last historical row), then backward, then with zero.
func align(future *features.Frame, names []string, seed []float64) [][]float64 {
	X := future.Matrix(names)
	for j := range names {
		prev := math.NaN()
		if seed != nil {
			prev = seed[j]
		}
		for i := range X {
			if math.IsNaN(X[i][j]) {
				X[i][j] = prev
			} else {
				prev = X[i][j]
			}
		}
		next := math.NaN()
		for i := len(X) - 1; i >= 0; i-- {
			if math.IsNaN(X[i][j]) {
				X[i][j] = next
			} else {
				next = X[i][j]
			}
		}
		for i := range X {
			if math.IsNaN(X[i][j]) {
				X[i][j] = 0
			}
		}
	}
	return X
}
