// Package aqi computes the 0-500 Air Quality Index from pollutant concentrations
// using piecewise-linear breakpoint interpolation.
package aqi

import "math"

// Pollutant names a concentration column.
type Pollutant string

const (
	PM25 Pollutant = "pm2_5"
	PM10 Pollutant = "pm10"
	NO2  Pollutant = "no2"
	SO2  Pollutant = "so2"
	O3   Pollutant = "o3"
	CO   Pollutant = "co"
)

// Pollutants lists every pollutant with a breakpoint table.
var Pollutants = []Pollutant{PM25, PM10, NO2, O3, CO, SO2}

// ozoneUgPerPPM converts ozone from µg/m³ to ppm.
const ozoneUgPerPPM = 1960.0

// Band maps a closed concentration range onto an index range.
type Band struct {
	ConcLow   float64
	ConcHigh  float64
	IndexLow  float64
	IndexHigh float64
}

// Table is an ordered, non-overlapping set of bands.
type Table []Band

// Lookup interpolates conc within the band that contains it.
// ok is false when conc is missing or no band covers it.
func (t Table) Lookup(conc float64) (float64, bool) {
	if math.IsNaN(conc) {
		return 0, false
	}
	for _, b := range t {
		if conc >= b.ConcLow && conc <= b.ConcHigh {
			return (b.IndexHigh-b.IndexLow)/(b.ConcHigh-b.ConcLow)*(conc-b.ConcLow) + b.IndexLow, true
		}
	}
	return 0, false
}

// SubIndex returns the sub-index for a single pollutant concentration in its native unit
// (µg/m³ for everything, ozone included).
func SubIndex(p Pollutant, conc float64) (float64, bool) {
	t, ok := tables[p]
	if !ok {
		return 0, false
	}
	if p == O3 {
		conc /= ozoneUgPerPPM
	}
	return t.Lookup(conc)
}

// Overall returns the maximum sub-index over the given concentrations.
// Missing (absent or NaN) pollutants are ignored; ok is false when nothing could be computed.
func Overall(conc map[Pollutant]float64) (float64, bool) {
	best, found := 0.0, false
	for _, p := range Pollutants {
		c, present := conc[p]
		if !present {
			continue
		}
		v, ok := SubIndex(p, c)
		if !ok {
			continue
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	return best, found
}

// OverallOrNaN is Overall with NaN standing in for "undefined".
func OverallOrNaN(conc map[Pollutant]float64) float64 {
	if v, ok := Overall(conc); ok {
		return v
	}
	return math.NaN()
}
