package airquality

import (
	"math"
	"time"
)

// Raw column names shared by observations, feature rows, and the stores.
const (
	ColPM25        = "pm2_5"
	ColPM10        = "pm10"
	ColNO2         = "no2"
	ColSO2         = "so2"
	ColO3          = "o3"
	ColCO          = "co"
	ColUSAQI       = "us_aqi"
	ColTemperature = "temperature_2m"
	ColHumidity    = "relativehumidity_2m"
	ColPressure    = "pressure_msl"
	ColWindSpeed   = "windspeed_10m"
	ColRealAQI     = "real_aqi"
)

// PollutantColumns lists the six concentration columns in a fixed order.
var PollutantColumns = []string{ColPM25, ColPM10, ColNO2, ColSO2, ColO3, ColCO}

// WeatherColumns lists the four hourly weather variables.
var WeatherColumns = []string{ColTemperature, ColHumidity, ColPressure, ColWindSpeed}

// Location is the fixed place forecasts are produced for.
type Location struct {
	City string  `json:"city"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Key returns the identifier stored alongside every row for this location.
func (l Location) Key() string {
	return l.City
}

// PollutionReading is one hour of pollutant concentrations from the upstream source.
// Missing components are NaN.
type PollutionReading struct {
	Timestamp time.Time
	PM25      float64
	PM10      float64
	NO2       float64
	SO2       float64
	O3        float64
	CO        float64
	// USAQI is the upstream 1-5 category, not the 0-500 index.
	USAQI float64
}

// WeatherReading is one hour of weather variables. Missing values are NaN.
type WeatherReading struct {
	Timestamp   time.Time
	Temperature float64
	Humidity    float64
	Pressure    float64
	WindSpeed   float64
}

// Observation is one location and one hour of pollutant and weather values.
type Observation struct {
	Location  string
	Timestamp time.Time
	Pollution PollutionReading
	Weather   WeatherReading
}

// Row converts the observation into a generic store row, dropping missing values.
func (o Observation) Row() Row {
	values := map[string]float64{
		ColPM25:        o.Pollution.PM25,
		ColPM10:        o.Pollution.PM10,
		ColNO2:         o.Pollution.NO2,
		ColSO2:         o.Pollution.SO2,
		ColO3:          o.Pollution.O3,
		ColCO:          o.Pollution.CO,
		ColUSAQI:       o.Pollution.USAQI,
		ColTemperature: o.Weather.Temperature,
		ColHumidity:    o.Weather.Humidity,
		ColPressure:    o.Weather.Pressure,
		ColWindSpeed:   o.Weather.WindSpeed,
	}
	return NewRow(o.Location, o.Timestamp, values)
}

// Row is a keyed bag of numeric columns for one (location, timestamp).
// Missing values are absent from Values, never stored as NaN.
type Row struct {
	Location  string             `json:"city"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// NewRow builds a Row, skipping NaN and infinite values.
func NewRow(location string, ts time.Time, values map[string]float64) Row {
	clean := make(map[string]float64, len(values))
	for k, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		clean[k] = v
	}
	return Row{Location: location, Timestamp: ts.UTC(), Values: clean}
}

// Value returns the named column or NaN when it is missing.
func (r Row) Value(name string) float64 {
	if v, ok := r.Values[name]; ok {
		return v
	}
	return math.NaN()
}

// ForecastRow is one predicted daily-average AQI.
type ForecastRow struct {
	Location     string    `json:"city"`
	Date         time.Time `json:"date"` // UTC midnight
	AvgAQI       float64   `json:"avg_aqi"`
	ModelVersion int       `json:"model_version"`
	Candidate    string    `json:"candidate"`
	RunID        string    `json:"run_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// DailyAQI is a historical daily average of the ground-truth AQI.
type DailyAQI struct {
	Date    time.Time `json:"date"`
	AvgAQI  float64   `json:"avg_aqi"`
	Samples int       `json:"samples"`
}

// Stage is a model registry lifecycle stage.
type Stage string

const (
	StageStaged     Stage = "staged"
	StageProduction Stage = "production"
	StageArchived   Stage = "archived"
)

// HorizonMetrics holds per-horizon evaluation errors for one candidate.
type HorizonMetrics struct {
	MAE24   float64 `json:"mae_24h"`
	MAE48   float64 `json:"mae_48h"`
	MAE72   float64 `json:"mae_72h"`
	RMSE24  float64 `json:"rmse_24h"`
	RMSE48  float64 `json:"rmse_48h"`
	RMSE72  float64 `json:"rmse_72h"`
	RMSEAvg float64 `json:"rmse_avg"`
}

// ModelRun is one registered training attempt.
type ModelRun struct {
	Name         string         `json:"name"`
	Version      int            `json:"version"`
	RunID        string         `json:"run_id"`
	RunName      string         `json:"run_name"`
	Candidate    string         `json:"candidate"`
	Params       map[string]any `json:"params"`
	Metrics      HorizonMetrics `json:"metrics"`
	Stage        Stage          `json:"stage"`
	FeatureNames []string       `json:"-"`
	Targets      []string       `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DateOf truncates t to UTC midnight.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
