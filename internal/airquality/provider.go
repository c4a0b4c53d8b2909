package airquality

import (
	"context"
	"time"
)

// PollutionSource returns hourly pollutant concentrations for a time range.
// An empty result means no data for the range and is not an error.
type PollutionSource interface {
	Name() string
	PollutionHistory(ctx context.Context, loc Location, from, to time.Time) ([]PollutionReading, error)
}

// WeatherSource returns observed hourly weather for a time range.
type WeatherSource interface {
	Name() string
	HourlyWeather(ctx context.Context, loc Location, from, to time.Time) ([]WeatherReading, error)
}

// WeatherForecaster returns hourly weather forecasts starting today for the given number of days.
type WeatherForecaster interface {
	Name() string
	HourlyForecast(ctx context.Context, loc Location, days int) ([]WeatherReading, error)
}

// UpsertResult reports how many rows an upsert created and replaced.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// RowStore holds rows keyed by (location, timestamp). Writes are upserts.
// Both raw observations and feature rows are kept in a RowStore.
type RowStore interface {
	Upsert(ctx context.Context, rows []Row) (UpsertResult, error)
	// Range returns rows with from <= timestamp <= to in ascending order. When fields
	// are given only those columns are returned.
	Range(ctx context.Context, location string, from, to time.Time, fields ...string) ([]Row, error)
	// Latest returns the n most recent rows in ascending order.
	Latest(ctx context.Context, location string, n int) ([]Row, error)
	// All returns every row for the location in ascending order.
	All(ctx context.Context, location string) ([]Row, error)
}

// DateRange selects dates with After < date <= Through.
type DateRange struct {
	After   time.Time
	Through time.Time
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	return d.After(r.After) && !d.After(r.Through)
}

// ForecastStore holds daily forecast rows.
type ForecastStore interface {
	Forecasts(ctx context.Context, location string, r DateRange) ([]ForecastRow, error)
	DeleteForecasts(ctx context.Context, location string, r DateRange) (int, error)
	InsertForecasts(ctx context.Context, rows []ForecastRow) error
}

// RunLister lists registered model runs for a model name.
type RunLister interface {
	List(ctx context.Context, name string) ([]ModelRun, error)
}
