// Package inference produces the daily AQI forecast for the next three days,
// computing only the dates that are not already stored.
package inference

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/features"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/models"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/observability"
)

// DefaultHistoryHours is enough trailing rows to seed the longest lag.
const DefaultHistoryHours = 96

// ModelSource resolves the production model and its artifact.
type ModelSource interface {
	Production(ctx context.Context, name string) (airquality.ModelRun, error)
	Artifact(ctx context.Context, name string, version int) ([]byte, error)
}

// Options tune a single inference run.
type Options struct {
	// Force discards stored forecasts for the window and recomputes all days.
	Force bool
}

// Result describes one inference run.
type Result struct {
	RunID string
	// Forecasts is every stored forecast for the window after the run.
	Forecasts []airquality.ForecastRow
	// Computed lists the dates predicted by this run.
	Computed []time.Time
}

// Inferencer is the inference orchestrator.
type Inferencer struct {
	location     airquality.Location
	modelName    string
	features     airquality.RowStore
	forecasts    airquality.ForecastStore
	models       ModelSource
	weather      airquality.WeatherForecaster
	historyHours int
	clock        clockwork.Clock
	metrics      *observability.Metrics
	log          *logrus.Entry
}

// NewInferencer creates a new Inferencer. A non-positive historyHours uses
// DefaultHistoryHours.
func NewInferencer(
	loc airquality.Location,
	modelName string,
	featureStore airquality.RowStore,
	forecasts airquality.ForecastStore,
	source ModelSource,
	weather airquality.WeatherForecaster,
	historyHours int,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	log *logrus.Entry,
) *Inferencer {
	if historyHours <= 0 {
		historyHours = DefaultHistoryHours
	}
	return &Inferencer{
		location:     loc,
		modelName:    modelName,
		features:     featureStore,
		forecasts:    forecasts,
		models:       source,
		weather:      weather,
		historyHours: historyHours,
		clock:        clock,
		metrics:      metrics,
		log:          log.WithField("component", "inference"),
	}
}

// Run fills in the missing forecast dates among the next airquality.ForecastDays
// days. When every date is already stored the model is not loaded.
func (in *Inferencer) Run(ctx context.Context, opts Options) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := in.log.WithField("run_id", res.RunID)

	now := in.clock.Now().UTC()
	today := airquality.DateOf(now)
	window := airquality.DateRange{After: today, Through: today.AddDate(0, 0, airquality.ForecastDays)}
	key := in.location.Key()

	stored, err := in.forecasts.Forecasts(ctx, key, window)
	if err != nil {
		return res, fmt.Errorf("load forecasts: %w", err)
	}
	stored = airquality.LatestPerDate(stored)

	// Stored rows stay untouched until the recomputed ones are ready.
	if opts.Force {
		stored = nil
	}
	missing := missingDates(today, stored)
	if len(missing) == 0 {
		in.metrics.ForecastCacheHits.Inc()
		log.Info("all forecast dates cached")
		res.Forecasts = stored
		return res, nil
	}
	log.WithField("missing", formatDates(missing)).Info("computing forecasts")

	forecaster, run, err := in.loadModel(ctx)
	if err != nil {
		return res, err
	}

	rows, err := in.features.Latest(ctx, key, in.historyHours)
	if err != nil {
		return res, fmt.Errorf("load feature history: %w", err)
	}
	if len(rows) == 0 {
		return res, fmt.Errorf("%w: no feature history", airquality.ErrDataQuality)
	}
	history := features.FromRows(key, rows).SortByTimestamp()
	last := history.Timestamps[history.Len()-1]

	furthest := missing[len(missing)-1]
	daysAhead := int(furthest.Sub(today) / (24 * time.Hour))
	hours := 24 * daysAhead
	// stale history needs extra hours to reach the end of the furthest date
	if reach := int(furthest.AddDate(0, 0, 1).Sub(last)/time.Hour) - 1; reach > hours {
		hours = reach
	}

	weather, err := in.weather.HourlyForecast(ctx, in.location, daysAhead+1)
	if err != nil {
		return res, fmt.Errorf("weather forecast: %w", err)
	}

	future := synthesize(history, weather, hours)
	X := align(future, run.FeatureNames, history.Slice(history.Len()-1, history.Len()).Matrix(run.FeatureNames)[0])
	pred, err := forecaster.Predict(X)
	if err != nil {
		return res, fmt.Errorf("predict: %w", err)
	}

	daily := dailyMeans(future.Timestamps, pred)
	createdAt := in.clock.Now().UTC()
	var computed []airquality.ForecastRow
	for _, d := range missing {
		avg, ok := daily[d]
		if !ok {
			log.WithField("date", d.Format(time.DateOnly)).Warn("no synthesized hours for date")
			continue
		}
		computed = append(computed, airquality.ForecastRow{
			Location:     key,
			Date:         d,
			AvgAQI:       avg,
			ModelVersion: run.Version,
			Candidate:    run.Candidate,
			RunID:        res.RunID,
			CreatedAt:    createdAt,
		})
		res.Computed = append(res.Computed, d)
	}
	if len(computed) == 0 {
		return res, fmt.Errorf("%w: no forecast dates covered", airquality.ErrDataQuality)
	}
	if opts.Force {
		if err := in.clearDates(ctx, key, res.Computed, log); err != nil {
			return res, err
		}
	}
	if err := in.forecasts.InsertForecasts(ctx, computed); err != nil {
		return res, fmt.Errorf("store forecasts: %w", err)
	}
	in.metrics.ForecastDaysComputed.Add(float64(len(computed)))

	res.Forecasts = airquality.LatestPerDate(append(stored, computed...))
	log.WithFields(logrus.Fields{
		"computed": len(computed),
		"version":  run.Version,
		"model":    run.Candidate,
	}).Info("forecasts stored")
	return res, nil
}

func (in *Inferencer) loadModel(ctx context.Context) (*models.Forecaster, airquality.ModelRun, error) {
	run, err := in.models.Production(ctx, in.modelName)
	if err != nil {
		return nil, run, err
	}
	if len(run.FeatureNames) == 0 {
		return nil, run, fmt.Errorf("%w: version %d has no input schema", airquality.ErrSchemaMismatch, run.Version)
	}

	data, err := in.models.Artifact(ctx, in.modelName, run.Version)
	if err != nil {
		return nil, run, fmt.Errorf("load artifact v%d: %w", run.Version, err)
	}
	f, err := models.LoadForecaster(data)
	if err != nil {
		return nil, run, fmt.Errorf("%w: decode artifact v%d: %w", airquality.ErrSchemaMismatch, run.Version, err)
	}
	if !slices.Equal(f.FeatureNames, run.FeatureNames) {
		return nil, run, fmt.Errorf("%w: artifact v%d features differ from registered schema", airquality.ErrSchemaMismatch, run.Version)
	}
	return f, run, nil
}

// missingDates returns the target dates after today that have no stored row.
// clearDates removes stored forecasts for exactly the recomputed dates.
func (in *Inferencer) clearDates(ctx context.Context, key string, dates []time.Time, log *logrus.Entry) error {
	deleted := 0
	for _, d := range dates {
		n, err := in.forecasts.DeleteForecasts(ctx, key, airquality.DateRange{After: d.AddDate(0, 0, -1), Through: d})
		if err != nil {
			return fmt.Errorf("clear forecasts: %w", err)
		}
		deleted += n
	}
	log.WithField("deleted", deleted).Info("forced recompute")
	return nil
}

func missingDates(today time.Time, stored []airquality.ForecastRow) []time.Time {
	have := make(map[time.Time]bool, len(stored))
	for _, r := range stored {
		have[airquality.DateOf(r.Date)] = true
	}
	var out []time.Time
	for i := 1; i <= airquality.ForecastDays; i++ {
		d := today.AddDate(0, 0, i)
		if !have[d] {
			out = append(out, d)
		}
	}
	return out
}

// dailyMeans averages the per-hour prediction (mean over horizons, floored at
// zero) by calendar date.
func dailyMeans(ts []time.Time, pred [][]float64) map[time.Time]float64 {
	sum := map[time.Time]float64{}
	n := map[time.Time]int{}
	for i, row := range pred {
		var v float64
		for _, p := range row {
			v += p
		}
		v = math.Max(v/float64(len(row)), 0)
		d := airquality.DateOf(ts[i])
		sum[d] += v
		n[d]++
	}
	out := make(map[time.Time]float64, len(sum))
	for d, s := range sum {
		out[d] = s / float64(n[d])
	}
	return out
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(time.DateOnly)
	}
	return out
}
