// Package ingest fetches upstream observations, stores them, and rebuilds the
// feature rows they affect.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/features"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/observability"
)

// Config bounds the fetched and rebuilt ranges.
type Config struct {
	BackfillDays int
	// Window is the trailing span of raw observations reloaded to seed lag and
	// rolling features when rebuilding.
	Window time.Duration
}

// Result summarizes one ingestion run.
type Result struct {
	From         time.Time
	To           time.Time
	Observations int
	FeatureRows  int
}

// Ingestor runs backfill and hourly ingestion for one location.
type Ingestor struct {
	location     airquality.Location
	cfg          Config
	pollution    airquality.PollutionSource
	weather      airquality.WeatherSource
	observations airquality.RowStore
	features     airquality.RowStore
	pipeline     *features.Pipeline
	clock        clockwork.Clock
	metrics      *observability.Metrics
	log          *logrus.Entry
}

// NewIngestor creates a new Ingestor.
func NewIngestor(
	loc airquality.Location,
	cfg Config,
	pollution airquality.PollutionSource,
	weather airquality.WeatherSource,
	observations, featureStore airquality.RowStore,
	pipeline *features.Pipeline,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	log *logrus.Entry,
) *Ingestor {
	return &Ingestor{
		location:     loc,
		cfg:          cfg,
		pollution:    pollution,
		weather:      weather,
		observations: observations,
		features:     featureStore,
		pipeline:     pipeline,
		clock:        clock,
		metrics:      metrics,
		log:          log.WithField("component", "ingest"),
	}
}

// Backfill ingests the last BackfillDays days and rebuilds every feature row.
func (g *Ingestor) Backfill(ctx context.Context) (Result, error) {
	to := g.clock.Now().UTC().Truncate(time.Hour)
	from := to.Add(-time.Duration(g.cfg.BackfillDays) * 24 * time.Hour)
	return g.run(ctx, from, to, true)
}

// Hourly ingests the previous hour and rebuilds the rows it affects.
func (g *Ingestor) Hourly(ctx context.Context) (Result, error) {
	to := g.clock.Now().UTC().Truncate(time.Hour)
	from := to.Add(-time.Hour)
	return g.run(ctx, from, to, false)
}

func (g *Ingestor) run(ctx context.Context, from, to time.Time, full bool) (Result, error) {
	res := Result{From: from, To: to}
	log := g.log.WithFields(logrus.Fields{"from": from, "to": to})

	pollution, err := g.pollution.PollutionHistory(ctx, g.location, from, to)
	if err != nil {
		return res, fmt.Errorf("fetch pollution: %w", err)
	}
	if len(pollution) == 0 {
		return res, fmt.Errorf("%w: no pollution readings from %s", airquality.ErrDataQuality, g.pollution.Name())
	}

	weather, err := g.weather.HourlyWeather(ctx, g.location, from, to)
	if err != nil {
		return res, fmt.Errorf("fetch weather: %w", err)
	}

	obs := airquality.MergeReadings(g.location, pollution, weather)
	if len(obs) == 0 {
		return res, fmt.Errorf("%w: no hours with both pollution and weather", airquality.ErrDataQuality)
	}
	log.WithFields(logrus.Fields{
		"pollution": len(pollution),
		"weather":   len(weather),
		"merged":    len(obs),
	}).Info("fetched upstream data")

	rows := make([]airquality.Row, len(obs))
	for i, o := range obs {
		rows[i] = o.Row()
	}
	if _, err := g.observations.Upsert(ctx, rows); err != nil {
		return res, fmt.Errorf("store observations: %w", err)
	}
	res.Observations = len(rows)
	g.metrics.RowsUpserted.WithLabelValues("observations").Add(float64(len(rows)))

	// Reload raw history so lags, rolling windows, and targets of earlier rows
	// see the new hours.
	windowStart := from
	if !full {
		windowStart = to.Add(-g.cfg.Window)
	}
	raw, err := g.observations.Range(ctx, g.location.Key(), windowStart, to)
	if err != nil {
		return res, fmt.Errorf("reload observations: %w", err)
	}

	built, err := g.pipeline.Run(features.FromRows(g.location.Key(), raw).SortByTimestamp())
	if err != nil {
		return res, fmt.Errorf("build features: %w", err)
	}

	// Rows near the window start lack lag context; only rewrite rows whose
	// targets can change with the new hours.
	if !full {
		writeFrom := from.Add(-time.Duration(features.Horizons[len(features.Horizons)-1]) * time.Hour)
		ts := built.Timestamps
		built = built.Filter(func(i int) bool { return !ts[i].Before(writeFrom) })
	}

	up, err := g.features.Upsert(ctx, built.Rows())
	if err != nil {
		return res, fmt.Errorf("store features: %w", err)
	}
	res.FeatureRows = built.Len()
	g.metrics.RowsUpserted.WithLabelValues("features").Add(float64(built.Len()))

	log.WithFields(logrus.Fields{
		"feature_rows": built.Len(),
		"inserted":     up.Inserted,
		"updated":      up.Updated,
	}).Info("features stored")
	return res, nil
}
