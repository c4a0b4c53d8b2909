package airquality

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// ForecastDays is the number of future calendar days served and produced.
const ForecastDays = 3

// Service answers the read-only queries behind the HTTP API.
type Service struct {
	location  Location
	modelName string
	features  RowStore
	forecasts ForecastStore
	runs      RunLister
	clock     clockwork.Clock
	log       *logrus.Entry
}

// NewService creates a new Service.
func NewService(loc Location, modelName string, features RowStore, forecasts ForecastStore, runs RunLister, clock clockwork.Clock, log *logrus.Entry) *Service {
	return &Service{
		location:  loc,
		modelName: modelName,
		features:  features,
		forecasts: forecasts,
		runs:      runs,
		clock:     clock,
		log:       log.WithField("component", "query"),
	}
}

// Location returns the configured location.
func (s *Service) Location() Location {
	return s.location
}

// CurrentForecasts returns up to ForecastDays future daily rows.
func (s *Service) CurrentForecasts(ctx context.Context) ([]ForecastRow, error) {
	today := DateOf(s.clock.Now())
	rows, err := s.forecasts.Forecasts(ctx, s.location.Key(), DateRange{
		After:   today,
		Through: today.AddDate(0, 0, ForecastDays),
	})
	if err != nil {
		return nil, fmt.Errorf("load forecasts: %w", err)
	}

	rows = LatestPerDate(rows)
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows, nil
}

// History returns daily-averaged ground-truth AQI over the last days days.
func (s *Service) History(ctx context.Context, days int) ([]DailyAQI, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be greater than zero")
	}

	end := s.clock.Now().UTC()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)

	rows, err := s.features.Range(ctx, s.location.Key(), start, end, ColRealAQI)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	s.log.WithFields(logrus.Fields{"days": days, "rows": len(rows)}).Debug("history query")
	return DailyAverages(rows, ColRealAQI), nil
}

// LatestMetrics returns today's production run and the other runs registered today.
func (s *Service) LatestMetrics(ctx context.Context) (*ModelRun, []ModelRun, error) {
	runs, err := s.runs.List(ctx, s.modelName)
	if err != nil {
		return nil, nil, fmt.Errorf("list runs: %w", err)
	}

	today := DateOf(s.clock.Now())
	var (
		production *ModelRun
		others     []ModelRun
	)
	for i := range runs {
		r := runs[i]
		if !DateOf(r.CreatedAt).Equal(today) {
			continue
		}
		if r.Stage == StageProduction {
			production = &r
			continue
		}
		others = append(others, r)
	}

	if production == nil && len(others) == 0 {
		return nil, nil, ErrNotFound
	}
	return production, others, nil
}
