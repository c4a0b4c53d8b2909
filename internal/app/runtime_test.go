package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/config"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/lock"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/observability"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/store"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Location:              airquality.Location{City: "Karachi", Lat: 24.8607, Lon: 67.0011},
		BackfillDays:          7,
		HTTPTimeout:           time.Second,
		MaxRetries:            1,
		StoreBackend:          "memory",
		RegistryDriver:        "sqlite",
		RegistryDSN:           ":memory:",
		ModelName:             "AQI_Forecast_Model",
		LockTTL:               time.Minute,
		IngestWindowHours:     168,
		InferenceHistoryHours: 96,
		OutlierQuantile:       0.99,
	}
}

func newRuntime(t *testing.T) *Runtime {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))

	rt, err := New(context.Background(), testConfig(), log, observability.NewMetricsForTesting(), clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (lock.Release, error) {
	return nil, lock.ErrLocked
}

func TestNewWiresMemoryBackend(t *testing.T) {
	rt := newRuntime(t)

	assert.IsType(t, &store.MemoryRowStore{}, rt.Observations)
	assert.IsType(t, &store.MemoryRowStore{}, rt.Features)
	assert.IsType(t, &store.MemoryForecastStore{}, rt.Forecasts)
	assert.IsType(t, lock.Noop{}, rt.Locker)
	assert.NotNil(t, rt.Ingestor)
	assert.NotNil(t, rt.Trainer)
	assert.NotNil(t, rt.Inferencer)
	assert.NotNil(t, rt.Service)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = "cassandra"

	_, err := New(context.Background(), cfg, logrus.New(), observability.NewMetricsForTesting(), clockwork.NewRealClock())
	assert.ErrorContains(t, err, "cassandra")
}

func TestRunPipelineRecordsOutcome(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	require.NoError(t, rt.RunPipeline(ctx, PipelineTrain, func(context.Context) error { return nil }))
	assert.Equal(t, 1.0, counterValue(t, rt.Metrics.PipelineRuns.WithLabelValues(PipelineTrain, "ok")))

	err := rt.RunPipeline(ctx, PipelineInfer, func(context.Context) error {
		return fmt.Errorf("load model: %w", airquality.ErrNoProductionModel)
	})
	assert.ErrorIs(t, err, airquality.ErrNoProductionModel)
	assert.Equal(t, 1.0, counterValue(t, rt.Metrics.PipelineRuns.WithLabelValues(PipelineInfer, "no_production_model")))
}

func TestRunPipelineSkipsWhenLocked(t *testing.T) {
	rt := newRuntime(t)
	rt.Locker = busyLocker{}

	called := false
	err := rt.RunPipeline(context.Background(), PipelineIngest, func(context.Context) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, lock.ErrLocked))
	assert.False(t, called)
	assert.Equal(t, 1.0, counterValue(t, rt.Metrics.PipelineRuns.WithLabelValues(PipelineIngest, "locked")))
}

func TestInferWithoutModelFailsCleanly(t *testing.T) {
	rt := newRuntime(t)

	err := rt.Infer(context.Background(), false)
	assert.ErrorIs(t, err, airquality.ErrNoProductionModel)

	rows, err := rt.Forecasts.Forecasts(context.Background(), "Karachi", airquality.DateRange{
		After:   time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Through: time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEphemeralOnlyForMemoryBackend(t *testing.T) {
	rt := newRuntime(t)
	assert.True(t, rt.Ephemeral())

	cfg := testConfig()
	cfg.StoreBackend = "mongo"
	persistent := &Runtime{Config: cfg}
	assert.False(t, persistent.Ephemeral())
	// No components are wired, so any pipeline call would panic.
	assert.NoError(t, persistent.Warmup(context.Background()))
}

func TestRunSequenceStopsAtFirstFailure(t *testing.T) {
	var ran []string
	step := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			ran = append(ran, name)
			return err
		}
	}

	err := runSequence(context.Background(),
		step(PipelineBackfill, nil),
		step(PipelineTrain, airquality.ErrDataQuality),
		step(PipelineInfer, nil),
	)
	assert.ErrorIs(t, err, airquality.ErrDataQuality)
	assert.Equal(t, []string{PipelineBackfill, PipelineTrain}, ran)
}
