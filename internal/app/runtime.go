// Package app builds the Runtime shared by the CLI commands and the scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality/providers"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/config"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/features"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/inference"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/ingest"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/lock"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/models"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/observability"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/registry"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/store"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/training"
)

// Pipeline names used for locks, metric labels and logs.
const (
	PipelineBackfill = "backfill"
	PipelineIngest   = "ingest"
	PipelineTrain    = "train"
	PipelineInfer    = "infer"
)

// Runtime owns every client and component a run needs. Create it with New and
// release it with Close.
type Runtime struct {
	Config  *config.AppConfig
	Log     *logrus.Logger
	Metrics *observability.Metrics
	Clock   clockwork.Clock

	Observations airquality.RowStore
	Features     airquality.RowStore
	Forecasts    airquality.ForecastStore
	Registry     *registry.Registry
	Locker       lock.Locker

	Ingestor   *ingest.Ingestor
	Trainer    *training.Trainer
	Inferencer *inference.Inferencer
	Service    *airquality.Service

	closers []func(context.Context) error
}

// New connects to the configured backends and assembles the components. On
// error everything opened so far is closed.
func New(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger, metrics *observability.Metrics, clock clockwork.Clock) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Log: log, Metrics: metrics, Clock: clock}
	if err := rt.open(ctx); err != nil {
		_ = rt.Close(context.Background())
		return nil, err
	}
	rt.wire()
	return rt, nil
}

func (rt *Runtime) open(ctx context.Context) error {
	if err := rt.openStores(ctx); err != nil {
		return err
	}

	reg, err := registry.Open(rt.Config.RegistryDriver, rt.Config.RegistryDSN, rt.Clock)
	if err != nil {
		return err
	}
	rt.Registry = reg
	rt.closers = append(rt.closers, func(context.Context) error { return reg.Close() })

	return rt.openLocker(ctx)
}

func (rt *Runtime) openStores(ctx context.Context) error {
	cfg := rt.Config
	switch cfg.StoreBackend {
	case "memory":
		rt.Observations = store.NewMemoryRowStore(0)
		rt.Features = store.NewMemoryRowStore(0)
		rt.Forecasts = store.NewMemoryForecastStore()
		return nil
	case "mongo":
		client, err := store.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, client.Disconnect)

		db := client.Database(cfg.MongoDB)
		if rt.Observations, err = store.NewMongoRowStore(ctx, db, cfg.MongoObservationsCollection); err != nil {
			return err
		}
		if rt.Features, err = store.NewMongoRowStore(ctx, db, cfg.MongoFeaturesCollection); err != nil {
			return err
		}
		if rt.Forecasts, err = store.NewMongoForecastStore(ctx, db, cfg.MongoForecastsCollection); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

func (rt *Runtime) openLocker(ctx context.Context) error {
	cfg := rt.Config
	if cfg.RedisAddr == "" {
		rt.Locker = lock.Noop{}
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	rt.Locker = lock.NewRedisLocker(client, "aqi-forecast:lock:")
	return nil
}

func (rt *Runtime) wire() {
	cfg := rt.Config
	entry := logrus.NewEntry(rt.Log)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	retry := providers.RetryConfig{MaxAttempts: cfg.MaxRetries, Delay: cfg.RetryDelay}

	pollution := providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey, retry)
	openMeteo := providers.NewOpenMeteoProvider(httpClient, retry, rt.Clock)
	forecastSources := []airquality.WeatherForecaster{openMeteo}
	if cfg.WeatherAPIKey != "" {
		forecastSources = append(forecastSources, providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey, retry))
	}
	forecaster := providers.NewFallbackForecaster(entry, forecastSources...)

	pipeline := features.NewPipeline(features.OutlierPolicy{
		Quantile: cfg.OutlierQuantile,
		Fixed:    cfg.OutlierFixedCaps,
	})

	rt.Ingestor = ingest.NewIngestor(cfg.Location, ingest.Config{
		BackfillDays: cfg.BackfillDays,
		Window:       time.Duration(cfg.IngestWindowHours) * time.Hour,
	}, pollution, openMeteo, rt.Observations, rt.Features, pipeline, rt.Clock, rt.Metrics, entry)

	rt.Trainer = training.NewTrainer(cfg.Location, cfg.ModelName, rt.Features, rt.Registry,
		models.DefaultCandidates(), rt.Clock, rt.Metrics, entry)

	rt.Inferencer = inference.NewInferencer(cfg.Location, cfg.ModelName, rt.Features, rt.Forecasts,
		rt.Registry, forecaster, cfg.InferenceHistoryHours, rt.Clock, rt.Metrics, entry)

	rt.Service = airquality.NewService(cfg.Location, cfg.ModelName, rt.Features, rt.Forecasts,
		rt.Registry, rt.Clock, entry)
}

// RunPipeline runs fn while holding the location's run lock and records the
// outcome. A run that finds the lock taken returns lock.ErrLocked without
// calling fn.
func (rt *Runtime) RunPipeline(ctx context.Context, name string, fn func(context.Context) error) error {
	log := rt.Log.WithFields(logrus.Fields{"pipeline": name, "city": rt.Config.Location.City})
	start := rt.Clock.Now()

	release, err := rt.Locker.Acquire(ctx, rt.Config.Location.Key(), rt.Config.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			rt.Metrics.PipelineRuns.WithLabelValues(name, "locked").Inc()
			log.Warn("another run holds the lock; skipping")
		}
		return err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.WithError(err).Error("release run lock")
		}
	}()

	err = fn(ctx)
	elapsed := rt.Clock.Since(start)
	reason := airquality.Reason(err)
	rt.Metrics.PipelineRuns.WithLabelValues(name, reason).Inc()
	rt.Metrics.PipelineDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{"reason": reason, "elapsed": elapsed.String()}).Error("pipeline failed")
		return err
	}
	log.WithField("elapsed", elapsed.String()).Info("pipeline finished")
	return nil
}

// Close releases every opened client in reverse order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
