// Package scheduler runs the ingest, train and infer pipelines on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/lock"
)

// Runner executes one pipeline run.
type Runner interface {
	Ingest(ctx context.Context) error
	Train(ctx context.Context) error
	Infer(ctx context.Context, force bool) error
}

// Schedule holds a cron expression per pipeline.
type Schedule struct {
	Ingest string
	Train  string
	Infer  string
}

// Scheduler periodically runs the pipelines for the configured location.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	schedule  Schedule
	timeout   time.Duration
	log       *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler. Each run is bounded by timeout.
func New(runner Runner, schedule Schedule, timeout time.Duration, log *logrus.Entry) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// a slow run delays the next tick instead of overlapping it
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		schedule:  schedule,
		timeout:   timeout,
		log:       log.WithField("component", "scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the pipeline jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		cron string
		run  func(context.Context) error
	}{
		{"ingest", s.schedule.Ingest, s.runner.Ingest},
		{"train", s.schedule.Train, s.runner.Train},
		{"infer", s.schedule.Infer, func(ctx context.Context) error { return s.runner.Infer(ctx, false) }},
	}

	for _, j := range jobs {
		j := j
		_, err := s.scheduler.Cron(j.cron).Tag(j.name).Do(func() {
			s.runJob(j.name, j.run)
		})
		if err != nil {
			s.scheduler.Clear()
			return fmt.Errorf("schedule %s (%q): %w", j.name, j.cron, err)
		}
		s.log.WithFields(logrus.Fields{"job": j.name, "cron": j.cron}).Info("job scheduled")
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	log := s.log.WithField("job", name)
	log.Info("running job")
	if err := run(ctx); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			log.Info("job skipped, previous run still active")
			return
		}
		log.WithError(err).Warn("job failed")
		return
	}
	log.Info("job completed")
}

// Stop stops the scheduler and cancels any running job.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
