package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	httpapi "github.com/AliyaAkhtar/AQI-PREDICTION/internal/api/http"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/app"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/config"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/observability"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/scheduler"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aqi-forecast",
		Short: "Air quality ingestion, training and 3-day AQI forecasting",
		Long: `Ingests hourly pollution and weather data, builds features, trains and
promotes forecasting models, and serves daily AQI forecasts for the next three days.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newBackfillCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newTrainCmd())
	rootCmd.AddCommand(newInferCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withRuntime loads configuration, builds a Runtime for the duration of fn, and
// tears it down afterwards.
func withRuntime(ctx context.Context, fn func(ctx context.Context, rt *app.Runtime) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	rt, err := app.New(ctx, cfg, log, observability.NewMetrics(), clockwork.NewRealClock())
	if err != nil {
		return fmt.Errorf("init runtime: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			log.WithError(err).Warn("close runtime")
		}
	}()

	return fn(ctx, rt)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newServeCmd() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read API and the scheduled pipelines",
		Long: `Runs the read API and the scheduled pipelines. With STORE_BACKEND=memory
nothing survives a restart, so serve first backfills, trains and infers once
in the background.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				log := logrus.NewEntry(rt.Log)

				if !noScheduler {
					sched := scheduler.New(rt, scheduler.Schedule{
						Ingest: rt.Config.IngestCron,
						Train:  rt.Config.TrainCron,
						Infer:  rt.Config.InferCron,
					}, rt.Config.LockTTL, log)
					if err := sched.Start(); err != nil {
						return fmt.Errorf("start scheduler: %w", err)
					}
					defer sched.Stop()
				}

				if rt.Ephemeral() {
					go func() {
						if err := rt.Warmup(ctx); err != nil {
							log.WithError(err).Warn("warmup of in-memory stores failed")
						}
					}()
				}

				server := httpapi.NewApp()
				httpapi.RegisterRoutes(server, rt.Service)

				go func() {
					if err := server.Listen(":" + rt.Config.Port); err != nil {
						log.WithError(err).Error("fiber server stopped")
					}
				}()
				log.WithField("port", rt.Config.Port).Info("serving")

				<-ctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.ShutdownWithContext(shutdownCtx)
			})
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Serve the API without running scheduled pipelines")
	return cmd
}

func newBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Fetch BACKFILL_DAYS of history and rebuild features",
		Long: `Fetches BACKFILL_DAYS of history and rebuilds features.

With STORE_BACKEND=memory the results are discarded when the command exits.
Use STORE_BACKEND=mongo to share data between commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				return rt.Backfill(ctx)
			})
		},
	}
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the previous hour and refresh trailing features",
		Long: `Ingests the previous hour and refreshes trailing features.

With STORE_BACKEND=memory the results are discarded when the command exits.
Use STORE_BACKEND=mongo to share data between commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				return rt.Ingest(ctx)
			})
		},
	}
}

func newTrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train every candidate, register them and promote the best",
		Long: `Trains every candidate on the stored features, registers them and
promotes the best.

With STORE_BACKEND=memory the results are discarded when the command exits.
Use STORE_BACKEND=mongo to share data between commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				return rt.Train(ctx)
			})
		},
	}
}

func newInferCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Forecast the missing days among the next three",
		Long: `Forecasts the missing days among the next three from the stored features
and the production model.

With STORE_BACKEND=memory the results are discarded when the command exits.
Use STORE_BACKEND=mongo to share data between commands.`,
		Example: `  # Fill gaps only
  aqi-forecast infer

  # Recompute all three days
  aqi-forecast infer --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				return rt.Infer(ctx, force)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Recompute every day and replace the stored forecasts once done")
	return cmd
}
