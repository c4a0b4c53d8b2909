package app

import (
	"context"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/inference"
)

// Backfill ingests the full backfill window under the run lock.
func (rt *Runtime) Backfill(ctx context.Context) error {
	return rt.RunPipeline(ctx, PipelineBackfill, func(ctx context.Context) error {
		_, err := rt.Ingestor.Backfill(ctx)
		return err
	})
}

// Ingest ingests the previous hour under the run lock.
func (rt *Runtime) Ingest(ctx context.Context) error {
	return rt.RunPipeline(ctx, PipelineIngest, func(ctx context.Context) error {
		_, err := rt.Ingestor.Hourly(ctx)
		return err
	})
}

// Train runs the training orchestrator under the run lock.
func (rt *Runtime) Train(ctx context.Context) error {
	return rt.RunPipeline(ctx, PipelineTrain, func(ctx context.Context) error {
		_, err := rt.Trainer.Run(ctx)
		return err
	})
}

// Infer runs the inference orchestrator under the run lock.
func (rt *Runtime) Infer(ctx context.Context, force bool) error {
	return rt.RunPipeline(ctx, PipelineInfer, func(ctx context.Context) error {
		_, err := rt.Inferencer.Run(ctx, inference.Options{Force: force})
		return err
	})
}

// Ephemeral reports whether stored rows, features and forecasts live only as
// long as this process.
func (rt *Runtime) Ephemeral() bool {
	return rt.Config.StoreBackend == "memory"
}

// Warmup fills an ephemeral runtime so it can serve forecasts: backfill, train,
// then infer. It does nothing for a persistent backend.
func (rt *Runtime) Warmup(ctx context.Context) error {
	if !rt.Ephemeral() {
		return nil
	}
	return runSequence(ctx,
		rt.Backfill,
		rt.Train,
		func(ctx context.Context) error { return rt.Infer(ctx, false) },
	)
}

// runSequence stops at the first failing step.
func runSequence(ctx context.Context, steps ...func(context.Context) error) error {
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}
