// Package training fits every candidate on the feature history, registers them,
// and promotes the best of the run to production.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/features"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/models"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/observability"
)

// TrainFraction is the leading share of rows used for fitting.
const TrainFraction = 0.8

// minRows is the smallest dataset that leaves both splits non-empty.
const minRows = 10

// Registry stores fitted candidates and moves the production pointer.
type Registry interface {
	Register(ctx context.Context, run airquality.ModelRun, artifact []byte) (airquality.ModelRun, error)
	Promote(ctx context.Context, name string, version int) error
}

// Result describes one training run.
type Result struct {
	RunID      string
	Best       airquality.ModelRun
	Candidates []airquality.ModelRun
	Failed     map[string]error
}

// Trainer is the training orchestrator.
type Trainer struct {
	location   airquality.Location
	modelName  string
	features   airquality.RowStore
	registry   Registry
	candidates []models.Config
	clock      clockwork.Clock
	metrics    *observability.Metrics
	log        *logrus.Entry
}

// NewTrainer creates a new Trainer.
func NewTrainer(
	loc airquality.Location,
	modelName string,
	featureStore airquality.RowStore,
	registry Registry,
	candidates []models.Config,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	log *logrus.Entry,
) *Trainer {
	return &Trainer{
		location:   loc,
		modelName:  modelName,
		features:   featureStore,
		registry:   registry,
		candidates: candidates,
		clock:      clock,
		metrics:    metrics,
		log:        log.WithField("component", "training"),
	}
}

// dataset is the chronologically split supervised table.
type dataset struct {
	featureNames   []string
	xTrain, yTrain [][]float64
	xTest, yTest   [][]float64
}

// Run trains every candidate in order, then promotes the best one. A failing
// candidate is skipped; the run fails only when none succeeds, in which case the
// production model is left unchanged.
func (t *Trainer) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString(), Failed: map[string]error{}}
	log := t.log.WithField("run_id", res.RunID)

	data, err := t.load(ctx)
	if err != nil {
		return res, err
	}
	log.WithFields(logrus.Fields{
		"features": len(data.featureNames),
		"train":    len(data.xTrain),
		"test":     len(data.xTest),
	}).Info("dataset ready")

	for _, cfg := range t.candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := string(cfg.Kind())
		run, err := t.trainCandidate(ctx, res.RunID, cfg, data)
		if err != nil {
			res.Failed[name] = err
			log.WithError(err).WithFields(logrus.Fields{
				"candidate": name,
				"reason":    airquality.Reason(err),
			}).Warn("candidate skipped")
			continue
		}
		t.metrics.CandidateRMSE.WithLabelValues(name).Set(run.Metrics.RMSEAvg)
		log.WithFields(logrus.Fields{
			"candidate": name,
			"version":   run.Version,
			"rmse_avg":  run.Metrics.RMSEAvg,
		}).Info("candidate registered")
		res.Candidates = append(res.Candidates, run)
	}

	if len(res.Candidates) == 0 {
		errs := make([]error, 0, len(res.Failed))
		for _, err := range res.Failed {
			errs = append(errs, err)
		}
		return res, fmt.Errorf("%w: all %d candidates failed: %w", airquality.ErrCandidateTraining, len(t.candidates), errors.Join(errs...))
	}

	best := SelectBest(res.Candidates)
	if err := t.registry.Promote(ctx, t.modelName, best.Version); err != nil {
		return res, fmt.Errorf("promote %s v%d: %w", best.Candidate, best.Version, err)
	}
	best.Stage = airquality.StageProduction
	res.Best = best

	log.WithFields(logrus.Fields{
		"candidate": best.Candidate,
		"version":   best.Version,
		"rmse_avg":  best.Metrics.RMSEAvg,
	}).Info("promoted to production")
	return res, nil
}

// SelectBest returns the run with the lowest average RMSE. Ties go to the lower
// 24h RMSE, then to the lower (earlier) version, so the choice does not depend on
// the order runs are passed in.
func SelectBest(runs []airquality.ModelRun) airquality.ModelRun {
	sorted := append([]airquality.ModelRun(nil), runs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Metrics.RMSEAvg != b.Metrics.RMSEAvg {
			return a.Metrics.RMSEAvg < b.Metrics.RMSEAvg
		}
		if a.Metrics.RMSE24 != b.Metrics.RMSE24 {
			return a.Metrics.RMSE24 < b.Metrics.RMSE24
		}
		return a.Version < b.Version
	})
	return sorted[0]
}

func (t *Trainer) load(ctx context.Context) (*dataset, error) {
	rows, err := t.features.All(ctx, t.location.Key())
	if err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}
	frame := features.FromRows(t.location.Key(), rows).SortByTimestamp()

	targets := make([][]float64, len(features.TargetColumns))
	for i, name := range features.TargetColumns {
		targets[i] = frame.ColOrNaN(name)
	}
	frame = frame.Filter(func(i int) bool {
		for _, c := range targets {
			if math.IsNaN(c[i]) {
				return false
			}
		}
		return true
	})
	if frame.Len() < minRows {
		return nil, fmt.Errorf("%w: %d labelled rows, need at least %d", airquality.ErrDataQuality, frame.Len(), minRows)
	}

	names := FeatureNames(frame.Columns())
	X := frame.Matrix(names)
	Y := frame.Matrix(features.TargetColumns)

	split := int(float64(frame.Len()) * TrainFraction)
	return &dataset{
		featureNames: names,
		xTrain:       X[:split],
		yTrain:       Y[:split],
		xTest:        X[split:],
		yTest:        Y[split:],
	}, nil
}

// FeatureNames drops the targets and the upstream AQI category from columns.
func FeatureNames(columns []string) []string {
	excluded := map[string]bool{airquality.ColUSAQI: true}
	for _, c := range features.TargetColumns {
		excluded[c] = true
	}
	var names []string
	for _, c := range columns {
		if !excluded[c] {
			names = append(names, c)
		}
	}
	return names
}

func (t *Trainer) trainCandidate(ctx context.Context, runID string, cfg models.Config, data *dataset) (airquality.ModelRun, error) {
	f, err := models.NewForecaster(cfg, data.featureNames, features.TargetColumns)
	if err != nil {
		return airquality.ModelRun{}, fmt.Errorf("%w: %s: %w", airquality.ErrCandidateTraining, cfg.Kind(), err)
	}
	if err := f.Fit(data.xTrain, data.yTrain); err != nil {
		return airquality.ModelRun{}, fmt.Errorf("%w: %w", airquality.ErrCandidateTraining, err)
	}
	pred, err := f.Predict(data.xTest)
	if err != nil {
		return airquality.ModelRun{}, fmt.Errorf("%w: predict %s: %w", airquality.ErrCandidateTraining, cfg.Kind(), err)
	}
	metrics, err := Evaluate(data.yTest, pred)
	if err != nil {
		return airquality.ModelRun{}, fmt.Errorf("%w: evaluate %s: %w", airquality.ErrCandidateTraining, cfg.Kind(), err)
	}

	artifact, err := f.Marshal()
	if err != nil {
		return airquality.ModelRun{}, fmt.Errorf("%w: %w", airquality.ErrCandidateTraining, err)
	}
	return t.registry.Register(ctx, airquality.ModelRun{
		Name:         t.modelName,
		RunID:        runID,
		RunName:      fmt.Sprintf("%s_%s", cfg.Kind(), t.clock.Now().UTC().Format("20060102_150405")),
		Candidate:    string(cfg.Kind()),
		Params:       cfg.Params(),
		Metrics:      metrics,
		FeatureNames: f.FeatureNames,
		Targets:      f.Targets,
	}, artifact)
}
