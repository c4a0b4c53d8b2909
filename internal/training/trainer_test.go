package training

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/features"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/models"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/observability"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/registry"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/store"
)

const modelName = "AQI_Forecast_Model"

var karachi = airquality.Location{City: "Karachi"}

func seedFeatures(t *testing.T, s airquality.RowStore, hours int) {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := make([]time.Time, hours)
	for i := range ts {
		ts[i] = start.Add(time.Duration(i) * time.Hour)
	}
	raw := features.NewFrame(karachi.Key(), ts)
	col := func(fn func(i int) float64) []float64 {
		c := make([]float64, hours)
		for i := range c {
			c[i] = fn(i)
		}
		return c
	}
	raw.Set(airquality.ColPM25, col(func(i int) float64 { return 30 + 15*math.Sin(2*math.Pi*float64(i)/24) }))
	raw.Set(airquality.ColPM10, col(func(i int) float64 { return 60 }))
	raw.Set(airquality.ColNO2, col(func(i int) float64 { return 20 }))
	raw.Set(airquality.ColO3, col(func(i int) float64 { return 50 }))
	raw.Set(airquality.ColTemperature, col(func(i int) float64 { return 28 }))
	raw.Set(airquality.ColHumidity, col(func(i int) float64 { return 55 }))
	raw.Set(airquality.ColWindSpeed, col(func(i int) float64 { return 2 + float64(i%5) }))

	built, err := features.NewPipeline(features.DefaultOutlierPolicy()).Run(raw)
	require.NoError(t, err)
	_, err = s.Upsert(context.Background(), built.Rows())
	require.NoError(t, err)
}

func newTrainer(t *testing.T, candidates ...models.Config) (*Trainer, *registry.Registry, *store.MemoryRowStore) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC))
	reg, err := registry.Open("sqlite", ":memory:", clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	feats := store.NewMemoryRowStore(0)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	tr := NewTrainer(karachi, modelName, feats, reg, candidates, clock, observability.NewMetricsForTesting(), logrus.NewEntry(log))
	return tr, reg, feats
}

func productionVersions(t *testing.T, reg *registry.Registry) []int {
	t.Helper()
	runs, err := reg.List(context.Background(), modelName)
	require.NoError(t, err)
	var out []int
	for _, r := range runs {
		if r.Stage == airquality.StageProduction {
			out = append(out, r.Version)
		}
	}
	return out
}

func TestSelectBestBreaksTiesDeterministically(t *testing.T) {
	runs := []airquality.ModelRun{
		{Version: 1, Candidate: "ridge", Metrics: airquality.HorizonMetrics{RMSEAvg: 5.1, RMSE24: 4.0}},
		{Version: 2, Candidate: "random_forest", Metrics: airquality.HorizonMetrics{RMSEAvg: 4.3, RMSE24: 3.9}},
		{Version: 3, Candidate: "mlp", Metrics: airquality.HorizonMetrics{RMSEAvg: 4.3, RMSE24: 3.9}},
	}
	assert.Equal(t, 2, SelectBest(runs).Version)

	reversed := []airquality.ModelRun{runs[2], runs[1], runs[0]}
	assert.Equal(t, 2, SelectBest(reversed).Version)

	runs[2].Metrics.RMSE24 = 3.5
	assert.Equal(t, 3, SelectBest(runs).Version)
}

func TestPromotionOfTiedRunsLeavesOneProduction(t *testing.T) {
	ctx := context.Background()
	_, reg, _ := newTrainer(t)

	require.NoError(t, func() error {
		old, err := reg.Register(ctx, airquality.ModelRun{Name: modelName, Candidate: "ridge"}, nil)
		if err != nil {
			return err
		}
		return reg.Promote(ctx, modelName, old.Version)
	}())

	var runs []airquality.ModelRun
	for _, avg := range []float64{5.1, 4.3, 4.3} {
		r, err := reg.Register(ctx, airquality.ModelRun{
			Name:    modelName,
			Metrics: airquality.HorizonMetrics{RMSEAvg: avg, RMSE24: 4},
		}, nil)
		require.NoError(t, err)
		runs = append(runs, r)
	}

	best := SelectBest(runs)
	assert.Equal(t, runs[1].Version, best.Version)
	require.NoError(t, reg.Promote(ctx, modelName, best.Version))
	assert.Equal(t, []int{best.Version}, productionVersions(t, reg))

	all, err := reg.List(ctx, modelName)
	require.NoError(t, err)
	assert.Equal(t, airquality.StageArchived, all[0].Stage)
}

func TestRunRegistersCandidatesAndPromotesBest(t *testing.T) {
	tr, reg, feats := newTrainer(t,
		models.RidgeConfig{Alpha: 1},
		models.ForestConfig{Trees: 5, MaxDepth: 4, MinSamplesLeaf: 2, FeatureFraction: 0.5, Seed: 1},
		models.ForestConfig{Trees: 0, MaxDepth: 4, MinSamplesLeaf: 2, FeatureFraction: 0.5},
	)
	seedFeatures(t, feats, 400)

	res, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Candidates, 2)
	assert.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[string(models.KindRandomForest)], airquality.ErrCandidateTraining)

	assert.Equal(t, SelectBest(res.Candidates).Version, res.Best.Version)
	assert.Equal(t, []int{res.Best.Version}, productionVersions(t, reg))

	prod, err := reg.Production(context.Background(), modelName)
	require.NoError(t, err)
	assert.NotContains(t, prod.FeatureNames, features.TargetPlus24)
	assert.NotContains(t, prod.FeatureNames, airquality.ColUSAQI)
	assert.Contains(t, prod.FeatureNames, features.AQILag(24))
	assert.Equal(t, features.TargetColumns, prod.Targets)
	assert.Greater(t, prod.Metrics.RMSEAvg, 0.0)

	// a second run archives the first production model
	res2, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{res2.Best.Version}, productionVersions(t, reg))
}

func TestRunAbortsWhenAllCandidatesFail(t *testing.T) {
	ctx := context.Background()
	tr, reg, feats := newTrainer(t, models.RidgeConfig{Alpha: 1})
	seedFeatures(t, feats, 300)

	first, err := tr.Run(ctx)
	require.NoError(t, err)

	failing := NewTrainer(karachi, modelName, feats, reg,
		[]models.Config{models.RidgeConfig{Alpha: -1}, models.MLPConfig{}},
		clockwork.NewRealClock(), observability.NewMetricsForTesting(), tr.log)
	_, err = failing.Run(ctx)
	assert.ErrorIs(t, err, airquality.ErrCandidateTraining)
	assert.Equal(t, "candidate_training", airquality.Reason(err))

	assert.Equal(t, []int{first.Best.Version}, productionVersions(t, reg))
}

func TestRunWithoutLabelledRows(t *testing.T) {
	tr, _, feats := newTrainer(t, models.RidgeConfig{Alpha: 1})
	seedFeatures(t, feats, 50)

	_, err := tr.Run(context.Background())
	assert.ErrorIs(t, err, airquality.ErrDataQuality)
}

func TestEvaluate(t *testing.T) {
	truth := [][]float64{{10, 20, 30}, {10, 20, 30}}
	pred := [][]float64{{12, 20, 27}, {8, 20, 33}}

	m, err := Evaluate(truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, 2, m.MAE24, 1e-9)
	assert.InDelta(t, 2, m.RMSE24, 1e-9)
	assert.InDelta(t, 0, m.RMSE48, 1e-9)
	assert.InDelta(t, 3, m.RMSE72, 1e-9)
	assert.InDelta(t, 5.0/3, m.RMSEAvg, 1e-9)

	_, err = Evaluate(truth, [][]float64{{math.NaN(), 0, 0}, {0, 0, 0}})
	assert.Error(t, err)
}
