package registry

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

const modelName = "AQI_Forecast_Model"

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	r, err := Open("sqlite", ":memory:", clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, clock
}

func register(t *testing.T, r *Registry, candidate string, rmse float64) airquality.ModelRun {
	t.Helper()
	run, err := r.Register(context.Background(), airquality.ModelRun{
		Name:         modelName,
		RunID:        "run-1",
		RunName:      candidate + "_run",
		Candidate:    candidate,
		Params:       map[string]any{"alpha": 1.0},
		Metrics:      airquality.HorizonMetrics{RMSEAvg: rmse, RMSE24: rmse},
		FeatureNames: []string{"pm2_5", "hour"},
		Targets:      []string{"aqi_t_plus_24", "aqi_t_plus_48", "aqi_t_plus_72"},
	}, []byte(candidate))
	require.NoError(t, err)
	return run
}

func productionCount(t *testing.T, r *Registry) int {
	t.Helper()
	runs, err := r.List(context.Background(), modelName)
	require.NoError(t, err)
	n := 0
	for _, run := range runs {
		if run.Stage == airquality.StageProduction {
			n++
		}
	}
	return n
}

func TestRegisterAssignsIncreasingVersions(t *testing.T) {
	r, clock := newTestRegistry(t)

	first := register(t, r, "ridge", 5)
	second := register(t, r, "mlp", 4)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, airquality.StageStaged, second.Stage)
	assert.Equal(t, clock.Now(), second.CreatedAt)

	runs, err := r.List(context.Background(), modelName)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, []string{"pm2_5", "hour"}, runs[0].FeatureNames)
	assert.Len(t, runs[1].Targets, 3)
	assert.Equal(t, 1.0, runs[0].Params["alpha"])
	assert.Equal(t, 4.0, runs[1].Metrics.RMSEAvg)
}

func TestProductionWithoutPromotion(t *testing.T) {
	r, _ := newTestRegistry(t)
	register(t, r, "ridge", 5)

	_, err := r.Production(context.Background(), modelName)
	assert.ErrorIs(t, err, airquality.ErrNoProductionModel)
}

func TestPromoteArchivesPreviousProduction(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	v1 := register(t, r, "ridge", 5)
	require.NoError(t, r.Promote(ctx, modelName, v1.Version))
	assert.Equal(t, 1, productionCount(t, r))

	v2 := register(t, r, "random_forest", 3)
	require.NoError(t, r.Promote(ctx, modelName, v2.Version))
	assert.Equal(t, 1, productionCount(t, r))

	prod, err := r.Production(ctx, modelName)
	require.NoError(t, err)
	assert.Equal(t, v2.Version, prod.Version)

	runs, err := r.List(ctx, modelName)
	require.NoError(t, err)
	assert.Equal(t, airquality.StageArchived, runs[0].Stage)

	// promoting the current holder again is a no-op
	require.NoError(t, r.Promote(ctx, modelName, v2.Version))
	assert.Equal(t, 1, productionCount(t, r))
}

func TestPromoteUnknownVersionLeavesProduction(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	v1 := register(t, r, "ridge", 5)
	require.NoError(t, r.Promote(ctx, modelName, v1.Version))

	err := r.Promote(ctx, modelName, 99)
	assert.ErrorIs(t, err, airquality.ErrNotFound)

	prod, err := r.Production(ctx, modelName)
	require.NoError(t, err)
	assert.Equal(t, v1.Version, prod.Version)
}

func TestArtifact(t *testing.T) {
	r, _ := newTestRegistry(t)
	v := register(t, r, "mlp", 2)

	data, err := r.Artifact(context.Background(), modelName, v.Version)
	require.NoError(t, err)
	assert.Equal(t, []byte("mlp"), data)

	_, err = r.Artifact(context.Background(), modelName, 42)
	assert.ErrorIs(t, err, airquality.ErrNotFound)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "", clockwork.NewRealClock())
	assert.Error(t, err)
}
