package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/store"
)

var (
	karachi = airquality.Location{City: "Karachi"}
	now     = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	today   = airquality.DateOf(now)
)

type stubRuns struct{ runs []airquality.ModelRun }

func (s stubRuns) List(context.Context, string) ([]airquality.ModelRun, error) {
	return s.runs, nil
}

type fixture struct {
	app       *fiber.App
	features  *store.MemoryRowStore
	forecasts *store.MemoryForecastStore
}

func newFixture(t *testing.T, runs ...airquality.ModelRun) *fixture {
	t.Helper()
	feats := store.NewMemoryRowStore(0)
	forecasts := store.NewMemoryForecastStore()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	svc := airquality.NewService(karachi, "AQI_Forecast_Model", feats, forecasts, stubRuns{runs},
		clockwork.NewFakeClockAt(now), logrus.NewEntry(log))
	app := NewApp()
	RegisterRoutes(app, svc)
	return &fixture{app: app, features: feats, forecasts: forecasts}
}

func (f *fixture) get(t *testing.T, target string) (int, map[string]any) {
	t.Helper()
	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return resp.StatusCode, out
}

func TestForecastNotAvailableYet(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/api/v1/aqi/forecast")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Forecast not available yet.", body["message"])
}

func TestForecastReturnsLatestRowPerDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.forecasts.InsertForecasts(ctx, []airquality.ForecastRow{
		{Location: "Karachi", Date: today.AddDate(0, 0, 1), AvgAQI: 90, CreatedAt: now.Add(-2 * time.Hour)},
		{Location: "Karachi", Date: today.AddDate(0, 0, 1), AvgAQI: 95, ModelVersion: 3, CreatedAt: now.Add(-time.Hour)},
		{Location: "Karachi", Date: today.AddDate(0, 0, 2), AvgAQI: 101, ModelVersion: 3, CreatedAt: now.Add(-time.Hour)},
		// today is not a future date
		{Location: "Karachi", Date: today, AvgAQI: 70, CreatedAt: now.Add(-time.Hour)},
	}))

	code, body := f.get(t, "/api/v1/aqi/forecast")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Karachi", body["city"])

	rows := body["forecasts"].([]any)
	require.Len(t, rows, 2)
	first := rows[0].(map[string]any)
	assert.Equal(t, "2024-06-11", first["date"])
	assert.Equal(t, 95.0, first["avg_aqi"])
	assert.Equal(t, 3.0, first["model_version"])
}

func TestHistoryDaysValidation(t *testing.T) {
	f := newFixture(t)

	for _, q := range []string{"days=0", "days=91", "days=abc", "days=-3"} {
		code, _ := f.get(t, "/api/v1/aqi/history?"+q)
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
}

func TestHistoryAveragesByDay(t *testing.T) {
	f := newFixture(t)
	var rows []airquality.Row
	for h := 0; h < 48; h++ {
		ts := today.Add(-48 * time.Hour).Add(time.Duration(h) * time.Hour)
		v := 50.0
		if h >= 24 {
			v = 80
		}
		rows = append(rows, airquality.NewRow("Karachi", ts, map[string]float64{airquality.ColRealAQI: v}))
	}
	_, err := f.features.Upsert(context.Background(), rows)
	require.NoError(t, err)

	code, body := f.get(t, "/api/v1/aqi/history")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(DefaultHistoryDays), body["days"])

	history := body["history"].([]any)
	require.Len(t, history, 2)
	day := history[1].(map[string]any)
	assert.Equal(t, "2024-06-09", day["date"])
	assert.Equal(t, 80.0, day["avg_aqi"])
	assert.Equal(t, 24.0, day["samples"])
}

func TestLatestMetrics(t *testing.T) {
	f := newFixture(t)
	code, body := f.get(t, "/api/v1/models/metrics/latest")
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, body["message"])

	f = newFixture(t,
		airquality.ModelRun{Version: 1, Candidate: "ridge", Stage: airquality.StageArchived, CreatedAt: now.AddDate(0, 0, -1)},
		airquality.ModelRun{Version: 2, Candidate: "ridge", Stage: airquality.StageStaged, CreatedAt: now},
		airquality.ModelRun{Version: 3, Candidate: "mlp", Stage: airquality.StageProduction, CreatedAt: now,
			Metrics: airquality.HorizonMetrics{RMSEAvg: 12.5}},
	)
	code, body = f.get(t, "/api/v1/models/metrics/latest")
	require.Equal(t, http.StatusOK, code)

	prod := body["production_model"].(map[string]any)
	assert.Equal(t, 3.0, prod["version"])
	assert.Equal(t, 12.5, prod["metrics"].(map[string]any)["rmse_avg"])
	assert.Len(t, body["other_models"], 1)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	code, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
