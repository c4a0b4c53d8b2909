package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func row(h int, pm float64) airquality.Row {
	return airquality.NewRow("Karachi", t0.Add(time.Duration(h)*time.Hour), map[string]float64{
		airquality.ColPM25:    pm,
		airquality.ColRealAQI: pm * 2,
	})
}

func TestMemoryRowStoreUpsertIsIdempotent(t *testing.T) {
	s := NewMemoryRowStore(0)
	ctx := context.Background()
	batch := []airquality.Row{row(0, 1), row(1, 2), row(2, 3)}

	res, err := s.Upsert(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, airquality.UpsertResult{Inserted: 3}, res)

	res, err = s.Upsert(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, airquality.UpsertResult{Updated: 3}, res)

	all, err := s.All(ctx, "Karachi")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, batch, all)
}

func TestMemoryRowStoreRangeAndProjection(t *testing.T) {
	s := NewMemoryRowStore(0)
	ctx := context.Background()
	_, err := s.Upsert(ctx, []airquality.Row{row(3, 4), row(0, 1), row(2, 3), row(1, 2)})
	require.NoError(t, err)

	rows, err := s.Range(ctx, "Karachi", t0.Add(time.Hour), t0.Add(2*time.Hour), airquality.ColRealAQI)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, t0.Add(time.Hour), rows[0].Timestamp)
	assert.Equal(t, map[string]float64{airquality.ColRealAQI: 4}, rows[0].Values)

	none, err := s.Range(ctx, "Lahore", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryRowStoreLatest(t *testing.T) {
	s := NewMemoryRowStore(0)
	ctx := context.Background()
	_, err := s.Upsert(ctx, []airquality.Row{row(0, 1), row(1, 2), row(2, 3)})
	require.NoError(t, err)

	latest, err := s.Latest(ctx, "Karachi", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, 2.0, latest[0].Value(airquality.ColPM25))
	assert.Equal(t, 3.0, latest[1].Value(airquality.ColPM25))

	// returned rows are copies
	latest[1].Values[airquality.ColPM25] = 100
	again, _ := s.Latest(ctx, "Karachi", 1)
	assert.Equal(t, 3.0, again[0].Value(airquality.ColPM25))
}

func TestMemoryRowStoreRetention(t *testing.T) {
	s := NewMemoryRowStore(2)
	ctx := context.Background()
	_, err := s.Upsert(ctx, []airquality.Row{row(0, 1), row(1, 2), row(2, 3)})
	require.NoError(t, err)

	all, err := s.All(ctx, "Karachi")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, t0.Add(time.Hour), all[0].Timestamp)
}

func TestMemoryForecastStore(t *testing.T) {
	s := NewMemoryForecastStore()
	ctx := context.Background()
	day := func(n int) time.Time { return t0.AddDate(0, 0, n) }

	require.NoError(t, s.InsertForecasts(ctx, []airquality.ForecastRow{
		{Location: "Karachi", Date: day(3), AvgAQI: 120},
		{Location: "Karachi", Date: day(1), AvgAQI: 100},
		{Location: "Karachi", Date: day(0), AvgAQI: 90},
		{Location: "Lahore", Date: day(1), AvgAQI: 200},
	}))

	window := airquality.DateRange{After: day(0), Through: day(3)}
	rows, err := s.Forecasts(ctx, "Karachi", window)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, day(1), rows[0].Date)
	assert.Equal(t, day(3), rows[1].Date)

	n, err := s.DeleteForecasts(ctx, "Karachi", window)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err = s.Forecasts(ctx, "Karachi", airquality.DateRange{After: day(-1), Through: day(3)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, day(0), rows[0].Date)

	other, err := s.Forecasts(ctx, "Lahore", window)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}
