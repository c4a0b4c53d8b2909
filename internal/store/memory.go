package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

// series holds the rows of one location keyed by unix second.
type series struct {
	rows map[int64]airquality.Row
}

func (s *series) sorted() []airquality.Row {
	out := make([]airquality.Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// MemoryRowStore is a concurrency-safe in-memory RowStore.
type MemoryRowStore struct {
	mu sync.RWMutex

	// key: location key
	data map[string]*series

	// max rows kept per location, oldest dropped first
	maxRows int
}

// NewMemoryRowStore creates a new MemoryRowStore.
// If maxRows is <= 0, it is treated as unlimited.
func NewMemoryRowStore(maxRows int) *MemoryRowStore {
	return &MemoryRowStore{
		data:    make(map[string]*series),
		maxRows: maxRows,
	}
}

// Upsert replaces rows with the same (location, timestamp) and inserts the rest.
func (s *MemoryRowStore) Upsert(_ context.Context, rows []airquality.Row) (airquality.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res airquality.UpsertResult
	touched := map[string]bool{}
	for _, r := range rows {
		ser, ok := s.data[r.Location]
		if !ok {
			ser = &series{rows: make(map[int64]airquality.Row)}
			s.data[r.Location] = ser
		}
		key := r.Timestamp.Unix()
		if _, exists := ser.rows[key]; exists {
			res.Updated++
		} else {
			res.Inserted++
		}
		ser.rows[key] = copyRow(r)
		touched[r.Location] = true
	}

	// Enforce retention by count.
	if s.maxRows > 0 {
		for loc := range touched {
			ser := s.data[loc]
			if over := len(ser.rows) - s.maxRows; over > 0 {
				for _, r := range ser.sorted()[:over] {
					delete(ser.rows, r.Timestamp.Unix())
				}
			}
		}
	}
	return res, nil
}

// Range returns rows between from and to (inclusive).
func (s *MemoryRowStore) Range(_ context.Context, location string, from, to time.Time, fields ...string) ([]airquality.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.data[location]
	if !ok {
		return nil, nil
	}

	var result []airquality.Row
	for _, r := range ser.sorted() {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		result = append(result, project(r, fields))
	}
	return result, nil
}

// Latest returns the n most recent rows in ascending order.
func (s *MemoryRowStore) Latest(_ context.Context, location string, n int) ([]airquality.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.data[location]
	if !ok || n <= 0 {
		return nil, nil
	}
	all := ser.sorted()
	if len(all) > n {
		all = all[len(all)-n:]
	}
	for i := range all {
		all[i] = copyRow(all[i])
	}
	return all, nil
}

// All returns every row of the location in ascending order.
func (s *MemoryRowStore) All(ctx context.Context, location string) ([]airquality.Row, error) {
	return s.Range(ctx, location, time.Time{}, time.Unix(1<<62, 0))
}

// MemoryForecastStore is a concurrency-safe in-memory ForecastStore. Rows are
// append-only; readers resolve duplicates by CreatedAt.
type MemoryForecastStore struct {
	mu   sync.RWMutex
	rows []airquality.ForecastRow
}

func NewMemoryForecastStore() *MemoryForecastStore {
	return &MemoryForecastStore{}
}

func (s *MemoryForecastStore) Forecasts(_ context.Context, location string, r airquality.DateRange) ([]airquality.ForecastRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []airquality.ForecastRow
	for _, row := range s.rows {
		if row.Location == location && r.Contains(row.Date) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryForecastStore) DeleteForecasts(_ context.Context, location string, r airquality.DateRange) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rows[:0]
	deleted := 0
	for _, row := range s.rows {
		if row.Location == location && r.Contains(row.Date) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return deleted, nil
}

func (s *MemoryForecastStore) InsertForecasts(_ context.Context, rows []airquality.ForecastRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, rows...)
	return nil
}

func copyRow(r airquality.Row) airquality.Row {
	values := make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	r.Values = values
	return r
}

func project(r airquality.Row, fields []string) airquality.Row {
	if len(fields) == 0 {
		return copyRow(r)
	}
	values := make(map[string]float64, len(fields))
	for _, f := range fields {
		if v, ok := r.Values[f]; ok {
			values[f] = v
		}
	}
	r.Values = values
	return r
}
