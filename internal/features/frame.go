// Package features turns hourly observations into model-ready feature rows.
//
// Every stage is a pure function over a Frame: a time-ordered table of named float64
// columns where NaN marks a missing value. Stages add columns and never drop or
// reorder rows.
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

// ErrNotSorted is returned when a frame's timestamps are not strictly increasing.
var ErrNotSorted = errors.New("frame is not sorted by timestamp")

// Frame is a columnar batch of rows for a single location.
type Frame struct {
	Location   string
	Timestamps []time.Time

	cols  map[string][]float64
	order []string
}

// NewFrame creates an empty frame over the given timestamps.
func NewFrame(location string, timestamps []time.Time) *Frame {
	ts := make([]time.Time, len(timestamps))
	for i, t := range timestamps {
		ts[i] = t.UTC()
	}
	return &Frame{
		Location:   location,
		Timestamps: ts,
		cols:       make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Timestamps)
}

// Columns returns column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Has reports whether the column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Col returns the column values. The slice is shared with the frame.
func (f *Frame) Col(name string) ([]float64, bool) {
	c, ok := f.cols[name]
	return c, ok
}

// ColOrNaN returns the column or an all-NaN column when it does not exist.
func (f *Frame) ColOrNaN(name string) []float64 {
	if c, ok := f.cols[name]; ok {
		return c
	}
	return nanColumn(f.Len())
}

// Set adds or replaces a column. It panics if the length does not match the frame.
func (f *Frame) Set(name string, values []float64) {
	if len(values) != f.Len() {
		panic(fmt.Sprintf("features: column %q has %d values, frame has %d rows", name, len(values), f.Len()))
	}
	if _, ok := f.cols[name]; !ok {
		f.order = append(f.order, name)
	}
	f.cols[name] = values
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	out := NewFrame(f.Location, f.Timestamps)
	for _, name := range f.order {
		c := make([]float64, len(f.cols[name]))
		copy(c, f.cols[name])
		out.Set(name, c)
	}
	return out
}

// Slice returns a deep copy of rows [from, to).
func (f *Frame) Slice(from, to int) *Frame {
	out := NewFrame(f.Location, f.Timestamps[from:to])
	for _, name := range f.order {
		c := make([]float64, to-from)
		copy(c, f.cols[name][from:to])
		out.Set(name, c)
	}
	return out
}

// Filter returns a deep copy of the rows where keep is true.
func (f *Frame) Filter(keep func(i int) bool) *Frame {
	var idx []int
	for i := 0; i < f.Len(); i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	ts := make([]time.Time, len(idx))
	for j, i := range idx {
		ts[j] = f.Timestamps[i]
	}
	out := NewFrame(f.Location, ts)
	for _, name := range f.order {
		src := f.cols[name]
		c := make([]float64, len(idx))
		for j, i := range idx {
			c[j] = src[i]
		}
		out.Set(name, c)
	}
	return out
}

// CheckSorted returns ErrNotSorted unless timestamps strictly increase.
func (f *Frame) CheckSorted() error {
	for i := 1; i < f.Len(); i++ {
		if !f.Timestamps[i].After(f.Timestamps[i-1]) {
			return fmt.Errorf("%w: row %d (%s) does not follow %s", ErrNotSorted, i,
				f.Timestamps[i].Format(time.RFC3339), f.Timestamps[i-1].Format(time.RFC3339))
		}
	}
	return nil
}

// SortByTimestamp returns a copy ordered by timestamp. For duplicate timestamps the
// last occurrence wins.
func (f *Frame) SortByTimestamp() *Frame {
	last := make(map[int64]int, f.Len())
	for i, t := range f.Timestamps {
		last[t.UnixNano()] = i
	}
	idx := make([]int, 0, len(last))
	for _, i := range last {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool { return f.Timestamps[idx[a]].Before(f.Timestamps[idx[b]]) })

	ts := make([]time.Time, len(idx))
	for j, i := range idx {
		ts[j] = f.Timestamps[i]
	}
	out := NewFrame(f.Location, ts)
	for _, name := range f.order {
		src := f.cols[name]
		c := make([]float64, len(idx))
		for j, i := range idx {
			c[j] = src[i]
		}
		out.Set(name, c)
	}
	return out
}

// FromRows builds a frame from store rows. Columns are the union of all row keys,
// in sorted order; rows lacking a column get NaN.
func FromRows(location string, rows []airquality.Row) *Frame {
	ts := make([]time.Time, len(rows))
	names := make(map[string]struct{})
	for i, r := range rows {
		ts[i] = r.Timestamp
		for k := range r.Values {
			names[k] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	f := NewFrame(location, ts)
	for _, name := range sorted {
		c := make([]float64, len(rows))
		for i, r := range rows {
			c[i] = r.Value(name)
		}
		f.Set(name, c)
	}
	return f
}

// FromObservations builds a frame of raw columns from observations.
func FromObservations(location string, obs []airquality.Observation) *Frame {
	rows := make([]airquality.Row, len(obs))
	for i, o := range obs {
		rows[i] = o.Row()
	}
	f := FromRows(location, rows)
	// Keep raw columns present even when every value is missing.
	for _, name := range rawColumns {
		if !f.Has(name) {
			f.Set(name, nanColumn(f.Len()))
		}
	}
	return f
}

// Rows converts the frame into store rows, omitting missing values.
func (f *Frame) Rows() []airquality.Row {
	rows := make([]airquality.Row, f.Len())
	for i := range rows {
		values := make(map[string]float64, len(f.order))
		for _, name := range f.order {
			values[name] = f.cols[name][i]
		}
		rows[i] = airquality.NewRow(f.Location, f.Timestamps[i], values)
	}
	return rows
}

// Matrix extracts the named columns as a row-major matrix. Missing columns yield NaN.
func (f *Frame) Matrix(names []string) [][]float64 {
	cols := make([][]float64, len(names))
	for j, name := range names {
		cols[j] = f.ColOrNaN(name)
	}
	out := make([][]float64, f.Len())
	for i := range out {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		out[i] = row
	}
	return out
}

var rawColumns = append(append([]string{}, airquality.PollutantColumns...), append([]string{airquality.ColUSAQI}, airquality.WeatherColumns...)...)

func nanColumn(n int) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = math.NaN()
	}
	return c
}
