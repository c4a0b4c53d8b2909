package airquality

import (
	"math"
	"sort"
	"time"
)

// MergeReadings inner-joins pollution and weather readings on their UTC hour.
// Hours present in only one source are dropped. The result is ordered by timestamp.
func MergeReadings(loc Location, pollution []PollutionReading, weather []WeatherReading) []Observation {
	byHour := make(map[int64]WeatherReading, len(weather))
	for _, w := range weather {
		byHour[w.Timestamp.UTC().Truncate(time.Hour).Unix()] = w
	}

	seen := make(map[int64]struct{}, len(pollution))
	out := make([]Observation, 0, len(pollution))
	for _, p := range pollution {
		ts := p.Timestamp.UTC().Truncate(time.Hour)
		key := ts.Unix()
		w, ok := byHour[key]
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		p.Timestamp = ts
		w.Timestamp = ts
		out = append(out, Observation{
			Location:  loc.Key(),
			Timestamp: ts,
			Pollution: p,
			Weather:   w,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// DailyAverages groups rows by UTC date and averages the named column.
// Rows without the column are skipped; days without any value are omitted.
func DailyAverages(rows []Row, column string) []DailyAQI {
	type acc struct {
		sum float64
		n   int
	}
	days := make(map[time.Time]*acc)
	for _, r := range rows {
		v := r.Value(column)
		if math.IsNaN(v) {
			continue
		}
		d := DateOf(r.Timestamp)
		a, ok := days[d]
		if !ok {
			a = &acc{}
			days[d] = a
		}
		a.sum += v
		a.n++
	}

	out := make([]DailyAQI, 0, len(days))
	for d, a := range days {
		out = append(out, DailyAQI{Date: d, AvgAQI: a.sum / float64(a.n), Samples: a.n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// LatestPerDate keeps one forecast per date, preferring the most recent write.
// The result is ordered by date.
func LatestPerDate(rows []ForecastRow) []ForecastRow {
	best := make(map[time.Time]ForecastRow, len(rows))
	for _, r := range rows {
		d := DateOf(r.Date)
		r.Date = d
		cur, ok := best[d]
		if !ok || r.CreatedAt.After(cur.CreatedAt) {
			best[d] = r
		}
	}

	out := make([]ForecastRow, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
