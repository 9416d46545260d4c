// Package influx reads sensor readings from InfluxDB v2 using Flux.
package influx

import (
	"fmt"
	"sort"
	"time"

	"github.com/jgoulah/ampdash/pkg/models"
)

// DateLayout is the day format used by queries and the API
const DateLayout = "2006-01-02"

// Row is one record of a Flux result table
type Row struct {
	Time  time.Time
	Field string
	Value interface{}
}

// DayQuery selects every field of measurement recorded on day (UTC)
func DayQuery(bucket, measurement string, day time.Time) string {
	d := day.UTC().Format(DateLayout)
	return fmt.Sprintf(`
from(bucket: "%s")
  |> range(start: time(v: "%sT00:00:00Z"), stop: time(v: "%sT23:59:59Z"))
  |> filter(fn: (r) => r._measurement == "%s")
`, bucket, d, d, measurement)
}

// AllQuery selects every field of measurement since the epoch
func AllQuery(bucket, measurement string) string {
	return fmt.Sprintf(`
from(bucket: "%s")
  |> range(start: time(v: "1970-01-01T00:00:00Z"), stop: now())
  |> filter(fn: (r) => r._measurement == "%s")
`, bucket, measurement)
}

// RangeQuery selects every field of measurement in [start, stop)
func RangeQuery(bucket, measurement string, start, stop time.Time) string {
	return fmt.Sprintf(`
from(bucket: "%s")
  |> range(start: time(v: "%s"), stop: time(v: "%s"))
  |> filter(fn: (r) => r._measurement == "%s")
`, bucket, start.UTC().Format(time.RFC3339), stop.UTC().Format(time.RFC3339), measurement)
}

// DatesQuery lists the distinct timestamps present in the bucket
func DatesQuery(bucket string) string {
	return fmt.Sprintf(`
from(bucket: "%s")
  |> range(start: 0)
  |> group(columns: ["_time"])
  |> keep(columns: ["_time"])
  |> distinct(column: "_time")
`, bucket)
}

// FieldQuery selects a single field of measurement since the epoch
func FieldQuery(bucket, measurement, field string) string {
	return fmt.Sprintf(`
from(bucket: "%s")
  |> range(start: 0)
  |> filter(fn: (r) => r._measurement == "%s")
  |> filter(fn: (r) => r._field == "%s")
`, bucket, measurement, field)
}

// Pivot groups rows by timestamp, turning each field into a column of the
// resulting reading. Output is sorted by time.
func Pivot(rows []Row) []models.Reading {
	byTime := make(map[int64]*models.Reading)
	for _, row := range rows {
		key := row.Time.UnixNano()
		r, ok := byTime[key]
		if !ok {
			r = &models.Reading{Time: row.Time.UTC()}
			byTime[key] = r
		}
		v, ok := toFloat(row.Value)
		if !ok {
			continue
		}
		switch row.Field {
		case "power":
			r.Power = v
		case "current":
			r.Current = v
		case "voltage":
			r.Voltage = v
		case "energy":
			r.Energy = v
		}
	}

	out := make([]models.Reading, 0, len(byTime))
	for _, r := range byTime {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// UniqueDates returns the sorted, de-duplicated UTC days of times
func UniqueDates(times []time.Time) []string {
	seen := make(map[string]struct{}, len(times))
	out := make([]string, 0)
	for _, t := range times {
		d := t.UTC().Format(DateLayout)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
