package influx

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDayQuery(t *testing.T) {
	q := DayQuery("home", "sensor_data", time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC))
	for _, want := range []string{
		`from(bucket: "home")`,
		`start: time(v: "2025-01-15T00:00:00Z")`,
		`stop: time(v: "2025-01-15T23:59:59Z")`,
		`r._measurement == "sensor_data"`,
	} {
		if !strings.Contains(q, want) {
			t.Fatalf("query missing %q:\n%s", want, q)
		}
	}
}

func TestAllAndFieldQueries(t *testing.T) {
	if q := AllQuery("home", "sensor_data"); !strings.Contains(q, "stop: now()") {
		t.Fatalf("expected open-ended range:\n%s", q)
	}
	if q := FieldQuery("home", "sensor_data", "voltage"); !strings.Contains(q, `r._field == "voltage"`) {
		t.Fatalf("expected field filter:\n%s", q)
	}
	if q := DatesQuery("home"); !strings.Contains(q, `distinct(column: "_time")`) {
		t.Fatalf("expected distinct times:\n%s", q)
	}
}

func TestPivotGroupsByTime(t *testing.T) {
	t0 := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	rows := []Row{
		{Time: t1, Field: "power", Value: 250.0},
		{Time: t0, Field: "power", Value: 200.0},
		{Time: t0, Field: "voltage", Value: 230.1},
		{Time: t0, Field: "current", Value: int64(1)},
		{Time: t1, Field: "energy", Value: 1.5},
		{Time: t1, Field: "status", Value: "ok"},
	}

	got := Pivot(rows)
	if len(got) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(got))
	}
	if !got[0].Time.Equal(t0) || got[0].Power != 200 || got[0].Voltage != 230.1 || got[0].Current != 1 {
		t.Fatalf("unexpected first reading %+v", got[0])
	}
	if !got[1].Time.Equal(t1) || got[1].Power != 250 || got[1].Energy != 1.5 {
		t.Fatalf("unexpected second reading %+v", got[1])
	}
}

func TestUniqueDates(t *testing.T) {
	times := []time.Time{
		time.Date(2025, 1, 16, 1, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC),
	}
	want := []string{"2025-01-15", "2025-01-16"}
	if got := UniqueDates(times); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := UniqueDates(nil); len(got) != 0 {
		t.Fatalf("expected no dates, got %v", got)
	}
}
