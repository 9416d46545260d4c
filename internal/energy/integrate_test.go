package energy

import (
	"math"
	"testing"
	"time"

	"github.com/jgoulah/ampdash/pkg/models"
)

func TestIntegrateSingleSampleUsesOneHour(t *testing.T) {
	t0 := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	got := Integrate([]models.PowerSample{{Timestamp: t0, Watts: 100}})
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if math.Abs(got[0].IntervalKWh-0.1) > 1e-9 {
		t.Fatalf("expected 0.1 kWh, got %.6f", got[0].IntervalKWh)
	}
	if math.Abs(got[0].CumulativeKWh-0.1) > 1e-9 {
		t.Fatalf("expected cumulative 0.1 kWh, got %.6f", got[0].CumulativeKWh)
	}
	if !got[0].Timestamp.Equal(t0) {
		t.Fatalf("timestamp not carried over: %v", got[0].Timestamp)
	}
}

func TestIntegrateTwoSamples(t *testing.T) {
	t0 := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	got := Integrate([]models.PowerSample{
		{Timestamp: t0, Watts: 100},
		{Timestamp: t0.Add(time.Hour), Watts: 200},
	})
	if math.Abs(got[1].IntervalKWh-0.2) > 1e-9 {
		t.Fatalf("expected second interval 0.2 kWh, got %.6f", got[1].IntervalKWh)
	}
	if math.Abs(got[1].CumulativeKWh-0.3) > 1e-9 {
		t.Fatalf("expected cumulative 0.3 kWh, got %.6f", got[1].CumulativeKWh)
	}
}

func TestIntegrateFractionalInterval(t *testing.T) {
	t0 := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	got := Integrate([]models.PowerSample{
		{Timestamp: t0, Watts: 0},
		{Timestamp: t0.Add(15 * time.Minute), Watts: 2000},
	})
	want := 2000 * 0.25 / 1000
	if math.Abs(got[1].IntervalKWh-want) > 1e-9 {
		t.Fatalf("expected %.6f kWh, got %.6f", want, got[1].IntervalKWh)
	}
}

func TestIntegrateOutOfOrderIsNotClamped(t *testing.T) {
	t0 := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	got := Integrate([]models.PowerSample{
		{Timestamp: t0, Watts: 1000},
		{Timestamp: t0.Add(-30 * time.Minute), Watts: 1000},
		{Timestamp: t0.Add(-30 * time.Minute), Watts: 1000},
	})
	if math.Abs(got[1].IntervalKWh-(-0.5)) > 1e-9 {
		t.Fatalf("expected -0.5 kWh, got %.6f", got[1].IntervalKWh)
	}
	if got[2].IntervalKWh != 0 {
		t.Fatalf("expected 0 kWh for duplicate timestamp, got %.6f", got[2].IntervalKWh)
	}
	if math.Abs(got[2].CumulativeKWh-0.5) > 1e-9 {
		t.Fatalf("expected cumulative 0.5 kWh, got %.6f", got[2].CumulativeKWh)
	}
}

func TestIntegrateEmpty(t *testing.T) {
	got := Integrate(nil)
	if len(got) != 0 {
		t.Fatalf("expected empty output, got %d samples", len(got))
	}
	if TotalKWh(got) != 0 {
		t.Fatalf("expected zero total, got %.6f", TotalKWh(got))
	}
}

func TestCumulativeNonDecreasingForNonNegativePower(t *testing.T) {
	t0 := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	var samples []models.PowerSample
	for i := 0; i < 50; i++ {
		samples = append(samples, models.PowerSample{
			Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute),
			Watts:     float64((i * 37) % 900),
		})
	}
	got := Integrate(samples)
	for i := 1; i < len(got); i++ {
		if got[i].CumulativeKWh < got[i-1].CumulativeKWh {
			t.Fatalf("cumulative decreased at %d: %.6f < %.6f", i, got[i].CumulativeKWh, got[i-1].CumulativeKWh)
		}
	}
}

func TestAveragePower(t *testing.T) {
	t0 := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	samples := []models.PowerSample{
		{Timestamp: t0, Watts: 1000},
		{Timestamp: t0, Watts: 100},
		{Timestamp: t0, Watts: 200},
		{Timestamp: t0, Watts: 300},
		{Timestamp: t0, Watts: 400},
		{Timestamp: t0, Watts: 500},
	}
	if got := AveragePower(samples, 5); math.Abs(got-300) > 1e-9 {
		t.Fatalf("expected 300 W, got %.3f", got)
	}
	if got := AveragePower(samples[:2], 5); math.Abs(got-550) > 1e-9 {
		t.Fatalf("expected 550 W over short series, got %.3f", got)
	}
	if got := AveragePower(nil, 5); got != 0 {
		t.Fatalf("expected 0 for empty series, got %.3f", got)
	}
}
