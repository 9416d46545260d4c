package billing

import (
	"math"
	"testing"
	"time"

	"github.com/jgoulah/ampdash/internal/currency"
	"github.com/jgoulah/ampdash/internal/energy"
	"github.com/jgoulah/ampdash/internal/tariff"
	"github.com/jgoulah/ampdash/pkg/models"
)

func hourly(watts ...float64) []models.PowerSample {
	t0 := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	out := make([]models.PowerSample, len(watts))
	for i, w := range watts {
		out[i] = models.PowerSample{Timestamp: t0.Add(time.Duration(i) * time.Hour), Watts: w}
	}
	return out
}

func TestCumulativeCostsFromEnergySeries(t *testing.T) {
	series := []models.EnergySample{
		{CumulativeKWh: 0},
		{CumulativeKWh: 150},
		{CumulativeKWh: 300},
		{CumulativeKWh: 500},
	}
	got := CumulativeCosts(series, tariff.DefaultSchedule(), 1)
	want := []float64{0, 487.26, 1120.53, 1984.88}
	for i, c := range got {
		if r := math.Round(c.CostBase*100) / 100; r != want[i] {
			t.Fatalf("point %d: expected %.2f, got %.2f", i, want[i], r)
		}
		if c.CostDisplay != c.CostBase {
			t.Fatalf("point %d: identity rate changed the amount", i)
		}
	}
}

func TestIntervalCostsSumToTotal(t *testing.T) {
	samples := hourly(50000, 100000, 200000, 20000)
	series := energy.Integrate(samples)
	sched := tariff.DefaultSchedule()

	got := IntervalCosts(series, sched, 1)
	var sum float64
	for _, c := range got {
		sum += c.CostBase
	}
	want := sched.Cost(energy.TotalKWh(series))
	if math.Abs(sum-want) > 1e-6 {
		t.Fatalf("expected interval costs to sum to %.4f, got %.4f", want, sum)
	}
	if math.Abs(got[1].EnergyKWh-100) > 1e-9 {
		t.Fatalf("expected interval energy 100 kWh, got %.4f", got[1].EnergyKWh)
	}
}

func TestCalculateCumulativeConvertsCurrency(t *testing.T) {
	rates := currency.Table{Base: "THB", Rates: map[string]float64{"USD": 0.03}}
	r := Calculate(hourly(150000, 150000), tariff.DefaultSchedule(), rates, "usd", ModeCumulative)

	if r.Currency != "USD" || r.BaseCurrency != "THB" {
		t.Fatalf("unexpected currencies %s/%s", r.Currency, r.BaseCurrency)
	}
	if len(r.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(r.Samples))
	}
	last := r.Samples[1]
	if math.Abs(last.CostBase-1120.53) > 1e-6 {
		t.Fatalf("expected base cost 1120.53, got %.4f", last.CostBase)
	}
	if math.Abs(last.CostDisplay-1120.53*0.03) > 1e-6 {
		t.Fatalf("expected display cost %.4f, got %.4f", 1120.53*0.03, last.CostDisplay)
	}
	if math.Abs(r.Summary.TotalCostBase-last.CostBase) > 1e-9 {
		t.Fatalf("expected total to equal last cumulative cost")
	}
	if math.Abs(r.Summary.AverageCostBase-1120.53/2) > 1e-6 {
		t.Fatalf("expected average %.4f, got %.4f", 1120.53/2, r.Summary.AverageCostBase)
	}
}

func TestCalculateUnknownCurrencyIsIdentity(t *testing.T) {
	r := Calculate(hourly(1000), tariff.DefaultSchedule(), currency.Table{}, "XYZ", ModeCumulative)
	if r.Rate != 1 {
		t.Fatalf("expected identity rate, got %.4f", r.Rate)
	}
	if r.Samples[0].CostDisplay != r.Samples[0].CostBase {
		t.Fatalf("expected display cost to equal base cost")
	}
}

func TestCalculateDefaultsToScheduleCurrency(t *testing.T) {
	r := Calculate(hourly(1000), tariff.DefaultSchedule(), currency.DefaultTable(), "", "")
	if r.Currency != "THB" || r.Mode != ModeCumulative {
		t.Fatalf("expected THB cumulative report, got %s %s", r.Currency, r.Mode)
	}
}

func TestSummaryEmptyInput(t *testing.T) {
	r := Calculate(nil, tariff.DefaultSchedule(), currency.DefaultTable(), "THB", ModeCumulative)
	s := r.Summary
	if s.TotalCost != 0 || s.AverageCost != 0 || s.PredictedNextCost != 0 {
		t.Fatalf("expected zero summary, got %+v", s)
	}
	if math.IsNaN(s.AverageCostBase) {
		t.Fatalf("average must not be NaN")
	}
	if len(r.Samples) != 0 {
		t.Fatalf("expected no samples, got %d", len(r.Samples))
	}
}

func TestPredictedNextUsesLastFiveSamples(t *testing.T) {
	samples := hourly(99999, 1000, 2000, 3000, 4000, 5000)
	r := Calculate(samples, tariff.DefaultSchedule(), currency.DefaultTable(), "THB", ModeCumulative)

	// mean of the last five is 3000 W, i.e. 3 kWh over the next hour
	if math.Abs(r.Summary.PredictedNextKWh-3) > 1e-9 {
		t.Fatalf("expected 3 kWh forecast, got %.4f", r.Summary.PredictedNextKWh)
	}
	if math.Abs(r.Summary.PredictedNextCostBase-3*3.2484) > 1e-9 {
		t.Fatalf("expected forecast cost %.4f, got %.4f", 3*3.2484, r.Summary.PredictedNextCostBase)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeCumulative {
		t.Fatalf("expected default cumulative, got %q %v", m, err)
	}
	if m, err := ParseMode("INTERVAL"); err != nil || m != ModeInterval {
		t.Fatalf("expected interval, got %q %v", m, err)
	}
	if _, err := ParseMode("delta"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestPredictedNextShortSeriesIsNotDiluted(t *testing.T) {
	r := Calculate(hourly(1000, 3000), tariff.DefaultSchedule(), currency.DefaultTable(), "THB", ModeCumulative)

	// two samples average to 2000 W, not (1000+3000)/5
	if math.Abs(r.Summary.PredictedNextKWh-2) > 1e-9 {
		t.Fatalf("expected 2 kWh forecast, got %.4f", r.Summary.PredictedNextKWh)
	}
}
