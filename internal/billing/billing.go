// Package billing prices a power series with a tiered tariff and converts the
// result for display.
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/jgoulah/ampdash/internal/currency"
	"github.com/jgoulah/ampdash/internal/energy"
	"github.com/jgoulah/ampdash/internal/tariff"
	"github.com/jgoulah/ampdash/pkg/models"
)

// Mode selects how each point of the cost series is priced
type Mode string

const (
	// ModeCumulative prices every point as the tiered cost of all energy
	// consumed up to that point.
	ModeCumulative Mode = "cumulative"
	// ModeInterval prices only the energy of each interval, at the tier rates
	// that apply given the usage already billed before it.
	ModeInterval Mode = "interval"
)

// PredictionWindow is the number of trailing samples averaged for the forecast.
// Series shorter than the window are averaged over the samples present, so a
// two-sample series forecasts the mean of those two rather than two fifths of
// it.
const PredictionWindow = 5

// ParseMode accepts "cumulative" (default when empty) or "interval"
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeCumulative:
		return ModeCumulative, nil
	case ModeInterval:
		return ModeInterval, nil
	default:
		return "", fmt.Errorf("unknown cost mode: %s (available: cumulative, interval)", s)
	}
}

// Summary holds the aggregate figures of a report
type Summary struct {
	TotalKWh              float64 `json:"total_kwh"`
	TotalCostBase         float64 `json:"total_cost_base"`
	TotalCost             float64 `json:"total_cost"`
	AverageCostBase       float64 `json:"average_cost_base"`
	AverageCost           float64 `json:"average_cost"`
	PredictedNextKWh      float64 `json:"predicted_next_kwh"`
	PredictedNextCostBase float64 `json:"predicted_next_cost_base"`
	PredictedNextCost     float64 `json:"predicted_next_cost"`
	Samples               int     `json:"samples"`
}

// Report is the priced form of a power series
type Report struct {
	BaseCurrency string              `json:"base_currency"`
	Currency     string              `json:"currency"`
	Rate         float64             `json:"rate"`
	Mode         Mode                `json:"mode"`
	Samples      []models.CostSample `json:"samples"`
	Summary      Summary             `json:"summary"`
}

// Calculate runs power samples through integration, tiered pricing and
// conversion into code.
func Calculate(samples []models.PowerSample, sched tariff.Schedule, rates currency.Table, code string, mode Mode) Report {
	energySeries := energy.Integrate(samples)

	code = strings.ToUpper(code)
	if code == "" {
		code = sched.Currency
	}
	rate := rates.Rate(code)

	var costs []models.CostSample
	switch mode {
	case ModeInterval:
		costs = IntervalCosts(energySeries, sched, rate)
	default:
		mode = ModeCumulative
		costs = CumulativeCosts(energySeries, sched, rate)
	}

	return Report{
		BaseCurrency: sched.Currency,
		Currency:     code,
		Rate:         rate,
		Mode:         mode,
		Samples:      costs,
		Summary:      Summarize(samples, energySeries, sched, rate),
	}
}

// CumulativeCosts prices each point as the full tiered cost of its cumulative
// energy, recomputed from zero.
func CumulativeCosts(series []models.EnergySample, sched tariff.Schedule, rate float64) []models.CostSample {
	out := make([]models.CostSample, len(series))
	for i, e := range series {
		base := sched.Cost(e.CumulativeKWh)
		out[i] = models.CostSample{
			Timestamp:   e.Timestamp,
			EnergyKWh:   e.CumulativeKWh,
			CostBase:    base,
			CostDisplay: base * rate,
		}
	}
	return out
}

// IntervalCosts prices each point as the marginal cost of its interval energy.
// The costs sum to the tiered cost of the final cumulative energy.
func IntervalCosts(series []models.EnergySample, sched tariff.Schedule, rate float64) []models.CostSample {
	out := make([]models.CostSample, len(series))
	var prev float64
	for i, e := range series {
		base := sched.MarginalCost(prev, e.CumulativeKWh)
		prev = e.CumulativeKWh
		out[i] = models.CostSample{
			Timestamp:   e.Timestamp,
			EnergyKWh:   e.IntervalKWh,
			CostBase:    base,
			CostDisplay: base * rate,
		}
	}
	return out
}

// Summarize computes total, average and a one-hour persistence forecast.
// The forecast assumes the mean power of the last PredictionWindow samples
// holds for the next hour.
func Summarize(samples []models.PowerSample, series []models.EnergySample, sched tariff.Schedule, rate float64) Summary {
	total := energy.TotalKWh(series)
	totalCost := sched.Cost(total)

	var avg float64
	if n := len(series); n > 0 {
		avg = totalCost / float64(n)
	}

	nextKWh := energy.KWhOver(energy.AveragePower(samples, PredictionWindow), time.Hour)
	predicted := sched.Cost(nextKWh)

	return Summary{
		TotalKWh:              total,
		TotalCostBase:         totalCost,
		TotalCost:             totalCost * rate,
		AverageCostBase:       avg,
		AverageCost:           avg * rate,
		PredictedNextKWh:      nextKWh,
		PredictedNextCostBase: predicted,
		PredictedNextCost:     predicted * rate,
		Samples:               len(series),
	}
}
