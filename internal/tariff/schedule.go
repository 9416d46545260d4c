// Package tariff implements progressive (tiered) electricity pricing.
//
// A Schedule is an ordered, contiguous set of tiers covering [0, +Inf). The
// cost of a quantity of energy is the sum over tiers of the usage that falls
// inside each tier's span multiplied by that tier's rate.
package tariff

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSchedule is returned by Validate for malformed tier tables
var ErrInvalidSchedule = errors.New("invalid rate schedule")

// Tier is a consumption band billed at a single rate per kWh
type Tier struct {
	Lower float64
	Upper float64 // math.Inf(1) for the last tier
	Rate  float64
}

type tierJSON struct {
	Lower float64  `json:"lower_kwh"`
	Upper *float64 `json:"upper_kwh"`
	Rate  float64  `json:"rate_per_kwh"`
}

// MarshalJSON encodes an unbounded upper limit as null
func (t Tier) MarshalJSON() ([]byte, error) {
	out := tierJSON{Lower: t.Lower, Rate: t.Rate}
	if !t.Unbounded() {
		upper := t.Upper
		out.Upper = &upper
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a null or missing upper limit as unbounded
func (t *Tier) UnmarshalJSON(b []byte) error {
	var in tierJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	t.Lower, t.Rate, t.Upper = in.Lower, in.Rate, math.Inf(1)
	if in.Upper != nil {
		t.Upper = *in.Upper
	}
	return nil
}

// Span returns the width of the tier in kWh
func (t Tier) Span() float64 {
	return t.Upper - t.Lower
}

// Unbounded reports whether the tier has no upper limit
func (t Tier) Unbounded() bool {
	return math.IsInf(t.Upper, 1)
}

// Schedule is a tier table priced in a single base currency
type Schedule struct {
	Currency string `json:"currency"`
	Tiers    []Tier `json:"tiers"`
}

// DefaultSchedule returns the residential progressive tariff (THB)
func DefaultSchedule() Schedule {
	return Schedule{
		Currency: "THB",
		Tiers: []Tier{
			{Lower: 0, Upper: 150, Rate: 3.2484},
			{Lower: 150, Upper: 400, Rate: 4.2218},
			{Lower: 400, Upper: math.Inf(1), Rate: 4.4217},
		},
	}
}

// Validate checks that the tiers start at zero, are contiguous and ascending,
// and that only the last one is unbounded.
func (s Schedule) Validate() error {
	if len(s.Tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidSchedule)
	}
	if s.Tiers[0].Lower != 0 {
		return fmt.Errorf("%w: first tier starts at %g, not 0", ErrInvalidSchedule, s.Tiers[0].Lower)
	}

	last := len(s.Tiers) - 1
	for i, t := range s.Tiers {
		if t.Rate < 0 || math.IsNaN(t.Rate) {
			return fmt.Errorf("%w: tier %d has rate %g", ErrInvalidSchedule, i, t.Rate)
		}
		if i < last {
			if t.Unbounded() {
				return fmt.Errorf("%w: tier %d is unbounded but not last", ErrInvalidSchedule, i)
			}
			if t.Upper <= t.Lower {
				return fmt.Errorf("%w: tier %d upper bound %g not above lower bound %g", ErrInvalidSchedule, i, t.Upper, t.Lower)
			}
			if s.Tiers[i+1].Lower != t.Upper {
				return fmt.Errorf("%w: gap between tier %d (upper %g) and tier %d (lower %g)", ErrInvalidSchedule, i, t.Upper, i+1, s.Tiers[i+1].Lower)
			}
		} else if !t.Unbounded() {
			return fmt.Errorf("%w: last tier must be unbounded", ErrInvalidSchedule)
		}
	}

	return nil
}

// Cost returns the tiered cost of kwh in the schedule's currency.
// Negative usage costs nothing.
func (s Schedule) Cost(kwh float64) float64 {
	var cost float64
	remaining := kwh

	for _, t := range s.Tiers {
		usage := math.Min(math.Max(remaining, 0), t.Span())
		cost += usage * t.Rate
		remaining -= usage
		if remaining <= 0 {
			break
		}
	}

	return cost
}

// MarginalCost returns what the energy between from and to costs when the
// first from kWh of the period have already been billed.
func (s Schedule) MarginalCost(from, to float64) float64 {
	return s.Cost(to) - s.Cost(from)
}

// TierUsage is the share of a quantity that falls into one tier
type TierUsage struct {
	Tier  Tier    `json:"tier"`
	KWh   float64 `json:"kwh"`
	Cost  float64 `json:"cost"`
	Index int     `json:"index"`
}

// Breakdown splits kwh across the tiers it touches
func (s Schedule) Breakdown(kwh float64) []TierUsage {
	var out []TierUsage
	remaining := kwh

	for i, t := range s.Tiers {
		if remaining <= 0 {
			break
		}
		usage := math.Min(remaining, t.Span())
		out = append(out, TierUsage{Tier: t, KWh: usage, Cost: usage * t.Rate, Index: i})
		remaining -= usage
	}

	return out
}
