package models

import "time"

// PowerSample is an instantaneous power measurement
type PowerSample struct {
	Timestamp time.Time `json:"timestamp"`
	Watts     float64   `json:"power_watts"`
}

// EnergySample is the energy consumed since the previous sample plus the running total
type EnergySample struct {
	Timestamp     time.Time `json:"timestamp"`
	IntervalKWh   float64   `json:"interval_kwh"`
	CumulativeKWh float64   `json:"cumulative_kwh"`
}

// CostSample is the priced form of an EnergySample
type CostSample struct {
	Timestamp   time.Time `json:"timestamp"`
	EnergyKWh   float64   `json:"energy_kwh"`
	CostBase    float64   `json:"cost_base"`
	CostDisplay float64   `json:"cost_display"`
}
