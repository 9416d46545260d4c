package models

import "time"

// Reading is one sensor row with every field pivoted into a column
type Reading struct {
	Time    time.Time `json:"time"`
	Power   float64   `json:"power"`   // Watts
	Current float64   `json:"current"` // Amperes
	Voltage float64   `json:"voltage"` // Volts
	Energy  float64   `json:"energy"`  // kWh as reported by the meter
}

// PowerSample returns the instantaneous power part of the reading
func (r Reading) PowerSample() PowerSample {
	return PowerSample{Timestamp: r.Time, Watts: r.Power}
}

// PowerSamples converts readings into power samples, preserving order
func PowerSamples(readings []Reading) []PowerSample {
	out := make([]PowerSample, len(readings))
	for i, r := range readings {
		out[i] = r.PowerSample()
	}
	return out
}

// FieldValue is a single measured field at a point in time
type FieldValue struct {
	Time  time.Time `json:"time"`
	Field string    `json:"field"`
	Value float64   `json:"value"`
}
