// Package energy turns power samples into consumed energy.
package energy

import (
	"time"

	"github.com/jgoulah/ampdash/pkg/models"
)

// FirstInterval is the duration credited to the first sample, which has no
// predecessor to measure against.
const FirstInterval = time.Hour

// Integrate converts ordered power samples into interval and cumulative energy.
// Durations between samples are used as-is; out of order or duplicate
// timestamps produce zero or negative interval energy.
func Integrate(samples []models.PowerSample) []models.EnergySample {
	out := make([]models.EnergySample, len(samples))

	var cumulative float64
	for i, s := range samples {
		d := FirstInterval
		if i > 0 {
			d = s.Timestamp.Sub(samples[i-1].Timestamp)
		}

		interval := s.Watts * d.Hours() / 1000
		cumulative += interval

		out[i] = models.EnergySample{
			Timestamp:     s.Timestamp,
			IntervalKWh:   interval,
			CumulativeKWh: cumulative,
		}
	}

	return out
}

// TotalKWh returns the cumulative energy of the last sample, or 0 when empty
func TotalKWh(samples []models.EnergySample) float64 {
	if len(samples) == 0 {
		return 0
	}
	return samples[len(samples)-1].CumulativeKWh
}

// AveragePower returns the mean power of the last n samples (fewer if the
// sequence is shorter), or 0 when there is nothing to average.
func AveragePower(samples []models.PowerSample, n int) float64 {
	if n <= 0 || len(samples) == 0 {
		return 0
	}
	if n > len(samples) {
		n = len(samples)
	}

	var sum float64
	for _, s := range samples[len(samples)-n:] {
		sum += s.Watts
	}
	return sum / float64(n)
}

// KWhOver returns the energy consumed by a constant load over d
func KWhOver(watts float64, d time.Duration) float64 {
	return watts * d.Hours() / 1000
}
