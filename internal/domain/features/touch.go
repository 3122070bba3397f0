package features

import (
	"math"

	"github.com/okian/nocaptcha/internal/domain/model"
)

// Touch computes touch features.
func Touch(samples []model.TouchSample) model.TouchVector {
	n := len(samples)

	pressures := make([]float64, n)
	var (
		speeds    []float64
		tapDeltas []float64
		startSync float64
	)
	for i, s := range samples {
		pressures[i] = s.Pressure
		if i == 0 {
			continue
		}
		prev := samples[i-1]
		dt := s.T - prev.T
		switch {
		case s.Kind == model.TouchMove && prev.Kind == model.TouchMove:
			// Contacts of one native event share a timestamp; a pair with no
			// elapsed time has no speed.
			if dt > 0 {
				speeds = append(speeds, math.Hypot(s.X-prev.X, s.Y-prev.Y)/dt)
			}
		case s.Kind == model.TouchStart && prev.Kind == model.TouchStart:
			startSync += math.Abs(dt)
		case s.Kind == model.TouchEnd && prev.Kind == model.TouchEnd:
			tapDeltas = append(tapDeltas, dt)
		}
	}

	return model.TouchVector{
		PressureVariability:   variance(pressures),
		SwipeSpeedVariability: stddev(speeds),
		MultiTouchSync:        ratio(startSync, n),
		IntervalVariability:   variance(tapDeltas),
	}
}
