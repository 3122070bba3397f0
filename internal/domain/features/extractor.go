// Package features reduces interaction buffers to fixed sets of named
// statistical descriptors.
//
// Every function here is pure: it reads a snapshot and never mutates it.
// A metric whose denominator is zero (no events, no qualifying pairs) is
// reported as undefined instead of NaN or infinity.
package features

import "github.com/okian/nocaptcha/internal/domain/model"

// Option tunes extraction.
type Option func(*options)

type options struct {
	forecast bool
}

// WithForecast computes predictiveModel as the squared error of a true
// one-step-ahead forecast that reuses the previous interval. Without it the
// metric keeps the legacy recurrence, which always yields zero error.
func WithForecast() Option {
	return func(o *options) { o.forecast = true }
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Extract computes all three vectors from a buffers snapshot.
func Extract(b model.Buffers, opts ...Option) model.Features {
	return model.Features{
		Mouse:    Mouse(b.Mouse, opts...),
		Keyboard: Keyboard(b.Keyboard),
		Touch:    Touch(b.Touch),
	}
}

// Undefined reports the names of undefined metrics, in schema order.
func Undefined(f model.Features) []string {
	var out []string
	add := func(name string, v model.Value) {
		if !v.Defined {
			out = append(out, name)
		}
	}
	add("mouse.microMovements", f.Mouse.MicroMovements)
	add("mouse.pathSegmentation", f.Mouse.PathSegmentation)
	add("mouse.gestureComplexity", f.Mouse.GestureComplexity)
	add("mouse.dragPatternVariation", f.Mouse.DragPatternVariation)
	add("mouse.timingSync", f.Mouse.TimingSync)
	add("mouse.predictiveModel", f.Mouse.PredictiveModel)
	add("keyboard.sequentialTimingVariance", f.Keyboard.SequentialTimingVariance)
	add("keyboard.errorCorrectionRate", f.Keyboard.ErrorCorrectionRate)
	add("keyboard.handShiftDelay", f.Keyboard.HandShiftDelay)
	add("keyboard.modifierFrequency", f.Keyboard.ModifierFrequency)
	add("touch.pressureVariability", f.Touch.PressureVariability)
	add("touch.swipeSpeedVariability", f.Touch.SwipeSpeedVariability)
	add("touch.multiTouchSync", f.Touch.MultiTouchSync)
	add("touch.intervalVariability", f.Touch.IntervalVariability)
	return out
}
