package model

import "math"

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// finite returns p, or nil when p points at NaN or ±Inf.
func finite(p *float64) *float64 {
	if p == nil || !isFinite(*p) {
		return nil
	}
	return p
}

// Finite reports whether every coordinate of the sample is a finite number.
func (s MouseSample) Finite() bool {
	return isFinite(s.X) && isFinite(s.Y) && isFinite(s.T)
}

// Finite reports whether the timestamp is a finite number.
func (s KeySample) Finite() bool {
	return isFinite(s.T)
}

// Finite reports whether every field of the sample is a finite number.
func (s TouchSample) Finite() bool {
	return isFinite(s.X) && isFinite(s.Y) && isFinite(s.Pressure) && isFinite(s.T)
}

// Sanitized returns a copy with non-finite angles reported as missing.
func (o Orientation) Sanitized() Orientation {
	return Orientation{Alpha: finite(o.Alpha), Beta: finite(o.Beta), Gamma: finite(o.Gamma)}
}

// Sanitized returns a copy with non-finite readings reported as missing and a
// non-finite interval reported as 0.
func (m Motion) Sanitized() Motion {
	out := Motion{Interval: m.Interval}
	if !isFinite(out.Interval) {
		out.Interval = 0
	}
	if v := m.Acceleration; v != nil {
		out.Acceleration = &Vector{X: finite(v.X), Y: finite(v.Y), Z: finite(v.Z)}
	}
	if v := m.AccelerationIncludingGravity; v != nil {
		out.AccelerationIncludingGravity = &Vector{X: finite(v.X), Y: finite(v.Y), Z: finite(v.Z)}
	}
	if r := m.RotationRate; r != nil {
		out.RotationRate = &Rotation{Alpha: finite(r.Alpha), Beta: finite(r.Beta), Gamma: finite(r.Gamma)}
	}
	return out
}

// Sanitized returns the buffers without samples that carry non-finite fields.
// Buffers that are already clean are returned unchanged.
func (b Buffers) Sanitized() Buffers {
	return Buffers{
		Mouse:    keepFinite(b.Mouse, MouseSample.Finite),
		Keyboard: keepFinite(b.Keyboard, KeySample.Finite),
		Touch:    keepFinite(b.Touch, TouchSample.Finite),
	}
}

func keepFinite[T any](in []T, ok func(T) bool) []T {
	clean := true
	for _, v := range in {
		if !ok(v) {
			clean = false
			break
		}
	}
	if clean {
		return in
	}
	out := make([]T, 0, len(in))
	for _, v := range in {
		if ok(v) {
			out = append(out, v)
		}
	}
	return out
}
