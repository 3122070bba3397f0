package features

import (
	"strings"

	"github.com/okian/nocaptcha/internal/domain/model"
)

// Backspace is the key name counted as an error correction.
const Backspace = "Backspace"

// leftHand is the left half of a QWERTY character layout, lower-cased.
// Every other key, including non-character keys, counts as right hand.
var leftHand = map[string]struct{}{
	"q": {}, "w": {}, "e": {}, "r": {}, "t": {},
	"a": {}, "s": {}, "d": {}, "f": {}, "g": {},
	"z": {}, "x": {}, "c": {}, "v": {}, "b": {},
}

var modifiers = map[string]struct{}{
	"Shift": {}, "Control": {}, "Alt": {}, "Meta": {},
}

func isLeftHand(key string) bool {
	_, ok := leftHand[strings.ToLower(key)]
	return ok
}

// Keyboard computes keyboard features.
func Keyboard(samples []model.KeySample) model.KeyboardVector {
	n := len(samples)

	var (
		intervals  []float64
		shiftDelay float64
		backspaces int
		modCount   int
	)
	for i, s := range samples {
		if s.Kind == model.KeyDown && s.Key == Backspace {
			backspaces++
		}
		if _, ok := modifiers[s.Key]; ok {
			modCount++
		}
		if i == 0 {
			continue
		}
		prev := samples[i-1]
		if s.Kind != model.KeyDown || prev.Kind != model.KeyDown {
			continue
		}
		dt := s.T - prev.T
		intervals = append(intervals, dt)
		if isLeftHand(s.Key) != isLeftHand(prev.Key) {
			shiftDelay += dt
		}
	}

	return model.KeyboardVector{
		SequentialTimingVariance: variance(intervals),
		ErrorCorrectionRate:      ratio(float64(backspaces), n),
		HandShiftDelay:           ratio(shiftDelay, n),
		ModifierFrequency:        ratio(float64(modCount), n),
	}
}
