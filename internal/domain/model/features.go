package model

import (
	"bytes"
	"encoding/json"
	"math"
)

var jsonNull = []byte("null")

// Value is a feature value that may be undefined when there was not enough
// data to compute it. Undefined values encode as JSON null.
type Value struct {
	V       float64
	Defined bool
}

// Defined returns a defined value, or an undefined one when v is NaN or infinite.
func Defined(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{V: v, Defined: true}
}

// Undefined returns the undefined value.
func Undefined() Value { return Value{} }

// Get returns the value and whether it is defined.
func (v Value) Get() (float64, bool) { return v.V, v.Defined }

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Defined {
		return jsonNull, nil
	}
	return json.Marshal(v.V)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Defined(f)
	return nil
}

// MouseVector holds pointer features.
//
// MicroMovements, PathSegmentation and DragPatternVariation carry the same
// signal; they are kept as separate fields for schema compatibility.
type MouseVector struct {
	MicroMovements       Value `json:"microMovements"`
	PathSegmentation     Value `json:"pathSegmentation"`
	GestureComplexity    Value `json:"gestureComplexity"`
	DragPatternVariation Value `json:"dragPatternVariation"`
	TimingSync           Value `json:"timingSync"`
	PredictiveModel      Value `json:"predictiveModel"`
}

// KeyboardVector holds keyboard features.
type KeyboardVector struct {
	SequentialTimingVariance Value `json:"sequentialTimingVariance"`
	ErrorCorrectionRate      Value `json:"errorCorrectionRate"`
	HandShiftDelay           Value `json:"handShiftDelay"`
	ModifierFrequency        Value `json:"modifierFrequency"`
}

// TouchVector holds touch features.
type TouchVector struct {
	PressureVariability   Value `json:"pressureVariability"`
	SwipeSpeedVariability Value `json:"swipeSpeedVariability"`
	MultiTouchSync        Value `json:"multiTouchSync"`
	IntervalVariability   Value `json:"intervalVariability"`
}

// Features bundles the per-modality vectors.
type Features struct {
	Mouse    MouseVector    `json:"mouseFeatures"`
	Keyboard KeyboardVector `json:"keyboardFeatures"`
	Touch    TouchVector    `json:"touchFeatures"`
}
