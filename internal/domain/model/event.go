// Package model contains domain models passed between layers.
package model

// MouseKind enumerates pointer event kinds.
type MouseKind string

// Pointer event kinds.
const (
	MouseMove MouseKind = "move"
	MouseDown MouseKind = "down"
	MouseUp   MouseKind = "up"
)

// KeyKind enumerates keyboard event kinds.
type KeyKind string

// Keyboard event kinds.
const (
	KeyDown KeyKind = "keydown"
	KeyUp   KeyKind = "keyup"
)

// TouchKind enumerates touch event kinds.
type TouchKind string

// Touch event kinds.
const (
	TouchStart TouchKind = "start"
	TouchMove  TouchKind = "move"
	TouchEnd   TouchKind = "end"
)

// MouseSample is one pointer event. T is milliseconds on the session clock.
type MouseSample struct {
	Kind MouseKind `json:"type"`
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
	T    float64   `json:"timestamp"`
}

// KeySample is one keyboard event.
type KeySample struct {
	Kind KeyKind `json:"type"`
	Key  string  `json:"key"`
	T    float64 `json:"timestamp"`
}

// TouchSample is one contact point of a touch event.
type TouchSample struct {
	Kind     TouchKind `json:"type"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Pressure float64   `json:"pressure"`
	T        float64   `json:"timestamp"`
}

// TouchPoint is a single contact carried by a native touch event.
type TouchPoint struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Pressure *float64 `json:"pressure,omitempty"`
}

// TouchEvent is a native touch event that may carry several contacts.
type TouchEvent struct {
	Kind   TouchKind    `json:"type"`
	T      float64      `json:"timestamp"`
	Points []TouchPoint `json:"points"`
}

// Samples expands the event into one sample per contact point, all sharing T.
// Missing, negative or non-finite pressure becomes 0.
func (e TouchEvent) Samples() []TouchSample {
	out := make([]TouchSample, 0, len(e.Points))
	for _, p := range e.Points {
		var pressure float64
		if p.Pressure != nil && *p.Pressure > 0 && isFinite(*p.Pressure) {
			pressure = *p.Pressure
		}
		out = append(out, TouchSample{Kind: e.Kind, X: p.X, Y: p.Y, Pressure: pressure, T: e.T})
	}
	return out
}

// Orientation is the last known device orientation reading, in degrees.
// Fields are nil when the host did not report them.
type Orientation struct {
	Alpha *float64 `json:"alpha"`
	Beta  *float64 `json:"beta"`
	Gamma *float64 `json:"gamma"`
}

// Vector is a three-axis acceleration reading.
type Vector struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// Rotation is a rotation-rate reading.
type Rotation struct {
	Alpha *float64 `json:"alpha"`
	Beta  *float64 `json:"beta"`
	Gamma *float64 `json:"gamma"`
}

// Motion is the last known device motion reading.
type Motion struct {
	Acceleration                 *Vector   `json:"acceleration"`
	AccelerationIncludingGravity *Vector   `json:"accelerationIncludingGravity"`
	RotationRate                 *Rotation `json:"rotationRate"`
	Interval                     float64   `json:"interval"`
}

// Buffers is a snapshot of the per-modality interaction buffers in arrival order.
type Buffers struct {
	Mouse    []MouseSample `json:"mouse"`
	Keyboard []KeySample   `json:"keyboard"`
	Touch    []TouchSample `json:"touch"`
}

// Len returns the total number of samples across modalities.
func (b Buffers) Len() int {
	return len(b.Mouse) + len(b.Keyboard) + len(b.Touch)
}

// Valid reports whether k is a known pointer kind.
func (k MouseKind) Valid() bool {
	return k == MouseMove || k == MouseDown || k == MouseUp
}

// Valid reports whether k is a known keyboard kind.
func (k KeyKind) Valid() bool {
	return k == KeyDown || k == KeyUp
}

// Valid reports whether k is a known touch kind.
func (k TouchKind) Valid() bool {
	return k == TouchStart || k == TouchMove || k == TouchEnd
}
