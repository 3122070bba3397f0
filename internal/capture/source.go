package capture

import (
	"fmt"

	"github.com/okian/nocaptcha/internal/domain/model"
)

// Sink receives normalized interaction signals from a Source.
type Sink interface {
	Mouse(model.MouseSample)
	Key(model.KeySample)
	Touch(model.TouchEvent)
	Orientation(model.Orientation)
	Motion(model.Motion)
}

// Source is a stream of interaction signals that sinks subscribe to.
// Unsubscribe must be safe to call for a sink that is not subscribed.
type Source interface {
	Subscribe(Sink) error
	Unsubscribe(Sink)
}

// FrameType tags a Frame's payload.
type FrameType string

// Frame types understood by Dispatch.
const (
	FrameMouse       FrameType = "mouse"
	FrameKey         FrameType = "key"
	FrameTouch       FrameType = "touch"
	FrameOrientation FrameType = "orientation"
	FrameMotion      FrameType = "motion"
)

// Frame is the wire and recording form of one interaction signal.
type Frame struct {
	Type        FrameType          `json:"type"`
	Mouse       *model.MouseSample `json:"mouse,omitempty"`
	Key         *model.KeySample   `json:"key,omitempty"`
	Touch       *model.TouchEvent  `json:"touch,omitempty"`
	Orientation *model.Orientation `json:"orientation,omitempty"`
	Motion      *model.Motion      `json:"motion,omitempty"`
}

// MouseFrame wraps a pointer sample.
func MouseFrame(s model.MouseSample) Frame { return Frame{Type: FrameMouse, Mouse: &s} }

// KeyFrame wraps a keyboard sample.
func KeyFrame(s model.KeySample) Frame { return Frame{Type: FrameKey, Key: &s} }

// TouchFrame wraps a touch event.
func TouchFrame(e model.TouchEvent) Frame { return Frame{Type: FrameTouch, Touch: &e} }

// OrientationFrame wraps an orientation reading.
func OrientationFrame(o model.Orientation) Frame {
	return Frame{Type: FrameOrientation, Orientation: &o}
}

// MotionFrame wraps a motion reading.
func MotionFrame(m model.Motion) Frame { return Frame{Type: FrameMotion, Motion: &m} }

// Validate checks that the frame carries the payload its type names.
func (f Frame) Validate() error {
	switch f.Type {
	case FrameMouse:
		if f.Mouse == nil || !f.Mouse.Kind.Valid() {
			return fmt.Errorf("%w: mouse", ErrMalformedFrame)
		}
	case FrameKey:
		if f.Key == nil || !f.Key.Kind.Valid() {
			return fmt.Errorf("%w: key", ErrMalformedFrame)
		}
	case FrameTouch:
		if f.Touch == nil || !f.Touch.Kind.Valid() {
			return fmt.Errorf("%w: touch", ErrMalformedFrame)
		}
	case FrameOrientation:
		if f.Orientation == nil {
			return fmt.Errorf("%w: orientation", ErrMalformedFrame)
		}
	case FrameMotion:
		if f.Motion == nil {
			return fmt.Errorf("%w: motion", ErrMalformedFrame)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, f.Type)
	}
	return nil
}

// Dispatch validates the frame and delivers it to sink.
func (f Frame) Dispatch(sink Sink) error {
	if err := f.Validate(); err != nil {
		return err
	}
	switch f.Type {
	case FrameMouse:
		sink.Mouse(*f.Mouse)
	case FrameKey:
		sink.Key(*f.Key)
	case FrameTouch:
		sink.Touch(*f.Touch)
	case FrameOrientation:
		sink.Orientation(*f.Orientation)
	case FrameMotion:
		sink.Motion(*f.Motion)
	}
	return nil
}
