package capture

import (
	"context"
	"sync"
)

// ReplaySource is an in-process Source that delivers recorded or synthetic
// frames to its subscribers. It stands in for a host event system in tests
// and offline replay.
type ReplaySource struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewReplaySource creates a source with no subscribers.
func NewReplaySource() *ReplaySource {
	return &ReplaySource{}
}

// Subscribe registers sink. Subscribing the same sink twice is a no-op.
func (r *ReplaySource) Subscribe(sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sinks {
		if s == sink {
			return nil
		}
	}
	r.sinks = append(r.sinks, sink)
	return nil
}

// Unsubscribe removes sink if present.
func (r *ReplaySource) Unsubscribe(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sinks {
		if s == sink {
			r.sinks = append(r.sinks[:i], r.sinks[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of registered sinks.
func (r *ReplaySource) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Emit delivers one frame to every current subscriber.
func (r *ReplaySource) Emit(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	r.mu.RLock()
	sinks := make([]Sink, len(r.sinks))
	copy(sinks, r.sinks)
	r.mu.RUnlock()

	for _, s := range sinks {
		_ = f.Dispatch(s)
	}
	return nil
}

// Play emits frames in order until the slice is exhausted or ctx is done.
// Malformed frames are skipped and counted.
func (r *ReplaySource) Play(ctx context.Context, frames []Frame) (skipped int, err error) {
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return skipped, err
		}
		if err := r.Emit(f); err != nil {
			skipped++
		}
	}
	return skipped, nil
}
