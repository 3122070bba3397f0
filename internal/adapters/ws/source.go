// Package ws streams capture frames from a browser over a websocket and
// presents them as a capture.Source.
//
// Each text message is one JSON frame. Besides the capture frame types the
// stream carries two control frames: "env" with the host's device metadata,
// and "submit" which ends the session.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"nhooyr.io/websocket"

	"github.com/okian/nocaptcha/internal/capture"
	"github.com/okian/nocaptcha/internal/domain/aggregate"
	"github.com/okian/nocaptcha/pkg/logger"
	"github.com/okian/nocaptcha/pkg/metrics"
)

// Control frame types.
const (
	FrameEnv    capture.FrameType = "env"
	FrameSubmit capture.FrameType = "submit"
)

// Message is one websocket frame.
type Message struct {
	capture.Frame
	Env *aggregate.Device `json:"env,omitempty"`
}

// Source reads frames from one websocket connection and dispatches them to
// subscribed sinks. It also serves as the session's aggregate.Environment.
type Source struct {
	conn   *websocket.Conn
	logger logger.Logger

	mu     sync.RWMutex
	sinks  []capture.Sink
	device aggregate.Device

	malformed int
}

// NewSource wraps an accepted connection.
func NewSource(conn *websocket.Conn, l logger.Logger) *Source {
	if l == nil {
		l = logger.Get().Named("ws")
	}
	return &Source{conn: conn, logger: l}
}

// Subscribe registers sink.
func (s *Source) Subscribe(sink capture.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
	return nil
}

// Unsubscribe removes sink if present.
func (s *Source) Unsubscribe(sink capture.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.sinks {
		if k == sink {
			s.sinks = append(s.sinks[:i], s.sinks[i+1:]...)
			return
		}
	}
}

// Device returns the last device metadata the client reported.
func (s *Source) Device() aggregate.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// Malformed returns how many frames were dropped as malformed.
func (s *Source) Malformed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.malformed
}

// Run reads frames until a submit frame arrives (nil), the client goes away
// without submitting (ErrNoSubmit), or ctx ends.
func (s *Source) Run(ctx context.Context) error {
	metrics.UpdateWSConnections(1)
	defer metrics.UpdateWSConnections(-1)

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return ErrNoSubmit
			}
			return errors.Join(ErrNoSubmit, err)
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		if done := s.handle(ctx, data); done {
			return nil
		}
	}
}

func (s *Source) handle(ctx context.Context, data []byte) (submit bool) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.drop(ctx, err)
		return false
	}

	switch msg.Type {
	case FrameSubmit:
		return true
	case FrameEnv:
		if msg.Env != nil {
			s.mu.Lock()
			s.device = *msg.Env
			s.mu.Unlock()
		}
		return false
	}

	if err := msg.Frame.Validate(); err != nil {
		s.drop(ctx, err)
		return false
	}

	s.mu.RLock()
	sinks := make([]capture.Sink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.RUnlock()
	for _, sink := range sinks {
		_ = msg.Frame.Dispatch(sink)
	}
	return false
}

func (s *Source) drop(ctx context.Context, err error) {
	s.mu.Lock()
	s.malformed++
	s.mu.Unlock()
	metrics.RecordErrorByComponent("ws", "malformed_frame")
	s.logger.Debug(ctx, "dropping malformed frame", logger.Error(err))
}

// Reply writes a JSON message to the client.
func (s *Source) Reply(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, b)
}
