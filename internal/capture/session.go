// Package capture records raw interaction signals for the lifetime of a
// session into per-modality buffers.
//
// A Session is mounted on two sources: a surface source for pointer,
// keyboard and touch signals, and a global source for device orientation
// and motion. Sink calls are serialized by the session, so buffers see one
// writer at a time; every downstream reader works on a Snapshot.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/logger"
	"github.com/okian/nocaptcha/pkg/metrics"
)

// Modality labels used in logs and metrics.
const (
	modalityMouse    = "mouse"
	modalityKeyboard = "keyboard"
	modalityTouch    = "touch"
)

// State is an immutable copy of a session's captured data.
type State struct {
	ID          string
	StartedAt   time.Time
	Buffers     model.Buffers
	Orientation *model.Orientation
	Motion      *model.Motion
	// Appended counts every sample ever appended, including ones a bounded
	// buffer has since evicted.
	Appended int64
}

// Session owns the interaction buffers of one capture session.
type Session struct {
	mu sync.Mutex

	id       string
	now      func() time.Time
	started  time.Time
	capacity int

	mouse       *Buffer[model.MouseSample]
	keyboard    *Buffer[model.KeySample]
	touch       *Buffer[model.TouchSample]
	orientation Latest[model.Orientation]
	motion      Latest[model.Motion]

	surface     Source
	global      Source
	surfaceSink *surfaceSink
	globalSink  *globalSink
	mounted     bool
	closed      bool

	logger logger.Logger
}

// Option applies a configuration option to the Session.
type Option func(*Session)

// WithCapacity bounds each modality buffer to the newest n samples.
// n <= 0 keeps every sample.
func WithCapacity(n int) Option {
	return func(s *Session) { s.capacity = n }
}

// WithClock replaces the wall clock used for the session start.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithID sets the session id instead of generating one.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithLogger sets a custom logger for the session.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty session whose clock starts now.
func New(opts ...Option) *Session {
	s := &Session{
		id:  uuid.NewString(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("capture")
	}
	s.started = s.now()
	s.mouse = NewBuffer[model.MouseSample](s.capacity)
	s.keyboard = NewBuffer[model.KeySample](s.capacity)
	s.touch = NewBuffer[model.TouchSample](s.capacity)
	s.surfaceSink = &surfaceSink{s: s}
	s.globalSink = &globalSink{s: s}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time { return s.started }

// Mount subscribes the session to its sources. Either source may be nil.
// If the global subscription fails the surface subscription is rolled back.
func (s *Session) Mount(surface, global Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.mounted:
		return ErrAlreadyMounted
	}

	if surface != nil {
		if err := surface.Subscribe(s.surfaceSink); err != nil {
			return err
		}
	}
	if global != nil {
		if err := global.Subscribe(s.globalSink); err != nil {
			if surface != nil {
				surface.Unsubscribe(s.surfaceSink)
			}
			return err
		}
	}
	s.surface, s.global, s.mounted = surface, global, true
	metrics.IncActiveSessions()
	return nil
}

// Close deregisters every subscription. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if !s.mounted {
		return
	}
	if s.surface != nil {
		s.surface.Unsubscribe(s.surfaceSink)
	}
	if s.global != nil {
		s.global.Unsubscribe(s.globalSink)
	}
	s.surface, s.global = nil, nil
	metrics.DecActiveSessions()
}

// Run mounts the session, runs fn, and tears the session down on every exit
// path, including errors and panics raised by fn.
func (s *Session) Run(ctx context.Context, surface, global Source, fn func(context.Context) error) error {
	if err := s.Mount(surface, global); err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx)
}

// Snapshot copies the current buffers and device readings.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		ID:        s.id,
		StartedAt: s.started,
		Buffers: model.Buffers{
			Mouse:    s.mouse.Snapshot(),
			Keyboard: s.keyboard.Snapshot(),
			Touch:    s.touch.Snapshot(),
		},
		Orientation: s.orientation.Ptr(),
		Motion:      s.motion.Ptr(),
		Appended:    s.mouse.Total() + s.keyboard.Total() + s.touch.Total(),
	}
}

// Len returns the number of retained samples across modalities.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mouse.Len() + s.keyboard.Len() + s.touch.Len()
}

// record runs fn under the session lock unless the session is closed.
func (s *Session) record(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn()
}

// reject counts a sample that cannot be encoded and is therefore not buffered.
func (s *Session) reject(modality string) {
	metrics.RecordErrorByComponent("capture", "non_finite_"+modality)
	s.logger.Debug(context.Background(), "non-finite sample dropped",
		logger.String("session", s.id),
		logger.String("modality", modality),
	)
}

func (s *Session) observe(modality string, evicted int) {
	metrics.RecordCaptureEvent(modality)
	if evicted > 0 {
		metrics.RecordCaptureEvicted(modality, evicted)
		s.logger.Debug(context.Background(), "buffer full, evicted oldest samples",
			logger.String("session", s.id),
			logger.String("modality", modality),
			logger.Int("evicted", evicted),
		)
	}
}

// surfaceSink receives element-scoped signals; device readings are ignored.
// Samples with NaN or infinite fields are dropped.
type surfaceSink struct{ s *Session }

func (k *surfaceSink) Mouse(m model.MouseSample) {
	if !m.Finite() {
		k.s.reject(modalityMouse)
		return
	}
	k.s.record(func() { k.s.observe(modalityMouse, k.s.mouse.Append(m)) })
}

func (k *surfaceSink) Key(e model.KeySample) {
	if !e.Finite() {
		k.s.reject(modalityKeyboard)
		return
	}
	k.s.record(func() { k.s.observe(modalityKeyboard, k.s.keyboard.Append(e)) })
}

func (k *surfaceSink) Touch(e model.TouchEvent) {
	all := e.Samples()
	samples := all[:0]
	for _, t := range all {
		if t.Finite() {
			samples = append(samples, t)
		}
	}
	if len(samples) < len(all) {
		k.s.reject(modalityTouch)
	}
	if len(samples) == 0 {
		return
	}
	k.s.record(func() { k.s.observe(modalityTouch, k.s.touch.Append(samples...)) })
}

func (k *surfaceSink) Orientation(model.Orientation) {}
func (k *surfaceSink) Motion(model.Motion)           {}

// globalSink receives environment-wide device readings only. Non-finite
// readings are stored as missing.
type globalSink struct{ s *Session }

func (g *globalSink) Mouse(model.MouseSample) {}
func (g *globalSink) Key(model.KeySample)     {}
func (g *globalSink) Touch(model.TouchEvent)  {}

func (g *globalSink) Orientation(o model.Orientation) {
	g.s.record(func() { g.s.orientation.Set(o.Sanitized()) })
}

func (g *globalSink) Motion(m model.Motion) {
	g.s.record(func() { g.s.motion.Set(m.Sanitized()) })
}
