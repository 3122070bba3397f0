// Package aggregate assembles the session payload from a capture snapshot,
// its extracted features, host metadata and network lookups.
//
// Build never fails: every piece of metadata that cannot be obtained is
// reported as "unknown".
package aggregate

import (
	"context"
	"time"

	"github.com/okian/nocaptcha/internal/capture"
	"github.com/okian/nocaptcha/internal/domain/features"
	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/logger"
	"github.com/okian/nocaptcha/pkg/metrics"
)

const defaultLookupTimeout = 3 * time.Second

// Aggregator builds payloads. It is safe for concurrent use.
type Aggregator struct {
	locator       Locator
	now           func() time.Time
	lookupTimeout time.Duration
	featureOpts   []features.Option
	logger        logger.Logger
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithClock replaces the wall clock used for the session duration.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLookupTimeout bounds each network lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.lookupTimeout = d
		}
	}
}

// WithFeatureOptions passes options through to feature extraction.
func WithFeatureOptions(opts ...features.Option) Option {
	return func(a *Aggregator) {
		a.featureOpts = append(a.featureOpts, opts...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Aggregator. A nil locator reports ip and geolocation as unknown.
func New(locator Locator, opts ...Option) *Aggregator {
	a := &Aggregator{
		locator:       locator,
		now:           time.Now,
		lookupTimeout: defaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("aggregate")
	}
	return a
}

// Build extracts features from st and folds in environment metadata.
// A nil env reports every device field as unknown.
func (a *Aggregator) Build(ctx context.Context, st capture.State, env Environment) model.Payload {
	start := time.Now()
	bufs := st.Buffers.Sanitized()
	vec := features.Extract(bufs, a.featureOpts...)
	metrics.RecordExtractionLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	for _, name := range features.Undefined(vec) {
		metrics.RecordUndefinedFeature(name)
	}

	var dev Device
	if env != nil {
		dev = env.Device()
	}

	now := a.now()
	duration := now.Sub(st.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	ip, geo := a.locate(ctx)

	var orientation *model.Orientation
	if st.Orientation != nil {
		o := st.Orientation.Sanitized()
		orientation = &o
	}
	var motion *model.Motion
	if st.Motion != nil {
		m := st.Motion.Sanitized()
		motion = &m
	}

	p := model.Payload{
		SessionID:           st.ID,
		InteractionData:     bufs,
		Features:            vec,
		SessionDuration:     duration,
		UserAgent:           userAgent(dev),
		ScreenResolution:    screenResolution(dev),
		ConnectionType:      connectionType(dev),
		ConnectionStability: connectionStability(dev),
		IPAddress:           ip,
		Geolocation:         geo,
		DeviceOrientation:   orientation,
		DeviceMotion:        motion,
		CapturedAt:          now.UTC(),
	}

	a.logger.Debug(ctx, "payload built",
		logger.String("session", p.SessionID),
		logger.Int("samples", bufs.Len()),
		logger.Any("duration_ms", p.SessionDuration),
		logger.String("ip", p.IPAddress),
	)
	return p
}

// locate resolves ip then geo. Geo is not attempted when ip failed.
func (a *Aggregator) locate(ctx context.Context) (ip, geo string) {
	ip, geo = model.Unknown, model.Unknown
	if a.locator == nil {
		return ip, geo
	}

	ipCtx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	ipRes := a.locator.LookupIP(ipCtx)
	cancel()
	addr, err := ipRes.Get()
	if err != nil {
		return ip, geo
	}
	ip = addr

	geoCtx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	defer cancel()
	geoRes := a.locator.LookupGeo(geoCtx, addr)
	if g, err := geoRes.Get(); err == nil {
		geo = g.String()
	}
	return ip, geo
}
