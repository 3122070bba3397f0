package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/okian/nocaptcha/internal/adapters/lookup"
	"github.com/okian/nocaptcha/internal/adapters/ws"
	"github.com/okian/nocaptcha/internal/capture"
	"github.com/okian/nocaptcha/internal/domain/aggregate"
	"github.com/okian/nocaptcha/pkg/logger"
)

// CaptureHandler runs server-side capture sessions over websockets.
type CaptureHandler struct {
	deps     Dependencies
	geo      aggregate.Locator
	aggOpts  []aggregate.Option
	capacity int
	origins  []string
	now      func() time.Time
	logger   logger.Logger
}

// CaptureOption configures a CaptureHandler.
type CaptureOption func(*CaptureHandler)

// WithGeoLocator sets the locator used for geolocation of the client address.
func WithGeoLocator(l aggregate.Locator) CaptureOption {
	return func(h *CaptureHandler) { h.geo = l }
}

// WithAggregatorOptions passes options to the per-session aggregator.
func WithAggregatorOptions(opts ...aggregate.Option) CaptureOption {
	return func(h *CaptureHandler) { h.aggOpts = append(h.aggOpts, opts...) }
}

// WithBufferCapacity bounds every session buffer. n <= 0 keeps every sample.
func WithBufferCapacity(n int) CaptureOption {
	return func(h *CaptureHandler) { h.capacity = n }
}

// WithCaptureOrigins sets the origins accepted in the websocket handshake.
func WithCaptureOrigins(origins ...string) CaptureOption {
	return func(h *CaptureHandler) { h.origins = origins }
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(deps Dependencies, opts ...CaptureOption) *CaptureHandler {
	h := &CaptureHandler{
		deps:   deps,
		now:    time.Now,
		logger: logger.Get().Named("capture"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleCapture handles GET /capture websocket sessions. The client streams
// frames and ends with a submit frame; the server then extracts, aggregates
// and enqueues the payload and replies with the acknowledgement. A client
// that disconnects before submitting produces no payload.
func (h *CaptureHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	const op = "api.capture"
	c, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.logger.Warn(r.Context(), "websocket accept failed", logger.Error(err))
		return
	}
	defer c.Close(websocket.StatusInternalError, "unexpected exit")

	ctx := r.Context()
	src := ws.NewSource(c, h.logger)
	sess := capture.New(capture.WithCapacity(h.capacity), capture.WithClock(h.now), capture.WithLogger(h.logger))

	if err := sess.Run(ctx, src, src, src.Run); err != nil {
		if errors.Is(err, ws.ErrNoSubmit) {
			h.logger.Debug(ctx, "capture session abandoned", logger.String("session", sess.ID()))
		} else {
			h.logger.Warn(ctx, "capture session failed", logger.String("session", sess.ID()), logger.Error(err))
		}
		return
	}

	loc := &clientLocator{ip: clientIP(r), geo: h.geo}
	agg := aggregate.New(loc, append([]aggregate.Option{aggregate.WithClock(h.now)}, h.aggOpts...)...)
	p := agg.Build(ctx, sess.Snapshot(), src)

	status, err := accept(ctx, h.deps, newSubmission(p, h.now()), op)
	var reply any
	switch {
	case err != nil:
		reply = errorResponse{Code: errorCode(err), Message: err.Error()}
	case status == http.StatusOK:
		reply = submitResponse{Message: msgDuplicate, ID: p.SessionID}
	default:
		reply = submitResponse{Message: msgAccepted, ID: p.SessionID}
	}
	if err := src.Reply(ctx, reply); err != nil {
		h.logger.Warn(ctx, "capture reply failed", logger.String("session", sess.ID()), logger.Error(err))
		return
	}
	_ = c.Close(websocket.StatusNormalClosure, "done")
}

// acceptOptions maps allowed origins to handshake host patterns.
func (h *CaptureHandler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range h.origins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		}
	}
	return opts
}

// clientLocator reports the request's peer address as the client ip and
// delegates geolocation.
type clientLocator struct {
	ip  string
	geo aggregate.Locator
}

func (l *clientLocator) LookupIP(context.Context) lookup.Result[string] {
	if l.ip == "" {
		return lookup.Fail[string](lookup.ErrEmptyIP)
	}
	return lookup.Ok(l.ip)
}

func (l *clientLocator) LookupGeo(ctx context.Context, ip string) lookup.Result[lookup.Geo] {
	if l.geo == nil {
		return lookup.Fail[lookup.Geo](nil)
	}
	return l.geo.LookupGeo(ctx, ip)
}

// clientIP prefers the first X-Forwarded-For hop over the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
