// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/nocaptcha/internal/domain/dedupe"
	"github.com/okian/nocaptcha/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue hands a submission to the async writers. It fails with
	// queue.ErrFull on backpressure.
	Enqueue(ctx context.Context, s model.Submission) error

	// Get returns a stored submission by session id.
	Get(ctx context.Context, id string) (model.Submission, error)
}

// Server wires HTTP routes for the collector API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	submitHandler   *SubmitHandler
	sessionsHandler *SessionsHandler
	captureHandler  *CaptureHandler
	origins         []string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAllowedOrigins sets the browser origins allowed by CORS and by the
// websocket handshake.
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(s *Server) { s.origins = origins }
}

// WithCapture enables the websocket capture endpoint.
func WithCapture(h *CaptureHandler) ServerOption {
	return func(s *Server) { s.captureHandler = h }
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		submitHandler:   NewSubmitHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.captureHandler != nil && len(s.captureHandler.origins) == 0 {
		s.captureHandler.origins = s.origins
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	cors := CORS(s.origins)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/submit-data/", cors(MetricsMiddleware(s.submitHandler.HandleSubmit, "submit_data")))
	mux.HandleFunc("/sessions/", cors(MetricsMiddleware(s.sessionsHandler.HandleGetSession, "sessions")))
	if s.captureHandler != nil {
		// Not wrapped by MetricsMiddleware: the hijacked connection outlives
		// the request and the wrapper would hide http.Hijacker.
		mux.HandleFunc("/capture", s.captureHandler.HandleCapture)
	}
}

// submitResponse mirrors the collector's historical acknowledgement.
type submitResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// newSubmission stamps an accepted payload. The session id is the submission id.
func newSubmission(p model.Payload, now time.Time) model.Submission { //nolint:gocritic // hugeParam: payload is copied into the submission
	return model.Submission{ID: p.SessionID, Payload: p, ReceivedAt: now.UTC()}
}
