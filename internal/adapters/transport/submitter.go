// Package transport delivers finished payloads to the collector endpoint.
//
// Delivery is fire-and-forget: Submit returns as soon as the request has been
// dispatched. The outcome is logged and counted but never reported back and
// never retried.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/logger"
	"github.com/okian/nocaptcha/pkg/metrics"
)

const defaultTimeout = 5 * time.Second

// Submission outcomes used in metrics.
const (
	outcomeSent   = "sent"
	outcomeFailed = "failed"
)

// Submitter posts payloads to a single endpoint.
type Submitter struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	logger   logger.Logger
	onResult func(sessionID string, err error)

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// Option applies a configuration option to the Submitter.
type Option func(*Submitter)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(s *Submitter) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout bounds each submission.
func WithTimeout(d time.Duration) Option {
	return func(s *Submitter) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithResultHook registers fn to observe the outcome of every dispatched
// submission. fn runs on the submission goroutine and must not block.
func WithResultHook(fn func(sessionID string, err error)) Option {
	return func(s *Submitter) { s.onResult = fn }
}

// NewSubmitter creates a Submitter posting to endpoint.
func NewSubmitter(endpoint string, opts ...Option) *Submitter {
	s := &Submitter{
		endpoint: endpoint,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("transport")
	}
	return s
}

// Submit encodes p and dispatches one POST in the background. It returns an
// error only when the payload cannot be encoded or the submitter is draining.
// Cancelling ctx after Submit returns does not abort the request.
func (s *Submitter) Submit(ctx context.Context, p model.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		metrics.RecordErrorByComponent("transport", "encode")
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return ErrClosed
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		s.post(reqCtx, p.SessionID, body)
	}()
	return nil
}

func (s *Submitter) post(ctx context.Context, sessionID string, body []byte) {
	start := time.Now()
	err := s.do(ctx, body)
	latency := float64(time.Since(start).Nanoseconds()) / 1e6
	metrics.RecordTransportLatency(latency)
	if s.onResult != nil {
		s.onResult(sessionID, err)
	}

	if err != nil {
		metrics.RecordTransportSubmission(outcomeFailed)
		metrics.RecordErrorLatency("transport", "submit", latency)
		s.logger.Error(ctx, "payload submission failed",
			logger.String("session", sessionID),
			logger.String("endpoint", s.endpoint),
			logger.Error(err),
		)
		return
	}
	metrics.RecordTransportSubmission(outcomeSent)
	s.logger.Info(ctx, "payload submitted",
		logger.String("session", sessionID),
		logger.Float64("latency_ms", latency),
	)
}

func (s *Submitter) do(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}

// Drain stops accepting submissions and waits for in-flight ones to finish
// or for ctx to end. It is meant for process exit.
func (s *Submitter) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
