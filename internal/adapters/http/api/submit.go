package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/nocaptcha/internal/adapters/mq/queue"
	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/metrics"
)

// maxPayloadBytes bounds a submitted payload. Interaction data of long
// sessions is large, so the bound is generous.
const maxPayloadBytes = 8 << 20

// Acknowledgement messages.
const (
	msgAccepted  = "Data received successfully"
	msgDuplicate = "Duplicate session ignored"
)

// SubmitHandler handles payload submissions.
type SubmitHandler struct {
	deps Dependencies
	now  func() time.Time
}

// NewSubmitHandler creates a new submit handler.
func NewSubmitHandler(deps Dependencies) *SubmitHandler {
	return &SubmitHandler{deps: deps, now: time.Now}
}

// HandleSubmit handles POST /submit-data/ requests.
func (h *SubmitHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_data"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var p model.Payload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validatePayload(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	status, err := accept(r.Context(), h.deps, newSubmission(p, h.now()), op)
	switch {
	case err != nil:
		writeError(w, status, errorCode(err), err)
	case status == http.StatusOK:
		writeJSON(w, status, submitResponse{Message: msgDuplicate, ID: p.SessionID})
	default:
		writeJSON(w, status, submitResponse{Message: msgAccepted, ID: p.SessionID})
	}
}

// validatePayload checks a decoded payload and fills a missing session id.
func validatePayload(p *model.Payload) error {
	p.SessionID = strings.TrimSpace(p.SessionID)
	if p.SessionID == "" {
		p.SessionID = uuid.NewString()
	}
	if p.SessionDuration < 0 {
		return errors.New("sessionDuration must not be negative")
	}
	return nil
}

// accept deduplicates and enqueues a submission. It returns 202 for a new
// submission, 200 for a duplicate, or an error status.
func accept(ctx context.Context, deps Dependencies, s model.Submission, op string) (int, error) { //nolint:gocritic // hugeParam: Submission is passed by value for channel semantics
	metrics.RecordPayloadReceived()

	// Idempotency check - mark as seen first
	if deps.SeenAndRecord(ctx, s.ID) {
		metrics.RecordPayloadDuplicate()
		return http.StatusOK, nil
	}

	if err := deps.Enqueue(ctx, s); err != nil {
		// Rollback the "seen" status since enqueue failed
		deps.Unrecord(ctx, s.ID)
		if errors.Is(err, queue.ErrFull) {
			return http.StatusTooManyRequests, WrapKind(op, ErrBackpressure, err)
		}
		return http.StatusServiceUnavailable, WrapKind(op, ErrUnavailable, err)
	}
	return http.StatusAccepted, nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrBackpressure):
		return "backpressure"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
