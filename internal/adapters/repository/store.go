// Package repository persists collector submissions.
//
// Three backends share the Store contract: an in-memory sharded map, a
// PostgreSQL table with a JSONB payload column, and Redis keys holding the
// JSON-encoded submission.
package repository

import (
	"context"

	"github.com/okian/nocaptcha/internal/domain/model"
)

// Store provides write-once, read-by-id access to submissions.
type Store interface {
	// Save persists s keyed by s.ID. Saving an id that already exists keeps
	// the first submission and returns ErrDuplicate.
	Save(ctx context.Context, s model.Submission) error

	// Get returns the submission with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (model.Submission, error)

	// Count returns the number of stored submissions.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
