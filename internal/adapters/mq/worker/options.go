package worker

import (
	"context"

	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFailureHook is called with every submission the saver rejected.
func WithFailureHook(fn func(ctx context.Context, s model.Submission, err error)) Option {
	return func(w *InMemoryWorker) {
		w.onFailure = fn
	}
}
