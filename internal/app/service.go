// Package service provides the collector service that implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	eventqueue "github.com/okian/nocaptcha/internal/adapters/mq/queue"
	workerpool "github.com/okian/nocaptcha/internal/adapters/mq/worker"
	"github.com/okian/nocaptcha/internal/adapters/repository"
	"github.com/okian/nocaptcha/internal/config"
	"github.com/okian/nocaptcha/internal/domain/dedupe"
	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/logger"
	"github.com/okian/nocaptcha/pkg/metrics"
)

// Error constants.
var (
	ErrNotStarted = errors.New("service not started")
	ErrStore      = errors.New("store setup failed")
)

// StoreFactory opens the submission store when the service starts.
type StoreFactory func(ctx context.Context) (repository.Store, error)

// Service implements the API dependencies for the collector.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	deduper    dedupe.Deduper
	queue      *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Configuration
	workerCount  int
	queueSize    int
	dedupeSize   int
	storeKind    string
	storeFactory StoreFactory

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore uses an already opened store.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.storeKind = "custom"
			s.storeFactory = func(context.Context) (repository.Store, error) { return st, nil }
		}
	}
}

// WithStoreFactory opens the store on Start.
func WithStoreFactory(kind string, f StoreFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.storeKind = kind
			s.storeFactory = f
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   10_000,
		dedupeSize:  100_000,
		storeKind:   config.StoreMemory,
		storeFactory: func(context.Context) (repository.Store, error) {
			return repository.NewMemoryStore(), nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreFromConfig returns the factory for the backend cfg selects.
func StoreFromConfig(cfg *config.Config) StoreFactory {
	switch cfg.Store {
	case config.StorePostgres:
		return func(ctx context.Context) (repository.Store, error) {
			return repository.NewPostgresStore(ctx, cfg.PostgresDSN)
		}
	case config.StoreRedis:
		return func(ctx context.Context) (repository.Store, error) {
			return repository.NewRedisStore(ctx, cfg.RedisAddr)
		}
	default:
		return func(context.Context) (repository.Store, error) {
			return repository.NewMemoryStore(), nil
		}
	}
}

// Start opens the store and starts the worker pool. Workers outlive ctx
// cancellation so that Stop can drain the queue.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting collector service...")

	store, err := s.storeFactory(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStore, s.storeKind, err)
	}
	s.store = store
	s.logger.Info(ctx, "using store", logger.String("store", s.storeKind))

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s.store,
		workerpool.WithFailureHook(s.releaseUnsaved(s.deduper)))
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "collector service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains queued submissions into the store and closes it.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping collector service...")

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "collector service stopped", logger.Any("processed", s.workerPool.Processed()))
	return errors.Join(errs...)
}

// releaseUnsaved forgets the session id of a submission that could not be
// stored, so that a client retry is accepted instead of reported duplicate.
// A submission the store already holds stays recorded.
func (s *Service) releaseUnsaved(d dedupe.Deduper) func(context.Context, model.Submission, error) {
	return func(ctx context.Context, sub model.Submission, err error) { //nolint:gocritic // hugeParam: matches the worker hook signature
		if errors.Is(err, repository.ErrDuplicate) {
			return
		}
		d.Unrecord(ctx, sub.ID)
		s.logger.Warn(ctx, "submission not stored; session id released for retry",
			logger.String("id", sub.ID),
			logger.Error(err),
		)
	}
}

func (s *Service) currentDeduper() dedupe.Deduper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deduper
}

// SeenAndRecord atomically checks if a session id was seen and records it if not.
// Before Start nothing is recorded and every id reports unseen; Enqueue then
// refuses the submission with ErrNotStarted.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	d := s.currentDeduper()
	if d == nil {
		return false
	}
	return d.SeenAndRecord(ctx, id)
}

// Unrecord removes a session id from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	if d := s.currentDeduper(); d != nil {
		d.Unrecord(ctx, id)
	}
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	d := s.currentDeduper()
	if d == nil {
		return 0
	}
	return d.Size()
}

// Enqueue hands a submission to the worker pool.
func (s *Service) Enqueue(ctx context.Context, sub model.Submission) error { //nolint:gocritic // hugeParam: Submission is passed by value for channel semantics
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()
	if q == nil {
		return ErrNotStarted
	}
	s.logger.Debug(ctx, "enqueueing submission",
		logger.String("id", sub.ID),
		logger.Int("samples", sub.Payload.InteractionData.Len()),
	)
	return q.Enqueue(ctx, sub)
}

// Get returns a stored submission.
func (s *Service) Get(ctx context.Context, id string) (model.Submission, error) {
	s.mu.RLock()
	st := s.store
	s.mu.RUnlock()
	if st == nil {
		return model.Submission{}, ErrNotStarted
	}
	return st.Get(ctx, id)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"store":       s.storeKind,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["seenSessions"] = s.deduper.Size()
		stats["processed"] = s.workerPool.Processed()
		if total, err := s.store.Count(ctx); err == nil {
			stats["storedSubmissions"] = total
			metrics.UpdateRepositoryRecordsTotal(total)
		} else {
			s.logger.Warn(ctx, "store count failed", logger.Error(err))
		}
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
