package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/metrics"
)

const defaultShardCount = 16

type shard struct {
	mu    sync.RWMutex
	items map[string]model.Submission
}

// MemoryStore keeps submissions in a sharded map. Shards reduce lock
// contention between concurrent workers.
type MemoryStore struct {
	shards     []*shard
	shardCount int
	count      atomic.Int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{shardCount: defaultShardCount}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]model.Submission)}
	}
	return s
}

func (s *MemoryStore) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Save stores sub unless its id is already present.
func (s *MemoryStore) Save(_ context.Context, sub model.Submission) error { //nolint:gocritic // hugeParam: matches Store
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()
	if sub.ID == "" {
		return ErrInvalidID
	}

	sh := s.shardFor(sub.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.items[sub.ID]; ok {
		return ErrDuplicate
	}
	sh.items[sub.ID] = sub
	metrics.UpdateRepositoryRecordsTotal(int(s.count.Add(1)))
	return nil
}

// Get returns the submission stored under id.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Submission, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sub, ok := sh.items[id]
	if !ok {
		return model.Submission{}, ErrNotFound
	}
	return sub, nil
}

// Count returns the number of stored submissions.
func (s *MemoryStore) Count(context.Context) (int, error) {
	return int(s.count.Load()), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
