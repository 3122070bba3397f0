package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/metrics"
)

const defaultKeyPrefix = "nocaptcha:"

// RedisStore keeps each submission as a JSON string under prefix+"submission:"+id
// and tracks stored ids in the set prefix+"submissions".
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to addr and checks the connection.
func NewRedisStore(ctx context.Context, addr string, opts ...RedisOption) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: ping redis: %w", ErrBackend, err)
	}
	return NewRedisStoreWithClient(rdb, opts...), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string { return s.prefix + "submission:" + id }
func (s *RedisStore) indexKey() string     { return s.prefix + "submissions" }

// Save writes sub with SETNX so the first submission for an id wins.
func (s *RedisStore) Save(ctx context.Context, sub model.Submission) error { //nolint:gocritic // hugeParam: matches Store
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()
	if sub.ID == "" {
		return ErrInvalidID
	}

	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("%w: encode submission: %w", ErrBackend, err)
	}

	ok, err := s.rdb.SetNX(ctx, s.key(sub.ID), raw, s.ttl).Result()
	if err != nil {
		metrics.RecordErrorByComponent("repository", "redis_set")
		return fmt.Errorf("%w: setnx: %w", ErrBackend, err)
	}
	if !ok {
		return ErrDuplicate
	}
	if err := s.rdb.SAdd(ctx, s.indexKey(), sub.ID).Err(); err != nil {
		metrics.RecordErrorByComponent("repository", "redis_index")
		return fmt.Errorf("%w: index: %w", ErrBackend, err)
	}
	return nil
}

// Get loads the submission stored under id.
func (s *RedisStore) Get(ctx context.Context, id string) (model.Submission, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Submission{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordErrorByComponent("repository", "redis_get")
		return model.Submission{}, fmt.Errorf("%w: get: %w", ErrBackend, err)
	}

	var sub model.Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return model.Submission{}, fmt.Errorf("%w: decode submission: %w", ErrBackend, err)
	}
	return sub, nil
}

// Count returns the size of the id index. With a TTL the index may still
// list ids whose submission has expired.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.rdb.SCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: scard: %w", ErrBackend, err)
	}
	metrics.UpdateRepositoryRecordsTotal(int(n))
	return int(n), nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
