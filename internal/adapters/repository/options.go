package repository

import "time"

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithShardCount sets the number of map shards.
func WithShardCount(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// PostgresOption applies a configuration option to the PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTable sets the table submissions are written to.
func WithTable(name string) PostgresOption {
	return func(s *PostgresStore) {
		if name != "" {
			s.table = name
		}
	}
}

// WithPool sets connection pool limits.
func WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if maxOpen > 0 {
			s.maxOpen = maxOpen
		}
		if maxIdle > 0 {
			s.maxIdle = maxIdle
		}
		if maxLifetime > 0 {
			s.maxLifetime = maxLifetime
		}
	}
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the prefix of every key the store writes.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires stored submissions after d. Zero keeps them forever.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}
