package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/metrics"
)

const (
	defaultTable       = "session_telemetry"
	uniqueViolation    = "23505"
	defaultMaxOpen     = 25
	defaultMaxIdle     = 5
	defaultMaxLifetime = 5 * time.Minute
)

// PostgresStore writes submissions to a table with a JSONB payload column.
type PostgresStore struct {
	db          *sql.DB
	table       string
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration

	insertQuery string
	selectQuery string
	countQuery  string
}

// NewPostgresStore connects to dsn, checks the connection and creates the
// table if it does not exist.
func NewPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %w", ErrBackend, err)
	}
	s := newPostgresStore(db, opts...)

	db.SetMaxOpenConns(s.maxOpen)
	db.SetMaxIdleConns(s.maxIdle)
	db.SetConnMaxLifetime(s.maxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", ErrBackend, err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %w", ErrBackend, err)
	}
	return s, nil
}

func newPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:          db,
		table:       defaultTable,
		maxOpen:     defaultMaxOpen,
		maxIdle:     defaultMaxIdle,
		maxLifetime: defaultMaxLifetime,
	}
	for _, opt := range opts {
		opt(s)
	}

	t := pq.QuoteIdentifier(s.table)
	s.insertQuery = `INSERT INTO ` + t + ` (session_id, payload, ip_address, user_agent, session_duration, received_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (session_id) DO NOTHING`
	s.selectQuery = `SELECT payload, received_at FROM ` + t + ` WHERE session_id = $1`
	s.countQuery = `SELECT COUNT(*) FROM ` + t
	return s
}

func (s *PostgresStore) schema() string {
	t := pq.QuoteIdentifier(s.table)
	idx := pq.QuoteIdentifier("idx_" + s.table + "_received_at")
	return `
	CREATE TABLE IF NOT EXISTS ` + t + ` (
		session_id TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		ip_address TEXT,
		user_agent TEXT,
		session_duration BIGINT,
		received_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS ` + idx + ` ON ` + t + `(received_at);`
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.schema())
	return err
}

// Save inserts sub. A conflicting session id yields ErrDuplicate.
func (s *PostgresStore) Save(ctx context.Context, sub model.Submission) error { //nolint:gocritic // hugeParam: matches Store
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()
	if sub.ID == "" {
		return ErrInvalidID
	}

	payload, err := json.Marshal(sub.Payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %w", ErrBackend, err)
	}

	res, err := s.db.ExecContext(ctx, s.insertQuery,
		sub.ID, string(payload), sub.Payload.IPAddress, sub.Payload.UserAgent,
		sub.Payload.SessionDuration, sub.ReceivedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		metrics.RecordErrorByComponent("repository", "postgres_insert")
		return fmt.Errorf("%w: insert: %w", ErrBackend, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

// Get loads the submission stored under id.
func (s *PostgresStore) Get(ctx context.Context, id string) (model.Submission, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	var (
		raw        []byte
		receivedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, s.selectQuery, id).Scan(&raw, &receivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordErrorByComponent("repository", "postgres_select")
		return model.Submission{}, fmt.Errorf("%w: select: %w", ErrBackend, err)
	}

	sub := model.Submission{ID: id, ReceivedAt: receivedAt}
	if err := json.Unmarshal(raw, &sub.Payload); err != nil {
		return model.Submission{}, fmt.Errorf("%w: decode payload: %w", ErrBackend, err)
	}
	return sub, nil
}

// Count returns the number of rows in the table.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.countQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrBackend, err)
	}
	metrics.UpdateRepositoryRecordsTotal(n)
	return n, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
