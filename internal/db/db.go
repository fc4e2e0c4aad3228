// Package db provides the PostgreSQL implementation of the persistence contract.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jonathan/talent-match/internal/store"
)

// DefaultMaxConns is the connection pool size used when none is configured.
const DefaultMaxConns = 10

const schemaLockID int64 = 2026101501

// DB is a store.Store backed by PostgreSQL.
type DB struct {
	conn *sql.DB
}

var _ store.Store = (*DB)(nil)

// Connect opens a pooled connection and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*DB, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{conn: conn}, nil
}

// New wraps an existing connection.
func New(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the connection pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS candidate_profiles (
	candidate_id TEXT PRIMARY KEY,
	fields JSONB NOT NULL,
	revision BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	job_id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	fields JSONB NOT NULL,
	revision BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS match_records (
	job_id TEXT NOT NULL REFERENCES jobs(job_id) ON DELETE CASCADE,
	candidate_id TEXT NOT NULL REFERENCES candidate_profiles(candidate_id) ON DELETE CASCADE,
	overall_score INTEGER NOT NULL,
	component_scores JSONB NOT NULL,
	job_revision BIGINT NOT NULL,
	candidate_revision BIGINT NOT NULL,
	taxonomy_version BIGINT NOT NULL,
	matched_skills JSONB NOT NULL DEFAULT '[]'::jsonb,
	missing_skills JSONB NOT NULL DEFAULT '[]'::jsonb,
	notes TEXT NOT NULL DEFAULT '',
	stale BOOLEAN NOT NULL DEFAULT FALSE,
	computed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (job_id, candidate_id)
);

CREATE INDEX IF NOT EXISTS idx_match_records_candidate ON match_records(candidate_id);
CREATE INDEX IF NOT EXISTS idx_match_records_stale ON match_records(job_id, candidate_id) WHERE stale;

CREATE TABLE IF NOT EXISTS taxonomy_entries (
	canonical_id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	category TEXT NOT NULL,
	synonyms JSONB NOT NULL DEFAULT '[]'::jsonb
);

CREATE TABLE IF NOT EXISTS taxonomy_meta (
	id SMALLINT PRIMARY KEY DEFAULT 1,
	version BIGINT NOT NULL
);
`

// EnsureSchema creates the tables if missing. Concurrent callers are
// serialized with a transaction-scoped advisory lock.
func (db *DB) EnsureSchema(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("failed to acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema tx: %w", err)
	}
	return nil
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// currentRevision reads the stored revision after a failed compare-and-swap.
func (db *DB) currentRevision(ctx context.Context, query, entity, id string, expected int64) error {
	var current int64
	err := db.conn.QueryRowContext(ctx, query, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &store.NotFoundError{Entity: entity, ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to read %s revision: %w", entity, err)
	}
	return &store.ConcurrentModificationError{Entity: entity, ID: id, Expected: expected, Current: current}
}
