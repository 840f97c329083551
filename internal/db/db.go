// Package db provides PostgreSQL access to the durable application queue and
// campaign store.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// schema is the idempotent DDL for the queue tables. The (status, next_run_at)
// index serves the claim scan; (campaign_id) serves cancellation and listing.
// The partial unique index on (user_id, job_url) makes enqueue deduplication
// safe under concurrency: at most one non-terminal row per user and URL.
const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id     UUID NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running'
	            CHECK (status IN ('running', 'paused', 'cancelled')),
	config      JSONB,
	last_error  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS job_queue (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	campaign_id    UUID REFERENCES campaigns(id),
	user_id        UUID NOT NULL,
	job_url        TEXT NOT NULL,
	platform       TEXT,
	status         TEXT NOT NULL DEFAULT 'queued'
	               CHECK (status IN ('queued', 'in_progress', 'retry_scheduled',
	                                 'completed', 'failed', 'cancelled')),
	priority       INT NOT NULL DEFAULT 50,
	attempts       INT NOT NULL DEFAULT 0,
	max_attempts   INT NOT NULL DEFAULT 3,
	next_run_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	locked_at      TIMESTAMPTZ,
	locked_by      TEXT,
	last_error     TEXT,
	payload        JSONB,
	application_id UUID,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_job_queue_claim
	ON job_queue (status, next_run_at);
CREATE INDEX IF NOT EXISTS idx_job_queue_campaign
	ON job_queue (campaign_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_job_queue_active_user_url
	ON job_queue (user_id, job_url)
	WHERE status NOT IN ('completed', 'failed', 'cancelled');
`

// EnsureSchema creates the queue tables and indexes if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
