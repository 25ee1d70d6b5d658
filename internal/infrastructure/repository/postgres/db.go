package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema bootstraps all tables. The advisory lock serializes DDL
// across api/worker startups.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082201)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	current_unit INTEGER NOT NULL DEFAULT 0,
	total_units INTEGER NOT NULL DEFAULT 0,
	percentage INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_account_kind_status ON jobs(account_id, kind, status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC);

CREATE TABLE IF NOT EXISTS tickets (
	id TEXT PRIMARY KEY,
	external_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	subject TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	conversation JSONB NOT NULL DEFAULT '[]'::jsonb,
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	requester TEXT,
	assignee TEXT,
	group_name TEXT,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	source TEXT NOT NULL,
	source_url TEXT,
	remote_created_at TIMESTAMPTZ NOT NULL,
	remote_updated_at TIMESTAMPTZ NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (account_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_tickets_account ON tickets(account_id);

CREATE TABLE IF NOT EXISTS ticket_analyses (
	ticket_id TEXT PRIMARY KEY REFERENCES tickets(id) ON DELETE CASCADE,
	account_id TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	has_proposed_new_tags BOOLEAN NOT NULL DEFAULT FALSE,
	failed BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ticket_analyses_account ON ticket_analyses(account_id);

CREATE TABLE IF NOT EXISTS tag_suggestions (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	ticket_id TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
	tag TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (account_id, ticket_id, tag)
);

CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	allowed_tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
