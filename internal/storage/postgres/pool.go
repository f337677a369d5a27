// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig controls the shared Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of *pgxpool.Pool the stores use. pgxmock pools satisfy it.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Connect opens a pgx pool using cfg.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS companies (
	platform     text NOT NULL,
	company_id   text NOT NULL,
	name         text NOT NULL DEFAULT '',
	introduction text NOT NULL DEFAULT '',
	industry     text NOT NULL DEFAULT '',
	address      text NOT NULL DEFAULT '',
	homepage     text NOT NULL DEFAULT '',
	logo_url     text NOT NULL DEFAULT '',
	attributes   text[] NOT NULL DEFAULT '{}',
	crawled_at   timestamptz,
	PRIMARY KEY (platform, company_id)
)`,
	`CREATE TABLE IF NOT EXISTS jobs (
	platform        text NOT NULL,
	job_id          text NOT NULL,
	job_url         text NOT NULL,
	company_id      text,
	position        text NOT NULL DEFAULT '',
	is_active       boolean NOT NULL DEFAULT true,
	deadline        text NOT NULL DEFAULT '',
	address         text NOT NULL DEFAULT '',
	category        text NOT NULL DEFAULT '',
	employment_type text NOT NULL DEFAULT '',
	career          text NOT NULL DEFAULT '',
	education       text NOT NULL DEFAULT '',
	annual_from     integer,
	annual_to       integer,
	content_type    text NOT NULL DEFAULT 'TEXT',
	full_text       text NOT NULL DEFAULT '',
	crawled_at      timestamptz NOT NULL,
	PRIMARY KEY (platform, job_id)
)`,
	`CREATE TABLE IF NOT EXISTS job_images (
	platform text NOT NULL,
	job_id   text NOT NULL,
	position integer NOT NULL,
	value    text NOT NULL,
	PRIMARY KEY (platform, job_id, position),
	FOREIGN KEY (platform, job_id) REFERENCES jobs (platform, job_id) ON DELETE CASCADE
)`,
	`CREATE TABLE IF NOT EXISTS job_tags (
	platform text NOT NULL,
	job_id   text NOT NULL,
	position integer NOT NULL,
	value    text NOT NULL,
	PRIMARY KEY (platform, job_id, position),
	FOREIGN KEY (platform, job_id) REFERENCES jobs (platform, job_id) ON DELETE CASCADE
)`,
	`CREATE TABLE IF NOT EXISTS job_benefits (
	platform text NOT NULL,
	job_id   text NOT NULL,
	position integer NOT NULL,
	value    text NOT NULL,
	PRIMARY KEY (platform, job_id, position),
	FOREIGN KEY (platform, job_id) REFERENCES jobs (platform, job_id) ON DELETE CASCADE
)`,
	`CREATE TABLE IF NOT EXISTS harvest_runs (
	id            uuid PRIMARY KEY,
	platform      text NOT NULL,
	started_at    timestamptz NOT NULL,
	finished_at   timestamptz,
	status        text NOT NULL,
	stop_reason   text NOT NULL DEFAULT '',
	error_message text,
	pages         bigint NOT NULL DEFAULT 0,
	fetched       bigint NOT NULL DEFAULT 0,
	dropped       bigint NOT NULL DEFAULT 0,
	saved         bigint NOT NULL DEFAULT 0,
	raw_saved     bigint NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS harvest_runs_started_at_idx ON harvest_runs (started_at DESC)`,
}

// EnsureSchema creates the harvester tables when missing.
func EnsureSchema(ctx context.Context, pool Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
