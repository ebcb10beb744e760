// Package postgres opens the pgx connection pool used when connection, tag
// and rule definitions live in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pingTimeout = 5 * time.Second

// Pool wraps a pgxpool.Pool.
type Pool struct {
	*pgxpool.Pool
}

// Open parses dsn, creates the pool and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("verifying postgres connection: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close releases every pooled connection.
func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// HealthCheck pings the database.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// schema mirrors the SQLite migrations using PostgreSQL types.
const schema = `
CREATE TABLE IF NOT EXISTS connections (
	id           BIGSERIAL PRIMARY KEY,
	name         TEXT        NOT NULL,
	endpoint_url TEXT        NOT NULL,
	description  TEXT        NOT NULL DEFAULT '',
	enabled      BOOLEAN     NOT NULL DEFAULT TRUE,
	status       BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tags (
	id            BIGSERIAL PRIMARY KEY,
	connection_id BIGINT      NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
	tag_name      TEXT        NOT NULL,
	node_id       TEXT        NOT NULL,
	unit          TEXT        NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_tags_connection ON tags(connection_id);

CREATE TABLE IF NOT EXISTS rules (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT             NOT NULL,
	tag_id        BIGINT           REFERENCES tags(id) ON DELETE CASCADE,
	logic_type    TEXT             NOT NULL DEFAULT 'static',
	operator      TEXT             NOT NULL,
	static_value  DOUBLE PRECISION,
	target_tag_id BIGINT           REFERENCES tags(id) ON DELETE SET NULL,
	offset_value  DOUBLE PRECISION NOT NULL DEFAULT 0,
	severity      TEXT             NOT NULL DEFAULT 'warning',
	message       TEXT             NOT NULL DEFAULT '',
	enabled       BOOLEAN          NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ      NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_rules_tag_enabled ON rules(tag_id, enabled);
`

// EnsureSchema creates the definition tables if they do not exist.
// It never alters existing tables.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating postgres schema: %w", err)
	}
	return nil
}
