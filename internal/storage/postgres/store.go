// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

var validSchemaName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Schema          string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store persists records, source metadata, hints and refresh runs in Postgres.
type Store struct {
	pool   pool
	schema string
	clock  opportunity.Clock
	logger *zap.Logger
}

var (
	_ opportunity.Store    = (*Store)(nil)
	_ opportunity.RunStore = (*Store)(nil)
)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config, clock opportunity.Clock, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Schema, clock, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, schema string, clock opportunity.Clock, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if schema == "" {
		schema = "public"
	}
	if !validSchemaName.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	if clock == nil {
		clock = utcClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, schema: schema, clock: clock, logger: logger}, nil
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// table qualifies name with the configured schema.
func (s *Store) table(name string) string {
	return s.schema + "." + name
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, s.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id            BIGSERIAL PRIMARY KEY,
	title         TEXT        NOT NULL,
	description   TEXT        NOT NULL DEFAULT '',
	amount        TEXT        NOT NULL DEFAULT '',
	deadline      TEXT        NOT NULL DEFAULT '',
	category      TEXT        NOT NULL DEFAULT '',
	source        TEXT        NOT NULL,
	country       TEXT,
	country_key   TEXT,
	keywords      TEXT        NOT NULL DEFAULT '',
	search_text   TEXT        NOT NULL DEFAULT '',
	goal_type     TEXT        NOT NULL DEFAULT '',
	priority      INTEGER     NOT NULL DEFAULT 1,
	created_at    TIMESTAMPTZ NOT NULL,
	last_verified TIMESTAMPTZ NOT NULL,
	is_active     BOOLEAN     NOT NULL DEFAULT TRUE,
	UNIQUE (title, source)
)`, s.table("records")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS records_search_idx ON %s (is_active, goal_type, priority DESC, last_verified DESC)`,
			s.table("records")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	source_url     TEXT PRIMARY KEY,
	last_scraped   TIMESTAMPTZ,
	success_count  INTEGER NOT NULL DEFAULT 0,
	total_attempts INTEGER NOT NULL DEFAULT 0
)`, s.table("source_metadata")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	url        TEXT PRIMARY KEY,
	added_by   TEXT        NOT NULL DEFAULT '',
	is_public  BOOLEAN     NOT NULL DEFAULT FALSE,
	popularity INTEGER     NOT NULL DEFAULT 1,
	added_at   TIMESTAMPTZ NOT NULL,
	is_active  BOOLEAN     NOT NULL DEFAULT TRUE
)`, s.table("source_hints")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	scope       TEXT        NOT NULL DEFAULT '',
	status      TEXT        NOT NULL,
	counters    JSONB       NOT NULL DEFAULT '{}',
	error       TEXT        NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
)`, s.table("refresh_runs")),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}
	s.logger.Info("postgres schema ready", zap.String("schema", s.schema))
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
