// Package sqlite implements the opportunity cache and run tracking on a local
// SQLite file using the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	title         TEXT    NOT NULL,
	description   TEXT    NOT NULL DEFAULT '',
	amount        TEXT    NOT NULL DEFAULT '',
	deadline      TEXT    NOT NULL DEFAULT '',
	category      TEXT    NOT NULL DEFAULT '',
	source        TEXT    NOT NULL,
	country       TEXT,
	country_key   TEXT,
	keywords      TEXT    NOT NULL DEFAULT '',
	search_text   TEXT    NOT NULL DEFAULT '',
	goal_type     TEXT    NOT NULL DEFAULT '',
	priority      INTEGER NOT NULL DEFAULT 1,
	created_at    INTEGER NOT NULL,
	last_verified INTEGER NOT NULL,
	is_active     INTEGER NOT NULL DEFAULT 1,
	UNIQUE (title, source)
);
CREATE INDEX IF NOT EXISTS records_search_idx ON records (is_active, goal_type, priority DESC, last_verified DESC);

CREATE TABLE IF NOT EXISTS source_metadata (
	source_url     TEXT PRIMARY KEY,
	last_scraped   INTEGER,
	success_count  INTEGER NOT NULL DEFAULT 0,
	total_attempts INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS source_hints (
	url        TEXT PRIMARY KEY,
	added_by   TEXT    NOT NULL DEFAULT '',
	is_public  INTEGER NOT NULL DEFAULT 0,
	popularity INTEGER NOT NULL DEFAULT 1,
	added_at   INTEGER NOT NULL,
	is_active  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS runs (
	id       TEXT PRIMARY KEY,
	scope    TEXT    NOT NULL DEFAULT '',
	status   TEXT    NOT NULL,
	counters TEXT    NOT NULL DEFAULT '{}',
	error    TEXT    NOT NULL DEFAULT '',
	created  INTEGER NOT NULL,
	started  INTEGER,
	finished INTEGER
);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=10000",
	"PRAGMA synchronous=NORMAL",
}

// Store is a SQLite backed opportunity.Store and opportunity.RunStore.
type Store struct {
	db     *sql.DB
	clock  opportunity.Clock
	logger *zap.Logger
}

var (
	_ opportunity.Store    = (*Store)(nil)
	_ opportunity.RunStore = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, clock opportunity.Clock, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = utcClock{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Serialise all access through one connection.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	logger.Debug("sqlite store ready", zap.String("path", path))
	return &Store{db: db, clock: clock, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// Times are stored as unix nanoseconds.
func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
