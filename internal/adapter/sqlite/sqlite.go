// Package sqlite is the embedded Store engine, backed by the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pscheid92/hoodpulse/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id           TEXT PRIMARY KEY,
	neighborhood TEXT NOT NULL,
	source       TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	post_date    INTEGER,
	crawl_date   INTEGER NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_posts_neighborhood ON posts(neighborhood);

CREATE TABLE IF NOT EXISTS cache_entry (
	neighborhood       TEXT PRIMARY KEY,
	city               TEXT NOT NULL DEFAULT '',
	data_json          TEXT,
	last_updated       INTEGER,
	refresh_status     TEXT NOT NULL DEFAULT 'idle',
	refresh_started_at INTEGER,
	access_count       INTEGER NOT NULL DEFAULT 0,
	last_access        INTEGER
);
CREATE INDEX IF NOT EXISTS idx_cache_entry_city ON cache_entry(city);
CREATE INDEX IF NOT EXISTS idx_cache_entry_status ON cache_entry(refresh_status);

CREATE TABLE IF NOT EXISTS sentiment_analysis (
	neighborhood  TEXT PRIMARY KEY,
	analysis_json TEXT NOT NULL,
	last_updated  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS source_tracking (
	region        TEXT NOT NULL,
	source        TEXT NOT NULL,
	success_count INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	last_success  INTEGER,
	last_failure  INTEGER,
	PRIMARY KEY (region, source)
);

CREATE TABLE IF NOT EXISTS reputation_index (
	zip_code        TEXT PRIMARY KEY,
	neighborhood    TEXT NOT NULL DEFAULT '',
	city            TEXT NOT NULL DEFAULT '',
	index_score     REAL NOT NULL,
	data_volume     INTEGER NOT NULL,
	data_freshness  INTEGER,
	sentiment_score REAL NOT NULL,
	last_updated    INTEGER NOT NULL,
	components_json TEXT NOT NULL,
	summary         TEXT NOT NULL DEFAULT ''
);
`

// Store implements domain.Store on a single SQLite file.
type Store struct {
	db *sql.DB
}

var _ domain.Store = (*Store)(nil)

// Open opens (creating if needed) the database named by dsn and applies the schema.
// dsn may be a plain path, "file:<path>", "sqlite://<path>" or ":memory:".
func Open(ctx context.Context, dsn string) (*Store, error) {
	path := databasePath(dsn)
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers, so status CAS and counter upserts never hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA temp_store = MEMORY;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	slog.Info("SQLite store opened", "path", path)
	return &Store{db: db}, nil
}

// IsSQLiteDSN reports whether dsn should be served by this package rather than Postgres.
func IsSQLiteDSN(dsn string) bool {
	return !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://")
}

func databasePath(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	dsn = strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}
	return dsn
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.UnixMilli(n.Int64).UTC()
}
