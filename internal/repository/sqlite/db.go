// Package sqlite implements the stores on an embedded SQLite database.
// Times are stored as unix microseconds and amounts as canonical decimal
// strings so equality and range predicates behave like the PostgreSQL
// repositories.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS recurring_rules (
	id               TEXT PRIMARY KEY,
	owner_id         TEXT NOT NULL,
	amount           TEXT NOT NULL,
	kind             TEXT NOT NULL,
	category         TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	frequency        TEXT NOT NULL,
	next_due_at      INTEGER NOT NULL,
	active           INTEGER NOT NULL DEFAULT 1,
	parent_rule_id   TEXT,
	last_executed_at INTEGER,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recurring_rules_due ON recurring_rules (active, next_due_at);
CREATE INDEX IF NOT EXISTS idx_recurring_rules_owner ON recurring_rules (owner_id, created_at);

CREATE TABLE IF NOT EXISTS transactions (
	id                TEXT PRIMARY KEY,
	owner_id          TEXT NOT NULL,
	date              INTEGER NOT NULL,
	amount            TEXT NOT NULL,
	kind              TEXT NOT NULL,
	category          TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL,
	is_recurring      INTEGER NOT NULL DEFAULT 0,
	recurring_rule_id TEXT,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_owner_date ON transactions (owner_id, date);
CREATE INDEX IF NOT EXISTS idx_transactions_rule ON transactions (recurring_rule_id);

CREATE TABLE IF NOT EXISTS audit_logs (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	action     TEXT NOT NULL,
	entity     TEXT NOT NULL,
	entity_id  TEXT,
	metadata   TEXT,
	ip_address TEXT,
	user_agent TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs (entity, entity_id);
`

// Open opens the database at path (":memory:" for a private in-memory
// database) and creates the schema. The caller owns Close.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database is per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func nullMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
