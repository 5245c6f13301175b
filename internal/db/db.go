// Package db persists the run's event history to SQLite: round
// lifecycle events, per-group fix attempts and verifier runs. The
// workspace files remain the authoritative state; the database exists
// for trend queries and post-run analysis.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS round_events (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    round     INTEGER NOT NULL,
    event     TEXT NOT NULL CHECK(event IN (
        'started','analyzed','parse_failed','planned','applied',
        'verified','verdict','escalated','finished')),
    detail    TEXT,
    timestamp TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_round_events ON round_events(round, id);

CREATE TABLE IF NOT EXISTS fix_attempts (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    round     INTEGER NOT NULL,
    rank      INTEGER NOT NULL,
    issue_key TEXT NOT NULL,
    success   INTEGER NOT NULL,
    approach  TEXT,
    timestamp TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_fix_attempts_key ON fix_attempts(issue_key, id);

CREATE TABLE IF NOT EXISTS round_stats (
    round      INTEGER PRIMARY KEY,
    total      INTEGER NOT NULL,
    actionable INTEGER NOT NULL,
    new_count  INTEGER NOT NULL,
    resolved   INTEGER NOT NULL,
    persisting INTEGER NOT NULL,
    unfixable  INTEGER NOT NULL,
    build      TEXT NOT NULL,
    verdict    TEXT NOT NULL,
    timestamp  TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// migrate applies the schema. All tables are append-style, so the
// statements are safe to re-run.
func (d *DB) migrate() error {
	if _, err := d.conn.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
