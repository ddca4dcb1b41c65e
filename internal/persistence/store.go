// Package persistence implements the session lifecycle audit sink
// described in spec.md §6 "PersistenceSink" as an embedded SQLite table,
// following the migrations-slice pattern used by rustyguts-bken's
// server/store package: ordered SQL strings applied exactly once, tracked
// in a schema_migrations table.
package persistence

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// migrations holds the ordered DDL statements that bring the schema up to
// date. Index i corresponds to version i+1. Append, never edit or reorder.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS session_events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id   TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		reason       TEXT NOT NULL DEFAULT '',
		remote_addr  TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id)`,
	`PRAGMA journal_mode=WAL`,
}

// Store persists a trail of session lifecycle events for post-hoc audit
// and operator queries. It is the only component in this repo that touches
// a database.
type Store struct {
	db  *sql.DB
	log *logrus.Logger
}

// Open opens (or creates) the SQLite database at path and applies pending
// migrations. Use ":memory:" for ephemeral storage in tests.
func Open(path string, log *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.WithError(err).Warn("persistence: busy_timeout pragma failed")
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, v); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		s.log.WithField("version", v).Debug("persistence: applied migration")
	}
	return nil
}

// Record is one row of the session_events audit trail. The session
// manager appends one for each Created and Terminated event, best-effort
// and synchronously from Create and Terminate, after the event has been
// dispatched to listeners.
type Record struct {
	SessionID  string
	EventType  string
	Reason     string
	RemoteAddr string
}

// Append writes one audit record. Failures are logged by the caller, not
// retried: audit history is best-effort, not a source of truth for
// session state.
func (s *Store) Append(r Record) error {
	_, err := s.db.Exec(
		`INSERT INTO session_events(session_id, event_type, reason, remote_addr) VALUES (?, ?, ?, ?)`,
		r.SessionID, r.EventType, r.Reason, r.RemoteAddr,
	)
	return err
}

// RecentForSession returns the most recent n audit records for a session,
// newest first. Nothing in this repository calls it; the admin surface
// has no per-session view.
func (s *Store) RecentForSession(sessionID string, n int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT session_id, event_type, reason, remote_addr FROM session_events
		 WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.SessionID, &r.EventType, &r.Reason, &r.RemoteAddr); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
