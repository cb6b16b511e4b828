// Package ledger keeps an append-only SQLite record of agent runs.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one agent outcome within one invocation.
type Entry struct {
	RunID      string
	Agent      string
	Timestamp  time.Time
	Status     string
	Path       string
	Attempts   int
	Error      string
	RecordedAt time.Time
}

type SQLiteLedger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path and applies
// the schema.
func Open(ctx context.Context, path string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Agents record concurrently; a single connection serializes writers.
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{db: db}
	if err := l.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) Init(ctx context.Context) error {
	ddl := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			agent TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			status TEXT NOT NULL,
			path TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			recorded_at TEXT NOT NULL,
			UNIQUE(run_id, agent)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_agent_timestamp ON runs(agent, timestamp);`,
		`CREATE TRIGGER IF NOT EXISTS runs_no_update BEFORE UPDATE ON runs
		BEGIN SELECT RAISE(ABORT, 'runs are append-only'); END;`,
		`CREATE TRIGGER IF NOT EXISTS runs_no_delete BEFORE DELETE ON runs
		BEGIN SELECT RAISE(ABORT, 'runs are append-only'); END;`,
	}

	for _, stmt := range ddl {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init ledger: %w", err)
		}
	}
	return nil
}

func (l *SQLiteLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record appends e. Recording the same agent twice for one run fails.
func (l *SQLiteLedger) Record(ctx context.Context, e Entry) error {
	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, agent, timestamp, status, path, attempts, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID,
		e.Agent,
		e.Timestamp.UTC().Format(time.RFC3339),
		e.Status,
		e.Path,
		e.Attempts,
		e.Error,
		recordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run %s/%s: %w", e.RunID, e.Agent, err)
	}
	return nil
}

// List returns the newest entries first. An empty agent lists all agents;
// a non positive limit returns everything.
func (l *SQLiteLedger) List(ctx context.Context, agent string, limit int) ([]Entry, error) {
	query := `SELECT run_id, agent, timestamp, status, path, attempts, error, recorded_at FROM runs`
	var args []any
	if agent != "" {
		query += ` WHERE agent = ?`
		args = append(args, agent)
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e              Entry
			ts, recordedAt string
			path, errMsg   sql.NullString
		)
		if err := rows.Scan(&e.RunID, &e.Agent, &ts, &e.Status, &path, &e.Attempts, &errMsg, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.Path = path.String
		e.Error = errMsg.String
		if e.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", recordedAt, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
