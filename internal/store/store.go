// Package store provides a SQLite-backed query log for lexrag. Every answered
// query is persisted with its outcome and evaluation score so operators can
// review answer quality over time. Logging is best-effort — a write failure
// never blocks a response.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry is one logged query with its response summary.
type Entry struct {
	// ID is the log row identifier.
	ID int64 `json:"id"`
	// Query is the user's question.
	Query string `json:"query"`
	// Collections lists the collections that were searched.
	Collections []string `json:"collections"`
	// Answer is the final answer text.
	Answer string `json:"answer"`
	// Confidence is the response confidence label (High/Low).
	Confidence string `json:"confidence"`
	// Outcome is the terminal branch the query ended on.
	Outcome string `json:"outcome"`
	// EvalScore is the judge score of the returned answer.
	EvalScore int `json:"eval_score"`
	// IsHelpful is the judge's helpfulness verdict.
	IsHelpful bool `json:"is_helpful"`
	// NumSources is how many sources backed the answer.
	NumSources int `json:"num_sources"`
	// Attempts is the number of generation attempts made.
	Attempts int `json:"attempts"`
	// QueriedAt is when the query was logged.
	QueriedAt time.Time `json:"queried_at"`
}

// QueryLog persists and retrieves query history. Implementations must be
// safe for concurrent use.
type QueryLog interface {
	// Record persists a single query log entry.
	Record(ctx context.Context, e *Entry) error
	// Recent returns the most recent n entries, newest-first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteLog is a QueryLog backed by a local SQLite database.
type SQLiteLog struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the query log database.
// It resolves to ~/.lexrag/queries.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".lexrag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "queries.db"), nil
}

// Open opens (or creates) a SQLiteLog at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteLog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteLog{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteLog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS query_log (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    query_text   TEXT    NOT NULL,
    collections  TEXT    NOT NULL,  -- comma-separated collection names
    answer       TEXT    NOT NULL,
    confidence   TEXT    NOT NULL,
    outcome      TEXT    NOT NULL,
    eval_score   INTEGER NOT NULL,
    is_helpful   INTEGER NOT NULL,
    num_sources  INTEGER NOT NULL,
    attempts     INTEGER NOT NULL,
    queried_at   INTEGER NOT NULL   -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_query_log_queried_at
    ON query_log (queried_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record persists a single query log entry. A zero QueriedAt is stamped with
// the current time.
func (s *SQLiteLog) Record(ctx context.Context, e *Entry) error {
	ts := e.QueriedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	const q = `INSERT INTO query_log
    (query_text, collections, answer, confidence, outcome, eval_score, is_helpful, num_sources, attempts, queried_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		e.Query,
		strings.Join(e.Collections, ","),
		e.Answer,
		e.Confidence,
		e.Outcome,
		e.EvalScore,
		boolInt(e.IsHelpful),
		e.NumSources,
		e.Attempts,
		ts.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: record: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries, newest-first.
func (s *SQLiteLog) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `
SELECT id, query_text, collections, answer, confidence, outcome,
       eval_score, is_helpful, num_sources, attempts, queried_at
FROM   query_log
ORDER  BY queried_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var collections string
		var helpful int
		var ts int64
		if err := rows.Scan(&e.ID, &e.Query, &collections, &e.Answer, &e.Confidence,
			&e.Outcome, &e.EvalScore, &helpful, &e.NumSources, &e.Attempts, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		if collections != "" {
			e.Collections = strings.Split(collections, ",")
		}
		e.IsHelpful = helpful != 0
		e.QueriedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteLog) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// boolInt converts a bool to its SQLite integer representation.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
