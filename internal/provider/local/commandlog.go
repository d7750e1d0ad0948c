package local

import (
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nimbuside/nimbus/pkg/types"
)

const logSchema = `
CREATE TABLE IF NOT EXISTS command_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    command TEXT NOT NULL,
    exit_code INTEGER,
    duration_ms INTEGER,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// logStore manages per-sandbox SQLite databases holding command history.
// Handles are opened lazily and cached until the sandbox is deleted.
type logStore struct {
	baseDir string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func newLogStore(baseDir string) *logStore {
	return &logStore{baseDir: baseDir, dbs: make(map[string]*sql.DB)}
}

func (s *logStore) get(dir, sandboxID string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[sandboxID]; ok {
		return db, nil
	}

	dbPath := filepath.Join(dir, "state.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite for %s: %w", sandboxID, err)
	}
	if _, err := db.Exec(logSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema for %s: %w", sandboxID, err)
	}

	s.dbs[sandboxID] = db
	return db, nil
}

// LogCommand records one execution. Best effort: failures are logged and
// never surface to the caller.
func (s *logStore) LogCommand(dir, sandboxID, command string, exitCode, durationMs int) {
	db, err := s.get(dir, sandboxID)
	if err != nil {
		log.Printf("local: command log unavailable for %s: %v", sandboxID, err)
		return
	}
	_, err = db.Exec(
		`INSERT INTO command_log (command, exit_code, duration_ms) VALUES (?, ?, ?)`,
		command, exitCode, durationMs,
	)
	if err != nil {
		log.Printf("local: command log write for %s: %v", sandboxID, err)
	}
}

// Recent returns the newest entries, most recent first.
func (s *logStore) Recent(dir, sandboxID string, limit int) ([]types.LogEntry, error) {
	db, err := s.get(dir, sandboxID)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		`SELECT command, exit_code, duration_ms, created_at
		 FROM command_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query command log for %s: %w", sandboxID, err)
	}
	defer rows.Close()

	var entries []types.LogEntry
	for rows.Next() {
		var e types.LogEntry
		var created string
		if err := rows.Scan(&e.Command, &e.ExitCode, &e.Duration, &created); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse("2006-01-02 15:04:05", created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Drop closes and forgets a sandbox's handle (called on delete).
func (s *logStore) Drop(sandboxID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[sandboxID]; ok {
		_ = db.Close()
		delete(s.dbs, sandboxID)
	}
}

// Close closes all cached handles.
func (s *logStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for id, db := range s.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.dbs, id)
	}
	return first
}
