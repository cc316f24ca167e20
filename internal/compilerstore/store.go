// Package compilerstore provides a SQLite-backed compile cache keyed by
// source content hash: repeated compiles of identical source skip the
// whole pipeline and return the previously emitted module and diagnostics.
package compilerstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/google/uuid"

	"covenant/internal/logging"
)

// CurrentSchemaVersion tracks the compile_cache table shape. Bump and add
// a migration to pendingMigrations when a column is added.
const CurrentSchemaVersion = 1

// Entry is one cached compilation outcome.
type Entry struct {
	Hash        string
	RunID       string
	Module      []byte
	Diagnostics string // JSON-encoded []diag.Diagnostic, opaque to this package
	CreatedAt   time.Time
	HasErrors   bool
}

// Store wraps a SQLite database holding the compile cache.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open initializes (creating if absent) the SQLite database at path.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "compilerstore.Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open compile cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("compile cache opened at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS compile_cache (
	hash         TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	module       BLOB,
	diagnostics  TEXT NOT NULL,
	has_errors   INTEGER NOT NULL,
	created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
`)
	if err != nil {
		return fmt.Errorf("failed to create compile_cache schema: %w", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return fmt.Errorf("failed to read schema_version: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentSchemaVersion); err != nil {
			return fmt.Errorf("failed to seed schema_version: %w", err)
		}
	}
	return runMigrations(s.db)
}

// Get looks up a previously cached compile result by content hash.
func (s *Store) Get(hash string) (*Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT hash, run_id, module, diagnostics, has_errors, created_at
		FROM compile_cache WHERE hash = ?`, hash)

	var e Entry
	var hasErrors int
	if err := row.Scan(&e.Hash, &e.RunID, &e.Module, &e.Diagnostics, &hasErrors, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			logging.Get(logging.CategoryStore).Debug("cache miss: %s", hash)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("compile cache lookup failed: %w", err)
	}
	e.HasErrors = hasErrors != 0
	logging.Get(logging.CategoryStore).Debug("cache hit: %s (run %s)", hash, e.RunID)
	return &e, true, nil
}

// Put stores a compile result, replacing any prior entry for the same hash.
func (s *Store) Put(hash string, module []byte, diagnostics interface{}, hasErrors bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	diagJSON, err := json.Marshal(diagnostics)
	if err != nil {
		return "", fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	runID := uuid.New().String()
	_, err = s.db.Exec(`INSERT INTO compile_cache (hash, run_id, module, diagnostics, has_errors)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			run_id=excluded.run_id, module=excluded.module,
			diagnostics=excluded.diagnostics, has_errors=excluded.has_errors,
			created_at=CURRENT_TIMESTAMP`,
		hash, runID, module, string(diagJSON), boolToInt(hasErrors))
	if err != nil {
		return "", fmt.Errorf("failed to store compile result: %w", err)
	}
	logging.Get(logging.CategoryStore).Debug("cache store: %s (run %s)", hash, runID)
	return runID, nil
}

// Evict removes a single cached entry, e.g. after a toolchain upgrade
// invalidates its emitted bytes.
func (s *Store) Evict(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM compile_cache WHERE hash = ?", hash)
	return err
}

// Prune deletes cache entries older than maxAge, returning the count removed.
func (s *Store) Prune(maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	res, err := s.db.Exec("DELETE FROM compile_cache WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
