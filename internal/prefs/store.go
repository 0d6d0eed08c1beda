// Package prefs persists small pieces of client state: the theme choice and
// a bounded list of recent searches.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"engineerhub/internal/logging"
)

// DefaultMaxRecent is how many recent searches are kept.
const DefaultMaxRecent = 10

const themeKey = "engineerhub.theme"

// Theme is the UI color scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// ParseTheme validates s.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, nil
	default:
		return "", fmt.Errorf("unknown theme %q (want light, dark or system)", s)
	}
}

// Store is a SQLite-backed preference store. Storage errors are returned
// to the caller unchanged apart from wrapping.
type Store struct {
	db        *sql.DB
	path      string
	maxRecent int
}

// Open opens or creates the store at path. ":memory:" gives a private
// in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}

	s := &Store{db: db, path: path, maxRecent: DefaultMaxRecent}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("prefs store ready at %s", path)
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS recent_searches (
			term TEXT PRIMARY KEY,
			seq INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recent_searches_seq ON recent_searches(seq DESC)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Theme returns the stored theme, ThemeSystem when none is stored.
func (s *Store) Theme(ctx context.Context) (Theme, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, themeKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return ThemeSystem, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read theme: %w", err)
	}
	t, err := ParseTheme(v)
	if err != nil {
		logging.StoreDebug("ignoring stored theme: %v", err)
		return ThemeSystem, nil
	}
	return t, nil
}

// SetTheme stores t.
func (s *Store) SetTheme(ctx context.Context, t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		themeKey, string(t))
	if err != nil {
		return fmt.Errorf("failed to store theme: %w", err)
	}
	return nil
}

// AddRecentSearch records term as the most recent search. A repeated term
// moves to the front; the oldest terms beyond the cap are dropped.
func (s *Store) AddRecentSearch(ctx context.Context, term string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO recent_searches (term, seq)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM recent_searches))
		ON CONFLICT(term) DO UPDATE SET seq = excluded.seq`, term); err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM recent_searches WHERE term NOT IN (
			SELECT term FROM recent_searches ORDER BY seq DESC LIMIT ?
		)`, s.maxRecent); err != nil {
		return fmt.Errorf("failed to trim recent searches: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit search: %w", err)
	}
	return nil
}

// RecentSearches returns the stored terms, most recent first.
func (s *Store) RecentSearches(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT term FROM recent_searches ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent searches: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan recent search: %w", err)
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// ClearRecentSearches forgets every recent search.
func (s *Store) ClearRecentSearches(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recent_searches`); err != nil {
		return fmt.Errorf("failed to clear recent searches: %w", err)
	}
	return nil
}
