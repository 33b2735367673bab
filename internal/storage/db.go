// Package storage provides the local SQLite database: the search index that
// maps search terms to DHT keys, and the tables other packages keep next to it.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	_ "github.com/mattn/go-sqlite3"
)

var log = logging.Logger("storage")

// ErrUnavailable is returned when the local database is missing or closed.
var ErrUnavailable = errors.New("local index unavailable")

// DB is the local SQLite database.
type DB struct {
	db    *sql.DB
	index *Index
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &DB{db: db}
	fts, err := s.initTables()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}
	s.index = &Index{db: db, fts: fts}

	return s, nil
}

func (s *DB) initTables() (fts bool, err error) {
	_, err = s.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS mappings USING fts5(
			search_term,
			key UNINDEXED,
			content UNINDEXED,
			tokenize='porter unicode61'
		);
	`)
	if err != nil {
		log.Warnf("FTS5 unavailable, using plain mappings table: %v", err)
		_, err = s.db.Exec(`
			CREATE TABLE IF NOT EXISTS mappings (
				search_term TEXT NOT NULL,
				key TEXT NOT NULL,
				content TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_mappings_term ON mappings(search_term);
			CREATE INDEX IF NOT EXISTS idx_mappings_key ON mappings(key);
			CREATE INDEX IF NOT EXISTS idx_mappings_content ON mappings(content);
		`)
		if err != nil {
			return false, fmt.Errorf("failed to create mappings table: %w", err)
		}
	}

	var schema string
	if err := s.db.QueryRow(`SELECT sql FROM sqlite_master WHERE name = 'mappings'`).Scan(&schema); err != nil {
		return false, fmt.Errorf("failed to inspect mappings table: %w", err)
	}
	return strings.Contains(strings.ToLower(schema), "fts5"), nil
}

// Index returns the search index.
func (s *DB) Index() *Index {
	if s == nil {
		return nil
	}
	return s.index
}

// SQL returns the underlying handle for packages that keep their own tables.
func (s *DB) SQL() *sql.DB {
	return s.db
}

// Close closes the database. The index reports ErrUnavailable afterwards.
func (s *DB) Close() error {
	if s.index != nil {
		s.index.markClosed()
	}
	return s.db.Close()
}
