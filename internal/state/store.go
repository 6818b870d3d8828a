// Package state persists the current server selection in a small SQLite
// database. The selection record replaces the original deployment's
// habit of hiding the server name in a trailing comment of the OpenVPN
// configuration file.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// ErrNoSelection indicates that no server has ever been selected.
var ErrNoSelection = errors.New("no server selected")

// Selection is the persisted record of the active server choice.
type Selection struct {
	Name       string
	ConfigFile string
	SelectedAt time.Time
}

// Store reads and writes the selection record.
type Store struct {
	db *sql.DB
}

// schema contains all table definitions. Each statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS selection (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    name        TEXT    NOT NULL,
    config_file TEXT    NOT NULL,
    selected_at INTEGER NOT NULL
);
`

// Open opens (or creates) the state database at path and runs the
// migrations. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Keep a single writer connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Current returns the active selection, or ErrNoSelection when nothing
// has been selected yet.
func (s *Store) Current() (Selection, error) {
	row := s.db.QueryRow(`SELECT name, config_file, selected_at FROM selection WHERE id = 1`)
	var sel Selection
	var selectedAt int64
	if err := row.Scan(&sel.Name, &sel.ConfigFile, &selectedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Selection{}, ErrNoSelection
		}
		return Selection{}, fmt.Errorf("read selection: %w", err)
	}
	sel.SelectedAt = time.Unix(selectedAt, 0).UTC()
	return sel, nil
}

// SetCurrent records name/configFile as the active selection,
// replacing any previous record.
func (s *Store) SetCurrent(name, configFile string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(configFile) == "" {
		return errors.New("selection name and config file are required")
	}
	_, err := s.db.Exec(
		`INSERT INTO selection (id, name, config_file, selected_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
		                               config_file = excluded.config_file,
		                               selected_at = excluded.selected_at`,
		name, configFile, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("write selection: %w", err)
	}
	return nil
}
