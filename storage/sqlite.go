package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteFileName = "prefs.db"

const createPrefsTable = `CREATE TABLE IF NOT EXISTS prefs (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLitePrefs is a Prefs store in a SQLite database. Writes go straight to the
// database, so Save has nothing left to flush.
type SQLitePrefs struct {
	db *sql.DB
}

// OpenSQLitePrefs opens (creating if needed) the database at path.
// An empty path selects ~/.config/solmate/prefs.db.
func OpenSQLitePrefs(path string) (*SQLitePrefs, error) {
	if path == "" {
		var err error
		path, err = DefaultPrefsPath(sqliteFileName)
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("could not create prefs directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open prefs database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createPrefsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create prefs table: %w", err)
	}
	return &SQLitePrefs{db: db}, nil
}

func (s *SQLitePrefs) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("could not read pref %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLitePrefs) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO prefs (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("could not write pref %q: %w", key, err)
	}
	return nil
}

func (s *SQLitePrefs) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM prefs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("could not delete pref %q: %w", key, err)
	}
	return nil
}

func (s *SQLitePrefs) Save() error {
	return nil
}

func (s *SQLitePrefs) Close() error {
	return s.db.Close()
}
