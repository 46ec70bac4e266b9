package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	prefsFileName  = "prefs.json"
	configDirName  = ".config"
	solmateDirName = "solmate"
)

// JSONPrefs provides a Prefs store backed by a single JSON file.
// Writes are buffered in memory until Save.
type JSONPrefs struct {
	mu     sync.Mutex
	path   string
	values map[string]string
	dirty  bool
	closed bool
}

// OpenJSONPrefs opens and initializes the JSON-based storage at path.
// An empty path selects ~/.config/solmate/prefs.json.
func OpenJSONPrefs(path string) (*JSONPrefs, error) {
	if path == "" {
		var err error
		path, err = DefaultPrefsPath(prefsFileName)
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("could not create prefs directory: %w", err)
	}

	db := &JSONPrefs{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read prefs file: %w", err)
	}
	if len(data) == 0 {
		return db, nil
	}
	if err := json.Unmarshal(data, &db.values); err != nil {
		return nil, fmt.Errorf("could not parse prefs file: %w", err)
	}
	return db, nil
}

// Path returns the backing file location.
func (db *JSONPrefs) Path() string {
	return db.path
}

func (db *JSONPrefs) Get(key string) (string, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return "", false, ErrClosed
	}
	v, ok := db.values[key]
	return v, ok, nil
}

func (db *JSONPrefs) Set(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	db.values[key] = value
	db.dirty = true
	return nil
}

func (db *JSONPrefs) Delete(key string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	if _, ok := db.values[key]; ok {
		delete(db.values, key)
		db.dirty = true
	}
	return nil
}

// Save writes the file atomically: a temp file in the same directory is renamed over the old one.
func (db *JSONPrefs) Save() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	if !db.dirty {
		return nil
	}

	data, err := json.MarshalIndent(db.values, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal prefs: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(db.path), ".prefs-*.json")
	if err != nil {
		return fmt.Errorf("could not create temp prefs file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write prefs file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("could not set prefs file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close prefs file: %w", err)
	}
	if err := os.Rename(tmpName, db.path); err != nil {
		return fmt.Errorf("could not replace prefs file: %w", err)
	}

	db.dirty = false
	return nil
}

// Close flushes pending writes.
func (db *JSONPrefs) Close() error {
	if err := db.Save(); err != nil && err != ErrClosed {
		return err
	}
	db.mu.Lock()
	db.closed = true
	db.mu.Unlock()
	return nil
}

// DefaultPrefsPath returns e.g. /home/user/.config/solmate/<name>.
func DefaultPrefsPath(name string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(homeDir, configDirName, solmateDirName, name), nil
}
