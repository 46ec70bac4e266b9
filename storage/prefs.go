package storage

import (
	"errors"
	"sync"
)

// ErrClosed is returned by a Prefs store after Close.
var ErrClosed = errors.New("prefs store is closed")

// Prefs is a flat string key-value store, in the spirit of a game engine's player prefs.
// Set may buffer; Save makes buffered writes durable.
type Prefs interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
	Save() error
	Close() error
}

// MemoryPrefs keeps values in memory only.
type MemoryPrefs struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

// NewMemoryPrefs returns an empty in-memory store.
func NewMemoryPrefs() *MemoryPrefs {
	return &MemoryPrefs{values: make(map[string]string)}
}

func (m *MemoryPrefs) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryPrefs) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.values[key] = value
	return nil
}

func (m *MemoryPrefs) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.values, key)
	return nil
}

func (m *MemoryPrefs) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *MemoryPrefs) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
