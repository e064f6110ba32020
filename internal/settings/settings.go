// Package settings manages the runtime-mutable UI settings file.
//
// Unlike the daemon's startup configuration (flags/env/TOML via viper),
// these values change while the process runs — clients update them over the
// protocol — so they live in a small JSON file persisted on every update.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Display holds page-size and card-geometry settings read by clients.
type Display struct {
	MaxPageLength int `json:"max_page_length"`
	ItemWidth     int `json:"item_width"`
	ItemHeight    int `json:"item_height"`
}

// Retention holds the history cap policy.
type Retention struct {
	Enabled  bool `json:"enabled"`
	MaxItems int  `json:"max_items"`
}

// Settings is the persisted document.
type Settings struct {
	Version   int       `json:"version"`
	Display   Display   `json:"display"`
	Retention Retention `json:"retention"`
}

func defaults() Settings {
	return Settings{
		Version: 1,
		Display: Display{
			MaxPageLength: 50,
			ItemWidth:     220,
			ItemHeight:    160,
		},
		Retention: Retention{
			Enabled:  false,
			MaxItems: 500,
		},
	}
}

func (s *Settings) validate() {
	if s.Display.MaxPageLength <= 0 {
		s.Display.MaxPageLength = 50
	}
	if s.Display.ItemWidth <= 0 {
		s.Display.ItemWidth = 220
	}
	if s.Display.ItemHeight <= 0 {
		s.Display.ItemHeight = 160
	}
	if s.Retention.MaxItems <= 0 {
		s.Retention.MaxItems = 500
	}
}

// Store is a process-wide settings holder, safe for concurrent readers and
// writers. Every mutation is written through to disk before it returns.
type Store struct {
	mu   sync.RWMutex
	path string
	cur  Settings
}

// Open loads the settings file at path, falling back to defaults when the
// file does not exist yet.
func Open(path string) (*Store, error) {
	st := &Store{path: path, cur: defaults()}
	if err := st.Reload(); err != nil {
		return nil, err
	}
	return st, nil
}

// Reload re-reads the settings file, keeping current values if it is absent.
func (st *Store) Reload() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}

	s := defaults()
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	s.validate()
	st.cur = s
	return nil
}

// Get returns a copy of the current settings.
func (st *Store) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.cur
}

// MaxPageLength returns the configured history page size.
func (st *Store) MaxPageLength() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.cur.Display.MaxPageLength
}

// Retention returns the current retention policy.
func (st *Store) Retention() Retention {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.cur.Retention
}

// UpdateRetention replaces the retention policy and persists the file.
func (st *Store) UpdateRetention(r Retention) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cur.Retention = r
	st.cur.validate()
	return st.saveLocked()
}

// UpdateDisplay replaces the display settings and persists the file.
func (st *Store) UpdateDisplay(d Display) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cur.Display = d
	st.cur.validate()
	return st.saveLocked()
}

func (st *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("settings directory: %w", err)
	}
	data, err := json.MarshalIndent(st.cur, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(st.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
