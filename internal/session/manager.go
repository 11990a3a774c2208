// Package session manages per-conversation state stored as JSON files.
//
// One file per session key under <dir>/, named by sanitizing the key
// (every character outside [A-Za-z0-9_-] becomes "_"). The in-memory map is
// authoritative; disk is a recoverable replica written atomically via a
// temp-file rename on each save.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Manager owns all sessions under one storage directory.
type Manager struct {
	dir string

	mu       sync.Mutex
	sessions map[string]*schema.Session
}

// NewManager creates a Manager rooted at dir, creating it if necessary and
// loading every existing session. Corrupt files are logged and skipped.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	m := &Manager{dir: dir, sessions: make(map[string]*schema.Session)}
	m.loadAll()
	return m, nil
}

// Dir returns the storage directory.
func (m *Manager) Dir() string { return m.dir }

// GetOrCreate returns the session for key, creating an empty one lazily.
func (m *Manager) GetOrCreate(key string) *schema.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(key)
}

func (m *Manager) getOrCreateLocked(key string) *schema.Session {
	if s, ok := m.sessions[key]; ok {
		return s
	}
	now := time.Now()
	s := &schema.Session{Key: key, Created: now, Updated: now}
	m.sessions[key] = s
	return s
}

// AddMessage appends a message to the session's history.
func (m *Manager) AddMessage(key string, msg schema.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreateLocked(key)
	s.Messages = append(s.Messages, msg)
	s.Updated = time.Now()
}

// GetHistory returns a copy of the session's message list.
func (m *Manager) GetHistory(key string) []schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil
	}
	out := make([]schema.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// SetHistory replaces the session's message list.
func (m *Manager) SetHistory(key string, history []schema.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreateLocked(key)
	s.Messages = history
	s.Updated = time.Now()
}

// GetSummary returns the session's rolling summary ("" when absent).
func (m *Manager) GetSummary(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s.Summary
	}
	return ""
}

// SetSummary replaces the session's rolling summary.
func (m *Manager) SetSummary(key, summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreateLocked(key)
	s.Summary = summary
	s.Updated = time.Now()
}

// TruncateHistory keeps only the last keepLast messages.
func (m *Manager) TruncateHistory(key string, keepLast int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok || keepLast < 0 || len(s.Messages) <= keepLast {
		return
	}
	tail := make([]schema.Message, keepLast)
	copy(tail, s.Messages[len(s.Messages)-keepLast:])
	s.Messages = tail
	s.Updated = time.Now()
}

// Clear empties the session's history and summary.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return
	}
	s.Messages = nil
	s.Summary = ""
	s.Updated = time.Now()
}

// Keys returns all known session keys.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	return keys
}

// Save writes the session to disk atomically: serialize to a temp file in
// the same directory, then rename into place.
func (m *Manager) Save(key string) error {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", key, err)
	}

	path := m.sessionPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename session %s: %w", key, err)
	}
	return nil
}

// SaveAll saves every session, logging failures and continuing.
func (m *Manager) SaveAll() {
	for _, key := range m.Keys() {
		if err := m.Save(key); err != nil {
			slog.Warn("session save failed", "key", key, "err", err)
		}
	}
}

func (m *Manager) loadAll() {
	entries, err := filepath.Glob(filepath.Join(m.dir, "*.json"))
	if err != nil {
		return
	}
	for _, path := range entries {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("session read failed", "path", path, "err", err)
			continue
		}
		var s schema.Session
		if err := json.Unmarshal(data, &s); err != nil || s.Key == "" {
			slog.Warn("skipping corrupt session file", "path", path, "err", err)
			continue
		}
		m.sessions[s.Key] = &s
	}
	if len(m.sessions) > 0 {
		slog.Info("sessions loaded", "count", len(m.sessions), "dir", m.dir)
	}
}

// sessionPath converts a session key to its on-disk path.
func (m *Manager) sessionPath(key string) string {
	return filepath.Join(m.dir, SanitizeKey(key)+".json")
}

// SanitizeKey maps a session key to a safe filename.
func SanitizeKey(key string) string {
	return unsafeChars.ReplaceAllString(key, "_")
}
