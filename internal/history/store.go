// Package history keeps the bounded per-conversation turn log and its
// debounced snapshot persistence.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one conversation turn.
type Entry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Store holds ordered turns per conversation key. Mutations schedule a
// debounced snapshot write; Flush forces one out.
type Store struct {
	path     string
	maxTurns int
	maxChars int
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	turns  map[string][]Entry
	timer  *time.Timer
	closed bool
}

// NewStore creates a store persisting to path. A corrupt or missing
// snapshot never fails startup; the store begins empty and the file is
// left untouched.
func NewStore(log *slog.Logger, path string, maxTurns, maxChars int, debounce time.Duration) *Store {
	if log == nil {
		log = slog.Default()
	}
	if maxTurns <= 0 {
		maxTurns = 12
	}
	if maxChars <= 0 {
		maxChars = 6000
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	s := &Store{
		path:     path,
		maxTurns: maxTurns,
		maxChars: maxChars,
		debounce: debounce,
		logger:   log.With(slog.String("service", "history")),
		turns:    make(map[string][]Entry),
	}
	s.load()
	return s
}

func (s *Store) load() {
	if strings.TrimSpace(s.path) == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read snapshot failed", slog.String("path", s.path), slog.Any("error", err))
		}
		return
	}
	var turns map[string][]Entry
	if err := json.Unmarshal(data, &turns); err != nil {
		s.logger.Warn("snapshot corrupt, starting empty",
			slog.String("path", s.path),
			slog.Any("error", err),
		)
		return
	}
	s.turns = turns
	s.logger.Info("snapshot loaded",
		slog.String("path", s.path),
		slog.Int("conversations", len(turns)),
	)
}

// Append records one turn. Empty text after trimming is ignored. The
// stored log is bounded to the window cap so the snapshot cannot grow
// without bound.
func (s *Store) Append(key, role, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.turns[key], Entry{Role: role, Text: text})
	if limit := 2 * s.maxTurns; len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	s.turns[key] = entries
	s.scheduleWriteLocked()
}

// Window returns the turns for key bounded by the turn-count cap and the
// character budget, oldest first. At least the most recent entry is always
// kept when any exist.
func (s *Store) Window(key string) []Entry {
	s.mu.Lock()
	entries := s.turns[key]
	out := make([]Entry, len(entries))
	copy(out, entries)
	s.mu.Unlock()
	return WindowEntries(out, s.maxTurns, s.maxChars)
}

// Reset clears the conversation's turns.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, key)
	s.scheduleWriteLocked()
}

// Len reports the number of conversations with stored turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// scheduleWriteLocked arms (or re-arms) the debounce timer. Repeated
// mutations within the window collapse into a single write.
func (s *Store) scheduleWriteLocked() {
	if s.closed || strings.TrimSpace(s.path) == "" {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(); err != nil {
			s.logger.Error("snapshot write failed", slog.Any("error", err))
		}
	})
}

// Flush writes the snapshot now. Safe to call concurrently with mutations.
func (s *Store) Flush() error {
	s.mu.Lock()
	if strings.TrimSpace(s.path) == "" {
		s.mu.Unlock()
		return nil
	}
	data, err := json.MarshalIndent(s.turns, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// Close stops the debounce timer and performs a final flush.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.Flush()
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".history-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
