// Package dedup discards inbound messages that are echoes of the bridge's
// own recent output.
package dedup

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTextWindow is how long a sent text suppresses a matching
	// inbound message on the same conversation.
	DefaultTextWindow = 3 * time.Minute
	// DefaultDeliveryWindow is how long a delivery identifier suppresses
	// the transport mirroring our own send back to us.
	DefaultDeliveryWindow = 6 * time.Hour
)

var whitespacePattern = regexp.MustCompile(`\s+`)

type sentText struct {
	key  string
	text string
	at   time.Time
}

// Suppressor tracks recently sent output per conversation and recently
// issued delivery identifiers. Entries expire after their window and are
// pruned lazily on each check.
type Suppressor struct {
	textWindow     time.Duration
	deliveryWindow time.Duration
	logger         *slog.Logger
	now            func() time.Time

	mu         sync.Mutex
	sent       []sentText
	deliveries map[string]time.Time
}

func NewSuppressor(log *slog.Logger, textWindow, deliveryWindow time.Duration) *Suppressor {
	if log == nil {
		log = slog.Default()
	}
	if textWindow <= 0 {
		textWindow = DefaultTextWindow
	}
	if deliveryWindow <= 0 {
		deliveryWindow = DefaultDeliveryWindow
	}
	return &Suppressor{
		textWindow:     textWindow,
		deliveryWindow: deliveryWindow,
		logger:         log.With(slog.String("service", "dedup")),
		now:            time.Now,
		deliveries:     make(map[string]time.Time),
	}
}

// RecordSent remembers outbound text for the conversation.
func (s *Suppressor) RecordSent(key, text string) {
	normalized := normalize(text)
	if normalized == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	s.sent = append(s.sent, sentText{key: key, text: normalized, at: s.now()})
}

// IsDuplicate reports whether inbound text matches something this bridge
// sent to the same conversation within the text window.
func (s *Suppressor) IsDuplicate(key, text string) bool {
	normalized := normalize(text)
	if normalized == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	for _, rec := range s.sent {
		if rec.key == key && rec.text == normalized {
			return true
		}
	}
	return false
}

// RecordDelivery remembers a transport delivery identifier from one of our
// own sends.
func (s *Suppressor) RecordDelivery(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	s.deliveries[id] = s.now()
}

// SeenDelivery reports whether the message identifier belongs to a send we
// made within the delivery window.
func (s *Suppressor) SeenDelivery(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	_, ok := s.deliveries[id]
	return ok
}

// Prune drops expired entries. Checks prune lazily already; this exists
// for the periodic maintenance job.
func (s *Suppressor) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
}

func (s *Suppressor) pruneLocked(now time.Time) {
	kept := s.sent[:0]
	for _, rec := range s.sent {
		if now.Sub(rec.at) <= s.textWindow {
			kept = append(kept, rec)
		}
	}
	s.sent = kept
	for id, at := range s.deliveries {
		if now.Sub(at) > s.deliveryWindow {
			delete(s.deliveries, id)
		}
	}
}

func normalize(text string) string {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(trimmed, " "))
}
