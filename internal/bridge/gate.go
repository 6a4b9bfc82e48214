package bridge

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Gate modes.
const (
	GateOpen      = "open"
	GateAllowList = "allowlist"
	GateActive    = "active"
)

// Gate decides whether the bridge responds in a conversation. In active
// mode the enabled set is persisted as a flat JSON array, overwritten
// whole on every change.
type Gate struct {
	mode      string
	allowList map[string]struct{}
	path      string
	logger    *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

func NewGate(log *slog.Logger, mode string, allowList []string, path string) *Gate {
	if log == nil {
		log = slog.Default()
	}
	allowed := make(map[string]struct{}, len(allowList))
	for _, key := range allowList {
		key = strings.TrimSpace(key)
		if key != "" {
			allowed[key] = struct{}{}
		}
	}
	g := &Gate{
		mode:      mode,
		allowList: allowed,
		path:      path,
		logger:    log.With(slog.String("service", "gate")),
		active:    make(map[string]struct{}),
	}
	g.load()
	return g
}

func (g *Gate) load() {
	if g.mode != GateActive || strings.TrimSpace(g.path) == "" {
		return
	}
	data, err := os.ReadFile(g.path)
	if err != nil {
		if !os.IsNotExist(err) {
			g.logger.Warn("read active chats failed", slog.Any("error", err))
		}
		return
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		g.logger.Warn("active chats snapshot corrupt, starting empty", slog.Any("error", err))
		return
	}
	for _, key := range keys {
		g.active[key] = struct{}{}
	}
}

// Allowed reports whether the conversation should get replies.
func (g *Gate) Allowed(key string) bool {
	switch g.mode {
	case GateAllowList:
		_, ok := g.allowList[key]
		return ok
	case GateActive:
		g.mu.Lock()
		defer g.mu.Unlock()
		_, ok := g.active[key]
		return ok
	default:
		return true
	}
}

// Enable turns on replies for the conversation (active mode).
func (g *Gate) Enable(key string) {
	g.mu.Lock()
	g.active[key] = struct{}{}
	g.mu.Unlock()
	g.persist()
}

// Disable turns off replies for the conversation (active mode).
func (g *Gate) Disable(key string) {
	g.mu.Lock()
	delete(g.active, key)
	g.mu.Unlock()
	g.persist()
}

func (g *Gate) persist() {
	if strings.TrimSpace(g.path) == "" {
		return
	}
	g.mu.Lock()
	keys := make([]string, 0, len(g.active))
	for key := range g.active {
		keys = append(keys, key)
	}
	g.mu.Unlock()
	sort.Strings(keys)

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		g.logger.Error("encode active chats failed", slog.Any("error", err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		g.logger.Error("write active chats failed", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(g.path, data, 0o644); err != nil {
		g.logger.Error("write active chats failed", slog.Any("error", err))
	}
}
