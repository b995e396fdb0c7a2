package session

import (
	"log/slog"
	"sync"

	"novabot/internal/domain"
)

// Manager owns the per-user short-term buffers. Buffers are created
// lazily on first use and live for the process lifetime (or until an
// explicit clear). Only the map itself is locked: individual buffers
// assume one in-flight turn per user.
type Manager struct {
	maxTurns  int
	maxTokens int
	logger    *slog.Logger

	mu      sync.Mutex
	buffers map[string]*Buffer
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	MaxTurns  int
	MaxTokens int
	Logger    *slog.Logger
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		maxTurns:  cfg.MaxTurns,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
		buffers:   make(map[string]*Buffer),
	}
}

// Get returns the buffer for userID, creating it on first use.
func (m *Manager) Get(userID string) *Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.buffers[userID]
	if !ok {
		buf = NewBuffer(m.maxTurns, m.maxTokens)
		m.buffers[userID] = buf
		m.logger.Debug("session created", "user", userID)
	}
	return buf
}

// History returns a snapshot of the user's conversation, empty when no
// session exists yet.
func (m *Manager) History(userID string) []domain.Message {
	m.mu.Lock()
	buf, ok := m.buffers[userID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return buf.Get(true)
}

// Clear empties a user's session, optionally preserving system messages.
// Clearing an unknown user is a no-op.
func (m *Manager) Clear(userID string, keepSystem bool) {
	m.mu.Lock()
	buf, ok := m.buffers[userID]
	m.mu.Unlock()
	if !ok {
		return
	}
	buf.Clear(keepSystem)
	m.logger.Info("session cleared", "user", userID, "keep_system", keepSystem)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers)
}
