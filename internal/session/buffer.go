package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"novabot/internal/domain"
)

// Buffer holds the bounded short-term conversation history for one user.
// Messages and their metadata are kept in two aligned slices; every
// mutation moves them in tandem.
//
// A Buffer is not internally synchronized: the design assumes at most one
// in-flight turn per user at a time. Concurrent Add calls for the same
// user are a contract violation, not something the buffer defends against.
type Buffer struct {
	maxTurns  int
	maxTokens int // 0 = no token budget

	messages []domain.Message
	meta     []domain.MessageMeta
}

// NewBuffer creates a buffer that retains at most maxTurns non-system
// messages. maxTokens, when positive, adds an approximate token budget
// (1 token ~ 4 characters).
func NewBuffer(maxTurns, maxTokens int) *Buffer {
	if maxTurns <= 0 {
		maxTurns = 12
	}
	return &Buffer{maxTurns: maxTurns, maxTokens: maxTokens}
}

// Add appends a message, stamps its metadata, and trims the buffer.
// Empty or whitespace-only content and unrecognized roles are rejected
// without mutating state.
func (b *Buffer) Add(role domain.Role, content string, extra map[string]any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return fmt.Errorf("%w: message content cannot be empty", domain.ErrInvalidArgument)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: role %q must be user, assistant, or system", domain.ErrInvalidArgument, role)
	}

	b.messages = append(b.messages, domain.Message{Role: role, Content: trimmed})
	b.meta = append(b.meta, domain.MessageMeta{
		Timestamp: time.Now(),
		CharCount: len(content),
		Extra:     extra,
	})

	b.trim()
	return nil
}

// trim enforces maxTurns over non-system messages, then the token budget.
// System messages are never evicted here.
func (b *Buffer) trim() {
	nonSystem := 0
	for _, m := range b.messages {
		if m.Role != domain.RoleSystem {
			nonSystem++
		}
	}

	if drop := nonSystem - b.maxTurns; drop > 0 {
		b.dropOldestNonSystem(drop)
	}

	if b.maxTokens > 0 {
		b.trimByTokens()
	}
}

// dropOldestNonSystem removes the first n non-system messages, preserving
// the relative order of everything kept.
func (b *Buffer) dropOldestNonSystem(n int) {
	msgs := b.messages[:0]
	meta := b.meta[:0]
	for i, m := range b.messages {
		if n > 0 && m.Role != domain.RoleSystem {
			n--
			continue
		}
		msgs = append(msgs, m)
		meta = append(meta, b.meta[i])
	}
	b.messages = msgs
	b.meta = meta
}

// trimByTokens drops oldest non-system messages one at a time until the
// approximate token estimate fits the budget or one message remains.
func (b *Buffer) trimByTokens() {
	estimate := b.estimatedTokens()
	for estimate > b.maxTokens && len(b.messages) > 1 {
		removed := false
		for i, m := range b.messages {
			if m.Role == domain.RoleSystem {
				continue
			}
			estimate -= domain.EstimateTokens(m.Content)
			b.messages = append(b.messages[:i], b.messages[i+1:]...)
			b.meta = append(b.meta[:i], b.meta[i+1:]...)
			removed = true
			break
		}
		if !removed {
			return // only system messages left
		}
	}
}

func (b *Buffer) estimatedTokens() int {
	total := 0
	for _, m := range b.messages {
		total += domain.EstimateTokens(m.Content)
	}
	return total
}

// Get returns a snapshot copy of the history in insertion order. Callers
// can mutate the returned slice freely.
func (b *Buffer) Get(includeSystem bool) []domain.Message {
	out := make([]domain.Message, 0, len(b.messages))
	for _, m := range b.messages {
		if !includeSystem && m.Role == domain.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// GetLastN returns the last n messages after the system filter.
func (b *Buffer) GetLastN(n int, includeSystem bool) []domain.Message {
	if n <= 0 {
		return nil
	}
	msgs := b.Get(includeSystem)
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// Formatted renders the history as "Role: content" lines.
func (b *Buffer) Formatted(includeSystem bool) string {
	msgs := b.Get(includeSystem)
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, capitalize(string(m.Role))+": "+m.Content)
	}
	return strings.Join(lines, "\n\n")
}

// SetSystemMessage replaces all system messages with a single new one
// prepended to the buffer. This is the only way system content changes.
func (b *Buffer) SetSystemMessage(content string) {
	msgs := make([]domain.Message, 0, len(b.messages)+1)
	meta := make([]domain.MessageMeta, 0, len(b.meta)+1)

	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: content})
	meta = append(meta, domain.MessageMeta{Timestamp: time.Now(), CharCount: len(content)})

	for i, m := range b.messages {
		if m.Role == domain.RoleSystem {
			continue
		}
		msgs = append(msgs, m)
		meta = append(meta, b.meta[i])
	}
	b.messages = msgs
	b.meta = meta
}

// Clear empties the buffer. With keepSystem, system messages and their
// metadata survive.
func (b *Buffer) Clear(keepSystem bool) {
	if !keepSystem {
		b.messages = nil
		b.meta = nil
		return
	}
	msgs := b.messages[:0]
	meta := b.meta[:0]
	for i, m := range b.messages {
		if m.Role == domain.RoleSystem {
			msgs = append(msgs, m)
			meta = append(meta, b.meta[i])
		}
	}
	b.messages = msgs
	b.meta = meta
}

// Len returns the number of messages currently held.
func (b *Buffer) Len() int { return len(b.messages) }

// Summary reports aggregate statistics about the conversation.
type Summary struct {
	TotalMessages     int        `json:"total_messages"`
	UserMessages      int        `json:"user_messages"`
	AssistantMessages int        `json:"assistant_messages"`
	SystemMessages    int        `json:"system_messages"`
	EstimatedTokens   int        `json:"estimated_tokens"`
	TotalCharacters   int        `json:"total_characters"`
	OldestMessage     *time.Time `json:"oldest_message,omitempty"`
	NewestMessage     *time.Time `json:"newest_message,omitempty"`
}

// Summarize computes conversation statistics.
func (b *Buffer) Summarize() Summary {
	s := Summary{TotalMessages: len(b.messages)}
	for _, m := range b.messages {
		switch m.Role {
		case domain.RoleUser:
			s.UserMessages++
		case domain.RoleAssistant:
			s.AssistantMessages++
		case domain.RoleSystem:
			s.SystemMessages++
		}
		s.EstimatedTokens += domain.EstimateTokens(m.Content)
		s.TotalCharacters += len(m.Content)
	}
	if len(b.meta) > 0 {
		oldest := b.meta[0].Timestamp
		newest := b.meta[len(b.meta)-1].Timestamp
		s.OldestMessage = &oldest
		s.NewestMessage = &newest
	}
	return s
}

// exportState is the serialized form of a buffer.
type exportState struct {
	Messages []domain.Message     `json:"messages"`
	Meta     []domain.MessageMeta `json:"metadata"`
	Config   exportConfig         `json:"config"`
}

type exportConfig struct {
	MaxTurns  int `json:"max_turns"`
	MaxTokens int `json:"max_tokens"`
}

// Export serializes the full message list, metadata, and config scalars.
func (b *Buffer) Export() ([]byte, error) {
	state := exportState{
		Messages: b.messages,
		Meta:     b.meta,
		Config:   exportConfig{MaxTurns: b.maxTurns, MaxTokens: b.maxTokens},
	}
	return json.Marshal(state)
}

// Import replaces the buffer state entirely with a previously exported blob.
func (b *Buffer) Import(data []byte) error {
	var state exportState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("import buffer: %w", err)
	}
	b.messages = state.Messages
	b.meta = state.Meta
	if state.Config.MaxTurns > 0 {
		b.maxTurns = state.Config.MaxTurns
	}
	b.maxTokens = state.Config.MaxTokens
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
