package domain

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the three recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one turn in a conversation. Immutable once appended to a buffer.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// MessageMeta carries per-message bookkeeping kept alongside each Message.
type MessageMeta struct {
	Timestamp time.Time      `json:"timestamp"`
	CharCount int            `json:"char_count"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// EstimateTokens approximates the token count of content (1 token ~ 4 chars).
func EstimateTokens(content string) int {
	return len(content) / 4
}
