package provider

import (
	"context"
	"sync"
)

// Mock is a scripted domain.Model for tests. Replies are returned in
// order; Err, when set, takes precedence.
type Mock struct {
	mu      sync.Mutex
	Replies []string
	Errs    []error
	Prompts []string
	calls   int
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	i := m.calls
	m.calls++
	if i < len(m.Errs) && m.Errs[i] != nil {
		return "", m.Errs[i]
	}
	if len(m.Replies) == 0 {
		return "ok", nil
	}
	if i >= len(m.Replies) {
		i = len(m.Replies) - 1
	}
	return m.Replies[i], nil
}

// Calls reports how many times Complete ran.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
