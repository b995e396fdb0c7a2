package domain

import "context"

// Model is a raw text-completion backend. Implementations may fail; the
// retrying Generator wrapper turns them into an always-succeeding capability.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Generator is the generation capability the orchestrator depends on.
// Generate never fails: transient errors are retried with backoff inside
// the implementation and terminal failure degrades to a safe fallback reply.
// Usage counters accumulate across calls until Reset.
type Generator interface {
	Generate(ctx context.Context, prompt string) string
	Usage() UsageStats
	Reset()
}

// UsageStats are process-wide generation counters.
type UsageStats struct {
	Calls           int64 `json:"calls"`
	EstimatedTokens int64 `json:"estimated_tokens"`
}
