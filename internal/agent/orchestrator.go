package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"novabot/internal/domain"
	"novabot/internal/session"
)

const (
	// blankReply answers empty or whitespace-only messages without
	// touching any tier.
	blankReply = "Could you say that again?"

	// summaryPrefix marks the safe summaries written into semantic
	// memory after each turn. Only the first summaryLimit characters of
	// the user message are kept.
	summaryPrefix = "User discussed: "
	summaryLimit  = 120

	defaultRetrieveK = 3
)

// MemoryIndex is the semantic tier as the orchestrator consumes it.
type MemoryIndex interface {
	Store(ctx context.Context, userID, text string, metadata map[string]any) (string, error)
	Retrieve(ctx context.Context, userID, query string, k int) ([]domain.ScoredMemory, error)
	DeleteUser(ctx context.Context, userID string) (int, error)
	UserMemories(userID string, limit int, sortByTime bool) []domain.MemoryItem
	Stats() domain.MemoryStats
}

// ChatResult is the outcome of one conversational turn.
type ChatResult struct {
	Response       string `json:"response"`
	UserID         string `json:"user_id"`
	TurnID         string `json:"turn_id,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
	ProfileUpdated bool   `json:"profile_updated"`
}

// Orchestrator runs conversation turns across the three memory tiers.
type Orchestrator struct {
	sessions  *session.Manager
	profiles  domain.ProfileStore
	memory    MemoryIndex
	generator domain.Generator
	prompts   *PromptBuilder
	retrieveK int
	logger    *slog.Logger
}

type OrchestratorConfig struct {
	Sessions  *session.Manager
	Profiles  domain.ProfileStore
	Memory    MemoryIndex
	Generator domain.Generator
	Prompts   *PromptBuilder

	// RetrieveK is how many semantic memories feed each prompt.
	RetrieveK int

	Logger *slog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Sessions == nil || cfg.Profiles == nil || cfg.Memory == nil || cfg.Generator == nil {
		return nil, fmt.Errorf("orchestrator: sessions, profiles, memory and generator are all required")
	}
	if cfg.Prompts == nil {
		cfg.Prompts = NewPromptBuilder(PromptConfig{})
	}
	if cfg.RetrieveK <= 0 {
		cfg.RetrieveK = defaultRetrieveK
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		sessions:  cfg.Sessions,
		profiles:  cfg.Profiles,
		memory:    cfg.Memory,
		generator: cfg.Generator,
		prompts:   cfg.Prompts,
		retrieveK: cfg.RetrieveK,
		logger:    cfg.Logger,
	}, nil
}

// Chat runs one turn for userID: assemble the blended prompt, generate
// a reply, record the turn in all tiers, and apply any profile facts
// the message stated. A blank message short-circuits with a fixed
// reply and writes nothing.
func (o *Orchestrator) Chat(ctx context.Context, userID, message string) (ChatResult, error) {
	if userID == "" {
		return ChatResult{}, fmt.Errorf("user id is empty: %w", domain.ErrInvalidArgument)
	}

	buf := o.sessions.Get(userID)
	if err := buf.Add(domain.RoleUser, message, nil); err != nil {
		return ChatResult{Response: blankReply, UserID: userID}, nil
	}

	profile, err := o.profiles.Get(ctx, userID)
	if err != nil {
		o.logger.Warn("profile load failed, continuing without", "user_id", userID, "error", err)
		profile = domain.Profile{}
	}

	memories, err := o.memory.Retrieve(ctx, userID, message, o.retrieveK)
	if err != nil {
		o.logger.Warn("memory retrieval failed, continuing without", "user_id", userID, "error", err)
	}

	prompt := o.prompts.Build(PromptInput{
		Profile:  profile,
		Memories: memories,
		History:  buf.Get(false),
		Message:  message,
	})

	reply := o.generator.Generate(ctx, prompt)

	if err := buf.Add(domain.RoleAssistant, reply, nil); err != nil {
		o.logger.Warn("recording assistant reply failed", "user_id", userID, "error", err)
	}

	// A compact, non-verbatim summary of the turn feeds the semantic
	// tier. Failures degrade the next retrieval, not this reply.
	summary := message
	if len(summary) > summaryLimit {
		// Back off to a rune boundary so multibyte text is not cut
		// mid-sequence.
		cut := summaryLimit
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		summary = summary[:cut]
	}
	if _, err := o.memory.Store(ctx, userID, summaryPrefix+summary, nil); err != nil {
		o.logger.Warn("memory store failed", "user_id", userID, "error", err)
	}

	result := ChatResult{
		Response:  reply,
		UserID:    userID,
		TurnID:    uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	updates := extractProfileUpdates(message)
	if len(updates) == 0 {
		return result, nil
	}

	// Any contradiction with the stored profile turns the reply into a
	// clarifying question and blocks the whole batch of facts, so a
	// conflict turn never writes the profile.
	for _, field := range domain.ProfileFields {
		value, ok := updates[field]
		if !ok {
			continue
		}
		if existing := profile.Field(field); existing != "" && existing != value {
			result.Response = fmt.Sprintf(
				"I remember you said %s earlier. Want me to update it to %s?", existing, value)
			return result, nil
		}
	}
	for _, field := range domain.ProfileFields {
		value, ok := updates[field]
		if !ok {
			continue
		}
		if err := o.profiles.Upsert(ctx, userID, field, value); err != nil {
			o.logger.Warn("profile update failed", "user_id", userID, "field", field, "error", err)
			continue
		}
		result.ProfileUpdated = true
	}
	return result, nil
}

// Profile returns the stored profile for userID.
func (o *Orchestrator) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	return o.profiles.Get(ctx, userID)
}

// UpsertProfile writes a single profile field. Unless force is set, a
// differing stored value is rejected with a ConflictError instead of
// being overwritten.
func (o *Orchestrator) UpsertProfile(ctx context.Context, userID string, field domain.ProfileField, value any, force bool) error {
	if !force {
		profile, err := o.profiles.Get(ctx, userID)
		if err != nil {
			return err
		}
		proposed := fmt.Sprintf("%v", value)
		if existing := profile.Field(field); existing != "" && existing != proposed {
			return &domain.ConflictError{Field: field, Existing: existing, Proposed: proposed}
		}
	}
	return o.profiles.Upsert(ctx, userID, field, value)
}

// History returns userID's buffered conversation, system messages
// included.
func (o *Orchestrator) History(userID string) []domain.Message {
	return o.sessions.History(userID)
}

// ClearSession drops userID's short-term buffer. Profile and semantic
// memory are untouched.
func (o *Orchestrator) ClearSession(userID string) {
	o.sessions.Clear(userID, false)
}

// RecentMemories returns userID's semantic memories, newest first.
func (o *Orchestrator) RecentMemories(userID string, limit int) []domain.MemoryItem {
	if limit <= 0 {
		limit = 5
	}
	return o.memory.UserMemories(userID, limit, true)
}

// ForgetUser erases userID across every tier: buffer, semantic index,
// and profile row. Returns how many semantic memories were removed.
func (o *Orchestrator) ForgetUser(ctx context.Context, userID string) (int, error) {
	o.sessions.Clear(userID, false)
	removed, err := o.memory.DeleteUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete memories: %w", err)
	}
	if _, err := o.profiles.Delete(ctx, userID); err != nil {
		return removed, fmt.Errorf("delete profile: %w", err)
	}
	return removed, nil
}

// Stats aggregates diagnostics across the tiers.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Memory:   o.memory.Stats(),
		Sessions: o.sessions.Count(),
		Usage:    o.generator.Usage(),
	}
}

// ResetUsage zeroes the generation counters reported by Stats.
func (o *Orchestrator) ResetUsage() {
	o.generator.Reset()
}

// Stats is the orchestrator-wide diagnostic snapshot.
type Stats struct {
	Memory   domain.MemoryStats `json:"memory"`
	Sessions int                `json:"active_sessions"`
	Usage    domain.UsageStats  `json:"llm_usage"`
}
