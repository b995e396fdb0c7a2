// Package agent coordinates the three memory tiers into a single
// conversation turn: it assembles the prompt, calls the model, and
// applies the profile and memory writes that follow.
package agent

import (
	"strings"

	"novabot/internal/domain"
)

const (
	defaultSystemPrompt = "You are Nova, a thoughtful and empathetic conversational companion."
	toneInstruction     = "Instruction: Match the user's emotional tone naturally."
	sectionSeparator    = "=================================================="

	// historyWindow caps how many buffered messages enter the prompt,
	// independent of the buffer's own retention.
	historyWindow = 6
)

// PromptBuilder assembles the blended prompt from the three memory
// tiers. Sections for absent tiers are omitted entirely rather than
// rendered empty.
type PromptBuilder struct {
	systemPrompt  string
	assistantName string
}

type PromptConfig struct {
	SystemPrompt  string // identity block, defaults to the Nova persona
	AssistantName string // reply cue, default "Nova"
}

func NewPromptBuilder(cfg PromptConfig) *PromptBuilder {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.AssistantName == "" {
		cfg.AssistantName = "Nova"
	}
	return &PromptBuilder{
		systemPrompt:  cfg.SystemPrompt,
		assistantName: cfg.AssistantName,
	}
}

// PromptInput carries one turn's worth of tier snapshots.
type PromptInput struct {
	Profile  domain.Profile
	Memories []domain.ScoredMemory
	History  []domain.Message
	Message  string
}

// Build renders the prompt: identity, profile facts, relevant past
// context, the recent conversation window, then the current message
// and the assistant cue.
func (p *PromptBuilder) Build(in PromptInput) string {
	var parts []string

	parts = append(parts, p.systemPrompt)
	parts = append(parts, "\n"+toneInstruction)
	parts = append(parts, "\n"+sectionSeparator)

	if !in.Profile.Empty() {
		parts = append(parts, "USER PROFILE:")
		for _, f := range domain.ProfileFields {
			if v := in.Profile.Field(f); v != "" {
				parts = append(parts, "- "+string(f)+": "+v)
			}
		}
		parts = append(parts, "")
	}

	if len(in.Memories) > 0 {
		parts = append(parts, "RELEVANT PAST CONTEXT:")
		for _, m := range in.Memories {
			parts = append(parts, "- "+m.Text)
		}
		parts = append(parts, "")
	}

	history := in.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	if len(history) > 0 {
		parts = append(parts, "CURRENT CONVERSATION:")
		for _, m := range history {
			parts = append(parts, capitalize(string(m.Role))+": "+m.Content)
		}
		parts = append(parts, "")
	}

	parts = append(parts, sectionSeparator)
	parts = append(parts, "User: "+in.Message)
	parts = append(parts, p.assistantName+":")

	return strings.Join(parts, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
