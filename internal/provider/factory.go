package provider

import (
	"fmt"
	"log/slog"

	"novabot/internal/domain"
)

// ModelConfig selects and configures a model backend by name.
type ModelConfig struct {
	Provider string // gemini, claude, openai
	APIKey   string
	APIBase  string
	Model    string
}

// NewModel constructs the model backend named by cfg.Provider.
func NewModel(cfg ModelConfig, logger *slog.Logger) (domain.Model, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGemini(GeminiConfig{APIKey: cfg.APIKey, APIBase: cfg.APIBase, Model: cfg.Model, Logger: logger}), nil
	case "claude":
		return NewClaude(ClaudeConfig{APIKey: cfg.APIKey, Model: cfg.Model, Logger: logger}), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, APIBase: cfg.APIBase, Model: cfg.Model, Logger: logger}), nil
	default:
		if cfg.APIBase != "" {
			// Unknown providers with an API base are treated as
			// OpenAI-compatible.
			return NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, APIBase: cfg.APIBase, Model: cfg.Model, Logger: logger}), nil
		}
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
