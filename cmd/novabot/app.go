package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"novabot/internal/agent"
	"novabot/internal/config"
	"novabot/internal/domain"
	"novabot/internal/embedding"
	"novabot/internal/embedding/mock"
	"novabot/internal/profile"
	"novabot/internal/provider"
	"novabot/internal/semantic"
	"novabot/internal/session"
)

// App bundles the wired components behind one Close.
type App struct {
	Orchestrator *agent.Orchestrator

	profiles domain.ProfileStore
	cache    *embedding.Cached
}

func (a *App) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.profiles != nil {
		if err := a.profiles.Close(); err != nil {
			logger.Warn("closing profile store", "err", err)
		}
	}
}

// buildApp wires the full stack from config: embedder, semantic index,
// profile store, model, and orchestrator.
func buildApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	}))

	if cfg.General.DataDir != "" {
		if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	app := &App{}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	if cfg.Embedding.CacheEntries > 0 {
		cached, err := embedding.NewCached(embedder, cfg.Embedding.CacheEntries)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		app.cache = cached
		embedder = cached
	}

	index, err := semantic.New(semantic.Config{
		Embedder:    embedder,
		MaxDistance: cfg.Memory.MaxDistance,
		IndexPath:   cfg.Memory.IndexPath,
		ItemsPath:   cfg.Memory.ItemsPath,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic index: %w", err)
	}

	app.profiles, err = buildProfileStore(ctx, cfg.Profile)
	if err != nil {
		return nil, err
	}

	model, err := provider.NewModel(provider.ModelConfig{
		Provider: cfg.Model.Provider,
		APIKey:   cfg.Model.APIKey,
		APIBase:  cfg.Model.APIBase,
		Model:    cfg.Model.Model,
	}, logger)
	if err != nil {
		return nil, err
	}

	app.Orchestrator, err = agent.NewOrchestrator(agent.OrchestratorConfig{
		Sessions: session.NewManager(session.ManagerConfig{
			MaxTurns:  cfg.Session.MaxTurns,
			MaxTokens: cfg.Session.MaxTokens,
			Logger:    logger,
		}),
		Profiles: app.profiles,
		Memory:   index,
		Generator: provider.NewGenerator(provider.GeneratorConfig{
			Model:    model,
			Retries:  cfg.Model.Retries,
			Fallback: cfg.Model.Fallback,
			Logger:   logger,
		}),
		Prompts: agent.NewPromptBuilder(agent.PromptConfig{
			SystemPrompt:  cfg.Persona.SystemPrompt,
			AssistantName: cfg.Persona.AssistantName,
		}),
		RetrieveK: cfg.Memory.RetrieveK,
		Logger:    logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func buildEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Backend {
	case "ollama", "":
		return embedding.NewOllama(embedding.OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Dims:    cfg.Dimensions,
		}), nil
	case "openai":
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Dims:    cfg.Dimensions,
		}), nil
	case "mock":
		return mock.New(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend: %s", cfg.Backend)
	}
}

func buildProfileStore(ctx context.Context, cfg config.ProfileConfig) (domain.ProfileStore, error) {
	switch cfg.Driver {
	case "sqlite", "":
		path := cfg.DBPath
		if path == "" {
			path = "profiles.db"
		}
		return profile.NewSQLiteStore(path, logger)
	case "postgres":
		return profile.NewPostgresStore(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown profile driver: %s", cfg.Driver)
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
