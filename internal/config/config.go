// Package config loads and validates the YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for novabot.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Persona   PersonaConfig   `yaml:"persona"`
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Session   SessionConfig   `yaml:"session"`
	Profile   ProfileConfig   `yaml:"profile"`
	Memory    MemoryConfig    `yaml:"memory"`
	Channels  ChannelsConfig  `yaml:"channels"`
}

type GeneralConfig struct {
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"` // debug | info | warn | error
}

type PersonaConfig struct {
	SystemPrompt  string `yaml:"systemPrompt,omitempty"`
	AssistantName string `yaml:"assistantName,omitempty"`
}

type ModelConfig struct {
	Provider string `yaml:"provider"` // gemini | claude | openai
	APIKey   string `yaml:"apiKey,omitempty"`
	APIBase  string `yaml:"apiBase,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Retries  int    `yaml:"retries,omitempty"`
	Fallback string `yaml:"fallback,omitempty"`
}

type EmbeddingConfig struct {
	Backend      string `yaml:"backend"` // ollama | openai | mock
	BaseURL      string `yaml:"baseUrl,omitempty"`
	APIKey       string `yaml:"apiKey,omitempty"`
	Model        string `yaml:"model,omitempty"`
	Dimensions   int    `yaml:"dimensions,omitempty"`
	CacheEntries int64  `yaml:"cacheEntries,omitempty"` // 0 disables the cache
}

type SessionConfig struct {
	MaxTurns  int `yaml:"maxTurns"`
	MaxTokens int `yaml:"maxTokens"`
}

type ProfileConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DBPath string `yaml:"dbPath,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
}

type MemoryConfig struct {
	IndexPath   string  `yaml:"indexPath,omitempty"`
	ItemsPath   string  `yaml:"itemsPath,omitempty"`
	MaxDistance float64 `yaml:"maxDistance"` // <= 0 disables the cutoff
	RetrieveK   int     `yaml:"retrieveK,omitempty"`
}

type ChannelsConfig struct {
	Web      WebChannelConfig      `yaml:"web"`
	Telegram TelegramChannelConfig `yaml:"telegram"`
}

type WebChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
}

type TelegramChannelConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Token     string   `yaml:"token,omitempty"`
	AllowFrom []string `yaml:"allowFrom,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.novabot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".novabot"
	}
	return filepath.Join(home, ".novabot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads, expands, and validates the config file at path.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.Profile.DBPath = ExpandPath(cfg.Profile.DBPath)
	cfg.Memory.IndexPath = ExpandPath(cfg.Memory.IndexPath)
	cfg.Memory.ItemsPath = ExpandPath(cfg.Memory.ItemsPath)
	cfg.applyDataDir()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the directory when needed.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyDataDir fills the storage paths that default relative to the
// data directory.
func (c *Config) applyDataDir() {
	if c.General.DataDir == "" {
		return
	}
	if c.Profile.DBPath == "" {
		c.Profile.DBPath = filepath.Join(c.General.DataDir, "profiles.db")
	}
	if c.Memory.IndexPath == "" {
		c.Memory.IndexPath = filepath.Join(c.General.DataDir, "memory.idx")
	}
	if c.Memory.ItemsPath == "" {
		c.Memory.ItemsPath = filepath.Join(c.General.DataDir, "memory.json")
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is
// unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	switch cfg.Model.Provider {
	case "", "gemini", "claude", "openai":
	default:
		if cfg.Model.APIBase == "" {
			errs = append(errs, fmt.Sprintf("model.provider %q needs model.apiBase to be treated as OpenAI-compatible", cfg.Model.Provider))
		}
	}
	if cfg.Model.Retries < 0 {
		errs = append(errs, "model.retries must be >= 0")
	}

	switch cfg.Embedding.Backend {
	case "", "ollama", "openai", "mock":
	default:
		errs = append(errs, "embedding.backend must be one of: ollama, openai, mock")
	}
	if cfg.Embedding.Dimensions < 0 {
		errs = append(errs, "embedding.dimensions must be >= 0")
	}

	if cfg.Session.MaxTurns < 1 {
		errs = append(errs, "session.maxTurns must be >= 1")
	}
	if cfg.Session.MaxTokens < 0 {
		errs = append(errs, "session.maxTokens must be >= 0")
	}

	switch cfg.Profile.Driver {
	case "", "sqlite":
	case "postgres":
		if cfg.Profile.DSN == "" {
			errs = append(errs, "profile.dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, "profile.driver must be one of: sqlite, postgres")
	}

	if cfg.Memory.RetrieveK < 0 {
		errs = append(errs, "memory.retrieveK must be >= 0")
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
