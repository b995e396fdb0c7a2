package config

// Defaults returns a Config with sensible starting values. Load merges
// the file on top of these.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:  "~/.novabot/data",
			LogLevel: "info",
		},
		Model: ModelConfig{
			Provider: "gemini",
			Retries:  3,
		},
		Embedding: EmbeddingConfig{
			Backend:      "ollama",
			CacheEntries: 4096,
		},
		Session: SessionConfig{
			MaxTurns:  12,
			MaxTokens: 2000,
		},
		Profile: ProfileConfig{
			Driver: "sqlite",
		},
		Memory: MemoryConfig{
			MaxDistance: -1,
			RetrieveK:   3,
		},
		Channels: ChannelsConfig{
			Web: WebChannelConfig{
				Enabled: true,
				Addr:    ":8080",
			},
		},
	}
}
