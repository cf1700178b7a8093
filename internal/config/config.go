package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all careledger configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	LLM      LLMConfig      `toml:"llm"`
	Memory   MemoryConfig   `toml:"memory"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"` // "ollama", "anthropic"
	Model          string `toml:"model"`
	OllamaURL      string `toml:"ollama_url"`
	OllamaModel    string `toml:"ollama_model"`
	EmbeddingModel string `toml:"embedding_model"` // e.g. "nomic-embed-text"
	AnthropicKey   string `toml:"anthropic_key"`
}

// MemoryConfig tunes retrieval ranking. Zero values fall back to the
// engine defaults (limit 10, floor 0.5, time weight 0.3).
type MemoryConfig struct {
	ResultLimit     int     `toml:"result_limit"`
	SimilarityFloor float64 `toml:"similarity_floor"`
	TimeWeight      float64 `toml:"time_weight"`
	TimeoutSeconds  int     `toml:"collaborator_timeout"` // per collaborator call
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38800,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider: "ollama",
		},
		Memory: MemoryConfig{
			TimeoutSeconds: 30,
		},
	}
}

// Load reads a TOML config file over the defaults. A missing file is not an
// error; the defaults stand. ANTHROPIC_API_KEY in the environment switches
// the provider regardless of file contents.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.LLM.Provider = "anthropic"
		cfg.LLM.AnthropicKey = key
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
