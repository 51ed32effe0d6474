// Package config loads the CLI's provider configuration from a YAML file.
// Flags override file values; everything has a usable default.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sillyDaibo/funch/internal/llm"
)

// Config selects and parameterizes the generator provider.
type Config struct {
	Provider    string  `yaml:"provider"` // "openai" (any compatible endpoint) or "gemini"
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	DBPath      string  `yaml:"db_path"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Provider:    "openai",
		Model:       "deepseek-chat",
		BaseURL:     "https://api.deepseek.com/v1",
		APIKeyEnv:   "OPENAI_API_KEY",
		Temperature: 0.7,
	}
}

// Load reads path over the defaults. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// APIKey resolves the provider credential from the configured environment
// variable.
func (c Config) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// GeneratorOptions maps the config onto provider options.
func (c Config) GeneratorOptions() llm.Options {
	return llm.Options{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		APIKey:      c.APIKey(),
		BaseURL:     c.BaseURL,
	}
}
