package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "deepseek-chat", cfg.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.APIKeyEnv)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-6)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "funch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: gemini
model: gemini-2.0-flash
api_key_env: GEMINI_API_KEY
max_tokens: 2048
db_path: /tmp/funch.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)
	assert.Equal(t, "GEMINI_API_KEY", cfg.APIKeyEnv)
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.Equal(t, "/tmp/funch.db", cfg.DBPath)
	// Untouched fields keep their defaults.
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-6)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "funch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unclosed"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestGeneratorOptions(t *testing.T) {
	t.Setenv("FUNCH_TEST_KEY", "secret")
	cfg := Default()
	cfg.APIKeyEnv = "FUNCH_TEST_KEY"
	cfg.MaxTokens = 512

	opts := cfg.GeneratorOptions()
	assert.Equal(t, "secret", opts.APIKey)
	assert.Equal(t, cfg.Model, opts.Model)
	assert.Equal(t, 512, opts.MaxTokens)
	assert.Equal(t, cfg.BaseURL, opts.BaseURL)
}
