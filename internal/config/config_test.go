package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "dir", cfg.Workspace.Backend)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.Handoff.RequireUpstreamData)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Workspace.Root)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
}

func TestLoadFile(t *testing.T) {
	root := t.TempDir()
	yaml := `
llm:
  provider: openai
  model: gpt-4o-mini
  api_key_env: OPENAI_API_KEY
  base_url: https://llm.internal/v1
workspace:
  backend: sqlite
retry:
  max_attempts: 3
handoff:
  require_upstream_data: true
logging:
  debug: true
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte(yaml), 0644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "https://llm.internal/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "sqlite", cfg.Workspace.Backend)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Handoff.RequireUpstreamData)

	settings := cfg.LoggingSettings()
	assert.True(t, settings.DebugMode)
	assert.Equal(t, "debug", settings.Level)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("retry:\n  max_attempts: 2\n"), 0644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "dir", cfg.Workspace.Backend)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAMPAIGNSMITH_PROVIDER", "openai")
	t.Setenv("CAMPAIGNSMITH_BACKEND", "sqlite")
	t.Setenv("CAMPAIGNSMITH_MAX_ATTEMPTS", "7")
	t.Setenv("CAMPAIGNSMITH_REQUIRE_UPSTREAM", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sqlite", cfg.Workspace.Backend)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Handoff.RequireUpstreamData)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "mystery"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Workspace.Backend = "s3"
	require.Error(t, cfg.Validate())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("llm:\n  provider: mystery\n"), 0644))
	_, err := Load(root)
	require.Error(t, err)
}

func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key-123")
	cfg := Default()
	assert.Equal(t, "test-key-123", cfg.APIKey())
}

func TestTimeouts(t *testing.T) {
	cfg := Default()
	assert.Equal(t, float64(120), cfg.LLMTimeout().Seconds())
	assert.Equal(t, float64(90), cfg.AttemptTimeout().Seconds())

	cfg.Retry.AttemptTimeoutSeconds = 0
	assert.Zero(t, cfg.AttemptTimeout())
}
