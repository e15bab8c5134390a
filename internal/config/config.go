// Package config loads campaignsmith configuration from an optional YAML
// file with environment overrides. Missing files are not an error; every
// field has a usable default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"campaignsmith/internal/logging"
)

// ConfigFileName is looked up relative to the campaign root.
const ConfigFileName = "campaignsmith.yaml"

// LLMConfig selects the model provider for generation.
type LLMConfig struct {
	Provider       string `yaml:"provider"`    // gemini | openai
	Model          string `yaml:"model"`       // provider model id
	APIKeyEnv      string `yaml:"api_key_env"` // env var holding the key
	BaseURL        string `yaml:"base_url"`    // openai-compatible endpoint
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// WorkspaceConfig selects the artifact store backend.
type WorkspaceConfig struct {
	Backend string `yaml:"backend"` // dir | sqlite
	Root    string `yaml:"root"`
}

// RetryConfig bounds the generation retry loop.
type RetryConfig struct {
	MaxAttempts           int `yaml:"max_attempts"`
	AttemptTimeoutSeconds int `yaml:"attempt_timeout_seconds"`
}

// HandoffConfig controls broker policy.
type HandoffConfig struct {
	// RequireUpstreamData makes a handoff with no valid and no
	// reconstructable data an error instead of a degraded artifact.
	RequireUpstreamData bool `yaml:"require_upstream_data"`
}

// LoggingConfig mirrors logging.Settings in YAML form.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"`
	JSON       bool            `yaml:"json"`
	Categories map[string]bool `yaml:"categories"`
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	EventBuffer int `yaml:"event_buffer"`
}

// Config is the full campaignsmith configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Retry     RetryConfig     `yaml:"retry"`
	Handoff   HandoffConfig   `yaml:"handoff"`
	Logging   LoggingConfig   `yaml:"logging"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "gemini",
			Model:          "gemini-2.5-flash",
			APIKeyEnv:      "GEMINI_API_KEY",
			TimeoutSeconds: 120,
		},
		Workspace: WorkspaceConfig{
			Backend: "dir",
			Root:    ".",
		},
		Retry: RetryConfig{
			MaxAttempts:           5,
			AttemptTimeoutSeconds: 90,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Pipeline: PipelineConfig{
			EventBuffer: 64,
		},
	}
}

// Load reads the config file under root, applies environment overrides, and
// validates the result. A missing file yields the defaults.
func Load(root string) (*Config, error) {
	cfg := Default()
	if root != "" {
		cfg.Workspace.Root = root
	}

	path := filepath.Join(cfg.Workspace.Root, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets CI and one-off runs adjust the config without
// editing the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CAMPAIGNSMITH_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("CAMPAIGNSMITH_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("CAMPAIGNSMITH_BACKEND"); v != "" {
		cfg.Workspace.Backend = v
	}
	if v := os.Getenv("CAMPAIGNSMITH_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("CAMPAIGNSMITH_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.Debug = b
		}
	}
	if v := os.Getenv("CAMPAIGNSMITH_REQUIRE_UPSTREAM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Handoff.RequireUpstreamData = b
		}
	}
}

// Validate rejects configurations the rest of the system cannot honor.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Workspace.Backend {
	case "dir", "sqlite":
	default:
		return fmt.Errorf("config: unknown workspace backend %q", c.Workspace.Backend)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("config: retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// APIKey resolves the provider key from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}

// LLMTimeout returns the per-call timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	if c.LLM.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// AttemptTimeout returns the per-attempt timeout as a duration.
func (c *Config) AttemptTimeout() time.Duration {
	if c.Retry.AttemptTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Retry.AttemptTimeoutSeconds) * time.Second
}

// LoggingSettings converts the YAML form to the logging package's settings.
func (c *Config) LoggingSettings() logging.Settings {
	return logging.Settings{
		DebugMode:  c.Logging.Debug,
		Level:      c.Logging.Level,
		JSONFormat: c.Logging.JSON,
		Categories: c.Logging.Categories,
	}
}
