// Package config loads the daemon configuration from a YAML file with
// environment variable overrides. Environment wins over file, file wins over
// defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cosmo-os/cosmo/common/environment"
	"github.com/cosmo-os/cosmo/internal/cosmo/llm"
)

// Config is the full daemon configuration.
type Config struct {
	Backend      string        `yaml:"backend"`
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	DatabasePath string        `yaml:"database_path"`
	Timeout      time.Duration `yaml:"timeout"`
	ConfirmTTL   time.Duration `yaml:"confirm_ttl"`
	LogLevel     string        `yaml:"log_level"`
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist), applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fine, env and defaults carry the config.
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Backend:      string(llm.BackendOllama),
		DatabasePath: "cosmo.db",
		Timeout:      30 * time.Second,
		ConfirmTTL:   300 * time.Second,
		LogLevel:     "info",
	}
}

func applyEnv(cfg *Config) {
	cfg.Backend = environment.StringOr("COSMO_BACKEND", cfg.Backend)
	cfg.APIKey = environment.StringOr("COSMO_API_KEY", cfg.APIKey)
	cfg.BaseURL = environment.StringOr("COSMO_BASE_URL", cfg.BaseURL)
	cfg.Model = environment.StringOr("COSMO_MODEL", cfg.Model)
	cfg.DatabasePath = environment.StringOr("COSMO_DATABASE_PATH", cfg.DatabasePath)
	cfg.Timeout = environment.DurationOr("COSMO_TIMEOUT", cfg.Timeout)
	cfg.ConfirmTTL = environment.DurationOr("COSMO_CONFIRM_TTL", cfg.ConfirmTTL)
	cfg.LogLevel = environment.StringOr("COSMO_LOG_LEVEL", cfg.LogLevel)
}

// Validate checks cross-field constraints. The hosted backends need an API
// key; a local Ollama does not.
func (c *Config) Validate() error {
	switch llm.Backend(c.Backend) {
	case llm.BackendAnthropic, llm.BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("backend %q requires an api key", c.Backend)
		}
	case llm.BackendOllama:
		// Local endpoint, no credentials.
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.ConfirmTTL <= 0 {
		return fmt.Errorf("confirm_ttl must be positive, got %s", c.ConfirmTTL)
	}
	return nil
}

// LLM maps the daemon config onto the provider factory's config.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		Backend: llm.Backend(c.Backend),
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.Model,
		Timeout: c.Timeout,
	}
}
