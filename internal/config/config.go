package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/pm/internal/logging"
)

// Mutation policies for the collection store.
const (
	PolicyPessimistic = "pessimistic"
	PolicyOptimistic  = "optimistic"
)

// RetryConfig controls retries of idempotent remote calls.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// APIConfig points pm at the backend.
type APIConfig struct {
	BaseURL        string            `yaml:"base_url"`
	Timeout        time.Duration     `yaml:"timeout"`
	DefaultHeaders map[string]string `yaml:"default_headers"`
	Retry          RetryConfig       `yaml:"retry"`
}

// CacheConfig locates the local SQLite mirror.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// Config is the whole of ~/.pm/config.yaml.
type Config struct {
	API             APIConfig      `yaml:"api"`
	RefreshInterval time.Duration  `yaml:"refresh_interval"`
	PageLimit       int            `yaml:"page_limit"`
	MutationPolicy  string         `yaml:"mutation_policy"`
	Log             logging.Config `yaml:"log"`
	Cache           CacheConfig    `yaml:"cache"`
	SessionPath     string         `yaml:"session_path"`
}

// Dir returns pm's home directory (~/.pm).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".pm"), nil
}

// DefaultPath returns ~/.pm/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file at path. A missing file yields defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PM_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("PM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) applyDefaults() error {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:5000"
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.Timeout <= 0 {
		c.API.Timeout = 10 * time.Second
	}
	if c.API.DefaultHeaders == nil {
		c.API.DefaultHeaders = map[string]string{}
	}
	if c.API.Retry.MaxAttempts <= 0 {
		c.API.Retry.MaxAttempts = 3
	}
	if c.API.Retry.InitialBackoff <= 0 {
		c.API.Retry.InitialBackoff = 200 * time.Millisecond
	}
	if c.API.Retry.MaxBackoff <= 0 {
		c.API.Retry.MaxBackoff = 2 * time.Second
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 30 * time.Second
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 10
	}
	if c.MutationPolicy == "" {
		c.MutationPolicy = PolicyPessimistic
	}
	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}

	if c.Cache.Path == "" || c.SessionPath == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if c.Cache.Path == "" {
			c.Cache.Path = filepath.Join(dir, "cache.db")
		}
		if c.SessionPath == "" {
			c.SessionPath = filepath.Join(dir, "session.json")
		}
	}
	return nil
}

// Validate rejects settings pm cannot run with.
func (c *Config) Validate() error {
	switch c.MutationPolicy {
	case PolicyPessimistic, PolicyOptimistic:
	default:
		return fmt.Errorf("invalid mutation_policy %q: use %s or %s", c.MutationPolicy, PolicyPessimistic, PolicyOptimistic)
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("invalid api.base_url %q: must start with http:// or https://", c.API.BaseURL)
	}
	return nil
}
