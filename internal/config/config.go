package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the orchestrator configuration
type Config struct {
	Port                int                       `yaml:"port"`
	Bind                string                    `yaml:"bind"`
	LogLevel            string                    `yaml:"log_level"`
	SessionLogDir       string                    `yaml:"session_log_dir"`  // Directory for per-invocation session logs
	DefaultProvider     string                    `yaml:"default_provider"` // Provider used when a request names none
	KillGrace           time.Duration             `yaml:"kill_grace"`       // Delay between SIGTERM and SIGKILL on cancel
	AvailabilityTimeout time.Duration             `yaml:"availability_timeout"`
	TokenHash           string                    `yaml:"token_hash"` // Optional argon2id hash guarding the HTTP API
	TLS                 TLSConfig                 `yaml:"tls"`
	Providers           map[string]ProviderConfig `yaml:"providers,omitempty"`
}

// TLSConfig enables HTTPS for the service. A self-signed certificate is
// generated at the given paths when none exists.
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// ProviderConfig holds per-provider overrides.
type ProviderConfig struct {
	Binary string `yaml:"binary"` // Path or name of the CLI binary
	Model  string `yaml:"model"`  // Model used when a request names none
}

// Defaults
const (
	DefaultPort                = 9100
	DefaultBind                = "127.0.0.1"
	DefaultLogLevel            = "info"
	DefaultProvider            = "claude"
	DefaultKillGrace           = 5 * time.Second
	DefaultAvailabilityTimeout = 5 * time.Second
	DefaultSessionLogDir       = "" // Derived from FOREMAN_ROOT or ~/.foreman/sessions
)

// KnownProviders lists the provider identifiers accepted in config.
// Kept in sync with provider.Types; config cannot import provider.
var KnownProviders = []string{
	"claude", "codex", "gemini", "opencode", "cursor",
	"aider", "copilot", "amp", "qwen",
}

func isKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}

func defaults() *Config {
	return &Config{
		Port:                DefaultPort,
		Bind:                DefaultBind,
		LogLevel:            DefaultLogLevel,
		SessionLogDir:       DefaultSessionLogDir,
		DefaultProvider:     DefaultProvider,
		KillGrace:           DefaultKillGrace,
		AvailabilityTimeout: DefaultAvailabilityTimeout,
	}
}

// Parse parses YAML config data
func Parse(data []byte) (*Config, error) {
	cfg := defaults()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.fillPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load loads config from a file path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Validate checks config validity
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if !isKnownProvider(c.DefaultProvider) {
		return fmt.Errorf("default_provider must be one of %v, got %q", KnownProviders, c.DefaultProvider)
	}

	for name := range c.Providers {
		if !isKnownProvider(name) {
			return fmt.Errorf("providers: unknown provider %q", name)
		}
	}

	if c.KillGrace < 100*time.Millisecond {
		return fmt.Errorf("kill_grace must be at least 100ms, got %v", c.KillGrace)
	}

	if c.AvailabilityTimeout < 100*time.Millisecond {
		return fmt.Errorf("availability_timeout must be at least 100ms, got %v", c.AvailabilityTimeout)
	}

	return nil
}

// Binary returns the configured binary override for a provider, if any.
func (c *Config) Binary(provider string) string {
	return c.Providers[provider].Binary
}

// Model returns the configured default model for a provider, if any.
func (c *Config) Model(provider string) string {
	return c.Providers[provider].Model
}

// Default returns a config with default values
func Default() *Config {
	cfg := defaults()
	cfg.fillPaths()
	return cfg
}

// fillPaths derives unset paths from Root.
func (c *Config) fillPaths() {
	if c.SessionLogDir == "" {
		c.SessionLogDir = DefaultSessionLogPath()
	}
	if c.TLS.Cert == "" {
		c.TLS.Cert = filepath.Join(Root(), "tls", "cert.pem")
	}
	if c.TLS.Key == "" {
		c.TLS.Key = filepath.Join(Root(), "tls", "key.pem")
	}
}

// Root returns the foreman state directory.
// Uses FOREMAN_ROOT env var if set, otherwise ~/.foreman
func Root() string {
	root := os.Getenv("FOREMAN_ROOT")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "/tmp"
		}
		root = filepath.Join(home, ".foreman")
	}
	return root
}

// DefaultSessionLogPath returns the default session log directory path.
func DefaultSessionLogPath() string {
	return filepath.Join(Root(), "sessions")
}
