package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all process-level configuration. User-facing settings (sync
// interval, push channels, AI backend) live in the database singleton, not
// here.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Security  SecurityConfig  `toml:"security"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Scheduler SchedulerConfig `toml:"scheduler"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `toml:"port"`
}

// SecurityConfig holds the secret key used to encrypt settings at rest.
type SecurityConfig struct {
	SecretKey string `toml:"secret_key"`
}

// ProxyConfig holds optional outbound proxy URLs, applied to GitHub requests
// always and to push notifications only when the user enables the push-proxy
// setting.
type ProxyConfig struct {
	HTTPProxy  string `toml:"http_proxy"`
	HTTPSProxy string `toml:"https_proxy"`
}

// ProxyURL returns the proxy to use for outbound push requests, preferring
// the HTTPS proxy when both are set. Empty means direct connection.
func (c *Config) ProxyURL() string {
	if c.Proxy.HTTPSProxy != "" {
		return c.Proxy.HTTPSProxy
	}
	return c.Proxy.HTTPProxy
}

// SchedulerConfig holds background scheduler settings.
type SchedulerConfig struct {
	InitialDelaySeconds int `toml:"initial_delay_seconds"`
}

const defaultConfigContent = `[server]
port = 8080

[security]
secret_key = ""                   # Required. Any long random string (or set SECRET_KEY env var)

[proxy]
http_proxy = ""                   # Optional, e.g. "http://127.0.0.1:7890"
https_proxy = ""

[scheduler]
initial_delay_seconds = 10        # Delay before the first background sync cycle
`

// Load reads and parses the TOML config from the given path. If the file does
// not exist, it creates a default config file at that path. Environment
// variables override values from the file with highest priority.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
		slog.Info("created default config file", "path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Validate explicitly-set values before applying defaults, so that
	// explicitly writing "port = 0" is an error rather than silently being
	// replaced with the default.
	if md.IsDefined("server", "port") {
		if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
			return nil, fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// createDefault writes the default config content to the given path,
// creating any parent directories as needed.
func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigContent), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// applyDefaults sets default values for any zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Scheduler.InitialDelaySeconds == 0 {
		cfg.Scheduler.InitialDelaySeconds = 10
	}
}

// applyEnvOverrides applies environment variable overrides. Environment
// variables take highest priority over config file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.Security.SecretKey = v
	}
	if v := os.Getenv("HTTP_PROXY"); v != "" {
		cfg.Proxy.HTTPProxy = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy.HTTPSProxy = v
	}
}

// validate checks that configuration values are within acceptable ranges.
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
	}

	if cfg.Security.SecretKey == "" {
		return fmt.Errorf("security.secret_key is required: set it in the config file or via SECRET_KEY environment variable")
	}

	if cfg.Scheduler.InitialDelaySeconds < 0 {
		return fmt.Errorf("invalid scheduler.initial_delay_seconds %d: must be >= 0", cfg.Scheduler.InitialDelaySeconds)
	}

	return nil
}
