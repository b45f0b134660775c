// Package config handles configuration loading, defaulting and validation.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "go.yaml.in/yaml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"config.toml",
	"config.yaml",
	"config.json",
	"/etc/relay-proxy/config.toml",
}

// reservedRoutes are paths owned by the proxy's own handlers.
var reservedRoutes = []string{"/", "/proxy", "/healthz", "/proxy/status", "/__dev"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to config file (.toml, .yaml, .json).',env='CONFIG_PATH'"`
	Host       string `kong:"help='Bind address (overrides config).',env='HOST'"`
	Port       int    `kong:"short='p',help='Bind port (overrides config).',env='PORT'"`
	HeaderAuth string `kong:"help='Shared secret required in the header_auth request header (overrides config).',env='HEADER_AUTH'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Dev        bool   `kong:"help='Enable the /__dev request echo endpoint.',env='DEV'"`
}

// Config is the top-level application configuration. It is read-only once Load returns.
type Config struct {
	BindAddress  string         `toml:"bind_address" yaml:"bind_address" json:"bind_address"`
	BindPort     int            `toml:"bind_port" yaml:"bind_port" json:"bind_port"` // 0 means "use default" (8080)
	LogLevel     string         `toml:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat    string         `toml:"log_format" yaml:"log_format" json:"log_format"`
	BodyMaxBytes int64          `toml:"body_max_bytes" yaml:"body_max_bytes" json:"body_max_bytes"`
	Auth         *AuthConfig    `toml:"auth" yaml:"auth" json:"auth"`
	Upstream     UpstreamConfig `toml:"upstream" yaml:"upstream" json:"upstream"`
	Metrics      MetricsConfig  `toml:"metrics" yaml:"metrics" json:"metrics"`
	Dev          DevConfig      `toml:"dev" yaml:"dev" json:"dev"`

	filePath string   // resolved config file path (unexported)
	warnings []string // load problems reported once a logger exists
}

// AuthConfig holds the shared-secret header authentication policy.
// A nil HeaderAuth disables authentication; an empty string is still enforced.
type AuthConfig struct {
	HeaderAuth *string `toml:"header_auth" yaml:"header_auth" json:"header_auth"`
}

// UpstreamConfig holds outbound connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections" yaml:"idle_connections" json:"idle_connections"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `toml:"path" yaml:"path" json:"path"`
}

// DevConfig controls development-only endpoints.
type DevConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled" json:"enabled"`
}

// Load reads the config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// configSearchPaths in order. A missing, unparsable or invalid file is not
// fatal: the defaults are used and a warning is kept for LogWarnings. Invalid
// CLI or env overrides are returned as errors.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	cfg := &Config{}
	if path == "" {
		cfg.warn("config file not found, using default config")
	} else if err := readFile(path, cfg); err != nil {
		cfg = &Config{}
		cfg.warn(err.Error() + ", using default config")
	} else if err := cfg.validate(); err != nil {
		cfg = &Config{}
		cfg.warn(fmt.Sprintf("config: invalid value in %s: %v, using default config", path, err))
	} else {
		cfg.filePath = path
	}

	// Only CLI flags and env vars can fail validation from here on.
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return cfg, nil
}

// readFile decodes path into cfg using the decoder matching its extension.
func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) warn(msg string) {
	c.warnings = append(c.warnings, msg)
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.BindAddress = cli.Host
	}
	if cli.Port != 0 {
		c.BindPort = cli.Port
	}
	if cli.HeaderAuth != "" {
		secret := cli.HeaderAuth
		c.Auth = &AuthConfig{HeaderAuth: &secret}
	}
	if cli.LogLevel != "" {
		c.LogLevel = cli.LogLevel
	}
	if cli.Dev {
		c.Dev.Enabled = true
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.BindPort < 0 || c.BindPort > 65535 {
		return fmt.Errorf("bind_port must be 0–65535; got %d", c.BindPort)
	}
	if c.BodyMaxBytes < 0 {
		return fmt.Errorf("body_max_bytes must be non-negative; got %d", c.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}

	// Log fields.
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log_level must be one of: debug, info, warn, error; got %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log_format must be one of: json, text; got %q", c.LogFormat)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || (reserved != "/" && strings.HasPrefix(p, reserved+"/")) {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with defaults.
// Zero means "unset" for integer fields, so bind_port = 0 yields 8080.
func (c *Config) setDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = "127.0.0.1"
	}
	if c.BindPort == 0 {
		c.BindPort = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.BodyMaxBytes == 0 {
		c.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.BindPort)
}

// SharedSecret returns the configured header_auth secret, or nil when
// authentication is disabled.
func (c *Config) SharedSecret() *string {
	if c.Auth == nil {
		return nil
	}
	return c.Auth.HeaderAuth
}

// FilePath returns the config file the values were read from, or empty
// string when defaults are in use.
func (c *Config) FilePath() string {
	return c.filePath
}

// LogWarnings reports problems encountered while loading.
func (c *Config) LogWarnings(logger *slog.Logger) {
	for _, w := range c.warnings {
		logger.Warn(w)
	}
	if c.filePath != "" {
		logger.Info("config loaded from file", "path", c.filePath)
	}
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
