// ABOUTME: Configuration loading and parsing for chat-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chat-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Typing     TypingConfig     `yaml:"typing"`
	Dedupe     DedupeConfig     `yaml:"dedupe"`
	Connection ConnectionConfig `yaml:"connection"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds message store configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds handshake authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// TypingConfig holds typing indicator timing configuration
type TypingConfig struct {
	DebounceWindow time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	DebounceWindowRaw string `yaml:"debounce_window"`
}

// DedupeConfig holds the per-connection seen-id cache configuration
type DedupeConfig struct {
	TTL        time.Duration `yaml:"-"`
	MaxEntries int           `yaml:"max_entries"`

	TTLRaw string `yaml:"ttl"`
}

// ConnectionConfig holds per-connection websocket tuning
type ConnectionConfig struct {
	EgressBuffer    int `yaml:"egress_buffer"`
	MaxMessageBytes int `yaml:"max_message_bytes"`

	WriteTimeout time.Duration `yaml:"-"`
	PongTimeout  time.Duration `yaml:"-"`

	WriteTimeoutRaw string `yaml:"write_timeout"`
	PongTimeoutRaw  string `yaml:"pong_timeout"`
}

// PingInterval derives the ping period from the pong timeout so pings always
// arrive before the read deadline expires.
func (c ConnectionConfig) PingInterval() time.Duration {
	return c.PongTimeout * 9 / 10
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default configuration values.
const (
	DefaultHTTPAddr        = "localhost:8080"
	DefaultDatabasePath    = "chat-gateway.db"
	DefaultDebounceWindow  = 4 * time.Second
	DefaultDedupeTTL       = 5 * time.Minute
	DefaultDedupeEntries   = 10_000
	DefaultEgressBuffer    = 64
	DefaultMaxMessageBytes = 64 * 1024
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPongTimeout     = 60 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts raw duration strings into time.Duration fields.
func parseDurations(cfg *Config) error {
	parse := func(field, raw string, out *time.Duration) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, raw, err)
		}
		*out = d
		return nil
	}

	if err := parse("typing.debounce_window", cfg.Typing.DebounceWindowRaw, &cfg.Typing.DebounceWindow); err != nil {
		return err
	}
	if err := parse("dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL); err != nil {
		return err
	}
	if err := parse("connection.write_timeout", cfg.Connection.WriteTimeoutRaw, &cfg.Connection.WriteTimeout); err != nil {
		return err
	}
	if err := parse("connection.pong_timeout", cfg.Connection.PongTimeoutRaw, &cfg.Connection.PongTimeout); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Typing.DebounceWindow == 0 {
		c.Typing.DebounceWindow = DefaultDebounceWindow
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = DefaultDedupeTTL
	}
	if c.Dedupe.MaxEntries == 0 {
		c.Dedupe.MaxEntries = DefaultDedupeEntries
	}
	if c.Connection.EgressBuffer == 0 {
		c.Connection.EgressBuffer = DefaultEgressBuffer
	}
	if c.Connection.MaxMessageBytes == 0 {
		c.Connection.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.PongTimeout == 0 {
		c.Connection.PongTimeout = DefaultPongTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields are present and consistent.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Typing.DebounceWindow < 0 {
		return fmt.Errorf("typing.debounce_window must be positive")
	}
	if c.Dedupe.TTL < 0 {
		return fmt.Errorf("dedupe.ttl must be positive")
	}
	if c.Dedupe.MaxEntries < 0 {
		return fmt.Errorf("dedupe.max_entries must be positive")
	}
	if c.Connection.EgressBuffer < 1 {
		return fmt.Errorf("connection.egress_buffer must be at least 1")
	}
	if c.Connection.PongTimeout < time.Second {
		return fmt.Errorf("connection.pong_timeout must be at least 1s")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}
	return nil
}
