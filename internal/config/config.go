// ABOUTME: Configuration loading and parsing for the chat client
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chat client configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Chat      ChatConfig      `yaml:"chat"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the backend endpoints.
type ServerConfig struct {
	// WSURL is the websocket endpoint for the wire connection.
	WSURL string `yaml:"ws_url"`

	// APIBaseURL is the REST collaborator's base URL.
	APIBaseURL string `yaml:"api_base_url"`
}

// ChatConfig holds the wire destinations and negotiation values.
type ChatConfig struct {
	InboundQueue    string `yaml:"inbound_queue"`
	SendDestination string `yaml:"send_destination"`
	AcceptVersion   string `yaml:"accept_version"`
	HeartBeat       string `yaml:"heart_beat"`
	PageSize        int    `yaml:"page_size"`
}

// DiscoveryConfig holds the new-conversation poll cadence and its bound.
type DiscoveryConfig struct {
	InitialDelay time.Duration `yaml:"-"`
	RetryDelay   time.Duration `yaml:"-"`
	MaxAttempts  int           `yaml:"max_attempts"`

	// Raw string values for YAML unmarshaling
	InitialDelayRaw string `yaml:"initial_delay"`
	RetryDelayRaw   string `yaml:"retry_delay"`
}

// ReconnectConfig holds the optional transport-failure reconnect policy.
// Disabled by default; when enabled, a failed connection is retried once
// per delay with the last credential.
type ReconnectConfig struct {
	Enabled bool          `yaml:"enabled"`
	Delay   time.Duration `yaml:"-"`

	DelayRaw string `yaml:"delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
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

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. If the environment variable is not set, it
// is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in the fixed well-known protocol values and cadences.
func (c *Config) applyDefaults() {
	if c.Chat.InboundQueue == "" {
		c.Chat.InboundQueue = "/user/queue/messages"
	}
	if c.Chat.SendDestination == "" {
		c.Chat.SendDestination = "/app/chat.sendMessage"
	}
	if c.Chat.AcceptVersion == "" {
		c.Chat.AcceptVersion = "1.1,1.2"
	}
	if c.Chat.HeartBeat == "" {
		c.Chat.HeartBeat = "10000,10000"
	}
	if c.Chat.PageSize <= 0 {
		c.Chat.PageSize = 50
	}
	if c.Discovery.InitialDelay <= 0 {
		c.Discovery.InitialDelay = time.Second
	}
	if c.Discovery.RetryDelay <= 0 {
		c.Discovery.RetryDelay = 1500 * time.Millisecond
	}
	if c.Discovery.MaxAttempts <= 0 {
		c.Discovery.MaxAttempts = 8
	}
	if c.Reconnect.Delay <= 0 {
		c.Reconnect.Delay = 3 * time.Second
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure
// encountered.
func (c *Config) Validate() error {
	if c.Server.WSURL == "" {
		return fmt.Errorf("server.ws_url is required")
	}
	if c.Server.APIBaseURL == "" {
		return fmt.Errorf("server.api_base_url is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Discovery.InitialDelayRaw != "" {
		cfg.Discovery.InitialDelay, err = time.ParseDuration(cfg.Discovery.InitialDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing initial_delay %q: %w", cfg.Discovery.InitialDelayRaw, err)
		}
	}

	if cfg.Discovery.RetryDelayRaw != "" {
		cfg.Discovery.RetryDelay, err = time.ParseDuration(cfg.Discovery.RetryDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing retry_delay %q: %w", cfg.Discovery.RetryDelayRaw, err)
		}
	}

	if cfg.Reconnect.DelayRaw != "" {
		cfg.Reconnect.Delay, err = time.ParseDuration(cfg.Reconnect.DelayRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect delay %q: %w", cfg.Reconnect.DelayRaw, err)
		}
	}

	return nil
}
