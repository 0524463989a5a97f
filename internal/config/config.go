// ABOUTME: Configuration loading and parsing for the skiff client.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skiffworks/skiff/internal/rpc"
)

// Config is the complete client configuration.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Connection ConnectionConfig `yaml:"connection"`
	Logging    LoggingConfig    `yaml:"logging"`
	Journal    JournalConfig    `yaml:"journal"`
	Panel      PanelConfig      `yaml:"panel"`
}

// EngineConfig locates the engine socket.
type EngineConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ConnectionConfig holds reconnect timing.
type ConnectionConfig struct {
	PollInterval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	PollIntervalRaw string `yaml:"poll_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// JournalConfig holds the progress journal location. An empty path disables
// journaling.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// PanelConfig holds UI panel options.
type PanelConfig struct {
	RenderMarkdown bool `yaml:"render_markdown"`
}

// Default returns the configuration used when no file exists: local engine
// on the well-known port, fixed 500ms reconnect polling, no journal.
func Default() *Config {
	return &Config{
		Engine:     EngineConfig{Host: rpc.DefaultHost, Port: rpc.DefaultPort},
		Connection: ConnectionConfig{PollInterval: rpc.DefaultPollInterval},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
		Panel:      PanelConfig{RenderMarkdown: true},
	}
}

// Load reads a configuration file and returns a parsed Config. Environment
// variables in the format ${VAR_NAME} are expanded. Missing fields fall
// back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Endpoint returns the engine endpoint described by the config.
func (c *Config) Endpoint() rpc.Endpoint {
	return rpc.Endpoint{Host: c.Engine.Host, Port: c.Engine.Port}
}

// Validate checks that all fields are usable. Returns an error describing
// the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Engine.Host == "" {
		return fmt.Errorf("engine.host is required")
	}
	if c.Engine.Port <= 0 || c.Engine.Port > 65535 {
		return fmt.Errorf("engine.port %d is out of range", c.Engine.Port)
	}
	if c.Connection.PollInterval <= 0 {
		return fmt.Errorf("connection.poll_interval must be positive")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
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

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Connection.PollIntervalRaw != "" {
		interval, err := time.ParseDuration(cfg.Connection.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Connection.PollIntervalRaw, err)
		}
		cfg.Connection.PollInterval = interval
	}
	return nil
}
