package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const appName = "stmbot"

// Config is the stmbot configuration file
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Dialogue DialogueConfig `yaml:"dialogue"`
	Chat     ChatConfig     `yaml:"chat"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

// DatabaseConfig locates the SQLite file. An empty path uses the XDG data dir.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures zap
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// DialogueConfig configures pending prompts
type DialogueConfig struct {
	// TTL after which an unanswered prompt is dropped. "0" keeps prompts forever.
	TTL string `yaml:"ttl"`
}

// ChatConfig configures the terminal chat
type ChatConfig struct {
	Owner int64 `yaml:"owner"`
}

// GatewayConfig configures the websocket gateway
type GatewayConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Dialogue: DialogueConfig{TTL: "30m"},
		Chat:     ChatConfig{Owner: 1},
		Gateway:  GatewayConfig{Listen: ":8080"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// Save writes the configuration as YAML, creating the directory if needed
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("STMBOT_DB"); path != "" {
		c.Database.Path = path
	}
	if level := os.Getenv("STMBOT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if addr := os.Getenv("STMBOT_LISTEN"); addr != "" {
		c.Gateway.Listen = addr
	}
	if owner := os.Getenv("STMBOT_OWNER"); owner != "" {
		if n, err := strconv.ParseInt(owner, 10, 64); err == nil {
			c.Chat.Owner = n
		}
	}
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if _, err := c.DialogueTTL(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	return nil
}

// DialogueTTL parses the prompt timeout. Empty and "0" disable it.
func (c *Config) DialogueTTL() (time.Duration, error) {
	if c.Dialogue.TTL == "" || c.Dialogue.TTL == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Dialogue.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid dialogue ttl %q: %w", c.Dialogue.TTL, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative dialogue ttl %q", c.Dialogue.TTL)
	}
	return d, nil
}

// DefaultPath is $XDG_CONFIG_HOME/stmbot/config.yaml
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, appName, "config.yaml"), nil
}
