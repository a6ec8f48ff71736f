// ABOUTME: Configuration loading and parsing for chatd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chatd configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Agents   AgentsConfig   `yaml:"agents"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration. When JWTSecret is
// empty the bot management endpoints are left open.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// AgentsConfig holds responder timing and backend configuration
type AgentsConfig struct {
	Timeout        time.Duration `yaml:"-"`
	StreamDebounce time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw        string `yaml:"timeout"`
	StreamDebounceRaw string `yaml:"stream_debounce"`

	Roles []RoleConfig `yaml:"roles"`
}

// RoleConfig describes one responder backend keyed by role type
type RoleConfig struct {
	RoleType     string `yaml:"role_type"`
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	SystemPrompt string `yaml:"system_prompt"`
	Default      bool   `yaml:"default"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // optional rotating log file
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
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

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	defaults := 0
	seen := make(map[string]bool)
	for i, role := range c.Agents.Roles {
		if role.RoleType == "" {
			return fmt.Errorf("agents.roles[%d].role_type is required", i)
		}
		if seen[role.RoleType] {
			return fmt.Errorf("agents.roles: duplicate role_type %q", role.RoleType)
		}
		seen[role.RoleType] = true
		if role.BaseURL == "" {
			return fmt.Errorf("agents.roles[%d].base_url is required", i)
		}
		if role.Model == "" {
			return fmt.Errorf("agents.roles[%d].model is required", i)
		}
		if role.Default {
			defaults++
		}
	}
	if len(c.Agents.Roles) > 0 && defaults != 1 {
		return fmt.Errorf("agents.roles: exactly one role must be marked default, got %d", defaults)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agents.TimeoutRaw != "" {
		cfg.Agents.Timeout, err = time.ParseDuration(cfg.Agents.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Agents.TimeoutRaw, err)
		}
	}

	if cfg.Agents.StreamDebounceRaw != "" {
		cfg.Agents.StreamDebounce, err = time.ParseDuration(cfg.Agents.StreamDebounceRaw)
		if err != nil {
			return fmt.Errorf("parsing stream_debounce %q: %w", cfg.Agents.StreamDebounceRaw, err)
		}
	}

	return nil
}
