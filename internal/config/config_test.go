// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"

agents:
  timeout: "90s"
  stream_debounce: "100ms"
  roles:
    - role_type: "ttc_assistant"
      model: "gpt-4o-mini"
      base_url: "https://api.openai.com/v1"
      api_key: "sk-test"
      system_prompt: "You are a helpful assistant."
      default: true
    - role_type: "summarizer"
      model: "gpt-4o-mini"
      base_url: "https://api.openai.com/v1"
      api_key: "sk-test"

logging:
  level: "debug"
  format: "json"
  file: "./chatd.log"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "test-secret")
	}

	if cfg.Agents.Timeout != 90*time.Second {
		t.Errorf("Agents.Timeout = %v, want %v", cfg.Agents.Timeout, 90*time.Second)
	}
	if cfg.Agents.StreamDebounce != 100*time.Millisecond {
		t.Errorf("Agents.StreamDebounce = %v, want %v", cfg.Agents.StreamDebounce, 100*time.Millisecond)
	}

	if len(cfg.Agents.Roles) != 2 {
		t.Fatalf("len(Agents.Roles) = %d, want 2", len(cfg.Agents.Roles))
	}
	if cfg.Agents.Roles[0].RoleType != "ttc_assistant" {
		t.Errorf("Roles[0].RoleType = %q, want %q", cfg.Agents.Roles[0].RoleType, "ttc_assistant")
	}
	if !cfg.Agents.Roles[0].Default {
		t.Error("Roles[0].Default = false, want true")
	}
	if cfg.Agents.Roles[1].Default {
		t.Error("Roles[1].Default = true, want false")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.File != "./chatd.log" {
		t.Errorf("Logging.File = %q, want %q", cfg.Logging.File, "./chatd.log")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TTC_TEST_SECRET", "expanded-secret")
	t.Setenv("TTC_TEST_API_KEY", "sk-from-env")

	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "${TTC_TEST_SECRET}"
agents:
  roles:
    - role_type: "ttc_assistant"
      model: "gpt-4o-mini"
      base_url: "https://api.openai.com/v1"
      api_key: "${TTC_TEST_API_KEY}"
      default: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "expanded-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "expanded-secret")
	}
	if cfg.Agents.Roles[0].APIKey != "sk-from-env" {
		t.Errorf("Roles[0].APIKey = %q, want %q", cfg.Agents.Roles[0].APIKey, "sk-from-env")
	}
}

func TestLoad_UnsetEnvVarExpandsToEmpty(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "${TTC_DEFINITELY_NOT_SET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Errorf("Auth.JWTSecret = %q, want empty", cfg.Auth.JWTSecret)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
agents:
  timeout: "ninety seconds"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("error %q should mention timeout", err)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantSub string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./test.db"
`,
			wantSub: "http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: ":8080"
`,
			wantSub: "database.path",
		},
		{
			name: "no default role",
			content: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
agents:
  roles:
    - role_type: "a"
      model: "m"
      base_url: "http://x"
`,
			wantSub: "default",
		},
		{
			name: "two default roles",
			content: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
agents:
  roles:
    - role_type: "a"
      model: "m"
      base_url: "http://x"
      default: true
    - role_type: "b"
      model: "m"
      base_url: "http://x"
      default: true
`,
			wantSub: "default",
		},
		{
			name: "duplicate role types",
			content: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
agents:
  roles:
    - role_type: "a"
      model: "m"
      base_url: "http://x"
      default: true
    - role_type: "a"
      model: "m"
      base_url: "http://x"
`,
			wantSub: "duplicate",
		},
		{
			name: "role missing base_url",
			content: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
agents:
  roles:
    - role_type: "a"
      model: "m"
      default: true
`,
			wantSub: "base_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoad_NoRolesIsValid(t *testing.T) {
	// A store-only deployment can run without any responder backends.
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Agents.Roles) != 0 {
		t.Errorf("len(Agents.Roles) = %d, want 0", len(cfg.Agents.Roles))
	}
}
