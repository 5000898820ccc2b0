// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, duration parsing and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "127.0.0.1:9000"
  shutdown_timeout: "3s"

database:
  path: "./test.db"

auth:
  jwt_secret: "sekrit"
  token_ttl: "2h"

relay:
  broadcast_scope: "global"
  error_frames: true
  persist_timeout: "2s"
  write_timeout: "1s"
  pong_wait: "30s"
  read_limit: 4096
  dedupe_ttl: "1m"
  dedupe_size: 50

translation:
  engine: "libretranslate"
  url: "http://localhost:5000"
  api_key: "lt-key"
  timeout: "4s"
  breaker_threshold: 3
  breaker_cooldown: "30s"

logging:
  level: "debug"
  format: "json"
  file: "logs/gateway.log"

telemetry:
  enabled: true
  dir: "otel"
  interval: "5s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9000")
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 3s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.JWTSecret != "sekrit" || cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("Auth = %+v", cfg.Auth)
	}

	assert.Equal(t, "global", cfg.Relay.BroadcastScope)
	assert.True(t, cfg.Relay.ErrorFrames)
	assert.Equal(t, 2*time.Second, cfg.Relay.PersistTimeout)
	assert.Equal(t, time.Second, cfg.Relay.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Relay.PongWait)
	assert.Equal(t, int64(4096), cfg.Relay.ReadLimit)
	assert.Equal(t, time.Minute, cfg.Relay.DedupeTTL)
	assert.Equal(t, 50, cfg.Relay.DedupeSize)

	assert.Equal(t, "libretranslate", cfg.Translation.Engine)
	assert.Equal(t, "http://localhost:5000", cfg.Translation.URL)
	assert.Equal(t, "lt-key", cfg.Translation.APIKey)
	assert.Equal(t, 4*time.Second, cfg.Translation.Timeout)
	assert.Equal(t, 3, cfg.Translation.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.Translation.BreakerCooldown)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "logs/gateway.log", cfg.Logging.File)

	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "otel", cfg.Telemetry.Dir)
	assert.Equal(t, 5*time.Second, cfg.Telemetry.Interval)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "gateway.toml", `
[server]
http_addr = ":7000"

[database]
path = "toml.db"

[relay]
broadcast_scope = "conversation"
persist_timeout = "750ms"

[translation]
engine = "nllb"
url = "http://nllb:6060"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.HTTPAddr)
	assert.Equal(t, "toml.db", cfg.Database.Path)
	assert.Equal(t, 750*time.Millisecond, cfg.Relay.PersistTimeout)
	assert.Equal(t, "nllb", cfg.Translation.Engine)
	assert.Equal(t, "http://nllb:6060", cfg.Translation.URL)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FLUENT_DB_PATH", "")
	path := writeConfig(t, "gateway.yaml", "logging:\n  level: warn\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.HTTPAddr)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, "conversation", cfg.Relay.BroadcastScope)
	assert.False(t, cfg.Relay.ErrorFrames)
	assert.Equal(t, DefaultPersistTimeout, cfg.Relay.PersistTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.Relay.WriteTimeout)
	assert.Equal(t, DefaultPongWait, cfg.Relay.PongWait)
	assert.Equal(t, int64(DefaultReadLimit), cfg.Relay.ReadLimit)
	assert.Equal(t, DefaultDedupeTTL, cfg.Relay.DedupeTTL)
	assert.Equal(t, DefaultDedupeSize, cfg.Relay.DedupeSize)
	assert.Equal(t, "passthrough", cfg.Translation.Engine)
	assert.Equal(t, DefaultTranslateTimeout, cfg.Translation.Timeout)
	assert.Equal(t, DefaultBreakerThreshold, cfg.Translation.BreakerThreshold)
	assert.Zero(t, cfg.Translation.BreakerCooldown, "open breaker stays open by default")
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, DefaultTelemetryDir, cfg.Telemetry.Dir)
	assert.Equal(t, "fluent-gateway", cfg.Telemetry.ServiceName)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "from-env")
	t.Setenv("TEST_GEMINI_KEY", "gm-key")

	path := writeConfig(t, "gateway.yaml", `
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
translation:
  engine: gemini
  api_key: "${TEST_GEMINI_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "gm-key", cfg.Translation.APIKey)
}

func TestLoad_DBPathOverride(t *testing.T) {
	t.Setenv("FLUENT_DB_PATH", "/var/lib/fluent/override.db")
	path := writeConfig(t, "gateway.yaml", "database:\n  path: file.db\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/fluent/override.db", cfg.Database.Path)
}

func TestLoad_NegativeBreakerThresholdKept(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", "translation:\n  breaker_threshold: -1\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Translation.BreakerThreshold, "negative threshold disables the breaker")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/gateway.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("error = %v, want reading config file", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", "server:\n  http_addr: [unclosed\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", "relay:\n  persist_timeout: \"soon\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay.persist_timeout")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "bad broadcast scope",
			mutate:  func(c *Config) { c.Relay.BroadcastScope = "room" },
			wantErr: "relay.broadcast_scope",
		},
		{
			name:    "unknown engine",
			mutate:  func(c *Config) { c.Translation.Engine = "babelfish" },
			wantErr: "unknown translation.engine",
		},
		{
			name:    "nllb without url",
			mutate:  func(c *Config) { c.Translation.Engine = "nllb" },
			wantErr: "translation.url is required",
		},
		{
			name:    "libretranslate without url",
			mutate:  func(c *Config) { c.Translation.Engine = "libretranslate" },
			wantErr: "translation.url is required",
		},
		{
			name:    "gemini without key",
			mutate:  func(c *Config) { c.Translation.Engine = "gemini" },
			wantErr: "translation.api_key is required",
		},
		{
			name:   "negative breaker threshold disables breaker",
			mutate: func(c *Config) { c.Translation.BreakerThreshold = -1 },
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FLUENT_TEST_A", "alpha")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${FLUENT_TEST_A}", "alpha"},
		{"pre-${FLUENT_TEST_A}-post", "pre-alpha-post"},
		{"${FLUENT_TEST_UNSET_VAR}", ""},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
