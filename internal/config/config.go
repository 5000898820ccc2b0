// ABOUTME: Configuration loading and parsing for fluent-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete fluent-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Relay       RelayConfig       `yaml:"relay" toml:"relay"`
	Translation TranslationConfig `yaml:"translation" toml:"translation"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" toml:"telemetry"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration. An empty JWTSecret leaves
// the API open, matching a local development setup.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-" toml:"-"`

	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// RelayConfig tunes the WebSocket conversation relay
type RelayConfig struct {
	BroadcastScope string `yaml:"broadcast_scope" toml:"broadcast_scope"` // "conversation" or "global"
	ErrorFrames    bool   `yaml:"error_frames" toml:"error_frames"`
	ReadLimit      int64  `yaml:"read_limit" toml:"read_limit"`
	DedupeSize     int    `yaml:"dedupe_size" toml:"dedupe_size"`

	PersistTimeout time.Duration `yaml:"-" toml:"-"`
	WriteTimeout   time.Duration `yaml:"-" toml:"-"`
	PongWait       time.Duration `yaml:"-" toml:"-"`
	DedupeTTL      time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	PersistTimeoutRaw string `yaml:"persist_timeout" toml:"persist_timeout"`
	WriteTimeoutRaw   string `yaml:"write_timeout" toml:"write_timeout"`
	PongWaitRaw       string `yaml:"pong_wait" toml:"pong_wait"`
	DedupeTTLRaw      string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// TranslationConfig selects and bounds the translation engine
type TranslationConfig struct {
	Engine           string `yaml:"engine" toml:"engine"` // passthrough, nllb, libretranslate, gemini
	URL              string `yaml:"url" toml:"url"`
	APIKey           string `yaml:"api_key" toml:"api_key"`
	Model            string `yaml:"model" toml:"model"`
	BreakerThreshold int    `yaml:"breaker_threshold" toml:"breaker_threshold"` // negative disables the breaker

	Timeout         time.Duration `yaml:"-" toml:"-"`
	BreakerCooldown time.Duration `yaml:"-" toml:"-"` // zero keeps an open breaker open

	TimeoutRaw         string `yaml:"timeout" toml:"timeout"`
	BreakerCooldownRaw string `yaml:"breaker_cooldown" toml:"breaker_cooldown"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"` // "text" or "json"
	File       string `yaml:"file" toml:"file"`     // optional rotated log file
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// TelemetryConfig controls OpenTelemetry metrics and traces written to rotated files
type TelemetryConfig struct {
	Enabled     bool          `yaml:"enabled" toml:"enabled"`
	Dir         string        `yaml:"dir" toml:"dir"`
	ServiceName string        `yaml:"service_name" toml:"service_name"`
	Interval    time.Duration `yaml:"-" toml:"-"`

	IntervalRaw string `yaml:"interval" toml:"interval"`
}

// Defaults applied to fields left empty in the file.
const (
	DefaultHTTPAddr         = ":8000"
	DefaultDatabasePath     = "fluent.db"
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultPersistTimeout   = 5 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPongWait         = 60 * time.Second
	DefaultReadLimit        = 64 * 1024
	DefaultDedupeTTL        = 10 * time.Minute
	DefaultDedupeSize       = 10000
	DefaultTranslateTimeout = 10 * time.Second
	DefaultBreakerThreshold = 5
	DefaultTelemetryDir     = "logs"
	DefaultTelemetryPeriod  = 10 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, and
// FLUENT_DB_PATH overrides database.path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(string(data), formatFor(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Format names accepted by Parse.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

func formatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes configuration text in the given format and applies
// expansion, defaults, durations, overrides and validation.
func Parse(text, format string) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(text)

	var cfg Config
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if dbPath := os.Getenv("FLUENT_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills zero-valued fields. Durations explicitly set to "0"
// stay zero only where zero is meaningful (breaker cooldown).
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}

	if c.Relay.BroadcastScope == "" {
		c.Relay.BroadcastScope = "conversation"
	}
	if c.Relay.PersistTimeout == 0 {
		c.Relay.PersistTimeout = DefaultPersistTimeout
	}
	if c.Relay.WriteTimeout == 0 {
		c.Relay.WriteTimeout = DefaultWriteTimeout
	}
	if c.Relay.PongWait == 0 {
		c.Relay.PongWait = DefaultPongWait
	}
	if c.Relay.ReadLimit == 0 {
		c.Relay.ReadLimit = DefaultReadLimit
	}
	if c.Relay.DedupeTTL == 0 {
		c.Relay.DedupeTTL = DefaultDedupeTTL
	}
	if c.Relay.DedupeSize == 0 {
		c.Relay.DedupeSize = DefaultDedupeSize
	}

	if c.Translation.Engine == "" {
		c.Translation.Engine = "passthrough"
	}
	c.Translation.Engine = strings.ToLower(c.Translation.Engine)
	if c.Translation.Timeout == 0 {
		c.Translation.Timeout = DefaultTranslateTimeout
	}
	if c.Translation.BreakerThreshold == 0 {
		c.Translation.BreakerThreshold = DefaultBreakerThreshold
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Telemetry.Dir == "" {
		c.Telemetry.Dir = DefaultTelemetryDir
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "fluent-gateway"
	}
	if c.Telemetry.Interval == 0 {
		c.Telemetry.Interval = DefaultTelemetryPeriod
	}
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

	switch c.Relay.BroadcastScope {
	case "conversation", "global":
	default:
		return fmt.Errorf("relay.broadcast_scope must be \"conversation\" or \"global\", got %q", c.Relay.BroadcastScope)
	}
	if c.Relay.DedupeSize < 0 {
		return fmt.Errorf("relay.dedupe_size must not be negative")
	}
	if c.Relay.ReadLimit < 0 {
		return fmt.Errorf("relay.read_limit must not be negative")
	}

	switch c.Translation.Engine {
	case "passthrough":
	case "nllb", "libretranslate":
		if c.Translation.URL == "" {
			return fmt.Errorf("translation.url is required for the %s engine", c.Translation.Engine)
		}
	case "gemini":
		if c.Translation.APIKey == "" {
			return fmt.Errorf("translation.api_key is required for the gemini engine")
		}
	default:
		return fmt.Errorf("unknown translation.engine %q", c.Translation.Engine)
	}
	if c.Translation.BreakerCooldown < 0 {
		return fmt.Errorf("translation.breaker_cooldown must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"relay.persist_timeout", cfg.Relay.PersistTimeoutRaw, &cfg.Relay.PersistTimeout},
		{"relay.write_timeout", cfg.Relay.WriteTimeoutRaw, &cfg.Relay.WriteTimeout},
		{"relay.pong_wait", cfg.Relay.PongWaitRaw, &cfg.Relay.PongWait},
		{"relay.dedupe_ttl", cfg.Relay.DedupeTTLRaw, &cfg.Relay.DedupeTTL},
		{"translation.timeout", cfg.Translation.TimeoutRaw, &cfg.Translation.Timeout},
		{"translation.breaker_cooldown", cfg.Translation.BreakerCooldownRaw, &cfg.Translation.BreakerCooldown},
		{"telemetry.interval", cfg.Telemetry.IntervalRaw, &cfg.Telemetry.Interval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
