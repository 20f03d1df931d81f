package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition, evaluated against
// the active shift's metrics.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "loss_rate > 5", "efficiency < 80",
	// "throughput_per_hour < 100".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHost              = "0.0.0.0"
	DefaultHTTPPort          = 5000
	DefaultHistoryDays       = 10
	DefaultBroadcastInterval = 5 * time.Second
	DefaultLogLevel          = "info"
	DefaultDatabasePath      = "kalfix.db"
	DefaultCertFile          = "cert.pem"
	DefaultKeyFile           = "key.pem"

	DefaultRetryAttempts = 4
	DefaultRetryInitial  = 50 * time.Millisecond
	DefaultRetryMax      = time.Second
)

// Environment overrides, applied after the file is parsed.
const (
	EnvDatabasePath     = "KALFIX_DATABASE_PATH"
	EnvIgnoreShiftCheck = "KALFIX_IGNORE_SHIFT_CHECK"
)

// Config is the full server configuration parsed from config.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// ServerConfig holds the HTTP listener and runtime settings.
type ServerConfig struct {
	// Host is the interface the HTTP server binds to (default 0.0.0.0).
	Host string `yaml:"host"`

	// HTTPPort serves the device endpoint, REST API, WebSocket hub and
	// /metrics (default 5000).
	HTTPPort int `yaml:"http_port"`

	// Timezone is the IANA location shift windows are evaluated in.
	// Empty means the host's local time.
	Timezone string `yaml:"timezone"`

	// IgnoreShiftCheck skips shift resolution on pulse reports. Hot-reloadable.
	IgnoreShiftCheck bool `yaml:"ignore_shift_check"`

	// HistoryDays is how many days the dashboard history grid covers (default 10).
	HistoryDays int `yaml:"history_days"`

	// BroadcastInterval is the status push (and shift tick) period (default 5s).
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// LogLevel is one of debug | info | warn | error. Hot-reloadable.
	LogLevel string `yaml:"log_level"`

	TLS  TLSConfig  `yaml:"tls"`
	Auth AuthConfig `yaml:"auth"`
}

// TLSConfig enables HTTPS when both files exist.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Available reports whether TLS is enabled and both files are readable.
func (t TLSConfig) Available() bool {
	if !t.Enabled {
		return false
	}
	for _, p := range []string{t.CertFile, t.KeyFile} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// AuthConfig controls authentication of the administrative REST routes.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// DatabaseConfig locates the SQLite database and bounds storage retries.
type DatabaseConfig struct {
	Path  string      `yaml:"path"`
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig bounds retries of transient storage failures.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.HTTPPort))
}

// Location resolves Timezone.
func (s ServerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Level parses LogLevel.
func (s ServerConfig) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, err
	}
	return l, nil
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before unmarshalling; environment overrides are applied
// before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given, with
// environment overrides applied.
func Default() (*Config, error) {
	return Parse(nil)
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              DefaultHost,
			HTTPPort:          DefaultHTTPPort,
			HistoryDays:       DefaultHistoryDays,
			BroadcastInterval: DefaultBroadcastInterval,
			LogLevel:          DefaultLogLevel,
			TLS: TLSConfig{
				CertFile: DefaultCertFile,
				KeyFile:  DefaultKeyFile,
			},
			Auth: AuthConfig{Mode: "none"},
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath,
			Retry: RetryConfig{
				MaxAttempts:     DefaultRetryAttempts,
				InitialInterval: DefaultRetryInitial,
				MaxInterval:     DefaultRetryMax,
			},
		},
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvDatabasePath); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv(EnvIgnoreShiftCheck); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s=%q: want a boolean", EnvIgnoreShiftCheck, v)
		}
		cfg.Server.IgnoreShiftCheck = b
	}
	return nil
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("server.timezone %q: %w", s.Timezone, err)
	}
	if s.HistoryDays <= 0 {
		return fmt.Errorf("server.history_days must be positive, got %d", s.HistoryDays)
	}
	if s.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	if _, err := s.Level(); err != nil {
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.TLS.Enabled && (s.TLS.CertFile == "" || s.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls: cert_file and key_file are required when enabled")
	}

	d := cfg.Database
	if d.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if d.Retry.MaxAttempts < 1 {
		return fmt.Errorf("database.retry.max_attempts must be at least 1")
	}
	if d.Retry.InitialInterval <= 0 || d.Retry.MaxInterval < d.Retry.InitialInterval {
		return fmt.Errorf("database.retry: need 0 < initial_interval <= max_interval")
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d]: name and condition are required", i)
		}
		if r.Cooldown < 0 {
			return fmt.Errorf("alerts.rules[%d]: cooldown must not be negative", i)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	return nil
}
