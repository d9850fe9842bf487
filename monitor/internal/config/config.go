package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultDataDir          = ".data"
	DefaultLogsDir          = ".logs"
	DefaultCheckInterval    = 60 * time.Second
	DefaultRotationInterval = 24 * time.Hour
	DefaultHTTPPort         = 8080
	DefaultGRPCPort         = 50051
	DefaultStatusTTL        = 10 * time.Minute
	DefaultStreamInterval   = 5 * time.Second
	DefaultUserAgent        = "pulsewatch/1.0"
	DefaultMaxBodyBytes     = 64 * 1024
	DefaultSMSBaseURL       = "https://api.twilio.com"
	DefaultSMSRate          = 1.0
	DefaultSMSBurst         = 5
	DefaultHistoryRetention = 30 * 24 * time.Hour
	DefaultAPIKeyHeader     = "x-api-key"
)

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Monitor  MonitorConfig  `yaml:"monitor"`
	Probe    ProbeConfig    `yaml:"probe"`
	Notifier NotifierConfig `yaml:"notifier"`
	History  HistoryConfig  `yaml:"history"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Server   ServerConfig   `yaml:"server"`
}

// MonitorConfig holds the scheduler and storage settings.
type MonitorConfig struct {
	// DataDir is the record store root (one subdirectory per namespace).
	DataDir string `yaml:"data_dir"`

	// LogsDir holds live check logs and the compressed/ artifact directory.
	LogsDir string `yaml:"logs_dir"`

	// CheckInterval is the period of the check cycle.
	CheckInterval time.Duration `yaml:"check_interval"`

	// RotationInterval is the period of the log rotation cycle.
	RotationInterval time.Duration `yaml:"rotation_interval"`

	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// Level returns the slog level for LogLevel, defaulting to info.
func (m MonitorConfig) Level() slog.Level {
	switch strings.ToLower(m.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProbeConfig tunes the HTTP client used for probes.
type ProbeConfig struct {
	// UserAgent is sent on every probe request.
	UserAgent string `yaml:"user_agent"`

	// InsecureSkipVerify disables TLS certificate verification for https checks.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// MaxBodyBytes bounds how much of a response body is drained before the
	// connection is released.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// NotifierConfig configures alert delivery. With nothing configured, alerts
// are only logged.
type NotifierConfig struct {
	SMS      SMSConfig       `yaml:"sms"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// SMSConfig configures the Twilio-compatible SMS gateway.
type SMSConfig struct {
	// Enabled turns SMS delivery on.
	Enabled bool `yaml:"enabled"`

	// BaseURL is the gateway API root.
	BaseURL string `yaml:"base_url"`

	// AccountSID is the gateway account identifier (not secret).
	AccountSID string `yaml:"account_sid"`

	// AuthTokenEnv names the environment variable holding the auth token.
	AuthTokenEnv string `yaml:"auth_token_env"`

	// FromPhone is the sender number in E.164 format.
	FromPhone string `yaml:"from_phone"`

	// CountryPrefix is prepended to the 10-digit check phone, e.g. "+1".
	CountryPrefix string `yaml:"country_prefix"`

	// RatePerSecond and Burst bound outbound message rate.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// AuthToken returns the gateway auth token resolved from the environment.
func (s SMSConfig) AuthToken() string {
	if s.AuthTokenEnv == "" {
		return ""
	}
	return os.Getenv(s.AuthTokenEnv)
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// HistoryConfig configures the SQLite result history.
type HistoryConfig struct {
	// Path is the database file. Empty disables history.
	Path string `yaml:"path"`

	// Retention is how long results are kept; pruned on each rotation cycle.
	Retention time.Duration `yaml:"retention"`
}

// ArchiveConfig configures upload of rotated log artifacts to S3-compatible
// object storage.
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is host:port of the object store.
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	UseSSL   bool   `yaml:"use_ssl"`

	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
}

// AccessKey returns the access key id resolved from the environment.
func (a ArchiveConfig) AccessKey() string {
	if a.AccessKeyEnv == "" {
		return ""
	}
	return os.Getenv(a.AccessKeyEnv)
}

// SecretKey returns the secret access key resolved from the environment.
func (a ArchiveConfig) SecretKey() string {
	if a.SecretKeyEnv == "" {
		return ""
	}
	return os.Getenv(a.SecretKeyEnv)
}

// ServerConfig holds the read-only status surfaces.
type ServerConfig struct {
	// HTTPPort serves the status API, /metrics and the WebSocket stream.
	// Zero disables the HTTP server.
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the gRPC health service. Zero disables it.
	GRPCPort int `yaml:"grpc_port"`

	// Auth guards both the HTTP API and the gRPC health service.
	Auth AuthConfig `yaml:"auth"`

	// StatusTTL drops checks from the status views when they have not been
	// processed for this long (e.g. after the record was deleted).
	StatusTTL time.Duration `yaml:"status_ttl"`

	// StreamInterval is the WebSocket broadcast period.
	StreamInterval time.Duration `yaml:"stream_interval"`
}

// AuthConfig configures API key authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header / gRPC metadata key carrying the key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns Header lowercased, or the default header name.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return DefaultAPIKeyHeader
	}
	return strings.ToLower(a.Header)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			DataDir:          DefaultDataDir,
			LogsDir:          DefaultLogsDir,
			CheckInterval:    DefaultCheckInterval,
			RotationInterval: DefaultRotationInterval,
			LogLevel:         "info",
		},
		Probe: ProbeConfig{
			UserAgent:    DefaultUserAgent,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Notifier: NotifierConfig{
			SMS: SMSConfig{
				BaseURL:       DefaultSMSBaseURL,
				RatePerSecond: DefaultSMSRate,
				Burst:         DefaultSMSBurst,
			},
		},
		History: HistoryConfig{
			Retention: DefaultHistoryRetention,
		},
		Server: ServerConfig{
			HTTPPort:       DefaultHTTPPort,
			GRPCPort:       DefaultGRPCPort,
			StatusTTL:      DefaultStatusTTL,
			StreamInterval: DefaultStreamInterval,
		},
	}
}

func validate(cfg *Config) error {
	m := cfg.Monitor
	if m.DataDir == "" {
		return fmt.Errorf("monitor.data_dir is required")
	}
	if m.LogsDir == "" {
		return fmt.Errorf("monitor.logs_dir is required")
	}
	if m.CheckInterval <= 0 {
		return fmt.Errorf("monitor.check_interval must be positive")
	}
	if m.RotationInterval <= 0 {
		return fmt.Errorf("monitor.rotation_interval must be positive")
	}
	switch strings.ToLower(m.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("monitor.log_level: unknown level %q", m.LogLevel)
	}

	if cfg.Probe.MaxBodyBytes < 0 {
		return fmt.Errorf("probe.max_body_bytes must not be negative")
	}

	if sms := cfg.Notifier.SMS; sms.Enabled {
		if sms.AccountSID == "" {
			return fmt.Errorf("notifier.sms.account_sid is required when sms is enabled")
		}
		if sms.AuthTokenEnv == "" {
			return fmt.Errorf("notifier.sms.auth_token_env is required when sms is enabled")
		}
		if sms.FromPhone == "" {
			return fmt.Errorf("notifier.sms.from_phone is required when sms is enabled")
		}
		if sms.RatePerSecond <= 0 || sms.Burst <= 0 {
			return fmt.Errorf("notifier.sms: rate_per_second and burst must be positive")
		}
	}
	for i, wh := range cfg.Notifier.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("notifier.webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("notifier.webhooks[%d]: url_env is required", i)
		}
	}

	if cfg.History.Path != "" && cfg.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative")
	}

	if a := cfg.Archive; a.Enabled {
		if a.Endpoint == "" || a.Bucket == "" {
			return fmt.Errorf("archive: endpoint and bucket are required when enabled")
		}
	}

	s := cfg.Server
	if s.HTTPPort < 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", s.HTTPPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port out of range: %d", s.GRPCPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth: unknown mode %q", s.Auth.Mode)
	}
	if s.StatusTTL <= 0 {
		return fmt.Errorf("server.status_ttl must be positive")
	}
	if s.StreamInterval <= 0 {
		return fmt.Errorf("server.stream_interval must be positive")
	}
	return nil
}
