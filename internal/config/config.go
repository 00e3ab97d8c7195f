// ABOUTME: Configuration loading and parsing for coven-chime
// ABOUTME: Supports YAML or TOML files with env var expansion, env overrides and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a value is not configured.
const (
	DefaultMaxBytes        int64 = 3 * 1024 * 1024
	DefaultSessionDuration       = 7 * 24 * time.Hour
	DefaultMetricsPath           = "/metrics"
	DefaultStorageDirName        = "user_sounds"

	// MinJWTSecretLength is the minimum accepted length of auth.jwt_secret.
	MinJWTSecretLength = 32
)

// DefaultAllowedExt is the upload extension allow-list used when none is configured.
var DefaultAllowedExt = []string{"mp3", "ogg", "flac", "wav", "m4a", "aac", "opus"}

// DefaultAllowedMIME lists the MIME types advertised to browsers by default.
var DefaultAllowedMIME = []string{
	"audio/mpeg", "audio/ogg", "audio/flac", "audio/wav", "audio/x-wav", "audio/mp4", "audio/aac",
}

// Config represents the complete coven-chime configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Sounds    SoundsConfig    `yaml:"sounds" toml:"sounds"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Web       WebConfig       `yaml:"web" toml:"web"`
	Chime     ChimeConfig     `yaml:"chime" toml:"chime"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" env:"COVEN_CHIME_HTTP_ADDR"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr" env:"COVEN_CHIME_GRPC_ADDR"` // optional health service
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key" env:"TS_AUTHKEY"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" env:"COVEN_CHIME_DB_PATH"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// JWTSecret enables bearer-token access to the sound endpoints. Optional.
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret" env:"COVEN_CHIME_JWT_SECRET"`

	SessionDuration    time.Duration `yaml:"-" toml:"-"`
	SessionDurationRaw string        `yaml:"session_duration" toml:"session_duration" env:"COVEN_CHIME_SESSION_DURATION"`
}

// SoundsConfig holds the upload and storage settings for custom chimes
type SoundsConfig struct {
	StorageDir  string   `yaml:"storage_dir" toml:"storage_dir" env:"COVEN_CHIME_STORAGE_DIR"`
	MaxBytes    int64    `yaml:"max_bytes" toml:"max_bytes" env:"COVEN_CHIME_MAX_BYTES"`
	AllowedExt  []string `yaml:"allowed_ext" toml:"allowed_ext" env:"COVEN_CHIME_ALLOWED_EXT"`
	AllowedMIME []string `yaml:"allowed_mime" toml:"allowed_mime" env:"COVEN_CHIME_ALLOWED_MIME"`
	Debug       bool     `yaml:"debug" toml:"debug" env:"COVEN_CHIME_DEBUG"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"COVEN_CHIME_LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" env:"COVEN_CHIME_LOG_FORMAT"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// WebConfig holds settings for the browser-facing pages
type WebConfig struct {
	// BaseURL is the external URL the host application reaches us on.
	// Empty means URLs are emitted relative to the request host.
	BaseURL string `yaml:"base_url" toml:"base_url" env:"COVEN_CHIME_BASE_URL"`
}

// ChimeConfig tunes the browser-side chime classifier. Empty fields keep
// the built-in policy.
type ChimeConfig struct {
	Keywords     []string `yaml:"keywords" toml:"keywords"`
	AssetFolders []string `yaml:"asset_folders" toml:"asset_folders"`
	MinSize      float64  `yaml:"min_size" toml:"min_size"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, COVEN_CHIME_*
// variables override file values, and defaults fill whatever is left.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	cfg.applyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a config populated only with defaults, rooted at dataDir.
func Default(dataDir string) *Config {
	cfg := &Config{
		Server:   ServerConfig{HTTPAddr: "localhost:8080"},
		Database: DatabaseConfig{Path: filepath.Join(dataDir, "chime.db")},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
	cfg.applyDefaults()
	cfg.Auth.SessionDuration = DefaultSessionDuration
	return cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset values and normalizes the sound settings.
func (c *Config) applyDefaults() {
	if c.Sounds.StorageDir == "" && c.Database.Path != "" && c.Database.Path != ":memory:" {
		c.Sounds.StorageDir = filepath.Join(filepath.Dir(c.Database.Path), DefaultStorageDirName)
	}
	if c.Sounds.StorageDir != "" {
		dir := strings.ReplaceAll(c.Sounds.StorageDir, `\`, "/")
		c.Sounds.StorageDir = filepath.Clean(strings.TrimRight(dir, "/"))
	}

	if c.Sounds.MaxBytes == 0 {
		c.Sounds.MaxBytes = DefaultMaxBytes
	}

	if len(c.Sounds.AllowedExt) == 0 {
		c.Sounds.AllowedExt = append([]string(nil), DefaultAllowedExt...)
	}
	for i, ext := range c.Sounds.AllowedExt {
		c.Sounds.AllowedExt[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}

	if len(c.Sounds.AllowedMIME) == 0 {
		c.Sounds.AllowedMIME = append([]string(nil), DefaultAllowedMIME...)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Sounds.StorageDir == "" {
		return fmt.Errorf("sounds.storage_dir is required when database.path is %q", c.Database.Path)
	}

	if c.Sounds.MaxBytes < 0 {
		return fmt.Errorf("sounds.max_bytes must be positive, got %d", c.Sounds.MaxBytes)
	}

	for _, ext := range c.Sounds.AllowedExt {
		if ext == "" || strings.ContainsAny(ext, `/\.`) {
			return fmt.Errorf("sounds.allowed_ext contains invalid extension %q", ext)
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Chime.MinSize < 0 {
		return fmt.Errorf("chime.min_size must not be negative, got %v", c.Chime.MinSize)
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Auth.SessionDurationRaw == "" {
		cfg.Auth.SessionDuration = DefaultSessionDuration
		return nil
	}

	d, err := time.ParseDuration(cfg.Auth.SessionDurationRaw)
	if err != nil {
		return fmt.Errorf("parsing session_duration %q: %w", cfg.Auth.SessionDurationRaw, err)
	}
	if d <= 0 {
		return fmt.Errorf("session_duration must be positive, got %q", cfg.Auth.SessionDurationRaw)
	}
	cfg.Auth.SessionDuration = d
	return nil
}
