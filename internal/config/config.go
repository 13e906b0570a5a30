// Package config loads promptpub settings from an optional YAML file and
// PROMPTPUB_-prefixed environment variables.
package config

import (
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/promptpub/internal/domain"
	"github.com/tjfontaine/promptpub/internal/inference"
)

// DefaultPath is read when no config file is named. It may be absent.
const DefaultPath = "promptpub.yaml"

// EnvPrefix prefixes environment overrides. A double underscore separates
// path segments: PROMPTPUB_RETRY__MAX_ATTEMPTS sets retry.max_attempts.
const EnvPrefix = "PROMPTPUB_"

// Storage backends.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageSQLite = "sqlite"
	StorageS3     = "s3"
)

// Inference backends.
const (
	BackendHTTP   = "http"
	BackendDryRun = "dry-run"
)

type Config struct {
	DefaultEnv string          `koanf:"default_env"`
	Log        LogConfig       `koanf:"log"`
	Storage    StorageConfig   `koanf:"storage"`
	Inference  InferenceConfig `koanf:"inference"`
	Retry      RetryConfig     `koanf:"retry"`
	Server     ServerConfig    `koanf:"server"`
	Run        RunConfig       `koanf:"run"`
	Telemetry  TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	// Format is "text" or "json". Empty lets the command choose.
	Format string `koanf:"format"`
}

type StorageConfig struct {
	Type string `koanf:"type"`
	// Bucket holds prompt inputs and templates, and outputs for any
	// environment without its own bucket.
	Bucket  string        `koanf:"bucket"`
	Buckets BucketsConfig `koanf:"buckets"`
	Local   LocalConfig   `koanf:"local"`
	SQLite  SQLiteConfig  `koanf:"sqlite"`
	S3      S3Config      `koanf:"s3"`
}

type BucketsConfig struct {
	Beta string `koanf:"beta"`
	Prod string `koanf:"prod"`
}

type LocalConfig struct {
	Root string `koanf:"root"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type S3Config struct {
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"`
}

type InferenceConfig struct {
	Backend string        `koanf:"backend"`
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Model   string        `koanf:"model"`
	Version string        `koanf:"version"`
	Timeout time.Duration `koanf:"timeout"`
}

type RetryConfig struct {
	MaxAttempts  int           `koanf:"max_attempts"`
	BaseDelay    time.Duration `koanf:"base_delay"`
	GrowthFactor float64       `koanf:"growth_factor"`
	CapDelay     time.Duration `koanf:"cap_delay"`
	Jitter       time.Duration `koanf:"jitter"`
}

type ServerConfig struct {
	Port                int `koanf:"port"`
	RegeneratePerMinute int `koanf:"regenerate_per_minute"`
}

type RunConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

var defaults = map[string]any{
	"default_env":                  "beta",
	"log.level":                    "info",
	"storage.type":                 StorageLocal,
	"storage.bucket":               "promptpub",
	"storage.local.root":           ".",
	"storage.sqlite.path":          "promptpub.db",
	"inference.backend":            BackendHTTP,
	"inference.base_url":           "https://api.anthropic.com",
	"inference.model":              "claude-3-sonnet-20240229",
	"inference.version":            "bedrock-2023-05-31",
	"inference.timeout":            "60s",
	"retry.max_attempts":           6,
	"retry.base_delay":             "1500ms",
	"retry.growth_factor":          2.0,
	"retry.cap_delay":              "30s",
	"retry.jitter":                 "250ms",
	"server.port":                  8080,
	"server.regenerate_per_minute": 30,
	"run.timeout":                  "10m",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), then environment overrides,
// then fills defaults. A missing file is an error only when path was
// named explicitly.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.WithHint(errors.Wrapf(err, "load config file %s", path),
				"omit --config to run on defaults and PROMPTPUB_ environment variables")
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load environment overrides")
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, value); err != nil {
				return nil, errors.Wrapf(err, "set default %s", key)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	cfg.Inference.APIKey = substituteEnvVars(cfg.Inference.APIKey)
	cfg.Inference.BaseURL = substituteEnvVars(cfg.Inference.BaseURL)
	cfg.Storage.S3.Endpoint = substituteEnvVars(cfg.Storage.S3.Endpoint)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !domain.Environment(c.DefaultEnv).Valid() {
		return &domain.ConfigError{Field: "default_env", Reason: "must be beta or prod"}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return &domain.ConfigError{Field: "log.format", Reason: "must be text or json"}
	}

	switch c.Storage.Type {
	case StorageMemory, StorageLocal, StorageSQLite, StorageS3:
	default:
		return &domain.ConfigError{Field: "storage.type", Reason: "must be memory, local, sqlite or s3"}
	}
	if c.Storage.Bucket == "" {
		return &domain.ConfigError{Field: "storage.bucket", Reason: "must not be empty"}
	}
	if c.Storage.Type == StorageSQLite && c.Storage.SQLite.Path == "" {
		return &domain.ConfigError{Field: "storage.sqlite.path", Reason: "must not be empty"}
	}

	switch c.Inference.Backend {
	case BackendHTTP, BackendDryRun:
	default:
		return &domain.ConfigError{Field: "inference.backend", Reason: "must be http or dry-run"}
	}
	if c.Inference.Timeout <= 0 {
		return &domain.ConfigError{Field: "inference.timeout", Reason: "must be positive"}
	}

	switch {
	case c.Retry.MaxAttempts < 1:
		return &domain.ConfigError{Field: "retry.max_attempts", Reason: "must be at least 1"}
	case c.Retry.BaseDelay < 0:
		return &domain.ConfigError{Field: "retry.base_delay", Reason: "must not be negative"}
	case c.Retry.GrowthFactor < 1:
		return &domain.ConfigError{Field: "retry.growth_factor", Reason: "must be at least 1"}
	case c.Retry.CapDelay <= 0:
		return &domain.ConfigError{Field: "retry.cap_delay", Reason: "must be positive"}
	case c.Retry.Jitter < 0:
		return &domain.ConfigError{Field: "retry.jitter", Reason: "must not be negative"}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "server.port", Reason: "must be between 1 and 65535"}
	}
	if c.Run.Timeout < 0 {
		return &domain.ConfigError{Field: "run.timeout", Reason: "must not be negative"}
	}
	return nil
}

// RetryPolicy returns the invoker retry policy.
func (c *Config) RetryPolicy() inference.RetryPolicy {
	return inference.RetryPolicy{
		MaxAttempts:  c.Retry.MaxAttempts,
		BaseDelay:    c.Retry.BaseDelay,
		GrowthFactor: c.Retry.GrowthFactor,
		CapDelay:     c.Retry.CapDelay,
		Jitter:       c.Retry.Jitter,
	}
}

// OutputBucket returns the bucket artifacts for env are written to.
func (c *StorageConfig) OutputBucket(env domain.Environment) string {
	switch env {
	case domain.EnvBeta:
		if c.Buckets.Beta != "" {
			return c.Buckets.Beta
		}
	case domain.EnvProd:
		if c.Buckets.Prod != "" {
			return c.Buckets.Prod
		}
	}
	return c.Bucket
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, &domain.ConfigError{Field: "log.level", Reason: "must be debug, info, warn or error"}
	}
	return level, nil
}
