// Package config loads process configuration: built-in defaults, then an
// optional YAML file, then AEGIS_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Mofasaz/aegisai-web/internal/intent"
	"github.com/Mofasaz/aegisai-web/internal/llm"
	"github.com/Mofasaz/aegisai-web/internal/retrieval"
	"github.com/Mofasaz/aegisai-web/internal/risk"
	"github.com/Mofasaz/aegisai-web/internal/server"
	"github.com/Mofasaz/aegisai-web/internal/telemetry"
	"github.com/Mofasaz/aegisai-web/internal/tracing"
)

// EnvPrefix starts every environment override. A double underscore
// separates levels: AEGIS_SERVER__GRPC_ADDR sets server.grpc_addr.
const EnvPrefix = "AEGIS_"

// Config is the full process configuration.
type Config struct {
	LogLevel  string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"oneof=json console"`

	Server    server.Config   `koanf:"server"`
	Rules     RulesConfig     `koanf:"rules"`
	Audit     AuditConfig     `koanf:"audit"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	LLM       llm.Config      `koanf:"llm"`
	Risk      risk.Config     `koanf:"risk"`
	// Intents replaces the built-in risky-intent bank when non-empty.
	Intents   []intent.Pattern `koanf:"intents" validate:"dive"`
	Telemetry TelemetryConfig  `koanf:"telemetry"`
	Tracing   tracing.Config   `koanf:"tracing"`
}

// RulesConfig locates the rule file.
type RulesConfig struct {
	Path     string        `koanf:"path" validate:"required"`
	Watch    bool          `koanf:"watch"`
	Debounce time.Duration `koanf:"debounce"`
}

// AuditConfig locates the rule change log. Empty disables it.
type AuditConfig struct {
	Path string `koanf:"path"`
}

// Retrieval backends.
const (
	RetrievalLocal  = "local"
	RetrievalRemote = "remote"
)

// RetrievalConfig selects the policy search backend.
type RetrievalConfig struct {
	Backend    string                 `koanf:"backend" validate:"oneof=local remote"`
	CorpusPath string                 `koanf:"corpus_path" validate:"required_if=Backend local"`
	Remote     retrieval.RemoteConfig `koanf:"remote" validate:"-"`
}

// TelemetryConfig selects the sinks rows are written to.
type TelemetryConfig struct {
	Buffer     int    `koanf:"buffer" validate:"gte=0"`
	Log        bool   `koanf:"log"`
	SQLitePath string `koanf:"sqlite_path"`

	RedisEnabled bool                  `koanf:"redis_enabled"`
	Redis        telemetry.RedisConfig `koanf:"redis" validate:"-"`

	Webhooks []telemetry.WebhookConfig `koanf:"webhooks" validate:"dive"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "json",
		Server: server.Config{
			Addr:            ":8080",
			GRPCAddr:        ":9090",
			MaxBodyBytes:    server.DefaultMaxBodyBytes,
			ShutdownTimeout: 15 * time.Second,
			Auth:            server.AuthConfig{Mode: server.AuthNone},
		},
		Rules: RulesConfig{
			Path:     "rules.yaml",
			Watch:    true,
			Debounce: server.DefaultDebounce,
		},
		Audit: AuditConfig{Path: "data/rules-audit.jsonl"},
		Retrieval: RetrievalConfig{
			Backend:    RetrievalLocal,
			CorpusPath: "data/policies.jsonl",
			Remote:     retrieval.RemoteConfig{Timeout: 10 * time.Second},
		},
		LLM: llm.Config{
			Backend:     llm.BackendOffline,
			MaxTokens:   800,
			Temperature: 0.2,
			Timeout:     30 * time.Second,
		},
		Risk: risk.DefaultConfig(),
		Telemetry: TelemetryConfig{
			Buffer: telemetry.DefaultBuffer,
			Log:    true,
			Redis:  telemetry.RedisConfig{Stream: telemetry.DefaultStream},
		},
		Tracing: tracing.Config{
			ServiceName: "aegis",
			Sampler:     "parentbased",
			Ratio:       1,
			Timeout:     10 * time.Second,
		},
	}
}

// Load reads defaults, then path when it is non-empty, then the
// environment, and validates the result. A missing path is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks field constraints and the sections that are only
// validated when enabled.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Telemetry.RedisEnabled {
		if err := v.Struct(c.Telemetry.Redis); err != nil {
			return fmt.Errorf("invalid config: telemetry.redis: %w", err)
		}
	}
	if c.Retrieval.Backend == RetrievalRemote && (c.Retrieval.Remote.Endpoint == "" || c.Retrieval.Remote.Index == "") {
		return errors.New("invalid config: retrieval.remote needs endpoint and index")
	}
	return nil
}
