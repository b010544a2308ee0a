// Package llm talks to the text-generation backends used for answers,
// groundedness judging and rule drafting.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client completes a conversation and returns the reply text.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Backend names accepted by New.
const (
	BackendOffline = "offline"
	BackendOpenAI  = "openai"
	BackendBedrock = "bedrock"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string        `koanf:"backend" validate:"oneof=offline openai bedrock"`
	APIURL      string        `koanf:"api_url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	MaxTokens   int           `koanf:"max_tokens" validate:"gte=0"`
	Temperature float64       `koanf:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `koanf:"timeout"`

	Region          string `koanf:"region"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	SessionToken    string `koanf:"session_token"`

	// RatePerSecond limits outbound calls; 0 disables limiting.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gte=0"`
	Burst         int     `koanf:"burst" validate:"gte=0"`
}

// New builds the configured backend, wrapped in a rate limiter when one is set.
func New(ctx context.Context, cfg Config) (Client, error) {
	var c Client
	switch strings.ToLower(cfg.Backend) {
	case "", BackendOffline:
		c = OfflineClient{}
	case BackendOpenAI:
		if cfg.APIURL == "" {
			return nil, fmt.Errorf("llm: api_url is required for the openai backend")
		}
		c = NewHTTPClient(cfg)
	case BackendBedrock:
		b, err := NewBedrockClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c = b
	default:
		return nil, fmt.Errorf("llm: unknown backend %q", cfg.Backend)
	}
	if cfg.RatePerSecond > 0 {
		c = NewLimited(c, cfg.RatePerSecond, cfg.Burst)
	}
	return c, nil
}

// lastUser returns the content of the last user message.
func lastUser(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
