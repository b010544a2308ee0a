package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream rows are appended to.
const DefaultStream = "aegis:telemetry"

// RedisSink appends rows to a capped Redis stream.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// RedisConfig configures the Redis sink.
type RedisConfig struct {
	Addr     string `koanf:"addr" validate:"required,hostname_port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
	Stream   string `koanf:"stream"`
	MaxLen   int64  `koanf:"max_len" validate:"gte=0"`
}

// NewRedisSink connects to Redis and verifies the connection with PING.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: cfg.MaxLen}, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, r Row) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"kind":            string(r.Kind),
			"ts":              r.Timestamp.UTC().Format(time.RFC3339Nano),
			"correlation_id":  r.CorrelationID,
			"user_id":         r.UserID,
			"grade":           r.Grade,
			"query":           r.Query,
			"reasons":         r.Reasons,
			"restricted_hits": r.RestrictedHits,
			"top_restricted":  r.TopRestricted,
			"risk_score":      r.RiskScore,
			"event_id":        r.EventID,
			"role":            r.Role,
			"dept":            r.Dept,
			"signals":         r.Signals,
			"policy_id":       r.PolicyID,
			"clause_id":       r.ClauseID,
			"answer_hash":     r.AnswerHash,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisSink) Close() error { return s.client.Close() }
