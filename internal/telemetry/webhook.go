package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"
)

const (
	webhookTimeout    = 5 * time.Second
	webhookMaxRetries = 3
)

// WebhookConfig configures one outbound webhook.
type WebhookConfig struct {
	URL     string            `koanf:"url" validate:"required,url"`
	Format  string            `koanf:"format" validate:"omitempty,oneof=generic slack pagerduty"`
	Kinds   []string          `koanf:"kinds" validate:"dive,oneof=risk anomaly attestation"`
	Headers map[string]string `koanf:"headers"`
	// MinRiskScore drops risk and anomaly rows scoring below it.
	MinRiskScore int `koanf:"min_risk_score" validate:"gte=0,lte=100"`
}

// WebhookSink posts selected rows to an HTTP endpoint, retrying on 5xx.
type WebhookSink struct {
	cfg    WebhookConfig
	client *http.Client
	// backoff between attempts; attempt n waits n*backoff.
	backoff time.Duration
}

// NewWebhookSink builds a sink. A nil client gets a default with a 5s timeout.
func NewWebhookSink(cfg WebhookConfig, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	return &WebhookSink{cfg: cfg, client: client, backoff: time.Second}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Accepts reports whether row passes the kind and score filters.
func (s *WebhookSink) Accepts(row Row) bool {
	if len(s.cfg.Kinds) > 0 && !slices.Contains(s.cfg.Kinds, string(row.Kind)) {
		return false
	}
	if row.Kind != KindAttestation && row.RiskScore < s.cfg.MinRiskScore {
		return false
	}
	return true
}

func (s *WebhookSink) Write(ctx context.Context, row Row) error {
	if !s.Accepts(row) {
		return nil
	}
	body, err := FormatPayload(s.cfg.Format, row)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < webhookMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * s.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range s.cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", webhookMaxRetries, lastErr)
}

func (s *WebhookSink) Close() error { return nil }

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, row Row) ([]byte, error) {
	switch format {
	case "slack":
		return json.Marshal(slackPayload(row))
	case "pagerduty":
		return json.Marshal(pagerDutyPayload(row))
	default:
		return json.Marshal(row)
	}
}

func summary(row Row) string {
	switch row.Kind {
	case KindRisk:
		return fmt.Sprintf("risky query by %s (grade %s)", orUnknown(row.UserID), orUnknown(row.Grade))
	case KindAnomaly:
		return fmt.Sprintf("anomalous event %s scored %d", row.EventID, row.RiskScore)
	default:
		return fmt.Sprintf("attestation %s/%s by %s", row.PolicyID, row.ClauseID, orUnknown(row.UserID))
	}
}

func detail(row Row) string {
	switch row.Kind {
	case KindRisk:
		return row.Reasons
	case KindAnomaly:
		return row.Signals
	default:
		return row.AnswerHash
	}
}

func slackPayload(row Row) map[string]any {
	field := func(label, value string) map[string]any {
		return map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*%s:* %s", label, value)}
	}
	return map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{"type": "plain_text", "text": "aegis: " + summary(row)},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					field("Kind", string(row.Kind)),
					field("Score", fmt.Sprint(row.RiskScore)),
					field("Detail", detail(row)),
					field("Correlation", orUnknown(row.CorrelationID)),
				},
			},
		},
	}
}

func pagerDutyPayload(row Row) map[string]any {
	severity := "info"
	switch {
	case row.RiskScore >= 80:
		severity = "critical"
	case row.RiskScore >= 50:
		severity = "error"
	case row.RiskScore > 0:
		severity = "warning"
	}
	return map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":        "aegis: " + summary(row),
			"severity":       severity,
			"source":         "aegis",
			"custom_details": row,
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
