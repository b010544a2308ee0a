package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/engine"
	"github.com/Mofasaz/aegisai-web/internal/model"
	"github.com/Mofasaz/aegisai-web/internal/rules"
)

// --- Input/Output types ---

// AnalyzeInput defines parameters for the aegis_analyze_events tool.
type AnalyzeInput struct {
	Events []map[string]any `json:"events" jsonschema:"log events with event_id, action, timestamp and optional status, role, system, resource, source_ip, risk_context"`
}

// AnalyzeOutput lists the anomalies found.
type AnalyzeOutput struct {
	Anomalies []model.Anomaly `json:"anomalies"`
}

// AssessInput defines parameters for the aegis_assess_query tool.
type AssessInput struct {
	Query  string   `json:"query" jsonschema:"the question to assess"`
	UserID string   `json:"user_id,omitempty" jsonschema:"requester id"`
	Grade  string   `json:"grade,omitempty" jsonschema:"requester grade, e.g. G3"`
	Roles  []string `json:"roles,omitempty" jsonschema:"requester app roles, e.g. Grade.G3"`
}

// AssessOutput contains the collected risk signals.
type AssessOutput struct {
	EffectiveGrade     string   `json:"effective_grade"`
	RestrictedHitCount int      `json:"restricted_hit_count"`
	RestrictedProbe    bool     `json:"restricted_probe"`
	RiskyIntent        string   `json:"risky_intent,omitempty"`
	Reasons            []string `json:"reasons"`
	CorrelationID      string   `json:"correlation_id"`
}

// ListRulesInput is empty; no parameters needed.
type ListRulesInput struct{}

// RuleSummary describes one active rule.
type RuleSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity"`
	RiskPoints  int    `json:"risk_points"`
}

// ListRulesOutput lists the active rules.
type ListRulesOutput struct {
	Rules   []RuleSummary `json:"rules"`
	Count   int           `json:"count"`
	Version int64         `json:"version"`
	Hash    string        `json:"hash"`
}

// ValidateRuleInput defines parameters for the aegis_validate_rule tool.
type ValidateRuleInput struct {
	Text   string `json:"text" jsonschema:"one rule in YAML, optionally inside markdown fences"`
	Append bool   `json:"append,omitempty" jsonschema:"append the rule to the active set when valid"`
}

// ValidateRuleOutput reports the validation result.
type ValidateRuleOutput struct {
	Valid          bool     `json:"valid"`
	RuleID         string   `json:"rule_id,omitempty"`
	NormalizedYAML string   `json:"normalized_yaml,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	Appended       bool     `json:"appended,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// --- Handlers ---

func (s *Server) handleAnalyze(ctx context.Context, req *mcpsdk.CallToolRequest, input AnalyzeInput) (*mcpsdk.CallToolResult, AnalyzeOutput, error) {
	events := make([]model.LogEvent, 0, len(input.Events))
	for _, m := range input.Events {
		events = append(events, model.EventFromMap(m))
	}
	return nil, AnalyzeOutput{Anomalies: s.engine.AnalyzeEvents(ctx, events)}, nil
}

func (s *Server) handleAssess(ctx context.Context, req *mcpsdk.CallToolRequest, input AssessInput) (*mcpsdk.CallToolResult, AssessOutput, error) {
	ra, err := s.engine.AssessQuery(ctx, engine.Question{
		Query: input.Query,
		Principal: model.Principal{
			ID:    input.UserID,
			Grade: input.Grade,
			Roles: input.Roles,
		},
	})
	if err != nil {
		return nil, AssessOutput{}, err
	}

	out := AssessOutput{
		EffectiveGrade:     ra.EffectiveGrade,
		RestrictedHitCount: ra.RestrictedHitCount,
		RestrictedProbe:    ra.RestrictedProbe,
		Reasons:            ra.Reasons,
		CorrelationID:      ra.CorrelationID,
	}
	if ra.RiskyIntentLabel != nil {
		out.RiskyIntent = *ra.RiskyIntentLabel
	}
	return nil, out, nil
}

func (s *Server) handleListRules(ctx context.Context, req *mcpsdk.CallToolRequest, input ListRulesInput) (*mcpsdk.CallToolResult, ListRulesOutput, error) {
	list := s.engine.ListRules()
	out := ListRulesOutput{
		Rules:   make([]RuleSummary, 0, len(list.Rules)),
		Count:   list.Count,
		Version: list.Version,
		Hash:    list.Hash,
	}
	for _, r := range list.Rules {
		out.Rules = append(out.Rules, RuleSummary{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Severity:    string(r.Severity),
			RiskPoints:  r.Points(),
		})
	}
	return nil, out, nil
}

func (s *Server) handleValidateRule(ctx context.Context, req *mcpsdk.CallToolRequest, input ValidateRuleInput) (*mcpsdk.CallToolResult, ValidateRuleOutput, error) {
	staged, err := s.engine.ValidateAndStageRule(input.Text)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, ValidateRuleOutput{Error: err.Error()}, nil
	}

	out := ValidateRuleOutput{
		Valid:          true,
		RuleID:         staged.Rule.ID,
		NormalizedYAML: staged.NormalizedYAML,
	}
	for _, w := range staged.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	if !input.Append {
		return nil, out, nil
	}

	if _, err := s.engine.AppendRule(ctx, staged.NormalizedYAML, s.actor); err != nil {
		if errors.Is(err, rules.ErrDuplicateRuleID) {
			s.logger.Info("mcp rule append rejected", zap.String("rule_id", staged.Rule.ID), zap.Error(err))
		}
		out.Error = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	out.Appended = true
	return nil, out, nil
}
