package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/audit"
	"github.com/Mofasaz/aegisai-web/internal/llm"
	"github.com/Mofasaz/aegisai-web/internal/metrics"
	"github.com/Mofasaz/aegisai-web/internal/rulediff"
	"github.com/Mofasaz/aegisai-web/internal/rules"
	"github.com/Mofasaz/aegisai-web/internal/upstream"
)

// StagedRule is a validated rule ready to append.
type StagedRule struct {
	NormalizedYAML string             `json:"normalized_yaml"`
	Rule           rules.Rule         `json:"rule"`
	Warnings       []rules.Diagnostic `json:"warnings"`
}

// AppendResult reports a successful append.
type AppendResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	RuleID  string `json:"rule_id"`
	Count   int    `json:"count"`
}

// ReloadResult reports a reload. Diff is nil when nothing changed.
type ReloadResult struct {
	Count   int              `json:"count"`
	Version int64            `json:"version"`
	Hash    string           `json:"hash"`
	Changed bool             `json:"changed"`
	Diff    *rulediff.Result `json:"diff,omitempty"`
}

// RuleList is the active rule set.
type RuleList struct {
	Rules    []rules.Rule `json:"rules"`
	Count    int          `json:"count"`
	Version  int64        `json:"version"`
	Hash     string       `json:"hash"`
	LoadedAt time.Time    `json:"loaded_at"`
}

// ValidateAndStageRule parses one rule from text, which may be wrapped in
// markdown fences, assigns an R-AUTO id when none is given and returns the
// normalized YAML. Missing recommended fields come back as warnings; a
// malformed rule is a *rules.ParseError.
func (e *Engine) ValidateAndStageRule(text string) (*StagedRule, error) {
	r, diags, err := rules.ParseRule([]byte(rules.StripFences(text)))
	if err != nil {
		return nil, err
	}

	warnings := make([]rules.Diagnostic, 0, len(diags))
	if r.ID == "" {
		r.ID = rules.NewRuleID()
	}
	for _, d := range diags {
		if d.Field == "id" {
			continue
		}
		d.RuleID = r.ID
		warnings = append(warnings, d)
	}

	out, err := rules.MarshalRule(r)
	if err != nil {
		return nil, fmt.Errorf("normalize rule: %w", err)
	}
	return &StagedRule{NormalizedYAML: string(out), Rule: r, Warnings: warnings}, nil
}

// AppendRule stages text and appends it to the active set. A taken id
// fails with a *rules.DuplicateRuleError.
func (e *Engine) AppendRule(ctx context.Context, text, actor string) (*AppendResult, error) {
	staged, err := e.ValidateAndStageRule(text)
	if err != nil {
		return nil, err
	}

	rs, err := e.store.Append(ctx, staged.Rule)
	if err != nil {
		metrics.RuleReloads.WithLabelValues("append_rejected").Inc()
		if errors.Is(err, rules.ErrDuplicateRuleID) {
			e.logger.Info("rule append rejected, duplicate id", zap.String("rule_id", staged.Rule.ID), zap.String("actor", actor))
		}
		return nil, err
	}

	metrics.RuleReloads.WithLabelValues("append").Inc()
	metrics.RulesActive.Set(float64(rs.Len()))
	e.record(audit.Entry{
		Event:          audit.EventRuleAppend,
		Actor:          actor,
		RuleID:         staged.Rule.ID,
		RulesetHash:    rs.Hash(),
		RulesetVersion: rs.Version(),
		RuleCount:      rs.Len(),
	})
	e.logger.Info("rule appended",
		zap.String("rule_id", staged.Rule.ID),
		zap.String("actor", actor),
		zap.Int("rules", rs.Len()),
		zap.Int64("ruleset_version", rs.Version()),
	)

	return &AppendResult{
		Status:  "ok",
		Message: fmt.Sprintf("rule %s appended, %d rules active", staged.Rule.ID, rs.Len()),
		RuleID:  staged.Rule.ID,
		Count:   rs.Len(),
	}, nil
}

// ReloadRules re-reads the rule file. On failure the active set stays.
func (e *Engine) ReloadRules(ctx context.Context, actor string) (*ReloadResult, error) {
	prev := e.store.Snapshot()
	rs, err := e.store.Reload(ctx)
	if err != nil {
		metrics.RuleReloads.WithLabelValues("error").Inc()
		e.record(audit.Entry{
			Event:          audit.EventReloadFailed,
			Actor:          actor,
			RulesetHash:    prev.Hash(),
			RulesetVersion: prev.Version(),
			RuleCount:      prev.Len(),
			Detail:         err.Error(),
		})
		e.logger.Error("rule reload failed, keeping active set",
			zap.String("ruleset_hash", prev.Hash()),
			zap.Error(err),
		)
		return nil, err
	}

	res := &ReloadResult{Count: rs.Len(), Version: rs.Version(), Hash: rs.Hash()}
	if rs == prev {
		metrics.RuleReloads.WithLabelValues("unchanged").Inc()
		return res, nil
	}

	res.Changed = true
	res.Diff = rulediff.Diff(prev, rs)
	added, removed, changed := res.Diff.Counts()
	metrics.RuleReloads.WithLabelValues("ok").Inc()
	metrics.RulesActive.Set(float64(rs.Len()))
	e.record(audit.Entry{
		Event:          audit.EventRuleReload,
		Actor:          actor,
		RulesetHash:    rs.Hash(),
		RulesetVersion: rs.Version(),
		RuleCount:      rs.Len(),
		Detail:         fmt.Sprintf("%d added, %d removed, %d changed", added, removed, changed),
	})
	e.logger.Info("rules reloaded",
		zap.Int("rules", rs.Len()),
		zap.Int64("ruleset_version", rs.Version()),
		zap.String("ruleset_hash", rs.Hash()),
		zap.Int("added", added),
		zap.Int("removed", removed),
		zap.Int("changed", changed),
	)
	return res, nil
}

// ListRules returns the active rules.
func (e *Engine) ListRules() RuleList {
	rs := e.store.Snapshot()
	return RuleList{Rules: rs.Rules(), Count: rs.Len(), Version: rs.Version(), Hash: rs.Hash(), LoadedAt: rs.LoadedAt()}
}

// DraftRule asks the model for a rule meeting requirement and stages it.
// The draft is not appended.
func (e *Engine) DraftRule(ctx context.Context, requirement string) (*StagedRule, error) {
	if strings.TrimSpace(requirement) == "" {
		return nil, fmt.Errorf("%w: requirement is empty", ErrInvalidRequest)
	}
	text, uerr := upstream.Call(ctx, upstream.Generator, e.genTimeout, func(ctx context.Context) (string, error) {
		return e.author.Draft(ctx, requirement)
	})
	if uerr != nil {
		return nil, uerr
	}
	if strings.TrimSpace(text) == "" || strings.HasPrefix(text, llm.OfflinePrefix) {
		return nil, &rules.ParseError{Index: -1, Err: errors.New("model returned no rule")}
	}
	return e.ValidateAndStageRule(text)
}

func (e *Engine) record(entry audit.Entry) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(entry); err != nil {
		e.logger.Error("audit write failed", zap.String("event", entry.Event), zap.Error(err))
	}
}
