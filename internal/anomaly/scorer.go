// Package anomaly scores log events against the active rule set.
package anomaly

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/metrics"
	"github.com/Mofasaz/aegisai-web/internal/model"
	"github.com/Mofasaz/aegisai-web/internal/rules"
	"github.com/Mofasaz/aegisai-web/internal/tracing"
)

// MaxRiskScore caps the summed risk points of an event.
const MaxRiskScore = 100

// ExplainSeparator joins the explanations of matched rules.
const ExplainSeparator = "; "

// Snapshotter yields the active rule set.
type Snapshotter interface {
	Snapshot() *rules.RuleSet
}

// Scorer applies rules to batches of events. It never modifies the store.
type Scorer struct {
	rules  Snapshotter
	logger *zap.Logger
}

// NewScorer creates a scorer reading from store.
func NewScorer(store Snapshotter, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{rules: store, logger: logger}
}

// Analyze scores each event against one snapshot taken at the start of
// the batch. Events that match no rule produce no anomaly.
func (s *Scorer) Analyze(ctx context.Context, events []model.LogEvent) []model.Anomaly {
	_, span := tracing.Tracer("anomaly").Start(ctx, "anomaly.Analyze")
	defer span.End()

	set := s.rules.Snapshot()
	out := make([]model.Anomaly, 0)
	for _, ev := range events {
		if a, ok := Score(set, ev); ok {
			out = append(out, a)
			metrics.Anomalies.WithLabelValues(a.Severity).Inc()
		}
	}
	metrics.EventsAnalyzed.Add(float64(len(events)))

	span.SetAttributes(
		attribute.Int("events", len(events)),
		attribute.Int("anomalies", len(out)),
		attribute.Int64("ruleset_version", set.Version()),
	)
	s.logger.Debug("events analyzed",
		zap.Int("events", len(events)),
		zap.Int("anomalies", len(out)),
		zap.String("ruleset_hash", set.Hash()),
	)
	return out
}

// Score evaluates one event. The second result is false when no rule matched.
func Score(set *rules.RuleSet, ev model.LogEvent) (model.Anomaly, bool) {
	hits := set.Evaluate(ev)
	if len(hits) == 0 {
		return model.Anomaly{}, false
	}

	a := model.Anomaly{EventID: ev.EventID, Signals: make([]string, 0, len(hits))}
	explains := make([]string, 0, len(hits))
	total := 0
	top := rules.Severity("")
	for _, h := range hits {
		a.Signals = append(a.Signals, h.RuleID)
		explains = append(explains, h.Explanation)
		total += h.Points
		if severityRank(h.Severity) > severityRank(top) {
			top = h.Severity
		}
	}
	a.RiskScore = clamp(total)
	a.Explain = strings.Join(explains, ExplainSeparator)
	a.Severity = string(top)
	return a, true
}

func clamp(n int) int {
	switch {
	case n < 0:
		return 0
	case n > MaxRiskScore:
		return MaxRiskScore
	default:
		return n
	}
}

func severityRank(s rules.Severity) int {
	switch s {
	case rules.SeverityLow:
		return 1
	case rules.SeverityMedium:
		return 2
	case rules.SeverityHigh:
		return 3
	case rules.SeverityCritical:
		return 4
	default:
		return 0
	}
}
