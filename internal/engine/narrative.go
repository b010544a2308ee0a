package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/access"
	"github.com/Mofasaz/aegisai-web/internal/model"
	"github.com/Mofasaz/aegisai-web/internal/telemetry"
	"github.com/Mofasaz/aegisai-web/internal/upstream"
)

// linkedPolicies is how many clauses a narrative links.
const linkedPolicies = 3

// DefaultRemediation is used when none of the matched rules names a step.
var DefaultRemediation = []string{
	"Notify line manager",
	"Quarantine or reverse action if possible",
	"Schedule policy refresher",
}

// NarrativeRequest is one scored event to explain.
type NarrativeRequest struct {
	Event     model.LogEvent `json:"event"`
	Signals   []string       `json:"signals"`
	RiskScore int            `json:"risk_score"`
}

// Narrative explains one anomaly in prose.
type Narrative struct {
	EventID        string            `json:"event_id"`
	Narrative      string            `json:"narrative"`
	Remediation    []string          `json:"remediation"`
	LinkedPolicies []model.ClauseRef `json:"linked_policies"`
}

// Narrate writes a narrative per item, linking policy clauses the
// requester may see. A failed clause search leaves the links empty.
func (e *Engine) Narrate(ctx context.Context, p model.Principal, items []NarrativeRequest) []Narrative {
	grade := access.ResolveGrade(p, e.grade)
	set := e.store.Snapshot()

	out := make([]Narrative, 0, len(items))
	for _, it := range items {
		ev := it.Event
		resource := attr(ev, "resource")

		query := strings.TrimSpace(strings.Join(append(slices.Clone(it.Signals), ev.Action, resource), " "))
		refs := []model.ClauseRef{}
		chunks, uerr := upstream.Call(ctx, upstream.Search, e.searchTimeout, func(ctx context.Context) ([]model.PolicyChunk, error) {
			return e.search.Search(ctx, query, access.ForGrade(grade), linkedPolicies)
		})
		if uerr != nil {
			e.logger.Warn("narrative clause search failed", zap.String("event_id", ev.EventID), zap.Error(uerr))
		}
		for _, c := range chunks[:min(len(chunks), linkedPolicies)] {
			refs = append(refs, c.Ref())
		}

		var remediation []string
		for _, id := range it.Signals {
			if r, ok := set.Get(id); ok {
				for _, step := range r.Remediation {
					if !slices.Contains(remediation, step) {
						remediation = append(remediation, step)
					}
				}
			}
		}
		if len(remediation) == 0 {
			remediation = slices.Clone(DefaultRemediation)
		}

		out = append(out, Narrative{
			EventID:        ev.EventID,
			Narrative:      story(ev, resource, it.Signals, refs),
			Remediation:    remediation,
			LinkedPolicies: refs,
		})
	}
	return out
}

func story(ev model.LogEvent, resource string, signals []string, refs []model.ClauseRef) string {
	clauses := make([]string, len(refs))
	for i, r := range refs {
		clauses[i] = r.String()
	}
	return fmt.Sprintf("%s in %s performed %s on %s. Signals: %s. Related clauses: %s",
		orUnknown(ev.Role), orUnknown(attr(ev, "user_dept")), orUnknown(ev.Action), orUnknown(resource),
		strings.Join(signals, ", "), strings.Join(clauses, ", "))
}

// AttestRequest records that the requester acknowledged a clause.
type AttestRequest struct {
	PolicyID   string `json:"policy_id" validate:"required"`
	ClauseID   string `json:"clause_id" validate:"required"`
	AnswerHash string `json:"answer_hash,omitempty"`
}

// Attest emits an attestation row and returns its time.
func (e *Engine) Attest(_ context.Context, p model.Principal, req AttestRequest) (model.Attestation, error) {
	if req.PolicyID == "" || req.ClauseID == "" {
		return model.Attestation{}, fmt.Errorf("%w: policy_id and clause_id are required", ErrInvalidRequest)
	}
	at := e.now()
	e.emit(telemetry.Row{
		Kind:       telemetry.KindAttestation,
		Timestamp:  at,
		UserID:     p.ID,
		Grade:      access.ResolveGrade(p, e.grade),
		PolicyID:   req.PolicyID,
		ClauseID:   req.ClauseID,
		AnswerHash: req.AnswerHash,
	})
	return model.Attestation{Status: "ok", AttestedAt: at}, nil
}

// PushItem is one anomaly forwarded to the telemetry sinks.
type PushItem struct {
	TS        string   `json:"ts"`
	EventID   string   `json:"event_id"`
	UserDept  string   `json:"user_dept"`
	Role      string   `json:"role"`
	Signals   []string `json:"signals"`
	RiskScore int      `json:"risk_score"`
}

// PushResult reports how many anomalies were queued.
type PushResult struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// PushAnomalies queues one anomaly row per item. An unparsable ts falls
// back to the current time.
func (e *Engine) PushAnomalies(_ context.Context, items []PushItem) PushResult {
	for _, it := range items {
		ts, err := time.Parse(time.RFC3339Nano, it.TS)
		if err != nil {
			ts = e.now()
		}
		e.emit(telemetry.Row{
			Kind:      telemetry.KindAnomaly,
			Timestamp: ts.UTC(),
			EventID:   it.EventID,
			Role:      it.Role,
			Dept:      it.UserDept,
			Signals:   strings.Join(it.Signals, ","),
			RiskScore: max(0, min(it.RiskScore, 100)),
		})
	}
	return PushResult{Status: "ok", Count: len(items)}
}

func (e *Engine) emit(row telemetry.Row) {
	if e.emitter != nil {
		e.emitter.Emit(row)
	}
}

func attr(ev model.LogEvent, key string) string {
	v, ok := ev.Lookup(key)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
