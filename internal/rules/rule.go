package rules

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

// DefaultRiskPoints applies to rules that do not set risk_points.
const DefaultRiskPoints = 10

// Severity of a rule.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes a severity name. Empty defaults to medium.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case "":
		return SeverityMedium, nil
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("invalid severity %q (want low, medium, high or critical)", s)
	}
}

// Match narrows a rule to events whose fields belong to each non-empty list.
type Match struct {
	Actions   []string `yaml:"actions,omitempty" json:"actions,omitempty"`
	Roles     []string `yaml:"roles,omitempty" json:"roles,omitempty"`
	Systems   []string `yaml:"systems,omitempty" json:"systems,omitempty"`
	Locations []string `yaml:"locations,omitempty" json:"locations,omitempty"`
	Status    []string `yaml:"status,omitempty" json:"status,omitempty"`
}

// Satisfied reports whether every non-empty category contains the
// corresponding event field, compared case-insensitively.
func (m Match) Satisfied(ev model.LogEvent) bool {
	return member(m.Actions, ev.Action) &&
		member(m.Roles, ev.Role) &&
		member(m.Systems, ev.System) &&
		member(m.Locations, ev.Location) &&
		member(m.Status, ev.Status)
}

func (m Match) empty() bool {
	return len(m.Actions) == 0 && len(m.Roles) == 0 && len(m.Systems) == 0 &&
		len(m.Locations) == 0 && len(m.Status) == 0
}

func (m Match) clone() Match {
	return Match{
		Actions:   slices.Clone(m.Actions),
		Roles:     slices.Clone(m.Roles),
		Systems:   slices.Clone(m.Systems),
		Locations: slices.Clone(m.Locations),
		Status:    slices.Clone(m.Status),
	}
}

func member(set []string, v string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

// Rule is one detection rule. A rule matches when its Match is satisfied
// and every predicate it declares (Conditions, When) holds. A rule with
// no predicate matches on Match alone.
type Rule struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name,omitempty" json:"name,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Explain     string      `yaml:"explain,omitempty" json:"explain,omitempty"`
	Match       Match       `yaml:"match,omitempty" json:"match"`
	Conditions  *Conditions `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	When        *When       `yaml:"when,omitempty" json:"when,omitempty"`
	Severity    Severity    `yaml:"severity,omitempty" json:"severity,omitempty"`
	RiskPoints  *int        `yaml:"risk_points,omitempty" json:"risk_points,omitempty"`
	Remediation []string    `yaml:"remediation,omitempty" json:"remediation,omitempty"`

	clauses  []Clause
	compiled bool
}

// Compile validates the rule and prepares its predicate. The returned
// rule is a copy; r is not modified.
func Compile(r Rule) (Rule, error) {
	out := r.Clone()
	out.ID = strings.TrimSpace(out.ID)

	sev, err := ParseSeverity(string(out.Severity))
	if err != nil {
		return Rule{}, err
	}
	out.Severity = sev

	if out.RiskPoints != nil && *out.RiskPoints < 0 {
		return Rule{}, fmt.Errorf("risk_points must be >= 0, got %d", *out.RiskPoints)
	}

	out.clauses = nil
	if c := out.Conditions; c != nil {
		mode, err := c.mode()
		if err != nil {
			return Rule{}, fmt.Errorf("conditions: %w", err)
		}
		if checks := c.checks(); len(checks) > 0 {
			cl, err := compileChecks(mode, checks)
			if err != nil {
				return Rule{}, fmt.Errorf("conditions: %w", err)
			}
			out.clauses = append(out.clauses, cl)
		}
	}
	if w := out.When; w != nil {
		cl, err := compileChecks(w.Mode, w.Checks)
		if err != nil {
			return Rule{}, fmt.Errorf("when: %w", err)
		}
		out.clauses = append(out.clauses, cl)
	}
	out.compiled = true
	return out, nil
}

// Matches evaluates the rule against one event. An uncompiled rule never matches.
func (r Rule) Matches(ev model.LogEvent) bool {
	if !r.compiled || !r.Match.Satisfied(ev) {
		return false
	}
	for _, cl := range r.clauses {
		if !cl.Eval(ev) {
			return false
		}
	}
	return true
}

// MatchesEverything reports whether a compiled rule has neither a match
// narrowing nor a predicate, so every event satisfies it.
func (r Rule) MatchesEverything() bool {
	return r.compiled && r.Match.empty() && len(r.clauses) == 0
}

// Points returns the rule's risk weight.
func (r Rule) Points() int {
	if r.RiskPoints == nil {
		return DefaultRiskPoints
	}
	return *r.RiskPoints
}

// Explanation is the text used in anomaly explanations.
func (r Rule) Explanation() string {
	switch {
	case r.Explain != "":
		return r.Explain
	case r.Description != "":
		return r.Description
	case r.Name != "":
		return r.Name
	default:
		return r.ID
	}
}

// Clone returns a deep copy. Compiled clauses are immutable and shared.
func (r Rule) Clone() Rule {
	out := r
	out.Match = r.Match.clone()
	out.Remediation = slices.Clone(r.Remediation)
	if r.RiskPoints != nil {
		p := *r.RiskPoints
		out.RiskPoints = &p
	}
	if r.Conditions != nil {
		c := *r.Conditions
		c.BetweenHours = slices.Clone(c.BetweenHours)
		c.Checks = cloneChecks(c.Checks)
		c.FailedLoginsGTE = cloneFloat(c.FailedLoginsGTE)
		c.RecordsAccessedGT = cloneFloat(c.RecordsAccessedGT)
		c.DataVolumeMBGT = cloneFloat(c.DataVolumeMBGT)
		out.Conditions = &c
	}
	if r.When != nil {
		w := *r.When
		w.Checks = cloneChecks(w.Checks)
		out.When = &w
	}
	return out
}

func cloneChecks(checks []Check) []Check {
	if checks == nil {
		return nil
	}
	out := make([]Check, len(checks))
	for i, c := range checks {
		c.Value = cloneValue(c.Value)
		out[i] = c
	}
	return out
}

// cloneValue copies the containers a decoded check value can hold.
func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	case []float64:
		return slices.Clone(t)
	default:
		return v
	}
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
