// Package rulediff compares two rule sets field by field.
package rulediff

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/Mofasaz/aegisai-web/internal/rules"
)

// Change types.
const (
	Added   = "added"
	Removed = "removed"
	Changed = "changed"
)

// FieldChange is one differing field of a rule present in both sets.
type FieldChange struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// RuleChange is an added, removed or changed rule.
type RuleChange struct {
	Type   string        `json:"type"`
	RuleID string        `json:"rule_id"`
	Label  string        `json:"label"`
	Fields []FieldChange `json:"fields,omitempty"`
}

// Result is the comparison of two rule sets.
type Result struct {
	OldSource  string       `json:"old_source"`
	NewSource  string       `json:"new_source"`
	OldCount   int          `json:"old_count"`
	NewCount   int          `json:"new_count"`
	Changes    []RuleChange `json:"changes"`
	HasChanges bool         `json:"has_changes"`
}

// Counts returns how many rules were added, removed and changed.
func (r *Result) Counts() (added, removed, changed int) {
	for _, c := range r.Changes {
		switch c.Type {
		case Added:
			added++
		case Removed:
			removed++
		case Changed:
			changed++
		}
	}
	return
}

// Diff compares old to new by rule id. Added and changed rules follow
// new's order; removed rules follow old's order and come last.
func Diff(old, new *rules.RuleSet) *Result {
	res := &Result{
		OldSource: old.Source(),
		NewSource: new.Source(),
		OldCount:  old.Len(),
		NewCount:  new.Len(),
		Changes:   []RuleChange{},
	}

	for _, nr := range new.Rules() {
		or, ok := old.Get(nr.ID)
		if !ok {
			res.Changes = append(res.Changes, RuleChange{Type: Added, RuleID: nr.ID, Label: label(nr)})
			continue
		}
		if fields := diffRule(or, nr); len(fields) > 0 {
			res.Changes = append(res.Changes, RuleChange{Type: Changed, RuleID: nr.ID, Label: label(nr), Fields: fields})
		}
	}
	for _, or := range old.Rules() {
		if !new.Has(or.ID) {
			res.Changes = append(res.Changes, RuleChange{Type: Removed, RuleID: or.ID, Label: label(or)})
		}
	}

	res.HasChanges = len(res.Changes) > 0
	return res
}

func label(r rules.Rule) string {
	return fmt.Sprintf("%s [%s, %d pts]", r.Explanation(), r.Severity, r.Points())
}

func diffRule(o, n rules.Rule) []FieldChange {
	var out []FieldChange
	str := func(field, a, b string) {
		if a != b {
			out = append(out, FieldChange{Field: field, Old: a, New: b})
		}
	}

	str("name", o.Name, n.Name)
	str("description", o.Description, n.Description)
	str("explain", o.Explain, n.Explain)
	if o.Severity != n.Severity {
		out = append(out, FieldChange{
			Field:   "severity",
			Old:     string(o.Severity),
			New:     string(n.Severity),
			Comment: direction(severityRank(o.Severity), severityRank(n.Severity)),
		})
	}
	if o.Points() != n.Points() {
		out = append(out, FieldChange{
			Field:   "risk_points",
			Old:     fmt.Sprint(o.Points()),
			New:     fmt.Sprint(n.Points()),
			Comment: direction(o.Points(), n.Points()),
		})
	}
	str("match", compact(o.Match), compact(n.Match))
	str("conditions", compact(o.Conditions), compact(n.Conditions))
	str("when", compact(o.When), compact(n.When))
	if !slices.Equal(o.Remediation, n.Remediation) {
		out = append(out, FieldChange{
			Field: "remediation",
			Old:   strings.Join(o.Remediation, " | "),
			New:   strings.Join(n.Remediation, " | "),
		})
	}
	return out
}

// direction labels a change where a higher value raises more or
// stronger anomalies.
func direction(old, new int) string {
	if new > old {
		return "stricter"
	}
	return "looser"
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
	}
	return 0
}

func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return ""
	}
	return string(data)
}
