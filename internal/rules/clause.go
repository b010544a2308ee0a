package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

// Mode combines the conditions of a clause.
type Mode int

const (
	// ModeNone never matches. It comes from a legacy clause with neither all nor any.
	ModeNone Mode = iota
	ModeAll
	ModeAny
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeAny:
		return "any"
	default:
		return "none"
	}
}

// Clause is a compiled group of conditions.
type Clause struct {
	Mode       Mode
	Conditions []Condition
}

// Eval short-circuits in condition order.
func (c Clause) Eval(ev model.LogEvent) bool {
	switch c.Mode {
	case ModeAll:
		for _, cond := range c.Conditions {
			if !cond.Eval(ev) {
				return false
			}
		}
		return true
	case ModeAny:
		for _, cond := range c.Conditions {
			if cond.Eval(ev) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// When is the legacy predicate form: {all: [...]} or {any: [...]}.
// When both keys are present, all takes precedence.
type When struct {
	Mode   Mode
	Checks []Check
}

func (w *When) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: when must be a mapping", node.Line)
	}
	*w = When{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var mode Mode
		switch key {
		case "all":
			mode = ModeAll
		case "any":
			mode = ModeAny
		default:
			continue
		}
		if w.Mode == ModeAll {
			continue
		}
		var checks []Check
		if err := node.Content[i+1].Decode(&checks); err != nil {
			return fmt.Errorf("when.%s: %w", key, err)
		}
		w.Mode, w.Checks = mode, checks
	}
	return nil
}

func (w When) MarshalYAML() (any, error) {
	return w.doc(), nil
}

func (w When) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.doc())
}

func (w When) doc() map[string][]Check {
	switch w.Mode {
	case ModeAll:
		return map[string][]Check{"all": w.Checks}
	case ModeAny:
		return map[string][]Check{"any": w.Checks}
	default:
		return map[string][]Check{}
	}
}

// Conditions is the structured predicate form: named thresholds combined
// with logic AND (default) or OR. Checks adds free-form leaves under the
// same logic.
type Conditions struct {
	BetweenHours      []int    `yaml:"between_hours,omitempty" json:"between_hours,omitempty"`
	FailedLoginsGTE   *float64 `yaml:"failed_logins_gte,omitempty" json:"failed_logins_gte,omitempty"`
	RecordsAccessedGT *float64 `yaml:"records_accessed_gt,omitempty" json:"records_accessed_gt,omitempty"`
	DataVolumeMBGT    *float64 `yaml:"data_volume_mb_gt,omitempty" json:"data_volume_mb_gt,omitempty"`
	ResourceRegex     string   `yaml:"resource_regex,omitempty" json:"resource_regex,omitempty"`
	SourceIPNotRegex  string   `yaml:"source_ip_not_regex,omitempty" json:"source_ip_not_regex,omitempty"`
	Checks            []Check  `yaml:"checks,omitempty" json:"checks,omitempty"`
	Logic             string   `yaml:"logic,omitempty" json:"logic,omitempty"`
}

// Named threshold fields read from the event's risk context.
const (
	FieldFailedLogins    = "risk_context.failed_logins"
	FieldRecordsAccessed = "risk_context.records_accessed"
	FieldDataVolumeMB    = "risk_context.data_volume_mb"
)

// checks expands the named thresholds into leaf checks in a fixed order.
func (c Conditions) checks() []Check {
	var out []Check
	if c.BetweenHours != nil {
		out = append(out, Check{Field: "timestamp", Op: "between_hours", Value: c.BetweenHours})
	}
	if c.FailedLoginsGTE != nil {
		out = append(out, Check{Field: FieldFailedLogins, Op: "gte", Value: *c.FailedLoginsGTE})
	}
	if c.RecordsAccessedGT != nil {
		out = append(out, Check{Field: FieldRecordsAccessed, Op: "gt", Value: *c.RecordsAccessedGT})
	}
	if c.DataVolumeMBGT != nil {
		out = append(out, Check{Field: FieldDataVolumeMB, Op: "gt", Value: *c.DataVolumeMBGT})
	}
	if c.ResourceRegex != "" {
		out = append(out, Check{Field: "resource", Op: "regex", Value: c.ResourceRegex})
	}
	if c.SourceIPNotRegex != "" {
		out = append(out, Check{Field: "source_ip", Op: "not_regex", Value: c.SourceIPNotRegex})
	}
	return append(out, c.Checks...)
}

func (c Conditions) mode() (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(c.Logic)) {
	case "", "AND":
		return ModeAll, nil
	case "OR":
		return ModeAny, nil
	default:
		return ModeNone, fmt.Errorf("logic must be AND or OR, got %q", c.Logic)
	}
}

func compileChecks(mode Mode, checks []Check) (Clause, error) {
	cl := Clause{Mode: mode}
	for i, ch := range checks {
		cond, err := CompileCheck(ch)
		if err != nil {
			return Clause{}, fmt.Errorf("check %d: %w", i, err)
		}
		cl.Conditions = append(cl.Conditions, cond)
	}
	return cl, nil
}
