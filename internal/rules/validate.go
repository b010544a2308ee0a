package rules

import "fmt"

// Level of a diagnostic.
type Level string

const (
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Diagnostic is one finding from Validate. Index is -1 for document-level findings.
type Diagnostic struct {
	Level   Level  `json:"level"`
	Index   int    `json:"index"`
	RuleID  string `json:"rule_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	loc := "document"
	if d.Index >= 0 {
		loc = fmt.Sprintf("rule %d", d.Index)
		if d.RuleID != "" {
			loc += " (" + d.RuleID + ")"
		}
	}
	if d.Field != "" {
		loc += " " + d.Field
	}
	return fmt.Sprintf("%s: %s: %s", d.Level, loc, d.Message)
}

// Report is the outcome of Validate. OK is false when any error was found.
// Rules holds the compiled rules that passed.
type Report struct {
	OK          bool         `json:"ok"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	Rules       []Rule       `json:"-"`
}

// Warnings returns the non-fatal diagnostics.
func (r Report) Warnings() []Diagnostic { return r.filter(LevelWarning) }

// Errors returns the fatal diagnostics.
func (r Report) Errors() []Diagnostic { return r.filter(LevelError) }

func (r Report) filter(l Level) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Level == l {
			out = append(out, d)
		}
	}
	return out
}

// Validate checks a rule document without loading it. Missing recommended
// fields are warnings. Malformed YAML, a top level that is neither a
// mapping nor a list, undecodable rules, unknown operators, invalid
// severities, negative points, bad patterns and duplicate ids are errors.
func Validate(text []byte) Report {
	rep := Report{Diagnostics: []Diagnostic{}}

	doc, err := decodeDocument(text)
	if err != nil {
		rep.Diagnostics = append(rep.Diagnostics, Diagnostic{Level: LevelError, Index: -1, Message: err.Error()})
		return rep
	}

	seen := make(map[string]int)
	for i, node := range doc.items {
		id := ""
		if n := mapValue(node, "id"); n != nil {
			id = n.Value
		}

		for _, key := range RequiredFields {
			if mapValue(node, key) != nil {
				continue
			}
			if key == "conditions" && mapValue(node, "when") != nil {
				continue
			}
			if _, weighted := doc.weights[id]; key == "risk_points" && weighted {
				continue
			}
			msg := "missing field"
			if key == "risk_points" {
				msg = fmt.Sprintf("missing field, defaults to %d", DefaultRiskPoints)
			}
			rep.Diagnostics = append(rep.Diagnostics, Diagnostic{
				Level: LevelWarning, Index: i, RuleID: id, Field: key, Message: msg,
			})
		}

		r, err := doc.decodeRule(node)
		if err != nil {
			rep.Diagnostics = append(rep.Diagnostics, Diagnostic{Level: LevelError, Index: i, RuleID: id, Message: err.Error()})
			continue
		}
		c, err := Compile(r)
		if err != nil {
			rep.Diagnostics = append(rep.Diagnostics, Diagnostic{Level: LevelError, Index: i, RuleID: id, Message: err.Error()})
			continue
		}
		if c.MatchesEverything() {
			rep.Diagnostics = append(rep.Diagnostics, Diagnostic{
				Level: LevelWarning, Index: i, RuleID: c.ID,
				Message: "rule has no match or predicate and will match every event",
			})
		}
		if c.ID != "" {
			if prev, dup := seen[c.ID]; dup {
				rep.Diagnostics = append(rep.Diagnostics, Diagnostic{
					Level: LevelError, Index: i, RuleID: c.ID, Field: "id",
					Message: fmt.Sprintf("duplicate id (first defined by rule %d)", prev),
				})
				continue
			}
			seen[c.ID] = i
		}
		rep.Rules = append(rep.Rules, c)
	}

	rep.OK = len(rep.Errors()) == 0
	return rep
}
