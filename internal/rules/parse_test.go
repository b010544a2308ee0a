package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

const loginRuleYAML = `
rules:
  - id: R-LOGIN
    name: After-hours failed login
    description: Failed login at night
    match:
      actions: [login]
    when:
      all:
        - {field: action, op: in, value: [login]}
        - {field: status, op: equals, value: failed}
        - {field: timestamp, op: between_hours, value: [22, 6]}
    severity: high
    risk_points: 35
    remediation: [Call the user]
`

func TestLoginScenario(t *testing.T) {
	rs, err := Parse([]byte(loginRuleYAML), "test")
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())

	ev := model.LogEvent{
		EventID:   "e1",
		Action:    "login",
		Status:    "failed",
		Role:      "Cabin Crew",
		Timestamp: "2025-01-01T23:10:00Z",
	}
	hits := rs.Evaluate(ev)
	require.Len(t, hits, 1)
	assert.Equal(t, "R-LOGIN", hits[0].RuleID)
	assert.Equal(t, 35, hits[0].Points)
	assert.Equal(t, "Failed login at night", hits[0].Explanation)

	ev.Timestamp = "2025-01-01T12:00:00Z"
	assert.Empty(t, rs.Evaluate(ev))
}

func TestStructuredConditions(t *testing.T) {
	doc := `
rules:
  - id: R-BULK
    match: {actions: [data_access]}
    conditions:
      records_accessed_gt: 500
      resource_regex: payroll
      logic: AND
  - id: R-EITHER
    conditions:
      failed_logins_gte: 5
      resource_regex: payroll
      logic: or
`
	rs, err := Parse([]byte(doc), "test")
	require.NoError(t, err)

	ev := model.EventFromMap(map[string]any{
		"event_id":     "e1",
		"action":       "data_access",
		"resource":     "/share/Payroll/2025.xlsx",
		"risk_context": map[string]any{"records_accessed": 900},
	})
	hits := rs.Evaluate(ev)
	require.Len(t, hits, 2)
	assert.Equal(t, "R-BULK", hits[0].RuleID)
	assert.Equal(t, "R-EITHER", hits[1].RuleID)
	assert.Equal(t, DefaultRiskPoints, hits[0].Points)

	ev.Attributes["resource"] = "/share/public/menu.pdf"
	assert.Empty(t, rs.Evaluate(ev))
}

func TestMatchOnlyRule(t *testing.T) {
	rs, err := Parse([]byte(`[{id: R-DEL, match: {actions: [data_delete], roles: [intern]}}]`), "test")
	require.NoError(t, err)

	assert.Len(t, rs.Evaluate(model.LogEvent{Action: "DATA_DELETE", Role: "Intern"}), 1)
	assert.Empty(t, rs.Evaluate(model.LogEvent{Action: "data_delete", Role: "Manager"}))
}

func TestLegacyClauseWithoutModeNeverMatches(t *testing.T) {
	rs, err := Parse([]byte("rules:\n  - id: R-X\n    when: {}\n"), "test")
	require.NoError(t, err)
	assert.Empty(t, rs.Evaluate(model.LogEvent{Action: "login"}))
}

func TestScoreWeightsFromMeta(t *testing.T) {
	doc := `
meta:
  score_weights: {R-A: 60}
rules:
  - {id: R-A, match: {actions: [login]}}
  - {id: R-B, match: {actions: [login]}, risk_points: 0}
`
	rs, err := Parse([]byte(doc), "test")
	require.NoError(t, err)
	hits := rs.Evaluate(model.LogEvent{Action: "login"})
	require.Len(t, hits, 2)
	assert.Equal(t, 60, hits[0].Points)
	assert.Equal(t, 0, hits[1].Points)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"scalar top level", "just text"},
		{"invalid yaml", "rules: [unclosed"},
		{"rules not a list", "rules: {id: x}"},
		{"missing id", "rules:\n  - name: nameless\n"},
		{"unknown operator", "rules:\n  - id: R\n    when: {all: [{field: a, op: like, value: b}]}\n"},
		{"bad severity", "rules:\n  - id: R\n    severity: urgent\n"},
		{"negative points", "rules:\n  - id: R\n    risk_points: -1\n"},
		{"bad logic", "rules:\n  - id: R\n    conditions: {failed_logins_gte: 1, logic: XOR}\n"},
		{"non-map rule", "rules:\n  - R-1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "test")
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
		})
	}
}

func TestParseDuplicateIDs(t *testing.T) {
	_, err := Parse([]byte("rules:\n  - id: R-1\n  - id: R-1\n"), "test")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.True(t, errors.Is(err, ErrDuplicateRuleID))
	assert.Equal(t, 1, pe.Index)
}

func TestParseEmptyDocuments(t *testing.T) {
	for _, doc := range []string{"", "# only a comment\n", "rules:\n", "rules: []\n"} {
		rs, err := Parse([]byte(doc), "test")
		require.NoError(t, err, doc)
		assert.Equal(t, 0, rs.Len())
	}
}

func TestValidateWarnsOnMissingFields(t *testing.T) {
	rep := Validate([]byte("id: R-1\nname: one\nseverity: low\n"))
	require.True(t, rep.OK)
	require.Len(t, rep.Rules, 1)

	var fields []string
	for _, d := range rep.Warnings() {
		fields = append(fields, d.Field)
		assert.Equal(t, "R-1", d.RuleID)
	}
	assert.ElementsMatch(t, []string{"description", "match", "conditions", "risk_points", "remediation", ""}, fields)
}

func TestValidateWarnsOnCatchAllRule(t *testing.T) {
	rep := Validate([]byte("id: x\n"))
	require.True(t, rep.OK)

	var msgs []string
	for _, d := range rep.Warnings() {
		msgs = append(msgs, d.Message)
	}
	assert.Contains(t, msgs, "rule has no match or predicate and will match every event")

	narrowed := Validate([]byte("id: x\nmatch: {actions: [login]}\n"))
	for _, d := range narrowed.Warnings() {
		assert.NotContains(t, d.Message, "every event")
	}

	rs, err := Parse([]byte("id: x\n"), "test")
	require.NoError(t, err)
	r, _ := rs.Get("x")
	assert.True(t, r.MatchesEverything())
}

func TestValidateLegacyWhenSatisfiesConditions(t *testing.T) {
	rep := Validate([]byte(loginRuleYAML))
	require.True(t, rep.OK)
	for _, d := range rep.Diagnostics {
		assert.NotEqual(t, "conditions", d.Field)
	}
}

func TestValidateFatal(t *testing.T) {
	rep := Validate([]byte("42"))
	assert.False(t, rep.OK)
	require.Len(t, rep.Errors(), 1)
	assert.Equal(t, -1, rep.Errors()[0].Index)

	rep = Validate([]byte("rules:\n  - id: A\n  - id: A\n"))
	assert.False(t, rep.OK)
	assert.Len(t, rep.Rules, 1)
}

func TestValidateAllowsMissingID(t *testing.T) {
	rep := Validate([]byte("name: no id yet\nseverity: low\n"))
	assert.True(t, rep.OK)
	require.Len(t, rep.Rules, 1)
	assert.Empty(t, rep.Rules[0].ID)
}

func TestParseRule(t *testing.T) {
	r, warnings, err := ParseRule([]byte("rules:\n  - id: R-9\n    name: n\n"))
	require.NoError(t, err)
	assert.Equal(t, "R-9", r.ID)
	assert.Equal(t, SeverityMedium, r.Severity)
	assert.NotEmpty(t, warnings)

	_, _, err = ParseRule([]byte("- id: A\n- id: B\n"))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestMarshalRoundTrip(t *testing.T) {
	rs, err := Parse([]byte(loginRuleYAML), "test")
	require.NoError(t, err)

	data, err := Marshal(rs.Rules())
	require.NoError(t, err)

	again, err := Parse(data, "again")
	require.NoError(t, err)
	assert.Equal(t, rs.Rules()[0].ID, again.Rules()[0].ID)
	assert.Equal(t, rs.Rules()[0].When.Mode, again.Rules()[0].When.Mode)
	assert.Len(t, again.Rules()[0].When.Checks, 3)

	ev := model.LogEvent{Action: "login", Status: "failed", Timestamp: "2025-01-01T23:10:00Z"}
	assert.Len(t, again.Evaluate(ev), 1)
}

func TestRulesReturnsCopies(t *testing.T) {
	rs, err := Parse([]byte(loginRuleYAML), "test")
	require.NoError(t, err)

	got := rs.Rules()
	got[0].Remediation[0] = "tampered"
	got[0].Match.Actions[0] = "logout"
	*got[0].RiskPoints = 99
	got[0].When.Checks[0].Value.([]any)[0] = "tampered"
	got[0].When.Checks[2].Value.([]any)[1] = 12

	fresh, ok := rs.Get("R-LOGIN")
	require.True(t, ok)
	assert.Equal(t, "Call the user", fresh.Remediation[0])
	assert.Equal(t, "login", fresh.Match.Actions[0])
	assert.Equal(t, 35, fresh.Points())
	assert.Equal(t, []any{"login"}, fresh.When.Checks[0].Value)
	assert.Equal(t, []any{22, 6}, fresh.When.Checks[2].Value)
	assert.Equal(t, []any{"login"}, rs.Rules()[0].When.Checks[0].Value)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "id: R-1", StripFences("```yaml\nid: R-1\n```"))
	assert.Equal(t, "id: R-1", StripFences("```\nid: R-1\n```"))
	assert.Equal(t, "id: R-1", StripFences("  id: R-1  "))
}

func TestNewRuleID(t *testing.T) {
	a, b := NewRuleID(), NewRuleID()
	assert.Regexp(t, AutoIDPattern, a)
	assert.NotEqual(t, a, b)
}

func TestDefaultRulesParse(t *testing.T) {
	rep := Validate([]byte(DefaultRulesYAML()))
	require.True(t, rep.OK, rep.Diagnostics)
	assert.Empty(t, rep.Warnings())

	rs, err := Parse([]byte(DefaultRulesYAML()), "default")
	require.NoError(t, err)
	assert.Equal(t, 4, rs.Len())
}
