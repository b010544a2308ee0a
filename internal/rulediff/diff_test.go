package rulediff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mofasaz/aegisai-web/internal/rules"
)

const before = `
rules:
  - id: R-1
    name: After-hours login
    match: {actions: [login]}
    conditions: {between_hours: [22, 6]}
    severity: medium
    risk_points: 30
  - id: R-2
    name: Bulk export
    match: {actions: [export]}
    severity: high
  - id: R-3
    name: Old rule
`

const after = `
rules:
  - id: R-1
    name: After-hours login
    match: {actions: [login]}
    conditions: {between_hours: [21, 6]}
    severity: high
    risk_points: 45
  - id: R-2
    name: Bulk export
    match: {actions: [export]}
    severity: high
  - id: R-4
    name: New rule
    risk_points: 5
`

func parse(t *testing.T, doc, source string) *rules.RuleSet {
	t.Helper()
	rs, err := rules.Parse([]byte(doc), source)
	require.NoError(t, err)
	return rs
}

func TestDiff(t *testing.T) {
	res := Diff(parse(t, before, "old.yaml"), parse(t, after, "new.yaml"))
	require.True(t, res.HasChanges)
	require.Len(t, res.Changes, 3)

	assert.Equal(t, RuleChange{Type: Changed, RuleID: "R-1", Label: "After-hours login [high, 45 pts]", Fields: []FieldChange{
		{Field: "severity", Old: "medium", New: "high", Comment: "stricter"},
		{Field: "risk_points", Old: "30", New: "45", Comment: "stricter"},
		{Field: "conditions", Old: `{"between_hours":[22,6]}`, New: `{"between_hours":[21,6]}`},
	}}, res.Changes[0])
	assert.Equal(t, Added, res.Changes[1].Type)
	assert.Equal(t, "R-4", res.Changes[1].RuleID)
	assert.Equal(t, Removed, res.Changes[2].Type)
	assert.Equal(t, "R-3", res.Changes[2].RuleID)

	added, removed, changed := res.Counts()
	assert.Equal(t, []int{1, 1, 1}, []int{added, removed, changed})
}

func TestDiffIdentical(t *testing.T) {
	res := Diff(parse(t, before, "a"), parse(t, before, "b"))
	assert.False(t, res.HasChanges)
	assert.Empty(t, res.Changes)
	assert.Contains(t, FormatText(res), "No changes detected.")
}

func TestDiffDefaultPointsAreCompared(t *testing.T) {
	old := parse(t, "rules:\n  - id: R-1\n", "a")
	same := parse(t, "rules:\n  - id: R-1\n    risk_points: 10\n", "b")
	assert.False(t, Diff(old, same).HasChanges)
}

func TestFormatText(t *testing.T) {
	res := Diff(parse(t, before, "old.yaml"), parse(t, after, "new.yaml"))
	text := FormatText(res)

	assert.Contains(t, text, "Rule diff: old.yaml (3 rules) → new.yaml (3 rules)")
	assert.Contains(t, text, "  ~ R-1")
	assert.Contains(t, text, "  + R-4")
	assert.Contains(t, text, "  - R-3")
	assert.Contains(t, text, "(stricter)")
	assert.Contains(t, text, "1 added, 1 removed, 1 changed")

	js, err := FormatJSON(res)
	require.NoError(t, err)
	assert.Contains(t, js, `"has_changes": true`)
}
