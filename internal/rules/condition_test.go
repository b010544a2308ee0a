package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

func mustCheck(t *testing.T, c Check) Condition {
	t.Helper()
	cond, err := CompileCheck(c)
	require.NoError(t, err)
	return cond
}

func TestBetweenHoursWrapsMidnight(t *testing.T) {
	cond := mustCheck(t, Check{Field: "timestamp", Op: "between_hours", Value: []any{22, 6}})

	tests := []struct {
		ts   string
		want bool
	}{
		{"2025-01-01T23:10:00Z", true},
		{"2025-01-01T02:00:00Z", true},
		{"2025-01-01T10:00:00Z", false},
		{"2025-01-01T22:00:00Z", true},
		{"2025-01-01T06:00:00Z", false},
	}
	for _, tt := range tests {
		t.Run(tt.ts, func(t *testing.T) {
			assert.Equal(t, tt.want, cond.Eval(model.LogEvent{Timestamp: tt.ts}))
		})
	}
}

func TestBetweenHoursNormalizesOffset(t *testing.T) {
	cond := mustCheck(t, Check{Op: "between_hours", Value: []any{22, 6}})

	// 01:30 at +04:00 is 21:30 UTC.
	assert.False(t, cond.Eval(model.LogEvent{Timestamp: "2025-01-02T01:30:00+04:00"}))
	// 20:30 at -03:00 is 23:30 UTC.
	assert.True(t, cond.Eval(model.LogEvent{Timestamp: "2025-01-01T20:30:00-03:00"}))
}

func TestBetweenHoursPlainWindow(t *testing.T) {
	assert.True(t, InWindow(9, 9, 17))
	assert.True(t, InWindow(16, 9, 17))
	assert.False(t, InWindow(17, 9, 17))
	assert.False(t, InWindow(3, 9, 17))
}

func TestBetweenHoursUnparsableTimestamp(t *testing.T) {
	cond := mustCheck(t, Check{Op: "between_hours", Value: []any{0, 24}})
	assert.False(t, cond.Eval(model.LogEvent{Timestamp: "yesterday"}))
	assert.False(t, cond.Eval(model.LogEvent{}))
}

func TestMissingValueDefaults(t *testing.T) {
	ev := model.LogEvent{EventID: "e1", Action: "login"}

	assert.True(t, mustCheck(t, Check{Field: "risk_context.failed_logins", Op: "gte", Value: 0}).Eval(ev))
	assert.False(t, mustCheck(t, Check{Field: "risk_context.failed_logins", Op: "gt", Value: 0}).Eval(ev))
	assert.False(t, mustCheck(t, Check{Field: "resource", Op: "regex", Value: "payroll"}).Eval(ev))
	assert.True(t, mustCheck(t, Check{Field: "resource", Op: "not_regex", Value: "payroll"}).Eval(ev))
	assert.False(t, mustCheck(t, Check{Field: "system", Op: "equals", Value: "HRIS"}).Eval(ev))
	assert.False(t, mustCheck(t, Check{Field: "system", Op: "in", Value: []any{"HRIS"}}).Eval(ev))
}

func TestDottedLookup(t *testing.T) {
	ev := model.EventFromMap(map[string]any{
		"event_id": "e1",
		"action":   "data_access",
		"risk_context": map[string]any{
			"records_accessed": float64(900),
			"geo":              map[string]any{"country": "NZ"},
		},
	})

	assert.True(t, mustCheck(t, Check{Field: "risk_context.records_accessed", Op: "gt", Value: 500}).Eval(ev))
	assert.True(t, mustCheck(t, Check{Field: "risk_context.geo.country", Op: "equals", Value: "nz"}).Eval(ev))
	assert.False(t, mustCheck(t, Check{Field: "risk_context.geo.city", Op: "regex", Value: "."}).Eval(ev))
}

func TestTextComparisonIgnoresCase(t *testing.T) {
	ev := model.LogEvent{Status: "FAILED", Role: "Cabin Crew"}

	assert.True(t, mustCheck(t, Check{Field: "status", Op: "equals", Value: "failed"}).Eval(ev))
	assert.True(t, mustCheck(t, Check{Field: "role", Op: "in_set", Value: []any{"cabin crew", "pilot"}}).Eval(ev))
	assert.True(t, mustCheck(t, Check{Field: "role", Op: "regex", Value: "^cabin"}).Eval(ev))
}

func TestNumericStringsCompare(t *testing.T) {
	ev := model.EventFromMap(map[string]any{"risk_context": map[string]any{"failed_logins": "7"}})
	assert.True(t, mustCheck(t, Check{Field: FieldFailedLogins, Op: "gte", Value: 5}).Eval(ev))
}

func TestCompileCheckRejects(t *testing.T) {
	tests := []struct {
		name  string
		check Check
	}{
		{"unknown operator", Check{Field: "action", Op: "contains", Value: "x"}},
		{"in without list", Check{Field: "action", Op: "in", Value: "login"}},
		{"gt non numeric", Check{Field: "x", Op: "gt", Value: "many"}},
		{"bad regex", Check{Field: "x", Op: "regex", Value: "("}},
		{"hours out of range", Check{Op: "between_hours", Value: []any{22, 30}}},
		{"hours wrong arity", Check{Op: "between_hours", Value: []any{22}}},
		{"missing field", Check{Op: "equals", Value: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileCheck(tt.check)
			require.Error(t, err)
		})
	}

	_, err := CompileCheck(Check{Field: "action", Op: "contains", Value: "x"})
	assert.True(t, errors.Is(err, ErrUnknownOperator))
}

func TestParseOperatorRoundTrip(t *testing.T) {
	for op, name := range operatorNames {
		got, err := ParseOperator(name)
		require.NoError(t, err)
		assert.Equal(t, op, got)
		assert.Equal(t, name, op.String())
	}
	got, err := ParseOperator("NOT_REGEX")
	require.NoError(t, err)
	assert.Equal(t, OpNotRegex, got)
}

func TestClauseModes(t *testing.T) {
	yes := mustCheck(t, Check{Field: "action", Op: "equals", Value: "login"})
	no := mustCheck(t, Check{Field: "action", Op: "equals", Value: "logout"})
	ev := model.LogEvent{Action: "login"}

	assert.True(t, Clause{Mode: ModeAll, Conditions: []Condition{yes, yes}}.Eval(ev))
	assert.False(t, Clause{Mode: ModeAll, Conditions: []Condition{yes, no}}.Eval(ev))
	assert.True(t, Clause{Mode: ModeAny, Conditions: []Condition{no, yes}}.Eval(ev))
	assert.False(t, Clause{Mode: ModeAny, Conditions: []Condition{no}}.Eval(ev))
	assert.False(t, Clause{Mode: ModeNone, Conditions: []Condition{yes}}.Eval(ev))
}
