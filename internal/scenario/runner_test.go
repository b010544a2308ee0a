package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Mofasaz/aegisai-web/internal/rules"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func defaultSet(t *testing.T) *rules.RuleSet {
	t.Helper()
	rs, err := rules.Parse([]byte(rules.DefaultRulesYAML()), "default")
	if err != nil {
		t.Fatal(err)
	}
	return rs
}

func ptr[T any](v T) *T { return &v }

func TestAllCasesPass(t *testing.T) {
	s := &Scenario{
		Name: "night login",
		Cases: []Case{
			{
				Name:   "failed at 23:10",
				Event:  map[string]any{"event_id": "e1", "action": "login", "status": "failed", "timestamp": "2025-01-01T23:10:00Z"},
				Expect: Expect{Signals: []string{"R-001"}, RiskScore: ptr(30), Severity: "medium"},
			},
			{
				Name:   "failed at noon",
				Event:  map[string]any{"event_id": "e2", "action": "login", "status": "failed", "timestamp": "2025-01-01T12:00:00Z"},
				Expect: Expect{Anomaly: ptr(false)},
			},
		},
	}

	res := Run(s, defaultSet(t))
	if res.Failed != 0 {
		t.Fatalf("expected 0 failures, got %d: %+v", res.Failed, res.Cases)
	}
	if res.Passed != 2 {
		t.Errorf("expected 2 passed, got %d", res.Passed)
	}
}

func TestFailedExpectationReported(t *testing.T) {
	s := &Scenario{
		Name: "wrong expectation",
		Cases: []Case{{
			Event:  map[string]any{"event_id": "e1", "action": "login", "status": "failed", "timestamp": "2025-01-01T23:10:00Z"},
			Expect: Expect{RiskScore: ptr(90), MinScore: ptr(50)},
		}},
	}

	res := Run(s, defaultSet(t))
	if res.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", res.Failed)
	}
	reason := res.Cases[0].Reason
	if !strings.Contains(reason, "risk_score 30, expected 90") || !strings.Contains(reason, "at least 50") {
		t.Errorf("unexpected reason %q", reason)
	}
}

func TestScoreClampedAcrossRules(t *testing.T) {
	s := &Scenario{Cases: []Case{{
		Event: map[string]any{
			"event_id": "e3", "action": "login", "status": "failed", "timestamp": "2025-01-02T02:00:00Z",
			"risk_context": map[string]any{"failed_logins": 9},
		},
		Expect: Expect{Signals: []string{"R-001", "R-002"}, RiskScore: ptr(70), Severity: "high"},
	}}}

	res := Run(s, defaultSet(t))
	if res.Failed != 0 {
		t.Errorf("unexpected failure: %s", res.Cases[0].Reason)
	}
}

func TestLoadAndRunUsesScenarioRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "custom.yaml", "rules:\n  - id: DEL\n    match: {actions: [data_delete]}\n    risk_points: 120\n")
	path := writeFile(t, dir, "deletes.yaml", `
rules: custom.yaml
cases:
  - event: {event_id: d1, action: data_delete}
    expect: {signals: [DEL], risk_score: 100}
`)

	res, err := LoadAndRun(path, filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != "deletes" {
		t.Errorf("expected name from file, got %q", res.Name)
	}
	if res.Failed != 0 {
		t.Errorf("unexpected failure: %s", res.Cases[0].Reason)
	}
	if res.File != path {
		t.Errorf("file not recorded: %q", res.File)
	}
}

func TestLoadAndRunBadRules(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "s.yaml", "name: s\ncases: []\n")
	rulesPath := writeFile(t, dir, "rules.yaml", "rules: [unclosed")

	if _, err := LoadAndRun(path, rulesPath); err == nil {
		t.Fatal("expected error for malformed rules")
	}
}

func TestFormatText(t *testing.T) {
	results := []*RunResult{
		{Name: "ok", Total: 1, Passed: 1},
		{Name: "bad", Total: 2, Passed: 1, Failed: 1, Cases: []CaseResult{
			{Index: 1, Passed: true},
			{Index: 2, EventID: "e7", Reason: "expected an anomaly"},
		}},
	}
	out := FormatText(results)
	for _, want := range []string{"Checking 2 scenario files", "PASS  ok (1/1)", "FAIL  bad (1/2)", "case 2: e7", "2 of 3 cases passed. 1 of 2 scenarios failed."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShippedScenarios(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("..", "..", "scenarios", "*.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Skip("no shipped scenarios")
	}
	for _, path := range matches {
		res, err := LoadAndRun(path, "")
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if res.Failed > 0 {
			t.Errorf("%s:\n%s", path, FormatText([]*RunResult{res}))
		}
	}
}
