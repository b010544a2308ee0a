// Package scenario checks rule sets against YAML files of sample events
// and their expected anomalies.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Mofasaz/aegisai-web/internal/anomaly"
	"github.com/Mofasaz/aegisai-web/internal/model"
	"github.com/Mofasaz/aegisai-web/internal/rules"
)

// Run scores every case against set. Cases are independent.
func Run(s *Scenario, set *rules.RuleSet) *RunResult {
	res := &RunResult{
		Name:  s.Name,
		Rules: set.Source(),
		Total: len(s.Cases),
		Cases: make([]CaseResult, 0, len(s.Cases)),
	}

	for i, c := range s.Cases {
		ev := model.EventFromMap(c.Event)
		a, hit := anomaly.Score(set, ev)

		cr := CaseResult{
			Index:   i + 1,
			Name:    c.Name,
			EventID: ev.EventID,
			Signals: a.Signals,
			Score:   a.RiskScore,
		}
		if cr.Signals == nil {
			cr.Signals = []string{}
		}
		if reason := check(c.Expect, a, hit); reason != "" {
			cr.Reason = reason
			res.Failed++
		} else {
			cr.Passed = true
			res.Passed++
		}
		res.Cases = append(res.Cases, cr)
	}
	return res
}

// check returns why a fails exp, or "" when it passes.
func check(exp Expect, a model.Anomaly, hit bool) string {
	var problems []string
	if exp.Anomaly != nil && *exp.Anomaly != hit {
		if hit {
			problems = append(problems, "expected no anomaly")
		} else {
			problems = append(problems, "expected an anomaly")
		}
	}
	if exp.Signals != nil && !slices.Equal(exp.Signals, a.Signals) {
		problems = append(problems, fmt.Sprintf("signals %v, expected %v", a.Signals, exp.Signals))
	}
	if exp.RiskScore != nil && *exp.RiskScore != a.RiskScore {
		problems = append(problems, fmt.Sprintf("risk_score %d, expected %d", a.RiskScore, *exp.RiskScore))
	}
	if exp.MinScore != nil && a.RiskScore < *exp.MinScore {
		problems = append(problems, fmt.Sprintf("risk_score %d, expected at least %d", a.RiskScore, *exp.MinScore))
	}
	if exp.Severity != "" && !strings.EqualFold(exp.Severity, a.Severity) {
		problems = append(problems, fmt.Sprintf("severity %q, expected %q", a.Severity, exp.Severity))
	}
	return strings.Join(problems, "; ")
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &s, nil
}

// LoadAndRun loads the scenario at path and runs it against the rule file
// the scenario names, or rulesPath when it names none. With neither the
// built-in rules are used.
func LoadAndRun(path, rulesPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	if s.Rules != "" {
		rulesPath = s.Rules
		if !filepath.IsAbs(rulesPath) {
			rulesPath = filepath.Join(filepath.Dir(path), rulesPath)
		}
	}
	var set *rules.RuleSet
	if rulesPath == "" {
		set, err = rules.Parse([]byte(rules.DefaultRulesYAML()), "default")
	} else {
		set, err = rules.LoadFile(rulesPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	res := Run(s, set)
	res.File = path
	return res, nil
}
