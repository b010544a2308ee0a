package scenario

// Expect is what a case asserts about the scored event. Unset fields are
// not checked.
type Expect struct {
	// Anomaly false asserts that the event matches no rule.
	Anomaly   *bool    `yaml:"anomaly,omitempty"`
	Signals   []string `yaml:"signals,omitempty"`
	RiskScore *int     `yaml:"risk_score,omitempty"`
	MinScore  *int     `yaml:"min_score,omitempty"`
	Severity  string   `yaml:"severity,omitempty"`
}

// Case is one event with its expectation.
type Case struct {
	Name   string         `yaml:"name,omitempty"`
	Event  map[string]any `yaml:"event"`
	Expect Expect         `yaml:"expect"`
}

// Scenario is a named set of cases. Rules, when set, is a rule file
// path relative to the scenario file and overrides the default rules.
type Scenario struct {
	Name  string `yaml:"name"`
	Rules string `yaml:"rules,omitempty"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Index   int      `json:"index"`
	Name    string   `json:"name,omitempty"`
	EventID string   `json:"event_id"`
	Passed  bool     `json:"passed"`
	Signals []string `json:"signals"`
	Score   int      `json:"risk_score"`
	Reason  string   `json:"reason,omitempty"`
}

// RunResult is the outcome of one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Rules  string       `json:"rules"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
