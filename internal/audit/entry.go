// Package audit keeps a tamper-evident, hash-chained JSONL log of rule
// set changes.
package audit

// Event types recorded in the log.
const (
	EventRuleAppend   = "rule_append"
	EventRuleReload   = "rule_reload"
	EventReloadFailed = "rule_reload_failed"
)

// Entry is one line of the log. Fields are plain values in a fixed order
// so json.Marshal output, and therefore the chain hash, is reproducible.
type Entry struct {
	Timestamp      string `json:"ts"`
	Event          string `json:"event"`
	Actor          string `json:"actor,omitempty"`
	CorrelationID  string `json:"correlation_id,omitempty"`
	RuleID         string `json:"rule_id,omitempty"`
	RulesetHash    string `json:"ruleset_hash"`
	RulesetVersion int64  `json:"ruleset_version"`
	RuleCount      int    `json:"rule_count"`
	Detail         string `json:"detail,omitempty"`
	PrevHash       string `json:"prev_hash"`
}
