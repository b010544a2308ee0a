package model

import "time"

// Anomaly is the scoring result for one event that matched at least one rule.
type Anomaly struct {
	EventID   string   `json:"event_id"`
	Signals   []string `json:"signals"`
	RiskScore int      `json:"risk_score"`
	Explain   string   `json:"explain"`
	Severity  string   `json:"severity,omitempty"`
}

// Visibility of a policy chunk.
type Visibility string

const (
	Public     Visibility = "public"
	Restricted Visibility = "restricted"
)

// PolicyChunk is one retrievable clause of a policy document.
type PolicyChunk struct {
	PolicyID      string     `json:"policy_id"`
	ClauseID      string     `json:"clause_id"`
	Title         string     `json:"title,omitempty"`
	Section       string     `json:"section,omitempty"`
	Text          string     `json:"text"`
	Visibility    Visibility `json:"visibility"`
	AllowedGrades []string   `json:"allowed_grades,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
}

// Ref returns the chunk's policy/clause identifier pair.
func (c PolicyChunk) Ref() ClauseRef {
	return ClauseRef{PolicyID: c.PolicyID, ClauseID: c.ClauseID}
}

// ClauseRef identifies a clause without carrying its text.
type ClauseRef struct {
	PolicyID string `json:"policy_id"`
	ClauseID string `json:"clause_id"`
}

func (r ClauseRef) String() string {
	return r.PolicyID + "/" + r.ClauseID
}

// Principal is the already-authenticated requester.
type Principal struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Grade string   `json:"grade,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// RiskAssessment summarizes the risk signals collected for one query.
// Confidence is nil when no content was visible to the requester.
type RiskAssessment struct {
	EffectiveGrade     string      `json:"effective_grade"`
	RestrictedHitCount int         `json:"restricted_hit_count"`
	RestrictedRefs     []ClauseRef `json:"restricted_refs,omitempty"`
	RiskyIntentLabel   *string     `json:"risky_intent_label"`
	Reasons            []string    `json:"reasons"`
	Confidence         *float64    `json:"confidence"`
	RestrictedProbe    bool        `json:"restricted_probe"`
	CorrelationID      string      `json:"correlation_id"`
}

// Citation is a chunk reference returned alongside an answer.
type Citation struct {
	PolicyID      string     `json:"policy_id"`
	ClauseID      string     `json:"clause_id"`
	Title         string     `json:"title,omitempty"`
	Section       string     `json:"section,omitempty"`
	Visibility    Visibility `json:"visibility,omitempty"`
	AllowedGrades []string   `json:"allowed_grades,omitempty"`
}

// CitationFor strips a chunk down to its citation fields.
func CitationFor(c PolicyChunk) Citation {
	return Citation{
		PolicyID:      c.PolicyID,
		ClauseID:      c.ClauseID,
		Title:         c.Title,
		Section:       c.Section,
		Visibility:    c.Visibility,
		AllowedGrades: c.AllowedGrades,
	}
}

// AskResponse is the full answer payload of the question pipeline.
type AskResponse struct {
	Answer          string     `json:"answer"`
	Citations       []Citation `json:"citations"`
	Highlights      []string   `json:"highlights"`
	Confidence      *float64   `json:"confidence"`
	RestrictedProbe bool       `json:"restricted_probe"`
	RiskReasons     []string   `json:"risk_reasons"`
	CorrelationID   string     `json:"correlation_id"`
}

// Attestation records that a user acknowledged a policy clause.
type Attestation struct {
	Status     string    `json:"status"`
	AttestedAt time.Time `json:"attested_at"`
}
