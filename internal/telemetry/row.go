// Package telemetry ships risk, anomaly and attestation rows to
// configured sinks without blocking the request path.
package telemetry

import (
	"context"
	"strings"
	"time"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

// Kind of a telemetry row.
type Kind string

const (
	KindRisk        Kind = "risk"
	KindAnomaly     Kind = "anomaly"
	KindAttestation Kind = "attestation"
)

// Row is one telemetry record. Fields unused by a kind are left empty.
type Row struct {
	Kind          Kind      `json:"kind"`
	Timestamp     time.Time `json:"ts"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	Grade         string    `json:"grade,omitempty"`

	// risk
	Query          string `json:"query,omitempty"`
	Reasons        string `json:"reasons,omitempty"`
	RestrictedHits int    `json:"restricted_hits,omitempty"`
	TopRestricted  string `json:"top_restricted,omitempty"`
	RiskScore      int    `json:"risk_score,omitempty"`

	// anomaly
	EventID string `json:"event_id,omitempty"`
	Role    string `json:"role,omitempty"`
	Dept    string `json:"dept,omitempty"`
	Signals string `json:"signals,omitempty"`

	// attestation
	PolicyID   string `json:"policy_id,omitempty"`
	ClauseID   string `json:"clause_id,omitempty"`
	AnswerHash string `json:"answer_hash,omitempty"`
}

// JoinRefs renders up to n clause refs as "policy/clause" joined by commas.
func JoinRefs(refs []model.ClauseRef, n int) string {
	if len(refs) > n {
		refs = refs[:n]
	}
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// Sink persists rows. Write is called from a single worker goroutine.
type Sink interface {
	Name() string
	Write(ctx context.Context, row Row) error
	Close() error
}
