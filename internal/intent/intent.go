// Package intent flags queries that read like attempts to move sensitive
// data out of the organization.
package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is one entry of the bank. Expr is compiled case-insensitively.
type Pattern struct {
	ID   string `koanf:"id" yaml:"id" json:"id"`
	Expr string `koanf:"pattern" yaml:"pattern" json:"pattern"`

	re *regexp.Regexp
}

// DefaultPatterns returns the built-in bank in evaluation order.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Sending crew data to personal or external mailboxes
		{ID: "email_external", Expr: `\bemail\b.*\b(crew|roster|schedules)\b.*\b(external|outside|gmail|yahoo|personal)\b`},
		// Sharing compensation or identity documents
		{ID: "share_pii", Expr: `\bshare\b.*\b(payroll|salary|pii|passport|visa)\b`},
		// Bulk download of confidential records
		{ID: "download_confidential", Expr: `\bdownload\b.*\b(employee\s*records|confidential|restricted)\b`},
		// Exporting HR or crew datasets
		{ID: "export_hr", Expr: `\bexport\b.*\b(hr|crew|employee|payroll|confidential)\b`},
	}
}

// Bank is an ordered list of compiled patterns. The first match wins.
type Bank struct {
	patterns []Pattern
}

// NewBank compiles patterns in order. Ids must be unique and non-empty.
func NewBank(patterns []Pattern) (*Bank, error) {
	b := &Bank{patterns: make([]Pattern, 0, len(patterns))}
	seen := make(map[string]bool, len(patterns))
	for i, p := range patterns {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("intent pattern %d: id is required", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("intent pattern %d: duplicate id %q", i, id)
		}
		seen[id] = true
		re, err := regexp.Compile("(?i)" + p.Expr)
		if err != nil {
			return nil, fmt.Errorf("intent pattern %q: %w", id, err)
		}
		b.patterns = append(b.patterns, Pattern{ID: id, Expr: p.Expr, re: re})
	}
	return b, nil
}

// DefaultBank compiles DefaultPatterns.
func DefaultBank() *Bank {
	b, err := NewBank(DefaultPatterns())
	if err != nil {
		panic(err)
	}
	return b
}

// Match tests query against each pattern in order and returns the id of
// the first one that matches. Later patterns are not tested.
func (b *Bank) Match(query string) (string, bool) {
	for _, p := range b.patterns {
		if p.re.MatchString(query) {
			return p.ID, true
		}
	}
	return "", false
}

// IDs lists the pattern ids in order.
func (b *Bank) IDs() []string {
	out := make([]string, len(b.patterns))
	for i, p := range b.patterns {
		out[i] = p.ID
	}
	return out
}
