package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

// ErrDuplicateRuleID is returned when a rule id is already taken.
var ErrDuplicateRuleID = errors.New("duplicate rule id")

// DuplicateRuleError names the conflicting id.
type DuplicateRuleError struct {
	ID string
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDuplicateRuleID, e.ID)
}

func (e *DuplicateRuleError) Unwrap() error { return ErrDuplicateRuleID }

// RuleSet is an immutable, ordered collection of compiled rules.
// A published RuleSet is never modified; replacements are new values.
type RuleSet struct {
	rules    []Rule
	index    map[string]int
	version  int64
	hash     string
	source   string
	loadedAt time.Time
}

// NewRuleSet compiles rules into a set. Ids must be present and unique.
func NewRuleSet(rules []Rule, source string) (*RuleSet, error) {
	data, err := Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	return newRuleSet(rules, source, hashBytes(data))
}

func newRuleSet(rules []Rule, source, hash string) (*RuleSet, error) {
	rs := &RuleSet{
		rules:    make([]Rule, 0, len(rules)),
		index:    make(map[string]int, len(rules)),
		hash:     hash,
		source:   source,
		loadedAt: time.Now().UTC(),
	}
	for i, r := range rules {
		c := r
		if !r.compiled {
			var err error
			if c, err = Compile(r); err != nil {
				return nil, &ParseError{Source: source, Index: i, RuleID: r.ID, Err: err}
			}
		}
		if c.ID == "" {
			return nil, &ParseError{Source: source, Index: i, Err: errors.New("id is required")}
		}
		if _, dup := rs.index[c.ID]; dup {
			return nil, &ParseError{Source: source, Index: i, RuleID: c.ID, Err: &DuplicateRuleError{ID: c.ID}}
		}
		rs.index[c.ID] = len(rs.rules)
		rs.rules = append(rs.rules, c)
	}
	return rs, nil
}

// emptyRuleSet is active before the first load.
func emptyRuleSet(source string) *RuleSet {
	return &RuleSet{index: map[string]int{}, hash: hashBytes(nil), source: source, loadedAt: time.Now().UTC()}
}

// withVersion returns a shallow copy stamped with v. Rules are shared.
func (s *RuleSet) withVersion(v int64) *RuleSet {
	c := *s
	c.version = v
	return &c
}

// Len returns the number of rules.
func (s *RuleSet) Len() int { return len(s.rules) }

// Version increments on every publish.
func (s *RuleSet) Version() int64 { return s.version }

// Hash is the sha256 of the document the set was loaded from.
func (s *RuleSet) Hash() string { return s.hash }

// Source is the path or label the set was loaded from.
func (s *RuleSet) Source() string { return s.source }

// LoadedAt is when the set was built.
func (s *RuleSet) LoadedAt() time.Time { return s.loadedAt }

// Rules returns deep copies of the rules in order.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Clone()
	}
	return out
}

// Get returns a copy of the rule with the given id.
func (s *RuleSet) Get(id string) (Rule, bool) {
	i, ok := s.index[id]
	if !ok {
		return Rule{}, false
	}
	return s.rules[i].Clone(), true
}

// Has reports whether id is present.
func (s *RuleSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Hit is a rule that matched an event.
type Hit struct {
	RuleID      string
	Explanation string
	Points      int
	Severity    Severity
}

// Evaluate returns the rules matching ev in set order.
func (s *RuleSet) Evaluate(ev model.LogEvent) []Hit {
	var hits []Hit
	for _, r := range s.rules {
		if r.Matches(ev) {
			hits = append(hits, Hit{
				RuleID:      r.ID,
				Explanation: r.Explanation(),
				Points:      r.Points(),
				Severity:    r.Severity,
			})
		}
	}
	return hits
}

// with returns a new set holding s's rules followed by r.
func (s *RuleSet) with(r Rule, source string) (*RuleSet, error) {
	if s.Has(r.ID) {
		return nil, &DuplicateRuleError{ID: r.ID}
	}
	next := make([]Rule, 0, len(s.rules)+1)
	next = append(next, s.rules...)
	next = append(next, r)
	return NewRuleSet(next, source)
}
