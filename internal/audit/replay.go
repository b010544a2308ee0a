package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filter selects entries for History. Zero fields match everything.
type Filter struct {
	RuleID string
	Event  string
	From   time.Time
	To     time.Time
}

func (f Filter) match(e Entry) bool {
	if f.RuleID != "" && e.RuleID != f.RuleID {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

// Summary counts the selected entries by event.
type Summary struct {
	Total          int    `json:"total"`
	Appends        int    `json:"appends"`
	Reloads        int    `json:"reloads"`
	Failures       int    `json:"failures"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
}

// History is the filtered view of a log.
type History struct {
	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// ReadHistory returns the entries of the log at path that pass filter.
// Malformed lines are skipped; use Verify to detect them.
func ReadHistory(path string, filter Filter) (*History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	h := &History{Entries: []Entry{}}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if json.Unmarshal(sc.Bytes(), &e) != nil || !filter.match(e) {
			continue
		}
		h.Entries = append(h.Entries, e)
		h.Summary.add(e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return h, nil
}

func (s *Summary) add(e Entry) {
	s.Total++
	switch e.Event {
	case EventRuleAppend:
		s.Appends++
	case EventRuleReload:
		s.Reloads++
	case EventReloadFailed:
		s.Failures++
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
