package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const rule = "────────────────────────────────────────────────────────────────"

// FormatTimeline renders h as a plain-text table, one entry per line.
func FormatTimeline(h *History) string {
	if len(h.Entries) == 0 {
		return "No rule changes recorded.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rule changes | %s to %s UTC\n", clock(h.Summary.FirstTimestamp, "2006-01-02 15:04:05"),
		clock(h.Summary.LastTimestamp, "2006-01-02 15:04:05"))
	b.WriteString(rule + "\n")
	for _, e := range h.Entries {
		fmt.Fprintf(&b, "%-10s %-19s v%-5d %-4d %-14s %s\n",
			clock(e.Timestamp, "15:04:05"), e.Event, e.RulesetVersion, e.RuleCount,
			truncate(e.RuleID, 14), truncate(e.Detail, 40))
	}
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Summary: %d appends, %d reloads, %d failed reloads\n",
		h.Summary.Appends, h.Summary.Reloads, h.Summary.Failures)
	return b.String()
}

// FormatJSON renders h as indented JSON.
func FormatJSON(h *History) (string, error) {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	return string(data), nil
}

func clock(ts, layout string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format(layout)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
