package rulediff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the result for a terminal.
func FormatText(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule diff: %s (%d rules) → %s (%d rules)\n", r.OldSource, r.OldCount, r.NewSource, r.NewCount)
	if !r.HasChanges {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, c := range r.Changes {
		switch c.Type {
		case Added:
			fmt.Fprintf(&b, "  + %s  %s\n", c.RuleID, c.Label)
		case Removed:
			fmt.Fprintf(&b, "  - %s  %s\n", c.RuleID, c.Label)
		case Changed:
			fmt.Fprintf(&b, "  ~ %s  %s\n", c.RuleID, c.Label)
			for _, f := range c.Fields {
				fmt.Fprintf(&b, "      %-14s %s → %s", f.Field+":", orNone(f.Old), orNone(f.New))
				if f.Comment != "" {
					fmt.Fprintf(&b, "  (%s)", f.Comment)
				}
				b.WriteString("\n")
			}
		}
	}

	added, removed, changed := r.Counts()
	fmt.Fprintf(&b, "\n%d added, %d removed, %d changed\n", added, removed, changed)
	return b.String()
}

// FormatJSON renders the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
