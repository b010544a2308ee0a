package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mofasaz/aegisai-web/internal/audit"
)

var (
	historyRule   string
	historyEvent  string
	historySince  string
	historyFormat string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditHistoryCmd)
	auditHistoryCmd.Flags().StringVar(&historyRule, "rule", "", "Only entries for this rule id")
	auditHistoryCmd.Flags().StringVar(&historyEvent, "event", "", "Only entries of this event (rule_append|rule_reload|rule_reload_failed)")
	auditHistoryCmd.Flags().StringVar(&historySince, "since", "", "Only entries newer than this duration, e.g. 24h")
	auditHistoryCmd.Flags().StringVarP(&historyFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Rule change audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained log of rule appends and reloads.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditHistoryCmd = &cobra.Command{
	Use:   "history <path>",
	Short: "Show the rule change timeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditHistory,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if !result.Valid {
		return fmt.Errorf("FAILED at line %d: %s", result.ErrorLine, result.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
	return nil
}

func runAuditHistory(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{RuleID: historyRule, Event: historyEvent}
	if historySince != "" {
		d, err := time.ParseDuration(historySince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		filter.From = time.Now().UTC().Add(-d)
	}

	h, err := audit.ReadHistory(args[0], filter)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if historyFormat == "json" {
		s, err := audit.FormatJSON(h)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
		return nil
	}
	fmt.Fprint(out, audit.FormatTimeline(h))
	return nil
}
