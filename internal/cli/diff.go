package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mofasaz/aegisai-web/internal/rulediff"
	"github.com/Mofasaz/aegisai-web/internal/rules"
)

var diffFormat string

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Compare two rule files and show changes",
	Long:  "Loads two rule files and shows rules added, removed and changed,\nwith severity and risk point moves marked stricter or looser.",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldSet, err := rules.LoadFile(args[0])
	if err != nil {
		return fmt.Errorf("load old rules: %w", err)
	}
	newSet, err := rules.LoadFile(args[1])
	if err != nil {
		return fmt.Errorf("load new rules: %w", err)
	}

	result := rulediff.Diff(oldSet, newSet)
	out := cmd.OutOrStdout()
	switch diffFormat {
	case "json":
		s, err := rulediff.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, rulediff.FormatText(result))
	}
	return nil
}
