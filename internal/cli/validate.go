package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mofasaz/aegisai-web/internal/rules"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate <rules.yaml>",
	Short: "Validate a rule file",
	Long:  "Parses a rule file and prints every error and warning.\nExit code 1 if the file would be rejected on reload.",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read rules: %w", err)
	}

	rep := rules.Validate(data)
	out := cmd.OutOrStdout()
	for _, d := range rep.Diagnostics {
		fmt.Fprintln(out, d.String())
	}
	if !rep.OK {
		return fmt.Errorf("%s: %d error(s)", args[0], len(rep.Errors()))
	}
	fmt.Fprintf(out, "OK: %d rules, %d warning(s)\n", len(rep.Rules), len(rep.Warnings()))
	return nil
}
