package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Mofasaz/aegisai-web/internal/rules"
)

var (
	initRulesPath  string
	initRulesForce bool
)

func init() {
	rootCmd.AddCommand(initRulesCmd)
	initRulesCmd.Flags().StringVarP(&initRulesPath, "output", "o", "rules.yaml", "Where to write the rule file")
	initRulesCmd.Flags().BoolVar(&initRulesForce, "force", false, "Overwrite an existing file")
}

var initRulesCmd = &cobra.Command{
	Use:   "init-rules",
	Short: "Generate a default rules.yaml with comments",
	Long:  "Writes the starter detection rules with a commented reference of the\ncondition syntax. Edit the file to customize detection.",
	RunE:  runInitRules,
}

func runInitRules(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(initRulesPath); err == nil && !initRulesForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", initRulesPath)
	}
	if dir := filepath.Dir(initRulesPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create directory: %w", err)
		}
	}
	if err := os.WriteFile(initRulesPath, []byte(rules.DefaultRulesYAML()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", initRulesPath, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", initRulesPath)
	return nil
}
