package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	draftAppend bool
	draftActor  string
)

func init() {
	rootCmd.AddCommand(draftCmd)
	draftCmd.Flags().BoolVar(&draftAppend, "append", false, "Append the draft to the rules file when it validates")
	draftCmd.Flags().StringVar(&draftActor, "actor", "cli", "Actor recorded in the audit log when appending")
}

var draftCmd = &cobra.Command{
	Use:   "draft <requirement>",
	Short: "Draft a detection rule from a plain-language requirement",
	Long: "Asks the configured model for one rule meeting the requirement,\n" +
		"validates it and prints the normalized YAML with any warnings.",
	Args: cobra.MinimumNArgs(1),
	RunE: runDraft,
}

func runDraft(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger, appOptions{audit: draftAppend})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	staged, err := a.engine.DraftRule(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, staged.NormalizedYAML)
	for _, w := range staged.Warnings {
		fmt.Fprintf(out, "# %s\n", w.String())
	}
	if !draftAppend {
		return nil
	}

	res, err := a.engine.AppendRule(ctx, staged.NormalizedYAML, draftActor)
	if err != nil {
		return fmt.Errorf("append %s: %w", staged.Rule.ID, err)
	}
	fmt.Fprintf(out, "# %s\n", res.Message)
	return nil
}
