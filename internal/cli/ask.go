package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/engine"
	"github.com/Mofasaz/aegisai-web/internal/model"
)

var (
	askGrade      string
	askUser       string
	askRoles      []string
	askAssessOnly bool
)

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askGrade, "grade", "", "Requester grade, e.g. G3 (default: risk.default_grade)")
	askCmd.Flags().StringVar(&askUser, "user", "cli", "Requester id")
	askCmd.Flags().StringSliceVar(&askRoles, "roles", nil, "Requester app roles, e.g. Grade.Cabin_Crew")
	askCmd.Flags().BoolVar(&askAssessOnly, "assess-only", false, "Print the risk assessment without answering")
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a policy question as a given requester",
	Long: "Retrieves the clauses visible to the requester's grade, answers from\n" +
		"them and prints the answer with citations, confidence and risk reasons.",
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, zap.NewNop(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	q := engine.Question{
		Query:     strings.Join(args, " "),
		Principal: model.Principal{ID: askUser, Grade: askGrade, Roles: askRoles},
	}
	if askAssessOnly {
		ra, err := a.engine.AssessQuery(ctx, q)
		if err != nil {
			return err
		}
		return printJSON(cmd, ra)
	}
	resp, err := a.engine.Ask(ctx, q)
	if err != nil {
		return err
	}
	return printJSON(cmd, resp)
}
