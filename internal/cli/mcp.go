package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	aegismcp "github.com/Mofasaz/aegisai-web/internal/mcp"
)

var (
	mcpRules string
	mcpActor string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpRules, "rules", "", "Path to rules YAML (overrides rules.path)")
	mcpCmd.Flags().StringVar(&mcpActor, "actor", "mcp", "Actor recorded for rules appended through MCP")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs aegis as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: aegis_analyze_events, aegis_assess_query, aegis_list_rules, aegis_validate_rule.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if mcpRules != "" {
		cfg.Rules.Path = mcpRules
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{audit: true, sinks: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv := aegismcp.New(a.engine, aegismcp.Config{Version: Version, Actor: mcpActor}, logger.Named("mcp"))
	logger.Info("aegis MCP server running on stdio", zap.String("rules", cfg.Rules.Path))
	return srv.Run(ctx)
}
