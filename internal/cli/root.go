// Package cli implements the aegis command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/config"
	"github.com/Mofasaz/aegisai-web/internal/logging"
)

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("AEGIS_CONFIG"), "Path to config YAML (default: built-in defaults + AEGIS_ env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug|info|warn|error)")
}

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Grade-gated policy Q&A risk core and rule-based anomaly scorer",
	Long: "Scores activity log events against hot-reloadable YAML detection rules\n" +
		"and collects risk signals for policy questions, hiding clauses above the\n" +
		"requester's grade while still flagging probes for them.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}
