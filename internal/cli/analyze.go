package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

var analyzeRules string

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeRules, "rules", "", "Path to rules YAML (overrides rules.path)")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <events.json|->",
	Short: "Score log events against the rules",
	Long: "Reads events as a JSON array, an {\"events\": [...]} object, or one JSON\n" +
		"object per line, and prints the anomalies as JSON.",
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	events, err := decodeEvents(data)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if analyzeRules != "" {
		cfg.Rules.Path = analyzeRules
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, zap.NewNop(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	anomalies := a.engine.AnalyzeEvents(ctx, events)
	return printJSON(cmd, map[string]any{"anomalies": anomalies})
}

// decodeEvents accepts an array, an {"events": [...]} object or JSON lines.
func decodeEvents(data []byte) ([]model.LogEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var events []model.LogEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		return events, nil
	}

	var wrapped struct {
		Events []model.LogEvent `json:"events"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err == nil && wrapped.Events != nil {
		return wrapped.Events, nil
	}

	var events []model.LogEvent
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ev model.LogEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode events line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
