package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/audit"
	"github.com/Mofasaz/aegisai-web/internal/config"
	"github.com/Mofasaz/aegisai-web/internal/engine"
	"github.com/Mofasaz/aegisai-web/internal/intent"
	"github.com/Mofasaz/aegisai-web/internal/llm"
	"github.com/Mofasaz/aegisai-web/internal/retrieval"
	"github.com/Mofasaz/aegisai-web/internal/rules"
	"github.com/Mofasaz/aegisai-web/internal/telemetry"
	"github.com/Mofasaz/aegisai-web/internal/tracing"
)

// app is the engine with its opened resources.
type app struct {
	engine  *engine.Engine
	emitter *telemetry.Emitter
	audit   *audit.Log
	logger  *zap.Logger
}

type appOptions struct {
	// audit opens the rule change log.
	audit bool
	// sinks opens the configured telemetry sinks. Without it rows are dropped.
	sinks bool
}

// newApp wires an engine from cfg and loads the rule file.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts appOptions) (*app, error) {
	search, err := newSearcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	bank := intent.DefaultBank()
	if len(cfg.Intents) > 0 {
		if bank, err = intent.NewBank(cfg.Intents); err != nil {
			return nil, err
		}
	}

	a := &app{logger: logger}
	var sinks []telemetry.Sink
	if opts.sinks {
		if sinks, err = newSinks(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}
	a.emitter = telemetry.NewEmitter(logger.Named("telemetry"), cfg.Telemetry.Buffer, sinks...)

	if opts.audit && cfg.Audit.Path != "" {
		if a.audit, err = audit.Open(cfg.Audit.Path); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	store := rules.NewStore(cfg.Rules.Path, rules.WithLogger(logger.Named("rules")))
	a.engine = engine.New(engine.Deps{
		Store:   store,
		Search:  search,
		LLM:     client,
		Intents: bank,
		Emitter: a.emitter,
		Audit:   a.audit,
		Risk:    cfg.Risk,
		Logger:  logger.Named("engine"),
	})

	if _, err := a.engine.ReloadRules(ctx, "startup"); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("load rules from %s: %w", cfg.Rules.Path, err)
	}
	return a, nil
}

// Close flushes telemetry and closes the audit log.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.emitter != nil {
		errs = append(errs, a.emitter.Close(ctx))
	}
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	return errors.Join(errs...)
}

func newSearcher(cfg *config.Config, logger *zap.Logger) (retrieval.Searcher, error) {
	if cfg.Retrieval.Backend == config.RetrievalRemote {
		return retrieval.NewRemote(cfg.Retrieval.Remote), nil
	}
	local, err := retrieval.LoadJSONL(cfg.Retrieval.CorpusPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("policy corpus not found, answering from an empty corpus", zap.String("path", cfg.Retrieval.CorpusPath))
		return retrieval.NewLocal(nil), nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info("policy corpus loaded", zap.String("path", cfg.Retrieval.CorpusPath), zap.Int("chunks", local.Len()))
	return local, nil
}

func newSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]telemetry.Sink, error) {
	var sinks []telemetry.Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	if cfg.Telemetry.Log {
		sinks = append(sinks, telemetry.LogSink{Logger: logger.Named("telemetry.rows")})
	}
	if cfg.Telemetry.SQLitePath != "" {
		s, err := telemetry.OpenSQLite(cfg.Telemetry.SQLitePath)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Telemetry.RedisEnabled {
		s, err := telemetry.NewRedisSink(ctx, cfg.Telemetry.Redis)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	for _, wh := range cfg.Telemetry.Webhooks {
		sinks = append(sinks, telemetry.NewWebhookSink(wh, tracing.InstrumentClient(nil)))
	}
	return sinks, nil
}
