// Package engine exposes the operations served over HTTP, gRPC, MCP and
// the CLI. It owns no state beyond its collaborators.
package engine

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/anomaly"
	"github.com/Mofasaz/aegisai-web/internal/audit"
	"github.com/Mofasaz/aegisai-web/internal/intent"
	"github.com/Mofasaz/aegisai-web/internal/llm"
	"github.com/Mofasaz/aegisai-web/internal/retrieval"
	"github.com/Mofasaz/aegisai-web/internal/risk"
	"github.com/Mofasaz/aegisai-web/internal/rules"
)

// ErrInvalidRequest marks caller input the engine cannot act on.
var ErrInvalidRequest = errors.New("invalid request")

// DefaultGenerateTimeout bounds answer generation and rule drafting.
const DefaultGenerateTimeout = 30 * time.Second

// Deps are the engine's collaborators. Store, Search and LLM are required.
type Deps struct {
	Store   *rules.Store
	Search  retrieval.Searcher
	LLM     llm.Client
	Intents *intent.Bank
	// Emitter receives telemetry rows; nil disables telemetry.
	Emitter risk.Emitter
	// Audit records rule changes; nil disables the trail.
	Audit           *audit.Log
	Risk            risk.Config
	GenerateTimeout time.Duration
	Logger          *zap.Logger
}

// Engine implements the rule, scoring and question operations.
type Engine struct {
	store         *rules.Store
	scorer        *anomaly.Scorer
	collector     *risk.Collector
	search        retrieval.Searcher
	generator     *llm.Generator
	author        *llm.Author
	emitter       risk.Emitter
	intents       *intent.Bank
	audit         *audit.Log
	genTimeout    time.Duration
	searchTimeout time.Duration
	grade         string
	logger        *zap.Logger
	now           func() time.Time
}

// New wires an engine from deps.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	intents := d.Intents
	if intents == nil {
		intents = intent.DefaultBank()
	}
	timeout := d.GenerateTimeout
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	return &Engine{
		store:         d.Store,
		scorer:        anomaly.NewScorer(d.Store, logger.Named("anomaly")),
		collector:     risk.NewCollector(d.Search, intents, llm.NewJudge(d.LLM), d.Emitter, d.Risk, logger.Named("risk")),
		search:        d.Search,
		generator:     llm.NewGenerator(d.LLM),
		author:        llm.NewAuthor(d.LLM),
		emitter:       d.Emitter,
		intents:       intents,
		audit:         d.Audit,
		genTimeout:    timeout,
		searchTimeout: d.Risk.SearchTimeout,
		grade:         d.Risk.DefaultGrade,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the rule store.
func (e *Engine) Store() *rules.Store { return e.store }

// IntentIDs lists the risky-intent patterns in match order.
func (e *Engine) IntentIDs() []string { return e.intents.IDs() }
