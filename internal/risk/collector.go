// Package risk collects the per-query risk signals: restricted probing,
// risky intent, and the blended answer confidence.
package risk

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Mofasaz/aegisai-web/internal/access"
	"github.com/Mofasaz/aegisai-web/internal/intent"
	"github.com/Mofasaz/aegisai-web/internal/llm"
	"github.com/Mofasaz/aegisai-web/internal/metrics"
	"github.com/Mofasaz/aegisai-web/internal/model"
	"github.com/Mofasaz/aegisai-web/internal/retrieval"
	"github.com/Mofasaz/aegisai-web/internal/telemetry"
	"github.com/Mofasaz/aegisai-web/internal/tracing"
	"github.com/Mofasaz/aegisai-web/internal/upstream"
)

// Reason strings.
const (
	ReasonRestrictedProbe = "restricted_probe"
	ReasonIntentPrefix    = "risky_intent:"
	IssueJudgeError       = "judge_error"
)

// Telemetry risk scores.
const (
	ProbeRiskScore   = 70
	DefaultRiskScore = 50
	// TopRestrictedRefs is how many restricted refs a telemetry row carries.
	TopRestrictedRefs = 3
	// JudgeSnippets is how many chunks are handed to the judge.
	JudgeSnippets = 3
)

// Verifier rates how well an answer is grounded in its sources.
type Verifier interface {
	Judge(ctx context.Context, answer string, snippets []string) (llm.Verdict, error)
}

// Emitter accepts telemetry rows without blocking.
type Emitter interface {
	Emit(row telemetry.Row)
}

// Config holds the collector's timeouts and defaults.
type Config struct {
	SearchTimeout time.Duration `koanf:"search_timeout"`
	PeekTimeout   time.Duration `koanf:"peek_timeout"`
	JudgeTimeout  time.Duration `koanf:"judge_timeout"`
	TopK          int           `koanf:"top_k" validate:"gte=0,lte=50"`
	DefaultGrade  string        `koanf:"default_grade"`
	// DefaultJudgeScore substitutes for a failed judge call.
	DefaultJudgeScore float64 `koanf:"default_judge_score" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the stock timeouts.
func DefaultConfig() Config {
	return Config{
		SearchTimeout:     10 * time.Second,
		PeekTimeout:       3 * time.Second,
		JudgeTimeout:      15 * time.Second,
		TopK:              retrieval.DefaultTop,
		DefaultGrade:      "G1",
		DefaultJudgeScore: 0.6,
	}
}

// Request is one question to assess.
type Request struct {
	Query         string
	Principal     model.Principal
	CorrelationID string
}

// Assessment is the outcome of Assess: the risk signals plus the chunks
// the requester may see, which the answer step consumes.
type Assessment struct {
	model.RiskAssessment
	Query     string
	Principal model.Principal
	Chunks    []model.PolicyChunk
}

// NoContent reports whether nothing was visible to the requester.
func (a *Assessment) NoContent() bool { return len(a.Chunks) == 0 }

// Outcome is the result of Finalize.
type Outcome struct {
	Confidence float64
	JudgeScore float64
	Issues     []string
	// Reasons is the judge issues followed by the risk reasons.
	Reasons []string
}

// Collector runs the per-query risk pipeline.
type Collector struct {
	search  retrieval.Searcher
	intents *intent.Bank
	judge   Verifier
	emitter Emitter
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewCollector wires a collector. A nil emitter disables telemetry and a
// nil bank uses intent.DefaultBank.
func NewCollector(search retrieval.Searcher, intents *intent.Bank, judge Verifier, emitter Emitter, cfg Config, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if intents == nil {
		intents = intent.DefaultBank()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTop
	}
	return &Collector{
		search:  search,
		intents: intents,
		judge:   judge,
		emitter: emitter,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Assess retrieves the visible chunks and collects the probe and intent
// signals. Retrieval, the restricted peek and intent matching run
// concurrently. Only a retrieval failure is returned; a failed peek
// counts as zero restricted matches.
func (c *Collector) Assess(ctx context.Context, req Request) (*Assessment, error) {
	ctx, span := tracing.Tracer("risk").Start(ctx, "risk.Assess")
	defer span.End()

	corr := req.CorrelationID
	if corr == "" {
		corr = uuid.NewString()
	}
	grade := access.ResolveGrade(req.Principal, c.cfg.DefaultGrade)

	var (
		chunks   []model.PolicyChunk
		hits     int
		refs     []model.ClauseRef
		intentID string
		matched  bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, uerr := upstream.Call(gctx, upstream.Search, c.cfg.SearchTimeout, func(ctx context.Context) ([]model.PolicyChunk, error) {
			return c.search.Search(ctx, req.Query, access.ForGrade(grade), c.cfg.TopK)
		})
		if uerr != nil {
			return uerr
		}
		chunks = res
		return nil
	})
	g.Go(func() error {
		type peek struct {
			n    int
			refs []model.ClauseRef
		}
		// Runs on ctx: a failed search must not cancel the peek.
		res, uerr := upstream.Call(ctx, upstream.Peek, c.cfg.PeekTimeout, func(ctx context.Context) (peek, error) {
			n, r, err := access.CountRestrictedMatches(ctx, c.search, req.Query)
			return peek{n, r}, err
		})
		if uerr != nil {
			c.logger.Warn("restricted peek failed, assuming no matches",
				zap.String("correlation_id", corr),
				zap.Error(uerr),
			)
			return nil
		}
		hits, refs = res.n, res.refs
		return nil
	})
	g.Go(func() error {
		intentID, matched = c.intents.Match(req.Query)
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	a := &Assessment{
		RiskAssessment: model.RiskAssessment{
			EffectiveGrade:     grade,
			RestrictedHitCount: hits,
			RestrictedRefs:     refs,
			Reasons:            []string{},
			CorrelationID:      corr,
		},
		Query:     req.Query,
		Principal: req.Principal,
		Chunks:    chunks,
	}
	if matched {
		label := intentID
		a.RiskyIntentLabel = &label
		a.Reasons = append(a.Reasons, ReasonIntentPrefix+intentID)
	}
	if len(chunks) == 0 && hits > 0 {
		a.RestrictedProbe = true
		a.Reasons = append(a.Reasons, ReasonRestrictedProbe)
	}

	for _, r := range a.Reasons {
		metrics.RiskReasons.WithLabelValues(reasonLabel(r)).Inc()
	}
	if len(a.Reasons) > 0 {
		c.emit(a)
	}

	span.SetAttributes(
		attribute.String("correlation_id", corr),
		attribute.String("grade", grade),
		attribute.Int("chunks", len(chunks)),
		attribute.Int("restricted_hits", hits),
		attribute.Bool("restricted_probe", a.RestrictedProbe),
	)
	return a, nil
}

// Finalize judges answer against the first chunks and blends the
// confidence. It never fails: a judge failure substitutes the default
// score and adds the judge_error issue. It must not be called when the
// assessment has no content.
func (c *Collector) Finalize(ctx context.Context, a *Assessment, answer string) Outcome {
	ctx, span := tracing.Tracer("risk").Start(ctx, "risk.Finalize")
	defer span.End()

	n := min(len(a.Chunks), JudgeSnippets)
	snippets := make([]string, n)
	for i := range n {
		snippets[i] = a.Chunks[i].Text
	}

	score, issues := c.cfg.DefaultJudgeScore, []string{IssueJudgeError}
	if c.judge != nil {
		verdict, uerr := upstream.Call(ctx, upstream.Judge, c.cfg.JudgeTimeout, func(ctx context.Context) (llm.Verdict, error) {
			return c.judge.Judge(ctx, answer, snippets)
		})
		if uerr == nil {
			score, issues = verdict.Score, verdict.Issues
		} else {
			c.logger.Warn("judge failed, using default grounding score",
				zap.String("correlation_id", a.CorrelationID),
				zap.Float64("default_score", score),
				zap.Error(uerr),
			)
		}
	}

	conf := Confidence(len(a.Chunks), a.RestrictedProbe, score)
	a.Confidence = &conf
	metrics.AskConfidence.Observe(conf)

	reasons := make([]string, 0, len(issues)+len(a.Reasons))
	reasons = append(reasons, issues...)
	reasons = append(reasons, a.Reasons...)

	span.SetAttributes(attribute.Float64("confidence", conf), attribute.Float64("judge_score", score))
	return Outcome{
		Confidence: conf,
		JudgeScore: score,
		Issues:     append([]string{}, issues...),
		Reasons:    reasons,
	}
}

func (c *Collector) emit(a *Assessment) {
	if c.emitter == nil {
		return
	}
	score := DefaultRiskScore
	if a.RestrictedProbe {
		score = ProbeRiskScore
	}
	c.emitter.Emit(telemetry.Row{
		Kind:           telemetry.KindRisk,
		Timestamp:      c.now(),
		CorrelationID:  a.CorrelationID,
		UserID:         a.Principal.ID,
		Grade:          a.EffectiveGrade,
		Query:          a.Query,
		Reasons:        joinReasons(a.Reasons),
		RestrictedHits: a.RestrictedHitCount,
		TopRestricted:  telemetry.JoinRefs(a.RestrictedRefs, TopRestrictedRefs),
		RiskScore:      score,
	})
}

// reasonLabel keeps the metric label set bounded.
func reasonLabel(r string) string {
	if r == ReasonRestrictedProbe || strings.HasPrefix(r, ReasonIntentPrefix) {
		return r
	}
	return "other"
}
