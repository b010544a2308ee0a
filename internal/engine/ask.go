package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/llm"
	"github.com/Mofasaz/aegisai-web/internal/model"
	"github.com/Mofasaz/aegisai-web/internal/risk"
	"github.com/Mofasaz/aegisai-web/internal/upstream"
)

// Highlight limits.
const (
	maxHighlights   = 3
	highlightLength = 200
)

// Question is one question from an identified requester.
type Question struct {
	Query         string          `json:"query"`
	Principal     model.Principal `json:"-"`
	CorrelationID string          `json:"-"`
}

// AnalyzeEvents scores events against the active rule set.
func (e *Engine) AnalyzeEvents(ctx context.Context, events []model.LogEvent) []model.Anomaly {
	return e.scorer.Analyze(ctx, events)
}

// AssessQuery collects the risk signals for q without answering it.
func (e *Engine) AssessQuery(ctx context.Context, q Question) (*model.RiskAssessment, error) {
	a, err := e.assess(ctx, q)
	if err != nil {
		return nil, err
	}
	return &a.RiskAssessment, nil
}

func (e *Engine) assess(ctx context.Context, q Question) (*risk.Assessment, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidRequest)
	}
	return e.collector.Assess(ctx, risk.Request{
		Query:         q.Query,
		Principal:     q.Principal,
		CorrelationID: q.CorrelationID,
	})
}

// Ask answers q from the chunks the requester may see. With nothing
// visible it returns the no-content answer without a confidence.
// Retrieval and generation failures are returned as *upstream.Error.
func (e *Engine) Ask(ctx context.Context, q Question) (*model.AskResponse, error) {
	a, err := e.assess(ctx, q)
	if err != nil {
		return nil, err
	}

	resp := &model.AskResponse{
		Citations:       []model.Citation{},
		Highlights:      []string{},
		RestrictedProbe: a.RestrictedProbe,
		RiskReasons:     a.Reasons,
		CorrelationID:   a.CorrelationID,
	}
	if a.NoContent() {
		resp.Answer = llm.NoContentAnswer
		return resp, nil
	}

	answer, uerr := upstream.Call(ctx, upstream.Generator, e.genTimeout, func(ctx context.Context) (string, error) {
		return e.generator.Answer(ctx, q.Query, a.Chunks)
	})
	if uerr != nil {
		e.logger.Error("answer generation failed",
			zap.String("correlation_id", a.CorrelationID),
			zap.Error(uerr),
		)
		return nil, uerr
	}

	out := e.collector.Finalize(ctx, a, answer)
	resp.Answer = answer
	resp.Confidence = &out.Confidence
	resp.RiskReasons = out.Reasons
	for _, c := range a.Chunks {
		resp.Citations = append(resp.Citations, model.CitationFor(c))
	}
	resp.Highlights = highlights(a.Chunks)
	return resp, nil
}

// highlights quotes the opening of the top chunks.
func highlights(chunks []model.PolicyChunk) []string {
	n := min(len(chunks), maxHighlights)
	out := make([]string, 0, n)
	for _, c := range chunks[:n] {
		text := strings.Join(strings.Fields(c.Text), " ")
		if utf8.RuneCountInString(text) > highlightLength {
			text = string([]rune(text)[:highlightLength]) + "…"
		}
		out = append(out, fmt.Sprintf("[%s] %s", c.Ref(), text))
	}
	return out
}
