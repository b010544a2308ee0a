package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Mofasaz/aegisai-web/internal/access"
	"github.com/Mofasaz/aegisai-web/internal/llm"
	"github.com/Mofasaz/aegisai-web/internal/model"
	"github.com/Mofasaz/aegisai-web/internal/retrieval"
	"github.com/Mofasaz/aegisai-web/internal/telemetry"
	"github.com/Mofasaz/aegisai-web/internal/upstream"
)

var corpus = []model.PolicyChunk{
	{PolicyID: "HR-1", ClauseID: "2.1", Text: "Salary bands for crew grades", Visibility: model.Restricted, AllowedGrades: []string{"G4"}},
	{PolicyID: "HR-1", ClauseID: "2.2", Text: "Salary review cycle", Visibility: model.Restricted, AllowedGrades: []string{"G4"}},
	{PolicyID: "OPS-3", ClauseID: "1.1", Text: "Crew rest periods between duties", Visibility: model.Public},
	{PolicyID: "OPS-3", ClauseID: "1.2", Text: "Crew must report fatigue before duty", Visibility: model.Public},
	{PolicyID: "OPS-3", ClauseID: "1.3", Text: "Rest periods may be extended by the duty manager", Visibility: model.Public},
}

type recorder struct {
	mu   sync.Mutex
	rows []telemetry.Row
}

func (r *recorder) Emit(row telemetry.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
}

type fakeJudge struct {
	verdict  llm.Verdict
	err      error
	snippets []string
}

func (f *fakeJudge) Judge(_ context.Context, _ string, snippets []string) (llm.Verdict, error) {
	f.snippets = snippets
	return f.verdict, f.err
}

type failingSearch struct{}

func (failingSearch) Search(context.Context, string, access.Filter, int) ([]model.PolicyChunk, error) {
	return nil, errors.New("index offline")
}

// peekFails serves visible searches but fails the restricted-only peek.
type peekFails struct{ next retrieval.Searcher }

func (p peekFails) Search(ctx context.Context, q string, f access.Filter, top int) ([]model.PolicyChunk, error) {
	if f.RestrictedOnly {
		return nil, errors.New("peek offline")
	}
	return p.next.Search(ctx, q, f, top)
}

func newCollector(t *testing.T, s retrieval.Searcher, j Verifier, rec *recorder) *Collector {
	t.Helper()
	c := NewCollector(s, nil, j, rec, DefaultConfig(), zaptest.NewLogger(t))
	c.now = func() time.Time { return time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC) }
	return c
}

func TestAssessRestrictedProbe(t *testing.T) {
	rec := &recorder{}
	c := newCollector(t, retrieval.NewLocal(corpus), nil, rec)

	a, err := c.Assess(context.Background(), Request{
		Query:     "salary",
		Principal: model.Principal{ID: "u1", Grade: "2"},
	})
	require.NoError(t, err)

	assert.True(t, a.NoContent())
	assert.Equal(t, "G2", a.EffectiveGrade)
	assert.Equal(t, 2, a.RestrictedHitCount)
	assert.True(t, a.RestrictedProbe)
	assert.Equal(t, []string{ReasonRestrictedProbe}, a.Reasons)
	assert.Nil(t, a.Confidence)
	assert.NotEmpty(t, a.CorrelationID)

	require.Len(t, rec.rows, 1)
	row := rec.rows[0]
	assert.Equal(t, telemetry.KindRisk, row.Kind)
	assert.Equal(t, ProbeRiskScore, row.RiskScore)
	assert.Equal(t, "u1", row.UserID)
	assert.Equal(t, "G2", row.Grade)
	assert.Equal(t, "salary", row.Query)
	assert.Equal(t, 2, row.RestrictedHits)
	assert.Equal(t, "HR-1/2.1,HR-1/2.2", row.TopRestricted)
	assert.Equal(t, a.CorrelationID, row.CorrelationID)
}

func TestAssessNoProbeWhenGradeAllows(t *testing.T) {
	rec := &recorder{}
	c := newCollector(t, retrieval.NewLocal(corpus), nil, rec)

	a, err := c.Assess(context.Background(), Request{Query: "salary", Principal: model.Principal{Grade: "G4"}})
	require.NoError(t, err)
	assert.Len(t, a.Chunks, 2)
	assert.Equal(t, 2, a.RestrictedHitCount)
	assert.False(t, a.RestrictedProbe)
	assert.Empty(t, a.Reasons)
	assert.Empty(t, rec.rows)
}

func TestAssessNoProbeWithoutRestrictedMatches(t *testing.T) {
	rec := &recorder{}
	c := newCollector(t, retrieval.NewLocal(corpus), nil, rec)

	a, err := c.Assess(context.Background(), Request{Query: "pension", Principal: model.Principal{Grade: "G2"}})
	require.NoError(t, err)
	assert.True(t, a.NoContent())
	assert.Zero(t, a.RestrictedHitCount)
	assert.NotContains(t, a.Reasons, ReasonRestrictedProbe)
	assert.Empty(t, rec.rows)
}

func TestAssessRiskyIntent(t *testing.T) {
	rec := &recorder{}
	c := newCollector(t, retrieval.NewLocal(corpus), nil, rec)

	a, err := c.Assess(context.Background(), Request{
		Query:         "Can I share crew salary with my partner?",
		Principal:     model.Principal{Grade: "G4"},
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	require.NotNil(t, a.RiskyIntentLabel)
	assert.Equal(t, "share_pii", *a.RiskyIntentLabel)
	assert.Equal(t, []string{"risky_intent:share_pii"}, a.Reasons)
	assert.Equal(t, "corr-1", a.CorrelationID)

	require.Len(t, rec.rows, 1)
	assert.Equal(t, DefaultRiskScore, rec.rows[0].RiskScore)
	assert.Equal(t, "risky_intent:share_pii", rec.rows[0].Reasons)
}

func TestAssessPeekFailureIsAbsorbed(t *testing.T) {
	c := newCollector(t, peekFails{retrieval.NewLocal(corpus)}, nil, &recorder{})

	a, err := c.Assess(context.Background(), Request{Query: "salary", Principal: model.Principal{Grade: "G2"}})
	require.NoError(t, err)
	assert.Zero(t, a.RestrictedHitCount)
	assert.False(t, a.RestrictedProbe)
}

// slowPeek serves visible searches but stalls the restricted-only peek
// without watching ctx.
type slowPeek struct {
	next    retrieval.Searcher
	release chan struct{}
}

func (p slowPeek) Search(ctx context.Context, q string, f access.Filter, top int) ([]model.PolicyChunk, error) {
	if f.RestrictedOnly {
		<-p.release
		return nil, nil
	}
	return p.next.Search(ctx, q, f, top)
}

type stalledJudge struct{ release chan struct{} }

func (j stalledJudge) Judge(context.Context, string, []string) (llm.Verdict, error) {
	<-j.release
	return llm.Verdict{Score: 1}, nil
}

func TestStalledPeekAndJudgeAreBounded(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := newCollector(t, slowPeek{next: retrieval.NewLocal(corpus), release: release}, stalledJudge{release: release}, &recorder{})
	c.cfg.PeekTimeout = 20 * time.Millisecond
	c.cfg.JudgeTimeout = 20 * time.Millisecond

	start := time.Now()
	a, err := c.Assess(context.Background(), Request{Query: "crew rest", Principal: model.Principal{Grade: "G1"}})
	require.NoError(t, err)
	assert.Zero(t, a.RestrictedHitCount)
	assert.Less(t, time.Since(start), 300*time.Millisecond)

	start = time.Now()
	out := c.Finalize(context.Background(), a, "answer")
	assert.Less(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, 0.6, out.JudgeScore)
	assert.Contains(t, out.Reasons, IssueJudgeError)
}

func TestAssessSearchFailurePropagates(t *testing.T) {
	c := newCollector(t, failingSearch{}, nil, &recorder{})

	_, err := c.Assess(context.Background(), Request{Query: "anything"})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream.ErrUnavailable)
	var ue *upstream.Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, upstream.Search, ue.Service)
}

func TestAssessUsesDefaultGrade(t *testing.T) {
	c := newCollector(t, retrieval.NewLocal(corpus), nil, &recorder{})
	a, err := c.Assess(context.Background(), Request{Query: "rest"})
	require.NoError(t, err)
	assert.Equal(t, "G1", a.EffectiveGrade)
}

func TestFinalizeBlendsJudgeScore(t *testing.T) {
	j := &fakeJudge{verdict: llm.Verdict{Score: 0.9, Issues: []string{"vague"}}}
	c := newCollector(t, retrieval.NewLocal(corpus), j, &recorder{})

	a, err := c.Assess(context.Background(), Request{Query: "crew rest duty", Principal: model.Principal{Grade: "G1"}})
	require.NoError(t, err)
	require.Len(t, a.Chunks, 3)

	out := c.Finalize(context.Background(), a, "Crew rest is required [OPS-3/1.1]")
	assert.Equal(t, 0.78, out.Confidence)
	assert.Equal(t, 0.9, out.JudgeScore)
	assert.Equal(t, []string{"vague"}, out.Reasons)
	require.NotNil(t, a.Confidence)
	assert.Equal(t, 0.78, *a.Confidence)
	assert.Len(t, j.snippets, 3)
}

func TestFinalizeJudgeFailure(t *testing.T) {
	j := &fakeJudge{err: errors.New("model overloaded")}
	c := newCollector(t, retrieval.NewLocal(corpus), j, &recorder{})

	a, err := c.Assess(context.Background(), Request{Query: "share crew rest", Principal: model.Principal{Grade: "G1"}})
	require.NoError(t, err)
	require.NotEmpty(t, a.Chunks)

	out := c.Finalize(context.Background(), a, "answer")
	assert.Equal(t, 0.6, out.JudgeScore)
	assert.Equal(t, []string{IssueJudgeError}, out.Issues)
	require.NotEmpty(t, out.Reasons)
	assert.Equal(t, IssueJudgeError, out.Reasons[0])
	assert.GreaterOrEqual(t, out.Confidence, 0.0)
	assert.LessOrEqual(t, out.Confidence, 1.0)
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name   string
		chunks int
		probe  bool
		judge  float64
		want   float64
	}{
		{"three chunks", 3, false, 0.9, 0.78},
		{"capped chunk count", 10, false, 1, 0.93},
		{"probe penalty", 3, true, 0.9, 0.75},
		{"no chunks", 0, false, 0, 0.18},
		{"judge above range", 5, false, 7, 0.93},
		{"judge below range", 1, false, -3, 0.23},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.chunks, tt.probe, tt.judge)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}
