package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedVerdict is returned when the judge reply is not the expected JSON.
var ErrMalformedVerdict = errors.New("judge reply is not valid JSON")

const judgeSystemPrompt = `You are a strict policy auditor. Score groundedness 0..1 ONLY from provided snippets. Return JSON: {"grounding_score": float, "issues": [string]}. No extra text.`

// Verdict is the judge's rating of one answer.
type Verdict struct {
	Score  float64  `json:"grounding_score"`
	Issues []string `json:"issues"`
}

// Judge rates how well an answer is grounded in source snippets.
type Judge struct {
	client Client
}

// NewJudge creates a judge on client.
func NewJudge(client Client) *Judge {
	return &Judge{client: client}
}

// Judge returns the model's verdict. The score is passed through as
// given; callers clamp it.
func (j *Judge) Judge(ctx context.Context, answer string, snippets []string) (Verdict, error) {
	out, err := j.client.Complete(ctx, []Message{
		{Role: RoleSystem, Content: judgeSystemPrompt},
		{Role: RoleUser, Content: "Answer:\n" + answer + "\n\nSnippets:\n" + strings.Join(snippets, "\n---\n")},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("judge: %w", err)
	}
	return parseVerdict(out)
}

func parseVerdict(raw string) (Verdict, error) {
	raw = cleanJSON(raw)
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return Verdict{}, fmt.Errorf("%w: %s", ErrMalformedVerdict, truncate(raw, 120))
	}
	if _, ok := probe["grounding_score"]; !ok {
		return Verdict{}, fmt.Errorf("%w: missing grounding_score", ErrMalformedVerdict)
	}
	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if v.Issues == nil {
		v.Issues = []string{}
	}
	return v, nil
}

// cleanJSON strips markdown fences and surrounding whitespace.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
