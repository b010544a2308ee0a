package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

// NoContentAnswer is returned when no chunk is visible to the requester.
const NoContentAnswer = "No matching policy content found."

const answerSystemPrompt = "Answer ONLY from provided policy context. Cite clause IDs."

// Generator answers a question from retrieved policy chunks.
type Generator struct {
	client Client
}

// NewGenerator creates a generator on client.
func NewGenerator(client Client) *Generator {
	return &Generator{client: client}
}

// Answer asks the model to answer query from chunks only.
func (g *Generator) Answer(ctx context.Context, query string, chunks []model.PolicyChunk) (string, error) {
	if len(chunks) == 0 {
		return NoContentAnswer, nil
	}
	out, err := g.client.Complete(ctx, []Message{
		{Role: RoleSystem, Content: answerSystemPrompt},
		{Role: RoleUser, Content: fmt.Sprintf("Q: %s\n\nContext:\n%s", query, ContextBlock(chunks))},
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return out, nil
}

// ContextBlock renders chunks as "[policy/clause] text" paragraphs.
func ContextBlock(chunks []model.PolicyChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[%s] %s", c.Ref(), c.Text)
	}
	return strings.Join(parts, "\n\n")
}
