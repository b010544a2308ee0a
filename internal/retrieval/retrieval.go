// Package retrieval provides the policy search backends.
package retrieval

import (
	"context"
	"strings"

	"github.com/Mofasaz/aegisai-web/internal/access"
	"github.com/Mofasaz/aegisai-web/internal/model"
)

// DefaultTop is the number of chunks returned when top <= 0.
const DefaultTop = 5

// Searcher returns ranked chunks for query that pass filter.
type Searcher interface {
	Search(ctx context.Context, query string, filter access.Filter, top int) ([]model.PolicyChunk, error)
}

// record is the on-disk and on-wire chunk shape. Several source field
// names are accepted for title and text; JSON keys match case-insensitively.
type record struct {
	PolicyID        string   `json:"policy_id"`
	ClauseID        string   `json:"clause_id"`
	Title           string   `json:"title"`
	TitleDataColumn string   `json:"title_data_column"`
	Section         string   `json:"section"`
	Text            string   `json:"text"`
	ChunkText       string   `json:"chunk_text"`
	ClauseText      string   `json:"clause_text"`
	Visibility      string   `json:"visibility"`
	AllowedGrades   []string `json:"allowed_grades"`
	Tags            []string `json:"tags"`
}

func (r record) chunk() model.PolicyChunk {
	vis := model.Visibility(strings.ToLower(strings.TrimSpace(r.Visibility)))
	if vis == "" {
		vis = model.Public
	}
	return model.PolicyChunk{
		PolicyID:      r.PolicyID,
		ClauseID:      r.ClauseID,
		Title:         firstNonEmpty(r.Title, r.TitleDataColumn),
		Section:       r.Section,
		Text:          firstNonEmpty(r.Text, r.ChunkText, r.ClauseText),
		Visibility:    vis,
		AllowedGrades: r.AllowedGrades,
		Tags:          r.Tags,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
