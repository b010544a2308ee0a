package retrieval

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Mofasaz/aegisai-web/internal/access"
	"github.com/Mofasaz/aegisai-web/internal/model"
)

// Local ranks an in-memory corpus by keyword hits.
type Local struct {
	chunks []model.PolicyChunk
	index  []string
}

// NewLocal builds a searcher over chunks.
func NewLocal(chunks []model.PolicyChunk) *Local {
	l := &Local{chunks: chunks, index: make([]string, len(chunks))}
	for i, c := range chunks {
		l.index[i] = strings.ToLower(c.Text + " " + strings.Join(c.Tags, " "))
	}
	return l
}

// LoadJSONL reads one chunk per line. Blank lines are skipped.
func LoadJSONL(path string) (*Local, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	var chunks []model.PolicyChunk
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		chunks = append(chunks, r.chunk())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan corpus: %w", err)
	}
	return NewLocal(chunks), nil
}

// Len returns the corpus size.
func (l *Local) Len() int { return len(l.chunks) }

// Search scores each allowed chunk by how many query tokens occur in its
// text or tags and returns the best top, highest score first. Chunks with
// no hits are dropped.
func (l *Local) Search(ctx context.Context, query string, filter access.Filter, top int) ([]model.PolicyChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if top <= 0 {
		top = DefaultTop
	}
	tokens := strings.Fields(strings.ToLower(query))

	type scored struct {
		score int
		idx   int
	}
	var hits []scored
	for i, c := range l.chunks {
		if !filter.Allows(c) {
			continue
		}
		n := 0
		for _, tok := range tokens {
			if strings.Contains(l.index[i], tok) {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, scored{score: n, idx: i})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if len(hits) > top {
		hits = hits[:top]
	}
	out := make([]model.PolicyChunk, len(hits))
	for i, h := range hits {
		out[i] = l.chunks[h.idx]
	}
	return out, nil
}
