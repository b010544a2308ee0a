package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Mofasaz/aegisai-web/internal/access"
	"github.com/Mofasaz/aegisai-web/internal/model"
	"github.com/Mofasaz/aegisai-web/internal/tracing"
)

// RemoteConfig points at a search index that accepts OData filters.
type RemoteConfig struct {
	Endpoint   string        `koanf:"endpoint"`
	Index      string        `koanf:"index"`
	APIKey     string        `koanf:"api_key"`
	APIVersion string        `koanf:"api_version"`
	Timeout    time.Duration `koanf:"timeout"`
}

// Remote queries a hosted search index. Visibility is filtered
// server-side with access.Filter.Expression, which admits the stored
// spellings Allows treats as equal, and re-checked locally.
type Remote struct {
	cfg    RemoteConfig
	client *http.Client
}

// NewRemote creates a remote searcher.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-11-01"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		cfg:    cfg,
		client: tracing.InstrumentClient(&http.Client{Timeout: timeout}),
	}
}

var remoteFields = []string{
	"policy_id", "clause_id", "title_data_column", "section",
	"clause_text", "visibility", "allowed_grades", "tags",
}

type searchRequest struct {
	Search    string `json:"search"`
	Filter    string `json:"filter,omitempty"`
	Top       int    `json:"top"`
	QueryType string `json:"queryType"`
	Select    string `json:"select"`
}

type searchResponse struct {
	Value []record `json:"value"`
}

// Search implements Searcher.
func (r *Remote) Search(ctx context.Context, query string, filter access.Filter, top int) ([]model.PolicyChunk, error) {
	if top <= 0 {
		top = DefaultTop
	}
	body, err := json.Marshal(searchRequest{
		Search:    query,
		Filter:    filter.Expression(),
		Top:       top,
		QueryType: "simple",
		Select:    strings.Join(remoteFields, ","),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	u := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s",
		strings.TrimRight(r.cfg.Endpoint, "/"), url.PathEscape(r.cfg.Index), url.QueryEscape(r.cfg.APIVersion))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("api-key", r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]model.PolicyChunk, 0, len(sr.Value))
	for _, rec := range sr.Value {
		c := rec.chunk()
		if filter.Allows(c) {
			out = append(out, c)
		}
	}
	return out, nil
}
