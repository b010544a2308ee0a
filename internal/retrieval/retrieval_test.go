package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mofasaz/aegisai-web/internal/access"
	"github.com/Mofasaz/aegisai-web/internal/model"
)

const corpus = `{"policy_id":"HR-1","clause_id":"1.1","title":"Leave","chunk_text":"Annual leave must be requested two weeks ahead.","visibility":"public","tags":["leave"]}

{"policy_id":"HR-1","clause_id":"1.2","title_Data_Column":"Payroll","chunk_text":"Salary bands are confidential.","visibility":"restricted","allowed_grades":["G3"],"tags":["salary","payroll"]}
{"policy_id":"OPS-2","clause_id":"4","clause_text":"Crew rosters are shared through the crew portal only.","tags":["roster","leave"]}
`

func loadCorpus(t *testing.T) *Local {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(corpus), 0o644))
	l, err := LoadJSONL(path)
	require.NoError(t, err)
	require.Equal(t, 3, l.Len())
	return l
}

func clauseIDs(chunks []model.PolicyChunk) []string {
	out := []string{}
	for _, c := range chunks {
		out = append(out, c.ClauseID)
	}
	return out
}

func TestLocalSearchRanksByHits(t *testing.T) {
	l := loadCorpus(t)

	got, err := l.Search(context.Background(), "annual leave", access.ForGrade(""), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1", "4"}, clauseIDs(got))
	assert.Equal(t, "Annual leave must be requested two weeks ahead.", got[0].Text)
	assert.Equal(t, model.Public, got[1].Visibility)
}

func TestLocalSearchAppliesGrade(t *testing.T) {
	l := loadCorpus(t)

	got, err := l.Search(context.Background(), "salary", access.ForGrade("G2"), 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = l.Search(context.Background(), "salary", access.ForGrade("3"), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Payroll", got[0].Title)

	got, err = l.Search(context.Background(), "salary", access.Filter{RestrictedOnly: true}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2"}, clauseIDs(got))
}

func TestLocalSearchTop(t *testing.T) {
	l := loadCorpus(t)
	got, err := l.Search(context.Background(), "leave", access.ForGrade(""), 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLoadJSONLBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))
	_, err := LoadJSONL(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":1:")
}

func TestRemoteSearch(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/policies/docs/search", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{
			{"policy_id": "HR-1", "clause_id": "1", "clause_text": "open", "visibility": "public"},
			{"policy_id": "HR-1", "clause_id": "2", "clause_text": "secret", "visibility": "restricted", "allowed_grades": []string{"G9"}},
		}})
	}))
	defer srv.Close()

	r := NewRemote(RemoteConfig{Endpoint: srv.URL, Index: "policies", APIKey: "k"})
	chunks, err := r.Search(context.Background(), "leave", access.ForGrade("G3"), 3)
	require.NoError(t, err)

	assert.Equal(t, "leave", got.Search)
	assert.Equal(t, 3, got.Top)
	assert.Equal(t, access.ForGrade("G3").Expression(), got.Filter)
	assert.Contains(t, got.Filter, "x eq '3'")
	// The restricted chunk the index wrongly returned is dropped locally.
	assert.Equal(t, []string{"1"}, clauseIDs(chunks))
	assert.Equal(t, "open", chunks[0].Text)
}

func TestRemoteSearchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index missing", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewRemote(RemoteConfig{Endpoint: srv.URL, Index: "x"}).Search(context.Background(), "q", access.ForGrade(""), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
