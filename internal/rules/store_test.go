package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newFileStore(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	s := NewStore(path, WithLogger(zaptest.NewLogger(t)), WithClock(func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
	_, err := s.Reload(context.Background())
	require.NoError(t, err)
	return s
}

func TestStoreStartsEmpty(t *testing.T) {
	s := NewStore("")
	require.NotNil(t, s.Snapshot())
	assert.Equal(t, 0, s.Snapshot().Len())
}

func TestStoreReloadMissingFile(t *testing.T) {
	s := newFileStore(t, "")
	assert.Equal(t, 0, s.Snapshot().Len())
	assert.Equal(t, int64(1), s.Snapshot().Version())
}

func TestStoreReloadSkipsUnchanged(t *testing.T) {
	s := newFileStore(t, DefaultRulesYAML())
	first := s.Snapshot()
	require.Equal(t, 4, first.Len())

	again, err := s.Reload(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, first.Version(), again.Version())
}

func TestStoreReloadPicksUpEdits(t *testing.T) {
	s := newFileStore(t, DefaultRulesYAML())
	v1 := s.Snapshot().Version()

	require.NoError(t, os.WriteFile(s.Path(), []byte("rules:\n  - id: ONLY\n"), 0o644))
	rs, err := s.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
	assert.Greater(t, rs.Version(), v1)
}

func TestStoreReloadFailureKeepsActive(t *testing.T) {
	s := newFileStore(t, DefaultRulesYAML())
	before := s.Snapshot()

	require.NoError(t, os.WriteFile(s.Path(), []byte("rules: [unclosed"), 0o644))
	_, err := s.Reload(context.Background())
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Same(t, before, s.Snapshot())
}

func TestStoreAppendPersists(t *testing.T) {
	s := newFileStore(t, DefaultRulesYAML())
	pts := 15

	rs, err := s.Append(context.Background(), Rule{
		ID:         "R-NEW",
		Name:       "new",
		Match:      Match{Actions: []string{"export"}},
		RiskPoints: &pts,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, rs.Len())
	assert.Same(t, rs, s.Snapshot())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "# aegis detection rules")
	assert.Contains(t, string(data), "appended 2025-03-01T12:00:00Z")
	assert.Contains(t, string(data), "R-NEW")

	// The file on disk now matches the active set, so reload is a no-op.
	again, err := s.Reload(context.Background())
	require.NoError(t, err)
	assert.Same(t, rs, again)
}

func TestStoreAppendToEmptyFile(t *testing.T) {
	s := newFileStore(t, "# header only\n")
	_, err := s.Append(context.Background(), Rule{ID: "R-1"})
	require.NoError(t, err)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# header only\n"))

	rs, err := LoadFile(s.Path())
	require.NoError(t, err)
	assert.True(t, rs.Has("R-1"))
}

func TestStoreAppendDuplicateLeavesSetUnchanged(t *testing.T) {
	s := newFileStore(t, DefaultRulesYAML())
	before := s.Snapshot()
	disk, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	_, err = s.Append(context.Background(), Rule{ID: "R-001"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateRuleID))
	var de *DuplicateRuleError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "R-001", de.ID)

	assert.Same(t, before, s.Snapshot())
	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, disk, after)
}

func TestStoreAppendInvalidRule(t *testing.T) {
	s := NewStore("")
	_, err := s.Append(context.Background(), Rule{ID: "R-1", Severity: "urgent"})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)

	_, err = s.Append(context.Background(), Rule{})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, s.Snapshot().Len())
}

func TestStoreAppendInMemory(t *testing.T) {
	s := NewStore("")
	_, err := s.Append(context.Background(), Rule{ID: "A"})
	require.NoError(t, err)
	_, err = s.Append(context.Background(), Rule{ID: "B"})
	require.NoError(t, err)

	ids := []string{}
	for _, r := range s.Snapshot().Rules() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"A", "B"}, ids)
	assert.Equal(t, int64(2), s.Snapshot().Version())
}

func TestStoreCancelledContext(t *testing.T) {
	s := NewStore("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Append(ctx, Rule{ID: "A"})
	assert.ErrorIs(t, err, context.Canceled)
}

func buildSet(t *testing.T, prefix string, n int) *RuleSet {
	t.Helper()
	rules := make([]Rule, n)
	for i := range rules {
		rules[i] = Rule{ID: fmt.Sprintf("%s-%03d", prefix, i)}
	}
	rs, err := NewRuleSet(rules, prefix)
	require.NoError(t, err)
	return rs
}

func TestPublishIsAllOrNothing(t *testing.T) {
	s := NewStore("")
	setA := buildSet(t, "A", 50)
	setB := buildSet(t, "B", 80)
	s.Publish(setA)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	errs := make(chan string, 8)

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				rules := s.Snapshot().Rules()
				prefix := rules[0].ID[:1]
				want := map[string]int{"A": 50, "B": 80}[prefix]
				if len(rules) != want {
					errs <- fmt.Sprintf("set %s has %d rules", prefix, len(rules))
					return
				}
				for _, r := range rules {
					if r.ID[:1] != prefix {
						errs <- "mixed rule set observed"
						return
					}
				}
			}
		}()
	}

	for i := range 200 {
		if i%2 == 0 {
			s.Publish(setB)
		} else {
			s.Publish(setA)
		}
	}
	cancel()
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
	assert.Equal(t, int64(201), s.Snapshot().Version())
}
