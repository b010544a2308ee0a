package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit", "rules.jsonl")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestRecordAndVerify(t *testing.T) {
	l, path := openLog(t)

	require.NoError(t, l.Record(Entry{Event: EventRuleReload, RulesetHash: "sha256:a", RulesetVersion: 1, RuleCount: 4}))
	require.NoError(t, l.Record(Entry{Event: EventRuleAppend, RuleID: "R-5", RulesetHash: "sha256:b", RulesetVersion: 2, RuleCount: 5}))

	res := Verify(path)
	assert.True(t, res.Valid, res.Error)
	assert.Equal(t, 2, res.Lines)
}

func TestFirstEntryCarriesGenesis(t *testing.T) {
	l, path := openLog(t)
	require.NoError(t, l.Record(Entry{Event: EventRuleReload}))

	h, err := ReadHistory(path, Filter{})
	require.NoError(t, err)
	require.Len(t, h.Entries, 1)
	assert.Equal(t, GenesisHash, h.Entries[0].PrevHash)
	assert.NotEmpty(t, h.Entries[0].Timestamp)
}

func TestReopenContinuesChain(t *testing.T) {
	l, path := openLog(t)
	require.NoError(t, l.Record(Entry{Event: EventRuleReload}))
	require.NoError(t, l.Close())

	again, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, again.Record(Entry{Event: EventRuleAppend, RuleID: "R-1"}))
	require.NoError(t, again.Close())

	res := Verify(path)
	assert.True(t, res.Valid, res.Error)
	assert.Equal(t, 2, res.Lines)
}

func TestVerifyDetectsTampering(t *testing.T) {
	l, path := openLog(t)
	for _, id := range []string{"R-1", "R-2", "R-3"} {
		require.NoError(t, l.Record(Entry{Event: EventRuleAppend, RuleID: id}))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"rule_id":"R-2"`, `"rule_id":"R-9"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o600))

	res := Verify(path)
	assert.False(t, res.Valid)
	assert.Equal(t, 3, res.ErrorLine)
	assert.Contains(t, res.Error, "hash mismatch")
}

func TestVerifyRejectsForeignStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"event":"rule_reload","prev_hash":"sha256:ff"}`+"\n"), 0o600))

	res := Verify(path)
	assert.False(t, res.Valid)
	assert.Equal(t, 1, res.ErrorLine)
	assert.Contains(t, res.Error, "genesis")
}

func TestVerifyMissingFile(t *testing.T) {
	res := Verify(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "open")
}

func TestReadHistoryFilters(t *testing.T) {
	l, path := openLog(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	stamp := func(m int) string { return base.Add(time.Duration(m) * time.Minute).Format(TimestampFormat) }

	require.NoError(t, l.Record(Entry{Timestamp: stamp(0), Event: EventRuleReload, RuleCount: 4}))
	require.NoError(t, l.Record(Entry{Timestamp: stamp(5), Event: EventRuleAppend, RuleID: "R-5"}))
	require.NoError(t, l.Record(Entry{Timestamp: stamp(10), Event: EventReloadFailed, Detail: "yaml: bad"}))
	require.NoError(t, l.Record(Entry{Timestamp: stamp(15), Event: EventRuleAppend, RuleID: "R-6"}))

	all, err := ReadHistory(path, Filter{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 4, Appends: 2, Reloads: 1, Failures: 1,
		FirstTimestamp: stamp(0), LastTimestamp: stamp(15)}, all.Summary)

	byRule, err := ReadHistory(path, Filter{RuleID: "R-6"})
	require.NoError(t, err)
	require.Len(t, byRule.Entries, 1)

	window, err := ReadHistory(path, Filter{From: base.Add(4 * time.Minute), To: base.Add(11 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 2, window.Summary.Total)

	appends, err := ReadHistory(path, Filter{Event: EventRuleAppend})
	require.NoError(t, err)
	assert.Equal(t, 2, appends.Summary.Appends)

	text := FormatTimeline(all)
	assert.Contains(t, text, "2 appends, 1 reloads, 1 failed reloads")
	assert.Contains(t, text, "R-5")

	js, err := FormatJSON(byRule)
	require.NoError(t, err)
	assert.Contains(t, js, `"rule_id": "R-6"`)
}

func TestFormatTimelineEmpty(t *testing.T) {
	assert.Equal(t, "No rule changes recorded.\n", FormatTimeline(&History{}))
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "R-1", truncate("R-1", 14))
	assert.Equal(t, "ééé...", truncate("éééééééé", 6))
}
