package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// traceResponse mirrors TraceResult with snapshots left untyped.
type traceResponse struct {
	Status string `json:"status"`
	Data   struct {
		Runs     []string         `json:"runs"`
		Timeline []map[string]any `json:"timeline"`
		Stats    TraceStats       `json:"stats"`
	} `json:"data"`
}

// journalWithRuns runs the cart scenario twice into a fresh journal.
func journalWithRuns(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "viewflow.db")
	for _, run := range []string{"first", "second"} {
		_, err := executeRun(t, "text", "--specs", specsDir, "--db", db, "--run", run, cartScenario)
		require.NoError(t, err)
	}
	return db
}

func executeTrace(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTraceRequiresDB(t *testing.T) {
	_, err := executeTrace(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestTraceMissingJournal(t *testing.T) {
	_, err := executeTrace(t, "text", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "journal not found")
}

func TestTraceListRuns(t *testing.T) {
	db := journalWithRuns(t)

	out, err := executeTrace(t, "text", "--db", db, "--runs")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Runs ===")
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
	assert.NotContains(t, out, "=== Timeline ===")
}

func TestTraceTimelineJSON(t *testing.T) {
	db := journalWithRuns(t)

	out, err := executeTrace(t, "json", "--db", db, "--run", "second")
	require.NoError(t, err)

	var resp traceResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"first", "second"}, resp.Data.Runs)
	require.Len(t, resp.Data.Timeline, 1)

	entry := resp.Data.Timeline[0]
	assert.Equal(t, "second", entry["run"])
	assert.Equal(t, "scene_appeared", entry["kind"])
	assert.Equal(t, "custom:checkout", entry["scope"])
	assert.Equal(t, 1, resp.Data.Stats.ByKind["scene_appeared"])
	assert.Zero(t, resp.Data.Stats.Violations)
}

func TestTraceFilters(t *testing.T) {
	db := journalWithRuns(t)

	out, err := executeTrace(t, "json", "--db", db, "--kind", "fatal")
	require.NoError(t, err)
	var resp traceResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Data.Timeline)

	out, err = executeTrace(t, "text", "--db", db, "--scope", "checkout", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "scene_appeared custom:checkout")
	assert.Contains(t, out, "Total Events: 1")
}

func TestTraceInvalidFilter(t *testing.T) {
	db := journalWithRuns(t)

	_, err := executeTrace(t, "text", "--db", db, "--kind", "scene_vanished")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown event kind")
}

func TestTraceUnknownRun(t *testing.T) {
	db := journalWithRuns(t)

	_, err := executeTrace(t, "text", "--db", db, "--run", "third")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: third")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "01234567...89abcdef", truncateID("0123456789abcdef0123456789abcdef"))
}
