package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewflow/internal/config"
)

var cartScenario = filepath.Join(scenariosDir, "cart_checkout.yaml")

// runResponse mirrors RunResult with the trace left untyped.
type runResponse struct {
	Status string `json:"status"`
	Data   struct {
		Scenario string           `json:"scenario"`
		Pass     bool             `json:"pass"`
		Digest   string           `json:"digest"`
		Trace    []map[string]any `json:"trace"`
		Journal  *JournalSummary  `json:"journal"`
	} `json:"data"`
}

func executeRun(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvJournal, "")
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunCommandRequiresScenario(t *testing.T) {
	_, err := executeRun(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestRunCommandText(t *testing.T) {
	out, err := executeRun(t, "text", "--specs", specsDir, cartScenario)
	require.NoError(t, err)

	assert.Contains(t, out, "op=request state=Cart scope=checkout")
	assert.Contains(t, out, "kind=scene_appeared")
	assert.Contains(t, out, "Digest: ")
	assert.Contains(t, out, "✓ cart_checkout")
	assert.NotContains(t, out, "Journal:")
}

func TestRunCommandJSON(t *testing.T) {
	out, err := executeRun(t, "json", "--specs", specsDir, cartScenario)
	require.NoError(t, err)

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, "cart_checkout", resp.Data.Scenario)
	assert.Len(t, resp.Data.Digest, 64)
	assert.NotEmpty(t, resp.Data.Trace)
	assert.Nil(t, resp.Data.Journal)
}

func TestRunCommandDeterministicDigest(t *testing.T) {
	first, err := executeRun(t, "json", "--specs", specsDir, cartScenario)
	require.NoError(t, err)
	second, err := executeRun(t, "json", "--specs", specsDir, cartScenario)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunCommandJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "viewflow.db")

	out, err := executeRun(t, "text", "--specs", specsDir, "--db", db, "--run", "r1", cartScenario)
	require.NoError(t, err)
	assert.Contains(t, out, "Journal: 1 event(s) appended to run r1")

	_, err = os.Stat(db)
	require.NoError(t, err)
}

func TestRunCommandRejectsReusedRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "viewflow.db")

	_, err := executeRun(t, "text", "--specs", specsDir, "--db", db, "--run", "r1", cartScenario)
	require.NoError(t, err)

	_, err = executeRun(t, "text", "--specs", specsDir, "--db", db, "--run", "r1", cartScenario)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `run "r1" already exists`)
}

func TestRunCommandJournalFromConfig(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-config.db")
	cfgPath := filepath.Join(dir, "viewflow.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("journal:\n  path: "+db+"\n  run: cfg-run\n"), 0644))

	t.Setenv(config.EnvJournal, "")
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "json", Config: cfgPath})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--specs", specsDir, cartScenario})
	require.NoError(t, cmd.Execute())

	var resp runResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Data.Journal)
	assert.Equal(t, db, resp.Data.Journal.Path)
	assert.Equal(t, "cfg-run", resp.Data.Journal.Run)
	assert.Equal(t, 1, resp.Data.Journal.Appended)
}

func TestRunCommandFailingScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: fail
description: "Appeared list is wrong"
steps:
  - op: appear
    path: /a
assertions:
  - type: appeared
    paths: [/b]
`), 0644))

	out, err := executeRun(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ fail")
}

func TestRunCommandMissingScenario(t *testing.T) {
	_, err := executeRun(t, "text", "/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRunCommandBadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "viewflow.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("mode: loud\n"), 0644))

	cmd := NewRunCommand(&RootOptions{Format: "text", Config: cfgPath})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{cartScenario})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
