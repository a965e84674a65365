package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specsDir = "testdata/specs"

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	src := "package test\n" + content
	require.NoError(t, os.WriteFile(filepath.Join(dir, "states.cue"), []byte(src), 0644))
	return dir
}

func TestCompileValidSpecs(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specsDir})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "✓ Compiled 2 state(s), 1 nested")
	assert.Contains(t, output, "Cart: 4 action(s)")
	assert.Contains(t, output, "CartBadge: 1 action(s) under Cart")
}

func TestCompileValidSpecsJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specsDir})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.States, 2)
	assert.Equal(t, "Cart", resp.Data.States[0].Name)
	assert.Equal(t, "Cart", resp.Data.States[1].Parent)
}

func TestCompileOutputToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "compiled.json")

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specsDir, "--output", outputFile})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Wrote canonical IR to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.States, 2)
}

func TestCompileNonExistentDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/directory/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, buf.String(), "not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileEmptyDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, buf.String(), "no CUE files found")
}

func TestCompileFloatInitial(t *testing.T) {
	dir := writeSpec(t, `
state: Bad: {
	initial: {ratio: 1.5}
}
`)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "✗ Compilation failed")
	assert.Contains(t, buf.String(), ErrCodeInvalidInitial)
	assert.Contains(t, buf.String(), "float")
}

func TestCompileCollectsAllErrors(t *testing.T) {
	dir := writeSpec(t, `
state: A: {
	initial: {n: 0}
	action: inc: {field: "n"}
}
state: B: {
	parent: 3
	initial: {}
}
`)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []CLIError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, ErrCodeInvalidAction, resp.Data[0].Code)
	assert.Equal(t, ErrCodeInvalidParent, resp.Data[1].Code)
}

func TestCompileRunsValidation(t *testing.T) {
	dir := writeSpec(t, `
state: Orphan: {
	parent: "Nobody"
	initial: {}
}
`)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "E108")
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := map[string]string{
		"parent":            ErrCodeInvalidParent,
		"initial":           ErrCodeInvalidInitial,
		"initial.ratio":     ErrCodeInvalidInitial,
		"action.inc.op":     ErrCodeInvalidAction,
		"action.set.value":  ErrCodeInvalidAction,
		"cue":               ErrCodeCUE,
		"something.unknown": ErrCodeGeneric,
	}
	for field, want := range tests {
		assert.Equal(t, want, MapFieldToErrorCode(field), field)
	}
}
