package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSpecs(t *testing.T) {
	result, errs := LoadSpecs(specsDir, LoadModeFailFast)
	require.Empty(t, errs)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.FileCount)
	require.Len(t, result.States, 2)
	assert.Equal(t, "Cart", result.States[0].Name)
	assert.Len(t, result.States[0].Actions, 4)
	assert.Equal(t, "Cart", result.States[1].Parent)
}

func TestLoadSpecs_Modes(t *testing.T) {
	dir := writeSpec(t, `
state: A: {initial: {n: 1.5}}
state: B: {initial: {n: 0}, action: x: {field: "n"}}
state: C: {initial: {n: 0}}
`)

	_, failFast := LoadSpecs(dir, LoadModeFailFast)
	require.Len(t, failFast, 1)

	result, all := LoadSpecs(dir, LoadModeCollectAll)
	require.Len(t, all, 2)
	require.Len(t, result.States, 1)
	assert.Equal(t, "C", result.States[0].Name)

	var loadErr *LoadError
	require.True(t, errors.As(all[0], &loadErr))
	assert.Equal(t, ErrCodeInvalidInitial, loadErr.Code)
	assert.True(t, loadErr.Pos.IsValid())
	assert.Contains(t, loadErr.Error(), "state.A")
}

func TestLoadSpecs_NoStates(t *testing.T) {
	dir := writeSpec(t, `other: {x: 1}`)

	_, errs := LoadSpecs(dir, LoadModeCollectAll)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no states found")
}

func TestLoadSpecs_NotADirectory(t *testing.T) {
	_, errs := LoadSpecs(specsDir+"/states.cue", LoadModeFailFast)
	require.Len(t, errs, 1)

	var loadErr *LoadError
	require.True(t, errors.As(errs[0], &loadErr))
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
	assert.Contains(t, loadErr.Message, "not a directory")
}
