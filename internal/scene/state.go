package scene

import (
	"slices"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/store"
)

// SceneState is the state of a scope root.
type SceneState struct {
	Scope    ir.ScopeID
	Appeared Appearances
}

// StateID implements store.Identified.
func (SceneState) StateID() ir.StateID { return "SceneState" }

// Clone implements store.Cloner.
func (s SceneState) Clone() SceneState {
	return SceneState{Scope: s.Scope, Appeared: slices.Clone(s.Appeared)}
}

// Equal implements store.Equaler.
func (s SceneState) Equal(o SceneState) bool {
	return s.Scope == o.Scope && slices.Equal(s.Appeared, o.Appeared)
}

// LoadReducers implements store.ReducerLoader.
func (SceneState) LoadReducers(st *store.Store[SceneState]) {
	store.On(st, func(d *SceneState, a Appear) { d.Appeared = d.Appeared.Appear(a.Path) })
	store.On(st, func(d *SceneState, a Disappear) { d.Appeared = d.Appeared.Disappear(a.Path) })
}

// Appear records that the view at Path became visible.
type Appear struct{ Path ir.Path }

// Kind implements ir.Action.
func (Appear) Kind() string { return "scene.appear" }

// Disappear records that the view at Path went away.
type Disappear struct{ Path ir.Path }

// Kind implements ir.Action.
func (Disappear) Kind() string { return "scene.disappear" }

// AllScenes is the state of the global tree root every scope root hangs off.
type AllScenes struct{}

// StateID implements store.Identified.
func (AllScenes) StateID() ir.StateID { return "AllSceneState" }
