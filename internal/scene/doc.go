// Package scene owns the per-scope roots of the state tree and the view
// lifecycle bookkeeping attached to them.
//
// Scenes is the scene registry: one root Store[SceneState] per scope,
// created on first use and registered in a global tree store. SceneState
// tracks which view paths are on screen (Appearances), and Views tracks the
// latest snapshot of every view-local state by (path, state id).
//
// Runtime ties the scene registry, the shared-store registry, the event bus
// and the main loop into the one process-wide context the UI layer talks to.
package scene
