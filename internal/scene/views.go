package scene

import (
	"cmp"
	"slices"
	"sync"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
)

type viewKey struct {
	path ir.Path
	id   ir.StateID
}

// ViewEntry is one tracked view instance.
type ViewEntry struct {
	Path     ir.Path
	StateID  ir.StateID
	Snapshot any
}

// Views tracks the latest snapshot of each view-local state in one scope.
//
// Every call publishes its lifecycle event first, whether or not it
// succeeds. Violations (add of a present key, update or remove of an absent
// one) are then reported through the bus and the call is ignored.
type Views struct {
	scope ir.ScopeID
	bus   *monitor.Bus

	mu      sync.Mutex
	entries map[viewKey]any
}

func newViews(scope ir.ScopeID, bus *monitor.Bus) *Views {
	return &Views{scope: scope, bus: bus, entries: make(map[viewKey]any)}
}

// Add starts tracking (path, id). Returns false if it was already tracked.
func (v *Views) Add(path ir.Path, id ir.StateID, snapshot any) bool {
	key := viewKey{path, id}

	v.mu.Lock()
	_, exists := v.entries[key]
	if !exists {
		v.entries[key] = snapshot
	}
	v.mu.Unlock()

	v.publish(monitor.KindViewStateAdded, path, id, snapshot)
	if exists {
		v.bus.ReportFatal(monitor.NewViewInstanceDuplicateError(v.scope, path, id))
		return false
	}
	return true
}

// Update replaces the snapshot of (path, id). Returns false if untracked.
func (v *Views) Update(path ir.Path, id ir.StateID, snapshot any) bool {
	key := viewKey{path, id}

	v.mu.Lock()
	_, exists := v.entries[key]
	if exists {
		v.entries[key] = snapshot
	}
	v.mu.Unlock()

	v.publish(monitor.KindViewStateUpdated, path, id, snapshot)
	if !exists {
		v.bus.ReportFatal(monitor.NewViewInstanceNotFoundError("update", v.scope, path, id))
		return false
	}
	return true
}

// Remove stops tracking (path, id). Returns false if untracked.
func (v *Views) Remove(path ir.Path, id ir.StateID) bool {
	key := viewKey{path, id}

	v.mu.Lock()
	last, exists := v.entries[key]
	delete(v.entries, key)
	v.mu.Unlock()

	v.publish(monitor.KindViewStateRemoved, path, id, last)
	if !exists {
		v.bus.ReportFatal(monitor.NewViewInstanceNotFoundError("remove", v.scope, path, id))
		return false
	}
	return true
}

// Get returns the latest snapshot of (path, id).
func (v *Views) Get(path ir.Path, id ir.StateID) (any, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap, ok := v.entries[viewKey{path, id}]
	return snap, ok
}

// Len returns the number of tracked instances.
func (v *Views) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// Entries returns every tracked instance ordered by path, then state id.
func (v *Views) Entries() []ViewEntry {
	v.mu.Lock()
	out := make([]ViewEntry, 0, len(v.entries))
	for k, snap := range v.entries {
		out = append(out, ViewEntry{Path: k.path, StateID: k.id, Snapshot: snap})
	}
	v.mu.Unlock()

	slices.SortFunc(out, func(a, b ViewEntry) int {
		return cmp.Or(
			cmp.Compare(a.Path.String(), b.Path.String()),
			cmp.Compare(a.StateID, b.StateID),
		)
	})
	return out
}

func (v *Views) clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	clear(v.entries)
}

func (v *Views) publish(kind monitor.Kind, path ir.Path, id ir.StateID, snapshot any) {
	v.bus.Publish(monitor.Event{
		Kind:     kind,
		Scope:    v.scope,
		Path:     path,
		StateID:  id,
		Snapshot: snapshot,
	})
}
