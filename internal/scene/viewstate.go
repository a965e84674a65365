package scene

import (
	"context"
	"slices"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/store"
)

// BindViewState creates a private store for one view instance at path.
//
// The instance is added to the scene's view tracker, updated on every
// change, and removed when the returned handle is released. The scene root
// is retained for as long as the view state lives. If the instance was
// already tracked, the duplicate is reported and the returned store is not
// tracked.
func BindViewState[S any](ctx context.Context, rt *Runtime, scope ir.ScopeID, path ir.Path, initial S, opts ...store.Option) (*store.Handle[S], error) {
	sc, root, err := rt.acquireScene(ctx, scope)
	if err != nil {
		return nil, err
	}

	opts = append(slices.Clone(opts),
		store.WithScope(scope),
		store.WithBus(rt.bus),
		store.WithArena(rt.arena),
		store.WithLogger(rt.logger),
	)
	st := store.New(initial, opts...)
	h, _ := st.Acquire()
	id := st.StateID()

	if !sc.views.Add(path, id, st.Get()) {
		root.Release()
		return h, nil
	}

	sub := st.Subscribe(func(next, _ S) {
		sc.views.Update(path, id, next)
	})
	st.OnDestroy(func() {
		sub.Cancel()
		sc.views.Remove(path, id)
		root.Release()
	})
	return h, nil
}
