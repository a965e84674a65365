package scene

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewflow/internal/engine"
	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
	"github.com/roach88/viewflow/internal/registry"
	"github.com/roach88/viewflow/internal/store"
)

type Counter struct{ Value int }

type Increment struct{}

func (Increment) Kind() string { return "counter.increment" }

type SetValue struct{ Value int }

func (SetValue) Kind() string { return "counter.set" }

func (Counter) LoadReducers(st *store.Store[Counter]) {
	store.On(st, func(d *Counter, _ Increment) { d.Value++ })
	store.On(st, func(d *Counter, a SetValue) { d.Value = a.Value })
}

type Form struct {
	Name  string
	Valid bool
}

type Rename struct{ Name string }

func (Rename) Kind() string { return "form.rename" }

func newTestRuntime(t *testing.T) (*Runtime, *eventLog) {
	t.Helper()
	rt := New(
		WithMode(monitor.ModeDebug),
		WithIDGenerator(engine.NewSequenceGenerator("store")),
		WithClock(engine.NewClock()),
	)
	log := &eventLog{}
	sub := monitor.AddObserver(rt.Bus(), log)
	t.Cleanup(sub.Cancel)
	t.Cleanup(rt.Reset)
	return rt, log
}

func TestRuntime_CounterEndToEnd(t *testing.T) {
	rt, log := newTestRuntime(t)
	ctx := context.Background()
	scope := ir.Custom("s1")

	root, err := rt.SceneRoot(ctx, scope)
	require.NoError(t, err)
	defer root.Release()

	h, err := SharedStore[Counter](ctx, rt, scope)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Get().Value)

	var seen []int
	h.Subscribe(func(next, prev Counter) {
		assert.Equal(t, prev.Value+1, next.Value)
		seen = append(seen, next.Value)
	})

	for i := 0; i < 3; i++ {
		h.Dispatch(Increment{})
	}

	assert.Equal(t, 3, h.Get().Value)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, Counter{Value: 3}, root.SubStates()["Counter"])

	h.Release()

	_, ok := root.Child("Counter")
	assert.False(t, ok, "released store must leave the scope root")
	assert.Empty(t, root.SubStateIDs())
	assert.Equal(t, 0, rt.Registry().Len())
	assert.Empty(t, log.errors())
}

func TestRuntime_EqualResultSkipsNotification(t *testing.T) {
	rt, _ := newTestRuntime(t)
	h, err := SharedStore[Counter](context.Background(), rt, ir.Main)
	require.NoError(t, err)
	defer h.Release()

	notified := 0
	h.Subscribe(func(_, _ Counter) { notified++ })

	h.Dispatch(SetValue{Value: 0})
	h.Dispatch(Rename{Name: "unhandled"})
	assert.Equal(t, 0, notified)

	h.Dispatch(SetValue{Value: 5})
	h.Dispatch(SetValue{Value: 5})
	assert.Equal(t, 1, notified)
}

func TestRuntime_ScopedStoreWithExplicitKey(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()
	var calls atomic.Int32
	factory := func(_ context.Context, b registry.Build) (*store.Store[Counter], error) {
		calls.Add(1)
		return store.New(Counter{Value: 10}, append(b.Options, store.WithStateID("Score"))...), nil
	}

	root, err := rt.SceneRoot(ctx, ir.Main)
	require.NoError(t, err)
	defer root.Release()

	a, err := GetOrCreateScopedStore(ctx, rt, ir.Main, "score", factory)
	require.NoError(t, err)
	b, err := GetOrCreateScopedStore(ctx, rt, ir.Main, "score", factory)
	require.NoError(t, err)

	assert.Same(t, a.Store, b.Store)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []ir.StateID{"Score"}, root.SubStateIDs())

	a.Release()
	assert.Equal(t, []ir.StateID{"Score"}, root.SubStateIDs(), "one holder left")
	b.Release()
	assert.Empty(t, root.SubStateIDs())
}

func TestRuntime_ScopeIsolation(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	a, err := SharedStore[Counter](ctx, rt, ir.Custom("a"))
	require.NoError(t, err)
	defer a.Release()
	b, err := SharedStore[Counter](ctx, rt, ir.Custom("b"))
	require.NoError(t, err)
	defer b.Release()

	require.NotSame(t, a.Store, b.Store)
	a.Dispatch(Increment{})
	assert.Equal(t, 1, a.Get().Value)
	assert.Equal(t, 0, b.Get().Value)

	tree := rt.SceneTree()
	assert.Contains(t, tree, ir.Custom("a").StateID())
	assert.Contains(t, tree, ir.Custom("b").StateID())
}

func TestRuntime_AppearAndTopmost(t *testing.T) {
	rt, log := newTestRuntime(t)
	ctx := context.Background()
	scope := ir.Custom("s1")

	root, err := rt.SceneRoot(ctx, scope)
	require.NoError(t, err)
	defer root.Release()

	for _, p := range []string{"/A", "/A/B", "/A/C"} {
		require.NoError(t, rt.OnAppear(ctx, scope, ir.ParsePath(p)))
	}
	assert.Equal(t, []string{"/A/C", "/A/B", "/A"}, rt.Appeared(scope).Strings())

	require.NoError(t, rt.OnDisappear(ctx, scope, ir.ParsePath("/A/B")))
	require.NoError(t, rt.OnDisappear(ctx, scope, ir.ParsePath("/never")))
	assert.Equal(t, []string{"/A/C", "/A"}, rt.Appeared(scope).Strings())

	top, ok := rt.Topmost(scope)
	require.True(t, ok)
	assert.Equal(t, "/A/C", top.String())

	_, ok = rt.Topmost(ir.Custom("elsewhere"))
	assert.False(t, ok)

	assert.Equal(t, []monitor.Kind{
		monitor.KindSceneAppeared,
		monitor.KindSceneAppeared,
		monitor.KindSceneAppeared,
		monitor.KindSceneDisappeared,
		monitor.KindSceneDisappeared,
	}, log.kinds())
}

func TestRuntime_ViewInstances(t *testing.T) {
	rt, log := newTestRuntime(t)
	ctx := context.Background()
	path := ir.ParsePath("/Main/Form")

	ok, err := rt.AddView(ctx, ir.Main, path, "Form", Form{Name: "a"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rt.AddView(ctx, ir.Main, path, "Form", Form{Name: "b"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = rt.UpdateView(ctx, ir.Main, path, "Form", Form{Name: "c"})
	assert.True(t, ok)
	ok, _ = rt.RemoveView(ctx, ir.Main, path, "Form")
	assert.True(t, ok)
	ok, _ = rt.RemoveView(ctx, ir.Main, path, "Form")
	assert.False(t, ok)

	errs := log.errors()
	require.Len(t, errs, 2)
	assert.True(t, monitor.HasCode(errs[0].Err, monitor.CodeViewInstanceDuplicate))
	assert.True(t, monitor.HasCode(errs[1].Err, monitor.CodeViewInstanceNotFound))
}

func TestRuntime_BindViewState(t *testing.T) {
	rt, log := newTestRuntime(t)
	ctx := context.Background()
	scope := ir.Custom("s1")
	path := ir.ParsePath("/Main/Form")

	h, err := BindViewState(ctx, rt, scope, path, Form{Name: "draft"})
	require.NoError(t, err)
	store.On(h.Store, func(d *Form, a Rename) { d.Name = a.Name })

	sc, ok := rt.Scenes().Lookup(scope)
	require.True(t, ok)
	assert.Equal(t, 1, sc.Root().Refs(), "view state keeps its scene alive")

	h.Dispatch(Rename{Name: "final"})
	snap, ok := sc.Views().Get(path, "Form")
	require.True(t, ok)
	assert.Equal(t, Form{Name: "final"}, snap)

	h.Release()
	assert.Equal(t, 0, sc.Views().Len())
	assert.True(t, sc.Root().Destroyed(), "last holder of the scene was the view state")
	_, ok = rt.Scenes().Lookup(scope)
	assert.False(t, ok)

	assert.Equal(t, []monitor.Kind{
		monitor.KindViewStateAdded,
		monitor.KindViewStateUpdated,
		monitor.KindViewStateRemoved,
	}, log.kinds())
}

func TestRuntime_BindViewStateTwiceIsDuplicate(t *testing.T) {
	rt, log := newTestRuntime(t)
	ctx := context.Background()
	path := ir.ParsePath("/Main/Form")

	first, err := BindViewState(ctx, rt, ir.Main, path, Form{})
	require.NoError(t, err)
	defer first.Release()

	second, err := BindViewState(ctx, rt, ir.Main, path, Form{})
	require.NoError(t, err)
	second.Release()

	sc, ok := rt.Scenes().Lookup(ir.Main)
	require.True(t, ok)
	assert.Equal(t, 1, sc.Views().Len(), "untracked duplicate must not remove the original")

	errs := log.errors()
	require.Len(t, errs, 1)
	assert.True(t, monitor.HasCode(errs[0].Err, monitor.CodeViewInstanceDuplicate))
}

func TestRuntime_LastRootHolderRemovesScene(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()
	scope := ir.Custom("s1")

	root, err := rt.SceneRoot(ctx, scope)
	require.NoError(t, err)
	assert.Contains(t, rt.SceneTree(), scope.StateID())

	root.Release()
	assert.NotContains(t, rt.SceneTree(), scope.StateID())
	assert.Equal(t, 0, rt.Scenes().Len())

	again, err := rt.SceneRoot(ctx, scope)
	require.NoError(t, err)
	defer again.Release()
	assert.NotSame(t, root.Store, again.Store)
}

func TestRuntime_ReleaseScene(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()
	scope := ir.Custom("s1")

	old, err := SharedStore[Counter](ctx, rt, scope)
	require.NoError(t, err)
	old.Dispatch(Increment{})

	rt.ReleaseScene(scope)
	assert.Empty(t, rt.Registry().Keys(scope))
	assert.NotContains(t, rt.SceneTree(), scope.StateID())

	fresh, err := SharedStore[Counter](ctx, rt, scope)
	require.NoError(t, err)
	defer fresh.Release()
	assert.NotSame(t, old.Store, fresh.Store)
	assert.Equal(t, 0, fresh.Get().Value)
	assert.Equal(t, 1, old.Get().Value, "existing holders keep their store")
	assert.Equal(t, int64(2), rt.Registry().Built())

	old.Release()
	root, ok := rt.Scenes().Lookup(scope)
	require.True(t, ok)
	assert.Equal(t, []ir.StateID{"Counter"}, root.Root().SubStateIDs())
}

func TestRuntime_DispatchOnMainLoop(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rt.Loop().Run(ctx) }()

	h, err := SharedStore[Counter](ctx, rt, ir.Main)
	require.NoError(t, err)
	defer h.Release()

	var order []int
	h.Subscribe(func(next, _ Counter) { order = append(order, next.Value) })

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rt.Do(ctx, "increment", func(context.Context) error {
				h.Dispatch(Increment{})
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, n, h.Get().Value)
	require.Len(t, order, n)
	for i, v := range order {
		assert.Equal(t, i+1, v)
	}

	rt.Loop().Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRuntime_ResetStartsClean(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	h, err := SharedStore[Counter](ctx, rt, ir.Main)
	require.NoError(t, err)
	defer h.Release()
	_, err = rt.AddView(ctx, ir.Main, ir.ParsePath("/A"), "Form", nil)
	require.NoError(t, err)

	assert.Positive(t, rt.Arena().Len())
	rt.Reset()

	assert.Equal(t, 0, rt.Arena().Len())
	assert.Equal(t, 0, rt.Registry().Len())
	assert.Equal(t, 0, rt.Scenes().Len())
	assert.Empty(t, rt.SceneTree())
	assert.Equal(t, 0, rt.Bus().Observers())
}
