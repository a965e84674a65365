package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewflow/internal/engine"
	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
)

type Counter struct {
	Value int
}

type Increment struct{}

func (Increment) Kind() string { return "counter.increment" }

type SetValue struct{ To int }

func (SetValue) Kind() string { return "counter.set" }

type Unknown struct{}

func (Unknown) Kind() string { return "unknown" }

func newCounter(t *testing.T, opts ...Option) *Store[Counter] {
	t.Helper()
	opts = append([]Option{WithIDGenerator(engine.NewSequenceGenerator("store"))}, opts...)
	st := New(Counter{}, opts...)
	On(st, func(d *Counter, _ Increment) { d.Value++ })
	On(st, func(d *Counter, a SetValue) { d.Value = a.To })
	return st
}

type notification struct{ next, prev int }

func TestStore_GetReturnsInitial(t *testing.T) {
	st := New(Counter{Value: 7}, WithID("c1"), WithScope(ir.Custom("s1")))

	assert.Equal(t, Counter{Value: 7}, st.Get())
	assert.Equal(t, "c1", st.ID())
	assert.Equal(t, ir.StateID("Counter"), st.StateID())
	assert.Equal(t, ir.Custom("s1"), st.Scope())
	assert.Equal(t, Counter{Value: 7}, st.Snapshot())
}

func TestStore_DispatchNotifiesInOrderWithDistinctSnapshots(t *testing.T) {
	st := newCounter(t)

	var got []notification
	var order []string
	st.Subscribe(func(next, prev Counter) {
		got = append(got, notification{next.Value, prev.Value})
		order = append(order, "a")
	})
	st.Subscribe(func(Counter, Counter) { order = append(order, "b") })

	for i := 0; i < 3; i++ {
		st.Dispatch(Increment{})
	}

	assert.Equal(t, 3, st.Get().Value)
	assert.Equal(t, []notification{{1, 0}, {2, 1}, {3, 2}}, got)
	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, order)
}

func TestStore_UnregisteredActionIsNoop(t *testing.T) {
	st := newCounter(t)
	calls := 0
	st.Subscribe(func(Counter, Counter) { calls++ })

	assert.NotPanics(t, func() {
		st.Dispatch(Unknown{})
		st.Dispatch(nil)
	})
	assert.Equal(t, 0, st.Get().Value)
	assert.Equal(t, 0, calls)
}

func TestStore_DefaultReducerHandlesUnknownKinds(t *testing.T) {
	st := newCounter(t)
	var kinds []string
	st.RegisterDefault(func(d *Counter, a ir.Action) {
		kinds = append(kinds, a.Kind())
		d.Value += 10
	})

	st.Dispatch(Unknown{})
	st.Dispatch(Increment{})

	assert.Equal(t, []string{"unknown"}, kinds, "specific reducer wins over default")
	assert.Equal(t, 11, st.Get().Value)
}

func TestStore_EqualResultSkipsNotification(t *testing.T) {
	st := newCounter(t)
	calls := 0
	st.Subscribe(func(Counter, Counter) { calls++ })

	st.Dispatch(SetValue{To: 5})
	st.Dispatch(SetValue{To: 5})
	st.Dispatch(SetValue{To: 5})

	assert.Equal(t, 1, calls)
}

func TestStore_TapRunsEvenWithoutChange(t *testing.T) {
	st := newCounter(t)
	var seen []int
	st.Tap(func(_ ir.Action, s Counter) { seen = append(seen, s.Value) })

	st.Dispatch(SetValue{To: 2})
	st.Dispatch(SetValue{To: 2})
	st.Dispatch(Unknown{})

	assert.Equal(t, []int{2, 2}, seen, "unhandled actions do not reach taps")
}

func TestStore_UnsubscribeDuringNotification(t *testing.T) {
	st := newCounter(t)

	var sub *Subscription
	first := 0
	sub = st.Subscribe(func(Counter, Counter) {
		first++
		sub.Cancel()
	})
	second := 0
	st.Subscribe(func(Counter, Counter) { second++ })

	st.Dispatch(Increment{})
	st.Dispatch(Increment{})

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, st.Subscribers())
	sub.Cancel()
}

func TestStore_CancelOtherSubscriberMidNotification(t *testing.T) {
	st := newCounter(t)

	var later *Subscription
	st.Subscribe(func(Counter, Counter) { later.Cancel() })
	calls := 0
	later = st.Subscribe(func(Counter, Counter) { calls++ })

	st.Dispatch(Increment{})
	assert.Equal(t, 0, calls, "a subscriber cancelled before its turn is skipped")
}

type Tags struct {
	Names []string
}

func (t Tags) Clone() Tags {
	return Tags{Names: append([]string(nil), t.Names...)}
}

type AddTag struct{ Name string }

func (AddTag) Kind() string { return "tags.add" }

func TestStore_ClonerKeepsPreviousSnapshotIntact(t *testing.T) {
	st := New(Tags{Names: make([]string, 0, 8)}, WithID("tags"))
	On(st, func(d *Tags, a AddTag) { d.Names = append(d.Names, a.Name) })

	var prevs [][]string
	st.Subscribe(func(_, prev Tags) { prevs = append(prevs, prev.Names) })

	st.Dispatch(AddTag{Name: "a"})
	st.Dispatch(AddTag{Name: "b"})

	assert.Equal(t, []string{"a", "b"}, st.Get().Names)
	assert.Equal(t, [][]string{{}, {"a"}}, prevs)
}

type Versioned struct {
	Version int
	Touched int
}

func (v Versioned) Equal(o Versioned) bool { return v.Version == o.Version }

type Touch struct{}

func (Touch) Kind() string { return "touch" }

func TestStore_EqualerOverridesDeepEqual(t *testing.T) {
	st := New(Versioned{}, WithID("v"))
	On(st, func(d *Versioned, _ Touch) { d.Touched++ })
	calls := 0
	st.Subscribe(func(Versioned, Versioned) { calls++ })

	st.Dispatch(Touch{})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, st.Get().Touched, "equal result is discarded")

	st.SetEqual(func(a, b Versioned) bool { return a == b })
	st.Dispatch(Touch{})
	assert.Equal(t, 1, calls)
}

type Preloaded struct {
	N int
}

func (Preloaded) LoadReducers(st *Store[Preloaded]) {
	st.Register("bump", func(d *Preloaded, _ ir.Action) { d.N++ })
}

func (Preloaded) StateID() ir.StateID { return "preloaded-state" }

func TestStore_CapabilitiesAreDetected(t *testing.T) {
	st := New(Preloaded{}, WithID("p"))

	st.Dispatch(ir.Command{Name: "bump"})

	assert.Equal(t, 1, st.Get().N)
	assert.Equal(t, ir.StateID("preloaded-state"), st.StateID())
	assert.Equal(t, ir.StateID("preloaded-state"), StateIDOf[Preloaded]())
	assert.Equal(t, ir.StateID("Counter"), StateIDOf[Counter]())
	assert.Equal(t, ir.StateID("map[string]int"), StateIDOf[map[string]int]())
}

func TestStore_ReducerPanicDoesNotWedgeStore(t *testing.T) {
	st := newCounter(t)
	st.Register("explode", func(*Counter, ir.Action) { panic("boom") })

	assert.Panics(t, func() { st.Dispatch(ir.Command{Name: "explode"}) })

	st.Dispatch(Increment{})
	assert.Equal(t, 1, st.Get().Value)
}

func TestStore_ConcurrentDispatchIsSerialized(t *testing.T) {
	st := newCounter(t)
	var mu sync.Mutex
	notified := 0
	st.Subscribe(func(Counter, Counter) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Dispatch(Increment{})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, st.Get().Value)
	assert.Equal(t, 100, notified)
}

func TestStore_DefaultBusPanicsOnUnobservedDuplicate(t *testing.T) {
	if monitor.DefaultMode != monitor.ModeDebug {
		t.Skip("release build")
	}
	parent := newCounter(t)
	require.True(t, parent.AttachChild(newCounter(t), "Child"))

	assert.Panics(t, func() {
		parent.AttachChild(newCounter(t), "Child")
	})
}
