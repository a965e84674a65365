package store

import (
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/viewflow/internal/ir"
)

// Reducer mutates draft in response to action. draft is a clone of the
// current snapshot; the committed snapshot is never touched.
type Reducer[S any] func(draft *S, action ir.Action)

// Store is a single mutable-state cell. See the package documentation.
//
// Thread-safety: all methods are safe for concurrent use. Dispatch is meant
// to be called from the main loop; concurrent dispatches are serialized for
// the reducer step, but their notifications may interleave.
type Store[S any] struct {
	*core

	stateMu     sync.Mutex
	state       S
	reducers    map[string]Reducer[S]
	fallback    Reducer[S]
	subs        []*subscriber[S]
	taps        []func(ir.Action, S)
	equal       func(a, b S) bool
	clone       func(S) S
	deep        bool
	destroyHook func(S)
}

type subscriber[S any] struct {
	fn        func(next, prev S)
	cancelled atomic.Bool
}

// New creates a store holding initial. If S implements ReducerLoader, its
// reducers are registered before New returns.
func New[S any](initial S, opts ...Option) *Store[S] {
	cfg := newConfig(opts)
	if cfg.stateID == "" {
		cfg.stateID = StateIDOf[S]()
	}

	s := &Store[S]{
		core: &core{
			id:      cfg.id,
			stateID: cfg.stateID,
			scope:   cfg.scope,
			bus:     cfg.bus,
			logger:  cfg.logger,
			arena:   cfg.arena,
		},
		state:    initial,
		reducers: make(map[string]Reducer[S]),
		deep:     hasReferences(reflect.TypeFor[S]()),
	}
	s.core.self = s
	s.core.slot = cfg.arena.add(s.core)
	s.core.snapshot = func() any { return s.Get() }
	s.core.final = s.runDestroyHook

	if loader, ok := any(initial).(ReducerLoader[S]); ok {
		loader.LoadReducers(s)
	}
	return s
}

// Get returns the current snapshot.
func (s *Store[S]) Get() S {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Register installs the reducer for an action kind, replacing any previous one.
func (s *Store[S]) Register(kind string, r Reducer[S]) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.reducers[kind] = r
}

// RegisterDefault installs the reducer used when no kind-specific one exists.
func (s *Store[S]) RegisterDefault(r Reducer[S]) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.fallback = r
}

// On registers a typed reducer for actions of type A. The kind is taken
// from the zero value of A, so A must be a value type whose Kind does not
// depend on its fields.
func On[S any, A ir.Action](s *Store[S], fn func(draft *S, action A)) {
	var zero A
	s.Register(zero.Kind(), func(draft *S, action ir.Action) {
		if typed, ok := action.(A); ok {
			fn(draft, typed)
		}
	})
}

// SetEqual overrides the equality used to skip no-op dispatches.
func (s *Store[S]) SetEqual(fn func(a, b S) bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.equal = fn
}

// SetClone overrides how drafts are seeded from the current snapshot.
func (s *Store[S]) SetClone(fn func(S) S) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.clone = fn
}

// Tap registers fn to run after every handled dispatch, whether or not
// the state changed. Taps run after subscribers.
func (s *Store[S]) Tap(fn func(action ir.Action, state S)) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.taps = append(s.taps, fn)
}

// SetDestroyHook sets the hook run with the final snapshot when the store
// is destroyed. It runs at most once.
func (s *Store[S]) SetDestroyHook(fn func(final S)) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.destroyHook = fn
}

// Subscribe registers fn for change notifications. fn receives the new and
// the previous snapshot, synchronously, in subscription order.
func (s *Store[S]) Subscribe(fn func(next, prev S)) *Subscription {
	sub := &subscriber[S]{fn: fn}

	s.stateMu.Lock()
	s.subs = append(s.subs, sub)
	s.stateMu.Unlock()

	return &Subscription{cancel: func() {
		sub.cancelled.Store(true)

		s.stateMu.Lock()
		defer s.stateMu.Unlock()
		if i := slices.Index(s.subs, sub); i >= 0 {
			s.subs = slices.Delete(slices.Clone(s.subs), i, i+1)
		}
	}}
}

// Subscribers returns the number of active subscribers.
func (s *Store[S]) Subscribers() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return len(s.subs)
}

// Dispatch runs the reducer for action.Kind() (or the default reducer).
// Unhandled actions are ignored. If the result differs from the current
// snapshot it is committed, subscribers are notified before Dispatch
// returns, and the parent's copy of this sub-state is refreshed.
func (s *Store[S]) Dispatch(action ir.Action) {
	if action == nil {
		return
	}

	res, handled := s.reduce(action)
	if !handled {
		s.logger.Debug("action ignored",
			"state_id", string(s.stateID),
			"action", action.Kind(),
		)
		return
	}

	if res.changed {
		for _, sub := range res.subs {
			if sub.cancelled.Load() {
				continue
			}
			sub.fn(res.next, res.prev)
		}
		s.refreshParent()
	}

	for _, tap := range res.taps {
		tap(action, res.next)
	}
}

type reduction[S any] struct {
	prev, next S
	changed    bool
	subs       []*subscriber[S]
	taps       []func(ir.Action, S)
}

func (s *Store[S]) reduce(action ir.Action) (reduction[S], bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	r, ok := s.reducers[action.Kind()]
	if !ok {
		r = s.fallback
	}
	if r == nil {
		return reduction[S]{}, false
	}

	prev := s.state
	draft := s.cloneState(prev)
	r(&draft, action)

	res := reduction[S]{prev: prev, next: draft, taps: s.taps}
	if !s.equalState(prev, draft) {
		s.state = draft
		res.changed = true
		res.subs = s.subs
	} else {
		res.next = prev
	}
	return res, true
}

func (s *Store[S]) cloneState(v S) S {
	if s.clone != nil {
		return s.clone(v)
	}
	if c, ok := any(v).(Cloner[S]); ok {
		return c.Clone()
	}
	if s.deep {
		return deepCopy(v)
	}
	return v
}

func (s *Store[S]) equalState(a, b S) bool {
	if s.equal != nil {
		return s.equal(a, b)
	}
	if e, ok := any(a).(Equaler[S]); ok {
		return e.Equal(b)
	}
	return reflect.DeepEqual(a, b)
}

func (s *Store[S]) runDestroyHook() {
	s.stateMu.Lock()
	hook := s.destroyHook
	final := s.state
	s.destroyHook = nil
	s.stateMu.Unlock()

	if hook != nil {
		hook(final)
	}
}

// Acquire retains the store and wraps it in a Handle. It fails if the store
// has already been destroyed.
func (s *Store[S]) Acquire() (*Handle[S], bool) {
	if !s.Retain() {
		return nil, false
	}
	return &Handle[S]{Store: s}, true
}

// Subscription cancels a store subscription.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel stops further notifications. It is idempotent and safe to call
// from inside the subscriber itself.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Handle is one external holder's reference to a store.
type Handle[S any] struct {
	*Store[S]
	released atomic.Bool
}

// Release gives up this holder's reference. Only the first call counts.
func (h *Handle[S]) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.Store.Release()
	}
}

// Released reports whether Release has been called on this handle.
func (h *Handle[S]) Released() bool {
	return h.released.Load()
}
