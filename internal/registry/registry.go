package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
	"github.com/roach88/viewflow/internal/store"
)

// Roots resolves the root store of a scope. scene.Scenes implements it.
type Roots interface {
	Root(ctx context.Context, scope ir.ScopeID) (store.Node, error)
}

// Registry maps (scope, type) to stores.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry

	// sem is the construction exclusion domain (capacity 1).
	sem chan struct{}

	roots     Roots
	bus       *monitor.Bus
	logger    *slog.Logger
	storeOpts []store.Option
	built     atomic.Int64
}

type entry struct {
	node  store.Node
	ready chan struct{}
	chain *chain
}

// Option configures a Registry.
type Option func(*Registry)

// WithRoots sets the scope-root resolver. Without one, stores with no
// explicit parent are left unattached.
func WithRoots(roots Roots) Option {
	return func(r *Registry) { r.roots = roots }
}

// WithBus sets the bus for invariant violations; it is also passed to
// every store the registry builds.
func WithBus(b *monitor.Bus) Option {
	return func(r *Registry) {
		if b != nil {
			r.bus = b
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStoreOptions adds options applied to every store the registry builds.
func WithStoreOptions(opts ...store.Option) Option {
	return func(r *Registry) { r.storeOpts = append(r.storeOpts, opts...) }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[Key]*entry),
		sem:     make(chan struct{}, 1),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bus == nil {
		r.bus = monitor.NewBus(monitor.WithLogger(r.logger))
	}
	return r
}

// GetOrCreate returns a handle to the store for (scope, spec type),
// building it with spec.New on first request. The caller owns the handle
// and must Release it.
func GetOrCreate[S any](ctx context.Context, r *Registry, scope ir.ScopeID, spec Spec[S]) (*store.Handle[S], error) {
	if spec.New == nil {
		return nil, fmt.Errorf("spec for %s has no factory", spec.typeKey())
	}
	key := Key{Scope: scope, Type: spec.typeKey()}

	for {
		node, err := r.resolve(ctx, key, func(ctx context.Context) (store.Node, func(context.Context), error) {
			return build(ctx, r, scope, spec)
		})
		if err != nil {
			return nil, err
		}

		st, ok := node.(*store.Store[S])
		if !ok {
			return nil, fmt.Errorf("%s holds %T, not *store.Store[%s]", key, node, TypeKeyOf[S]())
		}
		if h, ok := st.Acquire(); ok {
			return h, nil
		}
		// Destroyed between lookup and acquire; build a fresh one.
		r.evict(key, node)
	}
}

// Peek returns the store of S in scope if it exists, without creating it
// or taking a reference.
func Peek[S any](r *Registry, scope ir.ScopeID) (*store.Store[S], bool) {
	r.mu.Lock()
	e, ok := r.entries[Key{Scope: scope, Type: TypeKeyOf[S]()}]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	st, ok := e.node.(*store.Store[S])
	return st, ok
}

func build[S any](ctx context.Context, r *Registry, scope ir.ScopeID, spec Spec[S]) (store.Node, func(context.Context), error) {
	var parent store.Node
	var releaseParent func()
	if spec.Parent != nil {
		p, rel, err := spec.Parent(ctx, r, scope)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve parent of %s: %w", spec.typeKey(), err)
		}
		parent, releaseParent = p, rel
	}

	st, err := spec.New(ctx, Build{Scope: scope, Options: r.optionsFor(scope)})
	if err != nil {
		if releaseParent != nil {
			releaseParent()
		}
		return nil, nil, fmt.Errorf("construct %s in scope %s: %w", spec.typeKey(), scope, err)
	}
	if st == nil {
		if releaseParent != nil {
			releaseParent()
		}
		return nil, nil, fmt.Errorf("construct %s in scope %s: factory returned nil", spec.typeKey(), scope)
	}

	stateID := spec.StateID
	if stateID == "" {
		stateID = st.StateID()
	}

	attach := func(ctx context.Context) {
		if parent == nil {
			root, err := r.retainRoot(ctx, scope)
			if err != nil {
				r.logger.Error("scope root unavailable",
					"scope", scope.String(),
					"state_id", string(stateID),
					"error", err,
				)
				return
			}
			if root == nil {
				return
			}
			parent, releaseParent = root, root.Release
		}
		if !parent.AttachChild(st, stateID) {
			releaseParent()
			return
		}
		st.OnDestroy(releaseParent)
	}
	return st, attach, nil
}

func (r *Registry) optionsFor(scope ir.ScopeID) []store.Option {
	opts := slices.Clone(r.storeOpts)
	return append(opts,
		store.WithScope(scope),
		store.WithBus(r.bus),
		store.WithLogger(r.logger),
	)
}

// retainRoot resolves and retains the scope root. A root destroyed between
// resolution and retain is resolved again.
func (r *Registry) retainRoot(ctx context.Context, scope ir.ScopeID) (store.Node, error) {
	if r.roots == nil {
		return nil, nil
	}
	for attempt := 0; attempt < 3; attempt++ {
		root, err := r.roots.Root(ctx, scope)
		if err != nil {
			return nil, err
		}
		if root.Retain() {
			return root, nil
		}
	}
	return nil, fmt.Errorf("scope %s root keeps being destroyed", scope)
}

type buildFunc func(ctx context.Context) (store.Node, func(context.Context), error)

func (r *Registry) resolve(ctx context.Context, key Key, build buildFunc) (store.Node, error) {
	if ch := chainFrom(ctx); ch != nil && ch.owner == r {
		return r.construct(ctx, ch, key, build)
	}

	if n, ok, err := r.lookup(ctx, key, nil); ok || err != nil {
		return n, err
	}

	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	ch := newChain(r)
	n, err := r.construct(withChain(ctx, ch), ch, key, build)
	r.release()

	ch.finish(ctx)
	return n, err
}

func (r *Registry) construct(ctx context.Context, ch *chain, key Key, build buildFunc) (store.Node, error) {
	if n, ok, err := r.lookup(ctx, key, ch); ok || err != nil {
		return n, err
	}

	if !ch.enter(key) {
		err := monitor.NewConstructionCycleError(key.Scope, string(key.Type))
		r.bus.ReportFatal(err)
		return nil, err
	}
	defer ch.leave(key)

	node, attach, err := build(ctx)
	if err != nil {
		return nil, err
	}
	r.built.Add(1)

	e := &entry{node: node, ready: make(chan struct{}), chain: ch}
	r.mu.Lock()
	r.entries[key] = e
	r.mu.Unlock()

	node.OnDestroy(func() { r.evict(key, node) })
	ch.schedule(e, attach)

	r.logger.Debug("shared store created",
		"scope", key.Scope.String(),
		"type", string(key.Type),
		"store_id", node.ID(),
	)
	return node, nil
}

// lookup returns the live entry for key. Entries built by another chain
// are returned only once their attachment has finished.
func (r *Registry) lookup(ctx context.Context, key Key, ch *chain) (store.Node, bool, error) {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	if ch == nil || e.chain != ch {
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	if e.node.Destroyed() {
		r.evict(key, e.node)
		return nil, false, nil
	}
	return e.node, true, nil
}

func (r *Registry) acquire(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) release() {
	<-r.sem
}

// evict removes key if it still maps to node.
func (r *Registry) evict(key Key, node store.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok && e.node == node {
		delete(r.entries, key)
		r.logger.Debug("shared store evicted",
			"scope", key.Scope.String(),
			"type", string(key.Type),
		)
	}
}

// Len returns the number of registered stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Keys returns the keys registered in scope, sorted by type.
func (r *Registry) Keys(scope ir.ScopeID) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []Key
	for k := range r.entries {
		if k.Scope == scope {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b Key) int {
		switch {
		case a.Type < b.Type:
			return -1
		case a.Type > b.Type:
			return 1
		}
		return 0
	})
	return keys
}

// Built returns how many times a factory has produced a store.
func (r *Registry) Built() int64 {
	return r.built.Load()
}

// RemoveScope forgets every store of scope. The stores themselves live on
// until their holders release them; later requests build fresh ones.
func (r *Registry) RemoveScope(scope ir.ScopeID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k := range r.entries {
		if k.Scope == scope {
			delete(r.entries, k)
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("scope removed from registry", "scope", scope.String(), "stores", n)
	}
	return n
}

// Reset forgets every store.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[Key]*entry)
}
