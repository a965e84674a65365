package scene

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/viewflow/internal/engine"
	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
	"github.com/roach88/viewflow/internal/registry"
	"github.com/roach88/viewflow/internal/store"
)

// Runtime is the process-wide context: event bus, scene registry, shared
// store registry and main loop. Create one per process (or per test) and
// pass it to entry points.
//
// Registry lookups are safe from any goroutine. Dispatch, appear and
// disappear, and view instance changes are expected to run on the main
// loop; Do runs a function there.
type Runtime struct {
	bus      *monitor.Bus
	scenes   *Scenes
	registry *registry.Registry
	loop     *engine.Loop
	arena    *store.Arena
	logger   *slog.Logger
}

type runtimeConfig struct {
	bus    *monitor.Bus
	logger *slog.Logger
	ids    engine.IDGenerator
	clock  engine.Sequencer
	mode   *monitor.Mode
}

// Option configures a Runtime.
type Option func(*runtimeConfig)

// WithBus uses b instead of a new bus.
func WithBus(b *monitor.Bus) Option {
	return func(c *runtimeConfig) { c.bus = b }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *runtimeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithIDGenerator sets the generator for store ids. Default: UUIDv7.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(c *runtimeConfig) { c.ids = g }
}

// WithClock sets the sequencer that stamps event seqs.
func WithClock(s engine.Sequencer) Option {
	return func(c *runtimeConfig) { c.clock = s }
}

// WithMode overrides the bus mode.
func WithMode(m monitor.Mode) Option {
	return func(c *runtimeConfig) { c.mode = &m }
}

// New creates a Runtime.
func New(opts ...Option) *Runtime {
	cfg := runtimeConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	bus := cfg.bus
	if bus == nil {
		busOpts := []monitor.Option{monitor.WithLogger(cfg.logger)}
		if cfg.clock != nil {
			busOpts = append(busOpts, monitor.WithClock(cfg.clock))
		}
		bus = monitor.NewBus(busOpts...)
	}
	if cfg.mode != nil {
		bus.SetMode(*cfg.mode)
	}

	arena := store.NewArena()
	storeOpts := []store.Option{store.WithArena(arena)}
	if cfg.ids != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(cfg.ids))
	}

	scenes := NewScenes(bus, cfg.logger, storeOpts...)
	return &Runtime{
		bus:    bus,
		scenes: scenes,
		registry: registry.New(
			registry.WithRoots(scenes),
			registry.WithBus(bus),
			registry.WithLogger(cfg.logger),
			registry.WithStoreOptions(storeOpts...),
		),
		loop:   engine.NewLoop(engine.WithLogger(cfg.logger)),
		arena:  arena,
		logger: cfg.logger,
	}
}

// Arena returns the arena shared by every store the runtime builds.
func (rt *Runtime) Arena() *store.Arena { return rt.arena }

// Bus returns the event bus.
func (rt *Runtime) Bus() *monitor.Bus { return rt.bus }

// Scenes returns the scene registry.
func (rt *Runtime) Scenes() *Scenes { return rt.scenes }

// Registry returns the shared store registry.
func (rt *Runtime) Registry() *registry.Registry { return rt.registry }

// Loop returns the main loop. The caller is responsible for running it.
func (rt *Runtime) Loop() *engine.Loop { return rt.loop }

// Do runs fn on the main loop and waits for it.
func (rt *Runtime) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return rt.loop.Do(ctx, name, fn)
}

// GetOrCreateScopedStore returns a handle to the store registered for
// (scope, typeKey), building it with factory on first request. The store is
// attached under the scope root.
func GetOrCreateScopedStore[S any](ctx context.Context, rt *Runtime, scope ir.ScopeID, typeKey registry.TypeKey, factory registry.Factory[S]) (*store.Handle[S], error) {
	return registry.GetOrCreate(ctx, rt.registry, scope, registry.Spec[S]{Type: typeKey, New: factory})
}

// SharedStore returns a handle to the shared store of S in scope, built
// from S's capabilities.
func SharedStore[S any](ctx context.Context, rt *Runtime, scope ir.ScopeID) (*store.Handle[S], error) {
	return registry.GetOrCreate(ctx, rt.registry, scope, registry.Shared[S]())
}

// SceneRoot returns an owning handle to the root of scope, creating the
// scene if needed. The scene lives until its last handle is released.
func (rt *Runtime) SceneRoot(ctx context.Context, scope ir.ScopeID) (*store.Handle[SceneState], error) {
	_, h, err := rt.acquireScene(ctx, scope)
	return h, err
}

func (rt *Runtime) acquireScene(ctx context.Context, scope ir.ScopeID) (*Scene, *store.Handle[SceneState], error) {
	for attempt := 0; attempt < 3; attempt++ {
		sc, err := rt.scenes.Get(ctx, scope)
		if err != nil {
			return nil, nil, err
		}
		if h, ok := sc.root.Acquire(); ok {
			return sc, h, nil
		}
	}
	return nil, nil, fmt.Errorf("scope %s root keeps being destroyed", scope)
}

// ReleaseScene tears down scope: the scene is evicted and the registry
// forgets the scope's shared stores. Stores still held elsewhere stay
// alive until released; later requests build fresh ones.
func (rt *Runtime) ReleaseScene(scope ir.ScopeID) {
	removed := rt.scenes.Remove(scope)
	n := rt.registry.RemoveScope(scope)
	rt.logger.Info("scene released",
		"scope", scope.String(),
		"scene_removed", removed,
		"stores", n,
	)
}

// OnAppear records that the view at path became visible in scope.
func (rt *Runtime) OnAppear(ctx context.Context, scope ir.ScopeID, path ir.Path) error {
	sc, err := rt.scenes.Get(ctx, scope)
	if err != nil {
		return err
	}
	sc.root.Dispatch(Appear{Path: path})
	return nil
}

// OnDisappear records that the view at path went away in scope. Paths
// that never appeared are ignored.
func (rt *Runtime) OnDisappear(ctx context.Context, scope ir.ScopeID, path ir.Path) error {
	sc, err := rt.scenes.Get(ctx, scope)
	if err != nil {
		return err
	}
	sc.root.Dispatch(Disappear{Path: path})
	return nil
}

// Appeared returns the appeared-path list of scope, or nil if the scope
// has no scene.
func (rt *Runtime) Appeared(scope ir.ScopeID) Appearances {
	sc, ok := rt.scenes.Lookup(scope)
	if !ok {
		return nil
	}
	return sc.Appeared()
}

// Topmost returns the front of the appeared-path list of scope.
func (rt *Runtime) Topmost(scope ir.ScopeID) (ir.Path, bool) {
	return rt.Appeared(scope).Topmost()
}

// AddView starts tracking a view instance. It reports false if the
// instance was already tracked.
func (rt *Runtime) AddView(ctx context.Context, scope ir.ScopeID, path ir.Path, id ir.StateID, snapshot any) (bool, error) {
	sc, err := rt.scenes.Get(ctx, scope)
	if err != nil {
		return false, err
	}
	return sc.views.Add(path, id, snapshot), nil
}

// UpdateView replaces the snapshot of a tracked view instance.
func (rt *Runtime) UpdateView(ctx context.Context, scope ir.ScopeID, path ir.Path, id ir.StateID, snapshot any) (bool, error) {
	sc, err := rt.scenes.Get(ctx, scope)
	if err != nil {
		return false, err
	}
	return sc.views.Update(path, id, snapshot), nil
}

// RemoveView stops tracking a view instance.
func (rt *Runtime) RemoveView(ctx context.Context, scope ir.ScopeID, path ir.Path, id ir.StateID) (bool, error) {
	sc, err := rt.scenes.Get(ctx, scope)
	if err != nil {
		return false, err
	}
	return sc.views.Remove(path, id), nil
}

// SceneTree returns the snapshot of every live scope root keyed by
// ScopeID.StateID.
func (rt *Runtime) SceneTree() map[ir.StateID]any {
	return rt.scenes.Tree().SubStates()
}

// Reset tears down every scene and shared store registration and drops
// all bus observers.
func (rt *Runtime) Reset() {
	rt.scenes.Reset()
	rt.registry.Reset()
	rt.arena.Reset()
	rt.bus.Reset()
	rt.logger.Debug("runtime reset")
}
