package scene

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
	"github.com/roach88/viewflow/internal/store"
)

// Scene is the live state of one scope: its root store, view instances and
// storage.
type Scene struct {
	scope   ir.ScopeID
	root    *store.Store[SceneState]
	views   *Views
	storage *Storage
}

// Scope returns the scene's scope.
func (s *Scene) Scope() ir.ScopeID { return s.scope }

// Root returns the scope root store. It is not retained; use
// Runtime.SceneRoot for an owning handle.
func (s *Scene) Root() *store.Store[SceneState] { return s.root }

// Views returns the view instance tracker.
func (s *Scene) Views() *Views { return s.views }

// Storage returns the per-scene storage.
func (s *Scene) Storage() *Storage { return s.storage }

// Appeared returns the current appeared-path list.
func (s *Scene) Appeared() Appearances { return s.root.Get().Appeared }

// Scenes maps scopes to their scenes and keeps every live root attached
// under one tree store.
//
// Thread-safety: all methods are safe for concurrent use. Roots are built
// outside mu; concurrent requests for a scope under construction wait for
// it instead of building their own.
type Scenes struct {
	mu     sync.Mutex
	scenes map[ir.ScopeID]*sceneEntry

	tree      *store.Store[AllScenes]
	bus       *monitor.Bus
	logger    *slog.Logger
	storeOpts []store.Option
}

type sceneEntry struct {
	scene *Scene
	ready chan struct{}
}

// NewScenes creates an empty scene registry. opts are applied to every
// root store.
func NewScenes(bus *monitor.Bus, logger *slog.Logger, opts ...store.Option) *Scenes {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = monitor.NewBus(monitor.WithLogger(logger))
	}
	return &Scenes{
		scenes:    make(map[ir.ScopeID]*sceneEntry),
		tree:      store.New(AllScenes{}, store.WithBus(bus), store.WithLogger(logger)),
		bus:       bus,
		logger:    logger,
		storeOpts: opts,
	}
}

// Get returns the scene of scope, creating it on first use. A scene whose
// root has been destroyed is replaced by a fresh one.
func (s *Scenes) Get(ctx context.Context, scope ir.ScopeID) (*Scene, error) {
	for {
		s.mu.Lock()
		e, ok := s.scenes[scope]
		if !ok {
			e = &sceneEntry{ready: make(chan struct{})}
			s.scenes[scope] = e
			s.mu.Unlock()

			e.scene = s.build(scope)
			close(e.ready)
			return e.scene, nil
		}
		s.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if !e.scene.root.Destroyed() {
			return e.scene, nil
		}
		s.forget(scope, e.scene)
	}
}

// Create builds the scene of scope explicitly. If a live scene already
// exists it reports DUPLICATE_SCENE and returns the existing one with
// false.
func (s *Scenes) Create(scope ir.ScopeID) (*Scene, bool) {
	s.mu.Lock()
	if e, ok := s.scenes[scope]; ok {
		s.mu.Unlock()
		<-e.ready
		if !e.scene.root.Destroyed() {
			s.bus.ReportFatal(monitor.NewDuplicateSceneError(scope))
			return e.scene, false
		}
		s.forget(scope, e.scene)
		return s.Create(scope)
	}
	e := &sceneEntry{ready: make(chan struct{})}
	s.scenes[scope] = e
	s.mu.Unlock()

	e.scene = s.build(scope)
	close(e.ready)
	return e.scene, true
}

// Lookup returns the scene of scope without creating it.
func (s *Scenes) Lookup(scope ir.ScopeID) (*Scene, bool) {
	s.mu.Lock()
	e, ok := s.scenes[scope]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
	default:
		return nil, false
	}
	if e.scene.root.Destroyed() {
		return nil, false
	}
	return e.scene, true
}

// Root implements registry.Roots.
func (s *Scenes) Root(ctx context.Context, scope ir.ScopeID) (store.Node, error) {
	sc, err := s.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	return sc.root, nil
}

// Remove evicts the scene of scope. Its root stays alive for existing
// holders but leaves the tree; the next Get builds a fresh scene.
func (s *Scenes) Remove(scope ir.ScopeID) bool {
	s.mu.Lock()
	e, ok := s.scenes[scope]
	delete(s.scenes, scope)
	s.mu.Unlock()
	if !ok {
		return false
	}

	<-e.ready
	s.tree.DetachChildIf(scope.StateID(), e.scene.root)
	s.logger.Debug("scene removed", "scope", scope.String())
	return true
}

// Reset evicts every scene and clears their view instances and storage.
func (s *Scenes) Reset() {
	s.mu.Lock()
	entries := s.scenes
	s.scenes = make(map[ir.ScopeID]*sceneEntry)
	s.mu.Unlock()

	for scope, e := range entries {
		<-e.ready
		s.tree.DetachChildIf(scope.StateID(), e.scene.root)
		e.scene.views.clear()
		e.scene.storage.clear()
	}
}

// Len returns the number of registered scenes.
func (s *Scenes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scenes)
}

// Scopes returns the registered scopes ordered by their string form.
func (s *Scenes) Scopes() []ir.ScopeID {
	s.mu.Lock()
	scopes := make([]ir.ScopeID, 0, len(s.scenes))
	for scope := range s.scenes {
		scopes = append(scopes, scope)
	}
	s.mu.Unlock()

	slices.SortFunc(scopes, func(a, b ir.ScopeID) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	return scopes
}

// Tree returns the store every live root is attached under, keyed by
// ScopeID.StateID.
func (s *Scenes) Tree() *store.Store[AllScenes] {
	return s.tree
}

func (s *Scenes) build(scope ir.ScopeID) *Scene {
	opts := append(slices.Clone(s.storeOpts),
		store.WithScope(scope),
		store.WithBus(s.bus),
		store.WithLogger(s.logger),
	)
	sc := &Scene{
		scope:   scope,
		root:    store.New(SceneState{Scope: scope}, opts...),
		views:   newViews(scope, s.bus),
		storage: newStorage(),
	}
	sc.root.Tap(func(action ir.Action, state SceneState) {
		var kind monitor.Kind
		var path ir.Path
		switch a := action.(type) {
		case Appear:
			kind, path = monitor.KindSceneAppeared, a.Path
		case Disappear:
			kind, path = monitor.KindSceneDisappeared, a.Path
		default:
			return
		}
		s.bus.Publish(monitor.Event{
			Kind:     kind,
			Scope:    scope,
			Path:     path,
			StateID:  sc.root.StateID(),
			Snapshot: state.Appeared.Strings(),
		})
	})

	key := scope.StateID()
	if old, ok := s.tree.Child(key); ok {
		if !old.Destroyed() {
			s.bus.ReportFatal(monitor.NewDuplicateSceneError(scope))
			return sc
		}
		s.tree.DetachChildIf(key, old)
	}
	s.tree.AttachChild(sc.root, key)

	// Registered after AttachChild so the tree entry is gone before the
	// scope becomes free for a replacement.
	sc.root.OnDestroy(func() {
		s.forget(scope, sc)
		sc.views.clear()
		sc.storage.clear()
	})

	s.logger.Debug("scene created", "scope", scope.String(), "store_id", sc.root.ID())
	return sc
}

func (s *Scenes) forget(scope ir.ScopeID, sc *Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.scenes[scope]; ok && isReady(e) && e.scene == sc {
		delete(s.scenes, scope)
	}
}

func isReady(e *sceneEntry) bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}
