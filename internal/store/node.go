package store

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
)

// Node is the type-erased view of a store used for tree links. Every
// *Store[S] is a Node; the interface cannot be implemented elsewhere.
type Node interface {
	ID() string
	StateID() ir.StateID
	Scope() ir.ScopeID
	Snapshot() any

	SubStates() map[ir.StateID]any
	SubStateIDs() []ir.StateID
	Child(key ir.StateID) (Node, bool)
	Parent() (Node, bool)
	AttachChild(child Node, key ir.StateID) bool
	DetachChild(key ir.StateID) bool
	DetachChildIf(key ir.StateID, child Node) bool

	Retain() bool
	Release()
	Refs() int
	OnDestroy(fn func())
	Destroyed() bool

	base() *core
}

type childEntry struct {
	node     Node
	snapshot any
}

// core holds the tree and lifecycle bookkeeping shared by every Store[S].
//
// mu guards only this node's own fields. No method holds mu while taking
// another node's lock, so parent and child never lock in opposite orders.
type core struct {
	id      string
	stateID ir.StateID
	scope   ir.ScopeID
	bus     *monitor.Bus
	logger  *slog.Logger
	arena   *Arena
	slot    uint64

	self     Node
	snapshot func() any
	final    func()

	mu        sync.Mutex
	parent    link
	parentKey ir.StateID
	children  map[ir.StateID]*childEntry
	refs      int
	destroyed bool
	hooks     []func()
}

// ID returns the store id.
func (c *core) ID() string { return c.id }

// StateID returns the state kind.
func (c *core) StateID() ir.StateID { return c.stateID }

// Scope returns the scope the store was built for.
func (c *core) Scope() ir.ScopeID { return c.scope }

// Snapshot returns the current state boxed as any.
func (c *core) Snapshot() any { return c.snapshot() }

func (c *core) base() *core { return c }

// SubStates returns the latest snapshot of every attached child.
func (c *core) SubStates() map[ir.StateID]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[ir.StateID]any, len(c.children))
	for k, e := range c.children {
		out[k] = e.snapshot
	}
	return out
}

// SubStateIDs returns the keys of attached children, sorted.
func (c *core) SubStateIDs() []ir.StateID {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]ir.StateID, 0, len(c.children))
	for k := range c.children {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Child returns the child attached under key.
func (c *core) Child(key ir.StateID) (Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.children[key]
	if !ok {
		return nil, false
	}
	return e.node, true
}

// Parent returns the parent if it is still alive.
func (c *core) Parent() (Node, bool) {
	c.mu.Lock()
	up := c.parent
	c.mu.Unlock()

	p := up.resolve()
	if p == nil {
		return nil, false
	}
	return p.self, true
}

// AttachChild registers child under key. If key is already taken, a
// duplicate attachment is reported on the bus and the map is left as is.
// The entry is removed automatically when child is destroyed.
func (c *core) AttachChild(child Node, key ir.StateID) bool {
	cc := child.base()
	snap := child.Snapshot()

	c.mu.Lock()
	if _, exists := c.children[key]; exists {
		c.mu.Unlock()
		c.bus.ReportFatal(monitor.NewDuplicateAttachmentError(c.scope, c.stateID, key))
		return false
	}
	if c.children == nil {
		c.children = make(map[ir.StateID]*childEntry)
	}
	c.children[key] = &childEntry{node: child, snapshot: snap}
	c.mu.Unlock()

	up := link{arena: c.arena, slot: c.slot}
	cc.mu.Lock()
	cc.parent = up
	cc.parentKey = key
	cc.mu.Unlock()

	cc.OnDestroy(func() {
		if p := up.resolve(); p != nil {
			p.detach(key, cc)
		}
	})

	c.logger.Debug("sub-state attached",
		"scope", c.scope.String(),
		"parent", string(c.stateID),
		"state_id", string(key),
		"store_id", cc.id,
	)
	return true
}

// DetachChild removes the child under key and clears its parent link.
func (c *core) DetachChild(key ir.StateID) bool {
	return c.detachMatching(key, nil)
}

// DetachChildIf is DetachChild, but only when key still refers to child.
func (c *core) DetachChildIf(key ir.StateID, child Node) bool {
	return c.detachMatching(key, child.base())
}

func (c *core) detachMatching(key ir.StateID, want *core) bool {
	c.mu.Lock()
	e, ok := c.children[key]
	if ok && want != nil && e.node.base() != want {
		ok = false
	}
	if ok {
		delete(c.children, key)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	cc := e.node.base()
	cc.mu.Lock()
	if cc.parent.resolve() == c {
		cc.parent = link{}
		cc.parentKey = ""
	}
	cc.mu.Unlock()
	return true
}

// detach removes key only if it still refers to cc.
func (c *core) detach(key ir.StateID, cc *core) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.children[key]; ok && e.node.base() == cc {
		delete(c.children, key)
		c.logger.Debug("sub-state detached",
			"scope", c.scope.String(),
			"parent", string(c.stateID),
			"state_id", string(key),
		)
	}
}

// refreshParent copies the current snapshot into the parent's entry.
func (c *core) refreshParent() {
	c.mu.Lock()
	up := c.parent
	key := c.parentKey
	c.mu.Unlock()

	p := up.resolve()
	if p == nil {
		return
	}
	snap := c.snapshot()

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.children[key]; ok && e.node.base() == c {
		e.snapshot = snap
	}
}

// Retain registers an external holder. It fails once the store is destroyed.
func (c *core) Retain() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return false
	}
	c.refs++
	return true
}

// Release drops an external holder. The last release destroys the store.
func (c *core) Release() {
	c.mu.Lock()
	if c.destroyed || c.refs == 0 {
		c.mu.Unlock()
		c.logger.Warn("release without matching retain",
			"store_id", c.id,
			"state_id", string(c.stateID),
		)
		return
	}
	c.refs--
	if c.refs > 0 {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()

	c.arena.evict(c.slot)

	c.logger.Debug("store destroyed",
		"scope", c.scope.String(),
		"state_id", string(c.stateID),
		"store_id", c.id,
	)

	if c.final != nil {
		c.final()
	}
	for _, fn := range hooks {
		fn()
	}
}

// Refs returns the number of external holders.
func (c *core) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// OnDestroy registers fn to run when the store is destroyed. Hooks run in
// registration order. If the store is already destroyed, fn runs now.
func (c *core) OnDestroy(fn func()) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		fn()
		return
	}
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Destroyed reports whether the last holder has released the store.
func (c *core) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}
