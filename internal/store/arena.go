package store

import "sync"

// Arena indexes live stores by slot. Tree links point upward through an
// arena slot instead of a pointer: resolving a slot whose store has been
// destroyed or evicted yields nothing.
//
// A Runtime shares one arena across every store it builds. A store created
// without WithArena gets a private one.
type Arena struct {
	mu    sync.RWMutex
	next  uint64
	nodes map[uint64]*core
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{nodes: make(map[uint64]*core)}
}

// Len returns the number of live stores in the arena.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.nodes)
}

// Reset evicts every store. Links into the arena resolve to nothing
// afterwards; the stores themselves keep working for their holders.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes = make(map[uint64]*core)
}

func (a *Arena) add(c *core) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	a.nodes[a.next] = c
	return a.next
}

func (a *Arena) evict(slot uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.nodes, slot)
}

func (a *Arena) resolve(slot uint64) *core {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nodes[slot]
}

// link is a non-owning reference to a store in an arena. The zero link
// resolves to nothing.
type link struct {
	arena *Arena
	slot  uint64
}

func (l link) resolve() *core {
	if l.arena == nil {
		return nil
	}
	return l.arena.resolve(l.slot)
}
