package registry

import (
	"context"
	"sync"
)

// chain is one outermost GetOrCreate call together with every nested call
// its factories make. It travels in the context.
type chain struct {
	owner *Registry

	mu       sync.Mutex
	building map[Key]bool
	pending  []pendingAttach
}

type pendingAttach struct {
	entry  *entry
	attach func(context.Context)
}

type chainKey struct{}

func newChain(owner *Registry) *chain {
	return &chain{owner: owner, building: make(map[Key]bool)}
}

func withChain(ctx context.Context, ch *chain) context.Context {
	return context.WithValue(ctx, chainKey{}, ch)
}

func chainFrom(ctx context.Context) *chain {
	ch, _ := ctx.Value(chainKey{}).(*chain)
	return ch
}

// enter marks key as under construction. It returns false if it already is.
func (c *chain) enter(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.building[key] {
		return false
	}
	c.building[key] = true
	return true
}

func (c *chain) leave(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.building, key)
}

func (c *chain) schedule(e *entry, attach func(context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, pendingAttach{entry: e, attach: attach})
}

// finish runs the deferred attachments in construction order (parents are
// always constructed before their children) and releases waiters.
func (c *chain) finish(ctx context.Context) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, p := range pending {
		p.attach(ctx)
		close(p.entry.ready)
	}
}
