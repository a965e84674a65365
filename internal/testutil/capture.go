package testutil

import (
	"slices"
	"sync"

	"github.com/roach88/viewflow/internal/monitor"
)

// CaptureObserver records bus events for assertions in tests.
//
// Register it strongly with bus.Listen(c.ReceiveEvent), or weakly with
// monitor.AddObserver(bus, c) while the test keeps c reachable.
type CaptureObserver struct {
	mu     sync.Mutex
	events []monitor.Event
}

// ReceiveEvent records e.
func (c *CaptureObserver) ReceiveEvent(e monitor.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// Events returns a copy of everything recorded so far.
func (c *CaptureObserver) Events() []monitor.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.events)
}

// Kinds returns the kinds of the recorded events in order.
func (c *CaptureObserver) Kinds() []monitor.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]monitor.Kind, len(c.events))
	for i, e := range c.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Count returns how many events of kind were recorded.
func (c *CaptureObserver) Count(kind monitor.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets every recorded event.
func (c *CaptureObserver) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
