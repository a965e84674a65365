package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/roach88/viewflow/internal/engine"
)

// Bus delivers diagnostic events to observers in registration order.
//
// Thread-safety: all methods are safe for concurrent use. Delivery iterates
// a snapshot of the observer list, so observers may subscribe or cancel
// from inside ReceiveEvent.
type Bus struct {
	mu            sync.Mutex
	registrations []*registration
	nextID        uint64

	mode   atomic.Int32
	clock  engine.Sequencer
	logger *slog.Logger
}

type registration struct {
	id        uint64
	resolve   func() Observer
	cancelled atomic.Bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithMode overrides DefaultMode.
func WithMode(m Mode) Option {
	return func(b *Bus) {
		b.mode.Store(int32(m))
	}
}

// WithClock sets the sequencer used to stamp events.
func WithClock(c engine.Sequencer) Option {
	return func(b *Bus) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates a bus with no observers.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		clock:  engine.NewClock(),
		logger: slog.Default(),
	}
	b.mode.Store(int32(DefaultMode))
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mode returns the current mode.
func (b *Bus) Mode() Mode {
	return Mode(b.mode.Load())
}

// SetMode switches the mode at runtime.
func (b *Bus) SetMode(m Mode) {
	b.mode.Store(int32(m))
}

// AddObserver registers obs weakly. The bus does not keep obs alive: once
// the caller drops its last reference, obs is skipped and pruned.
//
// obs must point to a type with non-zero size; pointers to zero-size values
// may never be reclaimed.
func AddObserver[T any, P interface {
	*T
	Observer
}](b *Bus, obs P) *Subscription {
	wp := weak.Make((*T)(obs))
	return b.register(func() Observer {
		p := wp.Value()
		if p == nil {
			return nil
		}
		return P(p)
	})
}

// Listen registers fn strongly. The bus keeps fn alive until the returned
// subscription is cancelled or the bus is reset.
func (b *Bus) Listen(fn func(Event)) *Subscription {
	obs := ObserverFunc(fn)
	return b.register(func() Observer { return obs })
}

func (b *Bus) register(resolve func() Observer) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	reg := &registration{id: b.nextID, resolve: resolve}
	b.registrations = append(b.registrations, reg)
	return &Subscription{bus: b, reg: reg}
}

func (b *Bus) remove(reg *registration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, r := range b.registrations {
		if r == reg {
			b.registrations = append(b.registrations[:i:i], b.registrations[i+1:]...)
			return
		}
	}
}

// Observers returns the number of live observers.
func (b *Bus) Observers() int {
	n := 0
	for _, reg := range b.snapshot() {
		if !reg.cancelled.Load() && reg.resolve() != nil {
			n++
		}
	}
	return n
}

// Publish stamps e with the next seq (unless already set) and delivers it.
// It returns the stamped event.
func (b *Bus) Publish(e Event) Event {
	if e.Seq == 0 {
		e.Seq = b.clock.Next()
	}
	b.logger.Debug("event",
		"seq", e.Seq,
		"kind", string(e.Kind),
		"scope", e.Scope.String(),
		"path", e.Path.String(),
		"state_id", string(e.StateID),
	)
	b.deliver(e)
	return e
}

// ReportFatal reports an invariant violation.
//
// With at least one live observer, the violation is delivered as a
// duplicate_registration or fatal event and ReportFatal returns. With none,
// ModeDebug panics with err and ModeRelease returns after logging.
func (b *Bus) ReportFatal(err error) {
	var me *Error
	if !errors.As(err, &me) {
		me = &Error{Code: CodeFatal, Message: err.Error()}
		err = me
	}

	kind := KindFatal
	if IsDuplicate(me) {
		kind = KindDuplicateRegistration
	}

	e := Event{
		Seq:     b.clock.Next(),
		Kind:    kind,
		Scope:   me.Scope,
		Path:    me.Path,
		StateID: me.StateID,
		Message: me.Message,
		Err:     err,
	}

	b.logger.Error("invariant violation",
		"seq", e.Seq,
		"code", string(me.Code),
		"scope", me.Scope.String(),
		"state_id", string(me.StateID),
		"error", me.Message,
	)

	if b.deliver(e) > 0 {
		return
	}
	if b.Mode() == ModeDebug {
		panic(err)
	}
}

// Fatalf reports a formatted fatal message.
func (b *Bus) Fatalf(format string, args ...any) {
	b.ReportFatal(&Error{Code: CodeFatal, Message: fmt.Sprintf(format, args...)})
}

// Reset drops every observer. Outstanding subscriptions become no-ops.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, reg := range b.registrations {
		reg.cancelled.Store(true)
	}
	b.registrations = nil
}

func (b *Bus) snapshot() []*registration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*registration(nil), b.registrations...)
}

// deliver hands e to every live observer and returns how many received it.
func (b *Bus) deliver(e Event) int {
	delivered := 0
	var dead []*registration

	for _, reg := range b.snapshot() {
		if reg.cancelled.Load() {
			continue
		}
		obs := reg.resolve()
		if obs == nil {
			dead = append(dead, reg)
			continue
		}
		obs.ReceiveEvent(e)
		delivered++
	}

	for _, reg := range dead {
		b.remove(reg)
	}
	return delivered
}

// Subscription deregisters an observer.
type Subscription struct {
	bus  *Bus
	reg  *registration
	once sync.Once
}

// Cancel deregisters the observer. It is idempotent and safe to call from
// inside the observer's own ReceiveEvent.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.reg.cancelled.Store(true)
		s.bus.remove(s.reg)
	})
}
