package store

import (
	"log/slog"

	"github.com/roach88/viewflow/internal/engine"
	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
)

type config struct {
	id      string
	stateID ir.StateID
	scope   ir.ScopeID
	bus     *monitor.Bus
	logger  *slog.Logger
	ids     engine.IDGenerator
	arena   *Arena
}

// Option configures a store at construction.
type Option func(*config)

// WithID sets the store id. Default: one from the IDGenerator.
func WithID(id string) Option {
	return func(c *config) { c.id = id }
}

// WithIDGenerator sets the generator for the store id. Default: UUIDv7.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(c *config) {
		if g != nil {
			c.ids = g
		}
	}
}

// WithStateID overrides StateIDOf[S].
func WithStateID(id ir.StateID) Option {
	return func(c *config) { c.stateID = id }
}

// WithScope records the scope the store belongs to.
func WithScope(scope ir.ScopeID) Option {
	return func(c *config) { c.scope = scope }
}

// WithBus sets the bus invariant violations are reported to.
// Default: a private bus in DefaultMode.
func WithBus(b *monitor.Bus) Option {
	return func(c *config) { c.bus = b }
}

// WithArena registers the store in a. Default: a private arena.
func WithArena(a *Arena) Option {
	return func(c *config) { c.arena = a }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		logger: slog.Default(),
		ids:    engine.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = cfg.ids.Generate()
	}
	if cfg.arena == nil {
		cfg.arena = NewArena()
	}
	if cfg.bus == nil {
		cfg.bus = monitor.NewBus(monitor.WithLogger(cfg.logger))
	}
	return cfg
}
