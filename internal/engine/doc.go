// Package engine provides the main execution context that store reducers,
// subscriber notifications and view lifecycle transitions run on.
//
// ARCHITECTURE:
//
// Single-Writer Task Loop:
// Loop runs posted tasks one at a time on a single goroutine, in FIFO
// order. Any goroutine may post; only the loop goroutine executes. This
// gives the host UI layer one ordered context for everything that must be
// sequenced relative to rendering, while registry lookups stay callable
// from anywhere.
//
// Logical Clock:
// Every diagnostic event is stamped with a strictly increasing seq from
// Clock.Next(). Wall-clock time is never used for ordering.
//
// Store Identity:
// Each store gets an id from an IDGenerator. UUIDv7Generator is used in
// production; FixedGenerator makes traces reproducible in tests.
package engine
