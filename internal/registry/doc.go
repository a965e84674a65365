// Package registry holds the per-scope shared stores.
//
// Exactly one store exists per (scope, type key) once created. GetOrCreate
// is single-flight: concurrent callers for the same key see one factory
// invocation and all receive the same store.
//
// All constructions are serialized through one exclusion domain. A factory
// may itself call GetOrCreate (for the same or another scope); such nested
// calls are recognised through the context and run inside the outer
// construction instead of deadlocking. A factory that requests the key it
// is building is reported as a construction cycle.
//
// Attaching a new store under its parent (the scope root by default)
// happens after the exclusion domain is released, and completes before any
// caller receives the store.
package registry
