package registry

import (
	"context"
	"reflect"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/store"
)

// TypeKey identifies a state type within a scope.
type TypeKey string

// TypeKeyOf returns the package-qualified Go type name of S.
func TypeKeyOf[S any]() TypeKey {
	return TypeKey(reflect.TypeFor[S]().String())
}

// Key addresses one shared store.
type Key struct {
	Scope ir.ScopeID
	Type  TypeKey
}

// String renders the key as "<type>@<scope>".
func (k Key) String() string {
	return string(k.Type) + "@" + k.Scope.String()
}

// Build is what a factory receives: the scope and the store options the
// registry wants applied (bus, logger, id generator, scope).
type Build struct {
	Scope   ir.ScopeID
	Options []store.Option
}

// Factory constructs the store for one key.
//
// The registry stays locked while a factory runs. A factory that requests
// other stores must pass the ctx it received to GetOrCreate: that ctx is how
// the nested call is recognised as part of the running construction. A
// nested call made with an unrelated context waits for the lock the factory
// itself holds, and only returns once that context is done.
type Factory[S any] func(ctx context.Context, b Build) (*store.Store[S], error)

// ParentFunc resolves the parent a new store is attached under. release is
// called when the new store is destroyed.
type ParentFunc func(ctx context.Context, r *Registry, scope ir.ScopeID) (parent store.Node, release func(), err error)

// Spec describes how to build and attach one shared state.
type Spec[S any] struct {
	// Type defaults to TypeKeyOf[S].
	Type TypeKey

	// StateID is the key under the parent. Defaults to the store's StateID.
	StateID ir.StateID

	// New builds the store.
	New Factory[S]

	// Parent resolves a parent store. nil attaches under the scope root.
	Parent ParentFunc
}

func (s Spec[S]) typeKey() TypeKey {
	if s.Type != "" {
		return s.Type
	}
	return TypeKeyOf[S]()
}

// Nested is implemented by state types whose shared store lives under
// another shared state instead of the scope root.
type Nested interface {
	UpState() ParentFunc
}

// Shared returns the default spec for S, driven by its capabilities:
// store.Initializer on *S receives the scope, store.ReducerLoader and
// store.Identified are honoured by store.New, and Nested picks the parent.
func Shared[S any]() Spec[S] {
	spec := Spec[S]{
		New: func(_ context.Context, b Build) (*store.Store[S], error) {
			var initial S
			if in, ok := any(&initial).(store.Initializer); ok {
				in.InitOn(b.Scope)
			}
			return store.New(initial, b.Options...), nil
		},
	}

	var zero S
	if n, ok := any(zero).(Nested); ok {
		spec.Parent = n.UpState()
	}
	return spec
}

// UpOf returns a ParentFunc that attaches under the shared store of P in
// the same scope, creating it first if needed.
func UpOf[P any]() ParentFunc {
	return func(ctx context.Context, r *Registry, scope ir.ScopeID) (store.Node, func(), error) {
		h, err := GetOrCreate(ctx, r, scope, Shared[P]())
		if err != nil {
			return nil, nil, err
		}
		return h.Store, h.Release, nil
	}
}
