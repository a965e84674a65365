package store

import (
	"reflect"

	"github.com/roach88/viewflow/internal/ir"
)

// Initializer is implemented by *S for states that need their scope at
// construction time.
type Initializer interface {
	InitOn(scope ir.ScopeID)
}

// ReducerLoader is implemented by S for states that register their own
// reducers. New calls it once with the freshly built store.
type ReducerLoader[S any] interface {
	LoadReducers(st *Store[S])
}

// Identified is implemented by S for states whose StateID is not their type name.
type Identified interface {
	StateID() ir.StateID
}

// Cloner is implemented by S to replace the default reflective deep copy
// that seeds reducer drafts. States with unexported map, slice or pointer
// fields need it: reflection copies those fields shallowly.
type Cloner[S any] interface {
	Clone() S
}

// Equaler is implemented by S to replace reflect.DeepEqual in the
// dispatch equality check.
type Equaler[S any] interface {
	Equal(other S) bool
}

// StateIDOf returns the default StateID for S: Identified if implemented,
// otherwise the Go type name.
func StateIDOf[S any]() ir.StateID {
	var zero S
	if id, ok := any(zero).(Identified); ok {
		return id.StateID()
	}
	if id, ok := any(&zero).(Identified); ok {
		return id.StateID()
	}
	t := reflect.TypeFor[S]()
	if t.Name() != "" {
		return ir.StateID(t.Name())
	}
	return ir.StateID(t.String())
}
