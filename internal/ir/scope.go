package ir

import (
	"fmt"
	"strings"
)

// ScopeID identifies an isolated state universe.
//
// The zero value is Main. Custom scopes are created with Custom and compare
// structurally, so Custom("a") == Custom("a") everywhere a ScopeID is a map key.
type ScopeID struct {
	name   string
	custom bool
}

// Main is the default scope shared by the whole process.
var Main = ScopeID{}

// Custom returns the scope with the given name.
func Custom(name string) ScopeID {
	return ScopeID{name: name, custom: true}
}

// IsMain reports whether s is the Main scope.
func (s ScopeID) IsMain() bool {
	return !s.custom
}

// Name returns the custom scope name, or "main".
func (s ScopeID) Name() string {
	if !s.custom {
		return "main"
	}
	return s.name
}

// String renders the scope as "main" or "custom:<name>".
func (s ScopeID) String() string {
	if !s.custom {
		return "main"
	}
	return "custom:" + s.name
}

// StateID derives the key a scope root is registered under in the global scene tree.
func (s ScopeID) StateID() StateID {
	return StateID("SceneState[" + s.String() + "]")
}

// ParseScope parses the String form of a scope.
//
// A bare name other than "main" is accepted as shorthand for a custom scope,
// so scenario files can write `scope: s1`.
func ParseScope(s string) (ScopeID, error) {
	switch {
	case s == "" || s == "main":
		return Main, nil
	case strings.HasPrefix(s, "custom:"):
		name := strings.TrimPrefix(s, "custom:")
		if name == "" {
			return ScopeID{}, fmt.Errorf("custom scope requires a name: %q", s)
		}
		return Custom(name), nil
	default:
		return Custom(s), nil
	}
}

// MustParseScope is like ParseScope but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParseScope(s string) ScopeID {
	id, err := ParseScope(s)
	if err != nil {
		panic(err)
	}
	return id
}

// MarshalText implements encoding.TextMarshaler.
func (s ScopeID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ScopeID) UnmarshalText(text []byte) error {
	id, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = id
	return nil
}
