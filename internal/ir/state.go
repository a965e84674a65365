package ir

// StateID identifies a state kind. By default it is the Go type name of the
// state; it is the key a child store is attached under in its parent.
type StateID string

// Action is anything a store can dispatch. Reducers are looked up by Kind.
type Action interface {
	Kind() string
}

// Command is a name-addressed action carrying constrained arguments.
// Declared states are driven exclusively by commands.
type Command struct {
	Name string `json:"name"`
	Args Object `json:"args,omitempty"`
}

// Kind returns the command name.
func (c Command) Kind() string {
	return c.Name
}

// Arg returns the named argument, if present.
func (c Command) Arg(name string) (Value, bool) {
	v, ok := c.Args[name]
	return v, ok
}
