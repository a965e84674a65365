package ir

// Op names the built-in mutation a declared action performs.
type Op string

const (
	OpSet    Op = "set"
	OpAdd    Op = "add"
	OpToggle Op = "toggle"
	OpAppend Op = "append"
	OpRemove Op = "remove"
	OpReset  Op = "reset"
)

// Valid reports whether op is one of the built-in ops.
func (op Op) Valid() bool {
	switch op {
	case OpSet, OpAdd, OpToggle, OpAppend, OpRemove, OpReset:
		return true
	}
	return false
}

// StateDecl is a compiled state declaration.
type StateDecl struct {
	Name    string       `json:"name"`
	Parent  string       `json:"parent,omitempty"`
	Initial Object       `json:"initial"`
	Actions []ActionDecl `json:"actions"`
}

// Action returns the action declaration with the given name.
func (d StateDecl) Action(name string) (ActionDecl, bool) {
	for _, a := range d.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return ActionDecl{}, false
}

// ActionDecl describes how one command mutates a declared state.
//
// Arg names the command argument that supplies the operand. When the command
// omits it, Value is used instead; add falls back to By (default 1).
type ActionDecl struct {
	Name  string `json:"name"`
	Op    Op     `json:"op"`
	Field string `json:"field,omitempty"`
	Arg   string `json:"arg,omitempty"`
	Value Value  `json:"value,omitempty"`
	By    int64  `json:"by,omitempty"`
}
