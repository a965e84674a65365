package monitor

import (
	"fmt"

	"github.com/roach88/viewflow/internal/ir"
)

// Kind is the closed taxonomy of diagnostic events.
type Kind string

const (
	KindSceneAppeared         Kind = "scene_appeared"
	KindSceneDisappeared      Kind = "scene_disappeared"
	KindViewStateAdded        Kind = "view_state_added"
	KindViewStateUpdated      Kind = "view_state_updated"
	KindViewStateRemoved      Kind = "view_state_removed"
	KindDuplicateRegistration Kind = "duplicate_registration"
	KindFatal                 Kind = "fatal"
)

// Kinds returns every event kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindSceneAppeared,
		KindSceneDisappeared,
		KindViewStateAdded,
		KindViewStateUpdated,
		KindViewStateRemoved,
		KindDuplicateRegistration,
		KindFatal,
	}
}

// Valid reports whether k belongs to the taxonomy.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// IsError reports whether k is one of the error kinds.
func (k Kind) IsError() bool {
	return k == KindDuplicateRegistration || k == KindFatal
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// Event is one diagnostic record.
type Event struct {
	// Seq is stamped by the bus from its clock when left zero.
	Seq     int64
	Kind    Kind
	Scope   ir.ScopeID
	Path    ir.Path
	StateID ir.StateID

	// Snapshot is the view state carried by view_state_* events.
	Snapshot any

	// Message is set on error kinds.
	Message string

	// Err is the reported error on error kinds.
	Err error
}

// String renders a compact one-line form used in logs and CLI output.
func (e Event) String() string {
	s := fmt.Sprintf("#%d %s scope=%s", e.Seq, e.Kind, e.Scope)
	if !e.Path.IsRoot() {
		s += " path=" + e.Path.String()
	}
	if e.StateID != "" {
		s += " state=" + string(e.StateID)
	}
	if e.Message != "" {
		s += fmt.Sprintf(" message=%q", e.Message)
	}
	return s
}

// Observer receives published events.
type Observer interface {
	ReceiveEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// ReceiveEvent calls f(e).
func (f ObserverFunc) ReceiveEvent(e Event) {
	f(e)
}
