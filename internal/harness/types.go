package harness

import (
	"github.com/roach88/viewflow/internal/ir"
)

// Trace entry types.
const (
	TypeStep   = "step"
	TypeEvent  = "event"
	TypeNotify = "notify"
)

// TraceEvent is one entry of a scenario trace: a step the harness ran, an
// event published on the bus, or a subscriber notification of a held store.
// All entries share one clock, so Seq orders them.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// Step fields.
	Op     string    `json:"op,omitempty"`
	State  string    `json:"state,omitempty"`
	Handle string    `json:"handle,omitempty"`
	Action string    `json:"action,omitempty"`
	Args   ir.Object `json:"args,omitempty"`

	// Shared by steps and events.
	Scope string `json:"scope,omitempty"`
	Path  string `json:"path,omitempty"`

	// Event fields.
	Kind    string `json:"kind,omitempty"`
	StateID string `json:"state_id,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// Snapshot is the event payload, or the new state for notify entries.
	Snapshot ir.Value `json:"snapshot,omitempty"`
}

// Object renders the entry as an ir.Object, omitting empty fields.
func (e TraceEvent) Object() ir.Object {
	obj := ir.Object{
		"type": ir.String(e.Type),
		"seq":  ir.Int(e.Seq),
	}
	for key, val := range map[string]string{
		"op":       e.Op,
		"state":    e.State,
		"handle":   e.Handle,
		"action":   e.Action,
		"scope":    e.Scope,
		"path":     e.Path,
		"kind":     e.Kind,
		"state_id": e.StateID,
		"code":     e.Code,
		"message":  e.Message,
	} {
		if val != "" {
			obj[key] = ir.String(val)
		}
	}
	if len(e.Args) > 0 {
		obj["args"] = e.Args.Clone()
	}
	if e.Snapshot != nil {
		obj["snapshot"] = ir.CloneValue(e.Snapshot)
	}
	return obj
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists steps, events and notifications in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// States holds the final snapshot of every store still held at the end
	// of the run, keyed by handle label.
	States map[string]ir.Object `json:"states,omitempty"`

	// Notifications counts subscriber notifications per handle label.
	Notifications map[string]int `json:"notifications,omitempty"`

	// Digest is the trace digest of the canonical trace document.
	Digest string `json:"digest,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:          true,
		Trace:         []TraceEvent{},
		Errors:        []string{},
		States:        make(map[string]ir.Object),
		Notifications: make(map[string]int),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns only the bus event entries of the trace.
func (r *Result) Events() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == TypeEvent {
			out = append(out, e)
		}
	}
	return out
}
