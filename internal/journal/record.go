package journal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
)

// Record is one journaled event.
type Record struct {
	ID      string       `json:"id"`
	Run     string       `json:"run"`
	Seq     int64        `json:"seq"`
	Kind    monitor.Kind `json:"kind"`
	Scope   ir.ScopeID   `json:"scope"`
	Path    ir.Path      `json:"path"`
	StateID ir.StateID   `json:"state_id,omitempty"`

	// Snapshot is the event snapshot as a constrained value; nil when the
	// event carried none.
	Snapshot ir.Value `json:"snapshot,omitempty"`

	// Digest is ir.SnapshotDigest of Snapshot.
	Digest string `json:"digest,omitempty"`

	Code    monitor.Code `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
}

// FromEvent converts a bus event into a record. Snapshots that are not
// ir.Values are converted through their JSON encoding.
func FromEvent(e monitor.Event) (Record, error) {
	r := Record{
		Seq:     e.Seq,
		Kind:    e.Kind,
		Scope:   e.Scope,
		Path:    e.Path,
		StateID: e.StateID,
		Message: e.Message,
	}

	var me *monitor.Error
	if errors.As(e.Err, &me) {
		r.Code = me.Code
	}

	if e.Snapshot != nil {
		v, err := toValue(e.Snapshot)
		if err != nil {
			return Record{}, fmt.Errorf("event #%d snapshot: %w", e.Seq, err)
		}
		digest, err := ir.SnapshotDigest(v)
		if err != nil {
			return Record{}, fmt.Errorf("event #%d digest: %w", e.Seq, err)
		}
		r.Snapshot, r.Digest = v, digest
	}
	return r, nil
}

func toValue(snapshot any) (ir.Value, error) {
	if v, ok := snapshot.(ir.Value); ok {
		return v, nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	return ir.UnmarshalValue(data)
}

// marshalSnapshot converts a snapshot to canonical JSON TEXT, or NULL.
func marshalSnapshot(v ir.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}

func unmarshalSnapshot(text *string) (ir.Value, error) {
	if text == nil {
		return nil, nil
	}
	v, err := ir.UnmarshalValue([]byte(*text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return v, nil
}
