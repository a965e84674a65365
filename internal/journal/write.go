package journal

import (
	"context"
	"fmt"
)

// Append inserts r, tagged with the journal's run. Empty ids are filled in
// from the id generator. A record whose id or (run, seq) already exists is
// ignored.
func (j *Journal) Append(ctx context.Context, r Record) error {
	if r.ID == "" {
		r.ID = j.ids.Generate()
	}
	if r.Run == "" {
		r.Run = j.run
	}

	snapshot, err := marshalSnapshot(r.Snapshot)
	if err != nil {
		return fmt.Errorf("append event #%d: %w", r.Seq, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events
		(id, run_id, seq, kind, scope, path, state_id, snapshot, digest, code, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		r.ID,
		r.Run,
		r.Seq,
		string(r.Kind),
		r.Scope.String(),
		r.Path.String(),
		string(r.StateID),
		snapshot,
		r.Digest,
		string(r.Code),
		r.Message,
	)
	if err != nil {
		return fmt.Errorf("append event #%d: %w", r.Seq, err)
	}
	return nil
}
