package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
)

// Filter selects records. Zero fields match everything.
type Filter struct {
	Run   string
	Scope *ir.ScopeID
	Kinds []monitor.Kind

	// PathPrefix matches the path itself and every path below it.
	PathPrefix *ir.Path

	AfterSeq int64
	Limit    int
}

// Read returns the records matching f, ordered by seq then id.
// Returns an empty slice (not nil) when nothing matches.
func (j *Journal) Read(ctx context.Context, f Filter) ([]Record, error) {
	query, params := compileFilter(f)

	rows, err := j.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// compileFilter builds a parameterized SELECT. Values are never
// interpolated, and the ORDER BY is always present.
func compileFilter(f Filter) (string, []any) {
	var (
		where  []string
		params []any
	)

	if f.Run != "" {
		where = append(where, "run_id = ?")
		params = append(params, f.Run)
	}
	if f.Scope != nil {
		where = append(where, "scope = ?")
		params = append(params, f.Scope.String())
	}
	if len(f.Kinds) > 0 {
		marks := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			marks[i] = "?"
			params = append(params, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	if f.PathPrefix != nil && !f.PathPrefix.IsRoot() {
		prefix := f.PathPrefix.String()
		where = append(where, `(path = ? OR path LIKE ? ESCAPE '\')`)
		params = append(params, prefix, escapeLike(prefix)+"/%")
	}
	if f.AfterSeq > 0 {
		where = append(where, "seq > ?")
		params = append(params, f.AfterSeq)
	}

	var b strings.Builder
	b.WriteString(`SELECT id, run_id, seq, kind, scope, path, state_id, snapshot, digest, code, message FROM events`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY seq ASC, id ASC COLLATE BINARY")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, f.Limit)
	}
	return b.String(), params
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		r                          Record
		kind, scope, path, stateID string
		code                       string
		snapshot                   *string
	)
	if err := rows.Scan(&r.ID, &r.Run, &r.Seq, &kind, &scope, &path, &stateID, &snapshot, &r.Digest, &code, &r.Message); err != nil {
		return Record{}, fmt.Errorf("scan event: %w", err)
	}

	s, err := ir.ParseScope(scope)
	if err != nil {
		return Record{}, fmt.Errorf("event %s: %w", r.ID, err)
	}
	v, err := unmarshalSnapshot(snapshot)
	if err != nil {
		return Record{}, fmt.Errorf("event %s: %w", r.ID, err)
	}

	r.Kind = monitor.Kind(kind)
	r.Scope = s
	r.Path = ir.ParsePath(path)
	r.StateID = ir.StateID(stateID)
	r.Code = monitor.Code(code)
	r.Snapshot = v
	return r, nil
}
