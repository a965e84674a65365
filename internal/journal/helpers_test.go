package journal

import (
	"path/filepath"
	"testing"

	"github.com/roach88/viewflow/internal/engine"
	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
)

// createTestJournal opens a journal in a temp dir with deterministic ids.
func createTestJournal(t *testing.T, opts ...Option) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithRun("run-1"), WithIDGenerator(engine.NewSequenceGenerator("ev"))}, opts...)
	j, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func testRecord(seq int64, kind monitor.Kind, scope ir.ScopeID, path string) Record {
	return Record{
		Seq:   seq,
		Kind:  kind,
		Scope: scope,
		Path:  ir.ParsePath(path),
	}
}
