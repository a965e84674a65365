package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if j.Run() == "" {
		t.Error("run id was not generated")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		j, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		j.Close()
	}

	j, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer j.Close()

	var name string
	err = j.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='events'").Scan(&name)
	if err != nil {
		t.Errorf("events table not found after idempotent opens: %v", err)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j := createTestJournal(t)

	if err := j.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := j.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

func TestRuns_OrderedByFirstSeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	for _, run := range []struct {
		id  string
		seq int64
	}{{"later", 10}, {"earlier", 1}} {
		j, err := Open(path, WithRun(run.id))
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		if err := j.Append(ctx, testRecord(run.seq, monitor.KindSceneAppeared, ir.Main, "/A")); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
		j.Close()
	}

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer j.Close()

	runs, err := j.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	if len(runs) != 2 || runs[0] != "earlier" || runs[1] != "later" {
		t.Errorf("Runs() = %v, want [earlier later]", runs)
	}
}
