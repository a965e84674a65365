package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
)

func seed(t *testing.T, j *Journal) {
	t.Helper()
	ctx := context.Background()
	s1 := ir.Custom("s1")
	records := []Record{
		testRecord(3, monitor.KindViewStateAdded, s1, "/Main/Form"),
		testRecord(1, monitor.KindSceneAppeared, s1, "/Main"),
		testRecord(2, monitor.KindSceneAppeared, ir.Main, "/Main"),
		testRecord(4, monitor.KindSceneAppeared, s1, "/Mainland"),
		testRecord(5, monitor.KindSceneDisappeared, s1, "/Main"),
	}
	for _, r := range records {
		require.NoError(t, j.Append(ctx, r))
	}
}

func seqs(records []Record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.Seq
	}
	return out
}

func TestRead_OrdersBySeq(t *testing.T) {
	j := createTestJournal(t)
	seed(t, j)

	records, err := j.Read(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seqs(records))
	assert.Equal(t, "run-1", records[0].Run)
	assert.Equal(t, ir.Custom("s1"), records[0].Scope)
	assert.Equal(t, "/Main", records[0].Path.String())
}

func TestRead_Filters(t *testing.T) {
	j := createTestJournal(t)
	seed(t, j)

	s1 := ir.Custom("s1")
	mainPath := ir.ParsePath("/Main")

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"scope", Filter{Scope: &s1}, []int64{1, 3, 4, 5}},
		{"kinds", Filter{Kinds: []monitor.Kind{monitor.KindSceneAppeared, monitor.KindSceneDisappeared}}, []int64{1, 2, 4, 5}},
		{"path prefix excludes siblings", Filter{PathPrefix: &mainPath}, []int64{1, 2, 3, 5}},
		{"after seq", Filter{AfterSeq: 3}, []int64{4, 5}},
		{"limit", Filter{Limit: 2}, []int64{1, 2}},
		{"combined", Filter{Scope: &s1, Kinds: []monitor.Kind{monitor.KindSceneAppeared}, AfterSeq: 1}, []int64{4}},
		{"other run", Filter{Run: "run-2"}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := j.Read(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, seqs(records))
		})
	}
}

func TestRead_PathPrefixEscapesWildcards(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.Append(ctx, testRecord(1, monitor.KindSceneAppeared, ir.Main, "/a_b/c")))
	require.NoError(t, j.Append(ctx, testRecord(2, monitor.KindSceneAppeared, ir.Main, "/axb/c")))

	prefix := ir.ParsePath("/a_b")
	records, err := j.Read(ctx, Filter{PathPrefix: &prefix})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, seqs(records))
}

func TestAppend_DuplicateSeqIgnored(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, testRecord(1, monitor.KindSceneAppeared, ir.Main, "/A")))
	require.NoError(t, j.Append(ctx, testRecord(1, monitor.KindSceneDisappeared, ir.Main, "/A")))

	records, err := j.Read(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, monitor.KindSceneAppeared, records[0].Kind)
	assert.Equal(t, "ev-1", records[0].ID)
}

func TestFromEvent_SnapshotRoundTrip(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	type form struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	r, err := FromEvent(monitor.Event{
		Seq:      7,
		Kind:     monitor.KindViewStateUpdated,
		Scope:    ir.Custom("s1"),
		Path:     ir.ParsePath("/Main/Form"),
		StateID:  "Form",
		Snapshot: form{Name: "x", Count: 2},
	})
	require.NoError(t, err)
	want := ir.Object{"name": ir.String("x"), "count": ir.Int(2)}
	assert.Equal(t, want, r.Snapshot)

	digest, err := ir.SnapshotDigest(want)
	require.NoError(t, err)
	assert.Equal(t, digest, r.Digest)

	require.NoError(t, j.Append(ctx, r))
	records, err := j.Read(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, want, records[0].Snapshot)
	assert.Equal(t, digest, records[0].Digest)
	assert.Equal(t, ir.StateID("Form"), records[0].StateID)
}

func TestFromEvent_ErrorCode(t *testing.T) {
	err := monitor.NewViewInstanceNotFoundError("remove", ir.Main, ir.ParsePath("/A"), "Form")
	r, convErr := FromEvent(monitor.Event{Seq: 1, Kind: monitor.KindFatal, Err: err, Message: err.Message})
	require.NoError(t, convErr)
	assert.Equal(t, monitor.CodeViewInstanceNotFound, r.Code)
	assert.Nil(t, r.Snapshot)
	assert.Empty(t, r.Digest)
}

func TestFromEvent_UnsupportedSnapshot(t *testing.T) {
	_, err := FromEvent(monitor.Event{Seq: 1, Kind: monitor.KindViewStateAdded, Snapshot: 1.5})
	assert.Error(t, err)
}

func TestCompileFilter_AlwaysOrdered(t *testing.T) {
	s1 := ir.Custom("s1")
	query, params := compileFilter(Filter{Scope: &s1, Limit: 3})
	assert.Contains(t, query, "WHERE scope = ?")
	assert.Contains(t, query, "ORDER BY seq ASC, id ASC COLLATE BINARY LIMIT ?")
	assert.Equal(t, []any{"custom:s1", 3}, params)
}
