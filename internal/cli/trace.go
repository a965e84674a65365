package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/journal"
	"github.com/roach88/viewflow/internal/monitor"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Run      string
	Scope    string
	Path     string
	Kinds    []string
	After    int64
	Limit    int
	ListRuns bool
}

// TraceEntry is one journaled event in the trace timeline.
type TraceEntry struct {
	Seq      int64    `json:"seq"`
	Run      string   `json:"run"`
	Kind     string   `json:"kind"`
	Scope    string   `json:"scope"`
	Path     string   `json:"path"`
	StateID  string   `json:"state_id,omitempty"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message,omitempty"`
	Snapshot ir.Value `json:"snapshot,omitempty"`
	Digest   string   `json:"digest,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Runs     []string     `json:"runs"`
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	ByKind      map[string]int `json:"by_kind"`
	Violations  int            `json:"violations"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the diagnostic event journal",
		Long: `Query events journaled by "viewflow run --db".

Without --run every run in the journal is included. Filters combine:
--scope and --path narrow to one scene (a path also matches everything
below it), --kind may be repeated.

Examples:
  viewflow trace --db ./viewflow.db --runs
  viewflow trace --db ./viewflow.db --run nightly --scope checkout
  viewflow trace --db ./viewflow.db --kind fatal --kind duplicate_registration --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Run, "run", "", "only this run")
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "only this scope (main or a custom name)")
	cmd.Flags().StringVar(&opts.Path, "path", "", "only this path and paths below it")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only these event kinds")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only events with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = all)")
	cmd.Flags().BoolVar(&opts.ListRuns, "runs", false, "list run ids and exit")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	filter, err := opts.filter()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	runs, err := j.Runs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if opts.Run != "" && !slices.Contains(runs, opts.Run) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.Run))
	}

	result := TraceResult{
		Runs:     runs,
		Timeline: []TraceEntry{},
		Stats:    TraceStats{ByKind: map[string]int{}},
	}
	if !opts.ListRuns {
		records, err := j.Read(ctx, filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		result.Timeline = buildTimeline(records)
		result.Stats = buildStats(result.Timeline)
	}

	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	if formatter.JSON() {
		return formatter.Respond(result, nil)
	}
	outputTraceText(formatter.Writer, result, opts.ListRuns, opts.Verbose)
	return nil
}

func (o *TraceOptions) filter() (journal.Filter, error) {
	f := journal.Filter{Run: o.Run, AfterSeq: o.After, Limit: o.Limit}
	if o.Scope != "" {
		scope, err := ir.ParseScope(o.Scope)
		if err != nil {
			return f, err
		}
		f.Scope = &scope
	}
	if o.Path != "" {
		p := ir.ParsePath(o.Path)
		f.PathPrefix = &p
	}
	for _, k := range o.Kinds {
		kind, err := monitor.ParseKind(k)
		if err != nil {
			return f, err
		}
		f.Kinds = append(f.Kinds, kind)
	}
	if o.Limit < 0 {
		return f, fmt.Errorf("limit must be non-negative")
	}
	return f, nil
}

func buildTimeline(records []journal.Record) []TraceEntry {
	timeline := make([]TraceEntry, len(records))
	for i, r := range records {
		timeline[i] = TraceEntry{
			Seq:      r.Seq,
			Run:      r.Run,
			Kind:     string(r.Kind),
			Scope:    r.Scope.String(),
			Path:     r.Path.String(),
			StateID:  string(r.StateID),
			Code:     string(r.Code),
			Message:  r.Message,
			Snapshot: r.Snapshot,
			Digest:   r.Digest,
		}
	}
	return timeline
}

func buildStats(timeline []TraceEntry) TraceStats {
	stats := TraceStats{TotalEvents: len(timeline), ByKind: map[string]int{}}
	for _, e := range timeline {
		stats.ByKind[e.Kind]++
		switch monitor.Kind(e.Kind) {
		case monitor.KindFatal, monitor.KindDuplicateRegistration:
			stats.Violations++
		}
	}
	return stats
}

func outputTraceText(w io.Writer, result TraceResult, runsOnly, verbose bool) {
	fmt.Fprintln(w, "=== Runs ===")
	if len(result.Runs) == 0 {
		fmt.Fprintln(w, "  (no runs)")
	}
	for _, run := range result.Runs {
		fmt.Fprintf(w, "  %s\n", run)
	}
	if runsOnly {
		return
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range result.Timeline {
		formatTimelineEntry(w, e, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Violations:   %d\n", result.Stats.Violations)
	kinds := make([]string, 0, len(result.Stats.ByKind))
	for k := range result.Stats.ByKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-22s %d\n", k+":", result.Stats.ByKind[k])
	}
}

func formatTimelineEntry(w io.Writer, e TraceEntry, verbose bool) {
	fmt.Fprintf(w, "  [%d] %s %s %s", e.Seq, e.Kind, e.Scope, e.Path)
	if e.StateID != "" {
		fmt.Fprintf(w, " %s", e.StateID)
	}
	if e.Code != "" {
		fmt.Fprintf(w, " %s", e.Code)
	}
	fmt.Fprintln(w)

	if !verbose {
		return
	}
	if e.Message != "" {
		fmt.Fprintf(w, "       Message: %s\n", e.Message)
	}
	if e.Snapshot != nil {
		data, err := ir.MarshalCanonical(e.Snapshot)
		if err == nil {
			fmt.Fprintf(w, "       Snapshot: %s\n", data)
		}
	}
	fmt.Fprintf(w, "       Run: %s\n", truncateID(e.Run))
}

func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
