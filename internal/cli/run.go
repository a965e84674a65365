package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/viewflow/internal/harness"
	"github.com/roach88/viewflow/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // journal path; overrides the config
	Specs    string // base directory for the scenario's spec files
	Run      string // journal run label; overrides the config
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario string               `json:"scenario"`
	Pass     bool                 `json:"pass"`
	Digest   string               `json:"digest"`
	Errors   []string             `json:"errors,omitempty"`
	Trace    []harness.TraceEvent `json:"trace"`
	Journal  *JournalSummary      `json:"journal,omitempty"`
}

// JournalSummary reports what run wrote to the journal.
type JournalSummary struct {
	Path     string `json:"path"`
	Run      string `json:"run"`
	Appended int    `json:"appended"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run one scenario and print its trace",
		Long: `Run a scenario against a fresh runtime and print the trace.

With --db (or journal.path in the config) every diagnostic event is also
appended to a SQLite journal that the trace command can query.

Example:
  viewflow run ./scenarios/cart.yaml
  viewflow run --specs ./specs --db ./viewflow.db ./scenarios/cart.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioCommand(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal")
	cmd.Flags().StringVar(&opts.Specs, "specs", "", "directory spec files are resolved against")
	cmd.Flags().StringVar(&opts.Run, "run", "", "journal run label (default: generated)")

	return cmd
}

func runScenarioCommand(opts *RunOptions, scenarioFile string, cmd *cobra.Command) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	logger, err := opts.NewLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	mode, err := cfg.MonitorMode()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid mode", err)
	}

	var scenario *harness.Scenario
	if opts.Specs != "" {
		scenario, err = harness.LoadScenarioWithBasePath(scenarioFile, opts.Specs)
	} else {
		scenario, err = harness.LoadScenario(scenarioFile)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOpts := []harness.RunOption{harness.WithLogger(logger), harness.WithMode(mode)}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Journal.Path
	}
	var (
		j    *journal.Journal
		sink *journal.Sink
	)
	if dbPath != "" {
		var jopts []journal.Option
		if run := firstNonEmpty(opts.Run, cfg.Journal.Run); run != "" {
			jopts = append(jopts, journal.WithRun(run))
		}
		j, err = journal.Open(dbPath, jopts...)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()

		// Every run restarts seqs at 1, so a run label can only be used once.
		runs, err := j.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list journal runs", err)
		}
		if slices.Contains(runs, j.Run()) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run %q already exists in %s", j.Run(), dbPath))
		}
		sink = journal.NewSink(ctx, j, logger)
		runOpts = append(runOpts, harness.WithObserver(sink.ReceiveEvent))
		logger.Debug("journal ready", "path", dbPath, "run", j.Run())
	}

	logger.Info("scenario starting", "scenario", scenario.Name, "steps", len(scenario.Steps))
	result, err := harness.RunContext(ctx, scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "scenario execution failed", err)
	}

	out := RunResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Digest:   result.Digest,
		Errors:   result.Errors,
		Trace:    result.Trace,
	}
	if sink != nil {
		if err := sink.Err(); err != nil {
			logger.Warn("journal incomplete", "error", err)
		}
		out.Journal = &JournalSummary{Path: dbPath, Run: j.Run(), Appended: sink.Appended()}
	}

	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	if formatter.JSON() {
		if err := formatter.Respond(out, nil); err != nil {
			return err
		}
	} else {
		writeRunText(formatter.Writer, out)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed %d assertion(s)", scenario.Name, len(result.Errors)))
	}
	return nil
}

func writeRunText(w io.Writer, out RunResult) {
	for _, te := range out.Trace {
		fmt.Fprintf(w, "#%d %-6s", te.Seq, te.Type)
		for _, f := range []struct{ key, val string }{
			{"op", te.Op},
			{"kind", te.Kind},
			{"state", te.State},
			{"handle", te.Handle},
			{"action", te.Action},
			{"scope", te.Scope},
			{"path", te.Path},
			{"state_id", te.StateID},
			{"code", te.Code},
		} {
			if f.val != "" {
				fmt.Fprintf(w, " %s=%s", f.key, f.val)
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	if out.Journal != nil {
		fmt.Fprintf(w, "Journal: %d event(s) appended to run %s in %s\n", out.Journal.Appended, out.Journal.Run, out.Journal.Path)
	}
	fmt.Fprintf(w, "Digest: %s\n", out.Digest)
	if out.Pass {
		fmt.Fprintf(w, "✓ %s\n", out.Scenario)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", out.Scenario)
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
