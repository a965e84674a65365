package harness

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/viewflow/internal/declared"
	"github.com/roach88/viewflow/internal/engine"
	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
	"github.com/roach88/viewflow/internal/scene"
	"github.com/roach88/viewflow/internal/store"
	"github.com/roach88/viewflow/internal/testutil"
)

// Harness runs one scenario against a fresh Runtime.
//
// Every scenario gets its own Runtime, a deterministic clock shared by the
// bus and the trace, and sequential store ids, so two runs of the same
// scenario produce byte-identical traces as long as it has no concurrent
// steps.
type Harness struct {
	rt      *scene.Runtime
	catalog *declared.Catalog
	clock   *testutil.DeterministicClock
	logger  *slog.Logger

	mu       sync.Mutex
	result   *Result
	bindings map[string]*binding
}

// binding is every handle a label was requested under.
type binding struct {
	scope   ir.ScopeID
	state   string
	handles []*store.Handle[ir.Object]
	subs    []*store.Subscription
	seen    map[*store.Store[ir.Object]]bool
}

type runConfig struct {
	logger    *slog.Logger
	observers []func(monitor.Event)
	mode      *monitor.Mode
}

// RunOption configures Run.
type RunOption func(*runConfig)

// WithLogger sets the runtime logger. Default: discard.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers fn on the scenario's bus for the whole run.
func WithObserver(fn func(monitor.Event)) RunOption {
	return func(c *runConfig) { c.observers = append(c.observers, fn) }
}

// WithMode sets the runtime's bus mode. Default: monitor.DefaultMode.
func WithMode(m monitor.Mode) RunOption {
	return func(c *runConfig) { c.mode = &m }
}

// Run executes a scenario and returns the result. An error means the
// scenario could not be executed; assertion failures are reported in the
// result instead.
func Run(scenario *Scenario, opts ...RunOption) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller context.
//
// Execution flow:
//  1. Compile builtin, file and inline declarations into a catalog
//  2. Create a Runtime and start its main loop
//  3. Execute steps in order
//  4. Evaluate assertions, then tear the Runtime down
func RunContext(ctx context.Context, scenario *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	decls, err := scenario.Decls()
	if err != nil {
		return nil, fmt.Errorf("failed to load declarations: %w", err)
	}
	catalog, err := declared.NewCatalog(decls)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewDeterministicClock()
	rtOpts := []scene.Option{
		scene.WithClock(clock),
		scene.WithIDGenerator(engine.NewSequenceGenerator("store")),
		scene.WithLogger(cfg.logger),
	}
	if cfg.mode != nil {
		rtOpts = append(rtOpts, scene.WithMode(*cfg.mode))
	}
	rt := scene.New(rtOpts...)

	h := &Harness{
		rt:       rt,
		catalog:  catalog,
		clock:    clock,
		logger:   cfg.logger,
		result:   NewResult(),
		bindings: make(map[string]*binding),
	}

	trace := rt.Bus().Listen(h.recordEvent)
	for _, fn := range cfg.observers {
		rt.Bus().Listen(fn)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- rt.Loop().Run(ctx) }()
	defer func() {
		rt.Loop().Stop()
		<-loopDone
	}()

	for i, step := range scenario.Steps {
		h.traceStep(step)
		if err := h.check(step, h.exec(ctx, step)); err != nil {
			h.close(trace)
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		h.logger.Info("scenario step completed",
			"scenario", scenario.Name,
			"step", i,
			"op", step.Op,
		)
	}

	// Wait for anything still queued before reading state.
	if err := rt.Do(ctx, "settle", func(context.Context) error { return nil }); err != nil {
		h.close(trace)
		return nil, fmt.Errorf("failed to settle main loop: %w", err)
	}

	result := h.finish(scenario)
	h.close(trace)
	return result, nil
}

// check applies a step's expect_error to the outcome of running it.
func (h *Harness) check(step Step, err error) error {
	switch {
	case step.ExpectError == "":
		return err
	case err == nil:
		return fmt.Errorf("expected error containing %q, got none", step.ExpectError)
	case !strings.Contains(err.Error(), step.ExpectError):
		return fmt.Errorf("expected error containing %q, got: %w", step.ExpectError, err)
	}
	return nil
}

func (h *Harness) exec(ctx context.Context, step Step) error {
	scope, err := step.ScopeID()
	if err != nil {
		return err
	}
	path := ir.ParsePath(step.Path)

	switch step.Op {
	case OpRequest:
		handle, err := h.catalog.Shared(ctx, h.rt.Registry(), scope, step.State)
		if err != nil {
			return err
		}
		h.bind(step.Label(), scope, step.State, handle)
		return nil

	case OpDispatch:
		st, err := h.storeFor(step.Label())
		if err != nil {
			return err
		}
		cmd, err := commandOf(step)
		if err != nil {
			return err
		}
		for range step.times() {
			err := h.rt.Do(ctx, "dispatch "+step.Action, func(context.Context) error {
				st.Dispatch(cmd)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil

	case OpRelease:
		return h.release(step.Label())

	case OpAppear:
		return h.rt.Do(ctx, "appear", func(ctx context.Context) error {
			return h.rt.OnAppear(ctx, scope, path)
		})

	case OpDisappear:
		return h.rt.Do(ctx, "disappear", func(ctx context.Context) error {
			return h.rt.OnDisappear(ctx, scope, path)
		})

	case OpViewAdd, OpViewUpdate:
		snapshot, err := ir.FromAny(step.Snapshot)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		return h.rt.Do(ctx, step.Op, func(ctx context.Context) error {
			var err error
			if step.Op == OpViewAdd {
				_, err = h.rt.AddView(ctx, scope, path, step.ViewStateID(), snapshot)
			} else {
				_, err = h.rt.UpdateView(ctx, scope, path, step.ViewStateID(), snapshot)
			}
			return err
		})

	case OpViewRemove:
		return h.rt.Do(ctx, step.Op, func(ctx context.Context) error {
			_, err := h.rt.RemoveView(ctx, scope, path, step.ViewStateID())
			return err
		})

	case OpConcurrent:
		return h.concurrent(ctx, step)

	case OpRemoveScene:
		h.rt.ReleaseScene(scope)
		return nil
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

// concurrent runs every nested step step.times() times, each in its own
// goroutine, and waits for all of them.
func (h *Harness) concurrent(ctx context.Context, step Step) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for range step.times() {
		for _, nested := range step.Steps {
			wg.Add(1)
			go func(s Step) {
				defer wg.Done()
				if err := h.check(s, h.exec(ctx, s)); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", s.Op, err))
					mu.Unlock()
				}
			}(nested)
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

func commandOf(step Step) (ir.Command, error) {
	cmd := ir.Command{Name: step.Action}
	if len(step.Args) == 0 {
		return cmd, nil
	}
	v, err := ir.FromAny(step.Args)
	if err != nil {
		return ir.Command{}, fmt.Errorf("args: %w", err)
	}
	cmd.Args = v.(ir.Object)
	return cmd, nil
}

func (h *Harness) bind(label string, scope ir.ScopeID, state string, handle *store.Handle[ir.Object]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.bindings[label]
	if b == nil {
		b = &binding{scope: scope, state: state, seen: make(map[*store.Store[ir.Object]]bool)}
		h.bindings[label] = b
	}
	b.handles = append(b.handles, handle)
	if !b.seen[handle.Store] {
		b.seen[handle.Store] = true
		b.subs = append(b.subs, handle.Store.Subscribe(func(next, _ ir.Object) {
			h.recordNotify(label, next)
		}))
	}
}

func (h *Harness) storeFor(label string) (*store.Store[ir.Object], error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.bindings[label]
	if !ok || len(b.handles) == 0 {
		return nil, fmt.Errorf("no handle labelled %q", label)
	}
	return b.handles[0].Store, nil
}

// release drops every handle held under label.
func (h *Harness) release(label string) error {
	h.mu.Lock()
	b, ok := h.bindings[label]
	delete(h.bindings, label)
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("no handle labelled %q", label)
	}
	for _, sub := range b.subs {
		sub.Cancel()
	}
	for _, handle := range b.handles {
		handle.Release()
	}
	return nil
}

func (h *Harness) traceStep(step Step) {
	te := TraceEvent{
		Type:   TypeStep,
		Seq:    h.clock.Next(),
		Op:     step.Op,
		State:  step.State,
		Action: step.Action,
	}
	if scope, err := step.ScopeID(); err == nil && step.Scope != "" {
		te.Scope = scope.String()
	}
	if step.Path != "" {
		te.Path = ir.ParsePath(step.Path).String()
	}

	switch step.Op {
	case OpRequest, OpDispatch, OpRelease:
		te.Handle = step.Label()
	case OpViewAdd, OpViewUpdate, OpViewRemove:
		te.StateID = string(step.ViewStateID())
	}
	if step.Snapshot != nil {
		te.Snapshot, _ = ir.FromAny(step.Snapshot)
	}
	if cmd, err := commandOf(step); err == nil {
		te.Args = cmd.Args
	}
	h.append(te)
}

func (h *Harness) recordEvent(e monitor.Event) {
	te := TraceEvent{
		Type:     TypeEvent,
		Seq:      e.Seq,
		Kind:     string(e.Kind),
		Scope:    e.Scope.String(),
		StateID:  string(e.StateID),
		Message:  e.Message,
		Snapshot: snapshotValue(e.Snapshot),
	}
	if !e.Path.IsRoot() {
		te.Path = e.Path.String()
	}
	var me *monitor.Error
	if errors.As(e.Err, &me) {
		te.Code = string(me.Code)
	}
	h.append(te)
}

func (h *Harness) recordNotify(label string, next ir.Object) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.result.Notifications[label]++
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Type:     TypeNotify,
		Seq:      h.clock.Next(),
		Handle:   label,
		Snapshot: next.Clone(),
	})
}

func (h *Harness) append(te TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Trace = append(h.result.Trace, te)
}

// finish orders the trace, captures final states and evaluates assertions.
func (h *Harness) finish(scenario *Scenario) *Result {
	h.mu.Lock()
	result := h.result
	slices.SortStableFunc(result.Trace, func(a, b TraceEvent) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	handles := make(map[string][]*store.Handle[ir.Object], len(h.bindings))
	for label, b := range h.bindings {
		handles[label] = slices.Clone(b.handles)
		result.States[label] = b.handles[0].Store.Get().Clone()
	}
	h.mu.Unlock()

	actx := &AssertionContext{Runtime: h.rt, Handles: handles}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	if canonical, err := CanonicalTrace(scenario.Name, result.Trace); err == nil {
		result.Digest = ir.TraceDigest(canonical)
	}
	return result
}

// close stops recording and tears the Runtime down.
func (h *Harness) close(trace *monitor.Subscription) {
	trace.Cancel()

	h.mu.Lock()
	labels := make([]string, 0, len(h.bindings))
	for label := range h.bindings {
		labels = append(labels, label)
	}
	h.mu.Unlock()

	slices.Sort(labels)
	for _, label := range labels {
		_ = h.release(label)
	}
	h.rt.Reset()
}

// snapshotValue converts an event payload to an ir.Value for the trace.
func snapshotValue(v any) ir.Value {
	switch val := v.(type) {
	case nil:
		return nil
	case ir.Value:
		return val
	}
	if conv, err := ir.FromAny(v); err == nil {
		return conv
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ir.String(fmt.Sprint(v))
	}
	conv, err := ir.UnmarshalValue(data)
	if err != nil {
		return ir.String(fmt.Sprint(v))
	}
	return conv
}
