package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/scene"
	"github.com/roach88/viewflow/internal/store"
)

// AssertionContext carries what state assertions read besides the trace.
type AssertionContext struct {
	Runtime *scene.Runtime

	// Handles holds every handle still held at the end of the run, by label.
	Handles map[string][]*store.Handle[ir.Object]
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nEvents:\n")
		for _, event := range e.Trace {
			if event.Type != TypeEvent {
				continue
			}
			fmt.Fprintf(&buf, "  #%d %s scope=%s", event.Seq, event.Kind, event.Scope)
			if event.Path != "" {
				fmt.Fprintf(&buf, " path=%s", event.Path)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure. actx may be nil when only trace assertions are used.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertEventContains:
		return assertEventContains(result.Trace, a)
	case AssertEventOrder:
		return assertEventOrder(result.Trace, a)
	case AssertEventCount:
		return assertEventCount(result.Trace, a)
	case AssertNotifications:
		return assertNotifications(result, a)
	}

	if actx == nil || actx.Runtime == nil {
		return fmt.Errorf("%s assertion requires a runtime", a.Type)
	}
	switch a.Type {
	case AssertAppeared:
		return assertAppeared(actx.Runtime, a)
	case AssertSubstates:
		return assertSubstates(actx.Runtime, a)
	case AssertState:
		return assertState(actx, a)
	case AssertDistinctStores:
		return assertDistinctStores(actx, a)
	}
	return fmt.Errorf("unknown assertion type: %s", a.Type)
}

// matchEvent reports whether event satisfies the kind and the optional
// scope, path, state_id and code filters of a.
func matchEvent(event TraceEvent, kind string, a Assertion) bool {
	if event.Type != TypeEvent || event.Kind != kind {
		return false
	}
	if a.Scope != "" && event.Scope != ir.MustParseScope(a.Scope).String() {
		return false
	}
	if a.Path != "" && event.Path != ir.ParsePath(a.Path).String() {
		return false
	}
	if a.StateID != "" && event.StateID != a.StateID {
		return false
	}
	if a.Code != "" && event.Code != a.Code {
		return false
	}
	return true
}

func describeFilter(kind string, a Assertion) string {
	parts := []string{kind}
	for _, f := range []struct{ name, val string }{
		{"scope", a.Scope},
		{"path", a.Path},
		{"state_id", a.StateID},
		{"code", a.Code},
	} {
		if f.val != "" {
			parts = append(parts, f.name+"="+f.val)
		}
	}
	return strings.Join(parts, " ")
}

func assertEventContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matchEvent(event, a.Kind, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventContains,
		Expected: "event " + describeFilter(a.Kind, a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertEventOrder checks that the first occurrences of the kinds appear in
// the given order. Other events may come in between.
func assertEventOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != TypeEvent {
			continue
		}
		for _, kind := range a.Kinds {
			if matchEvent(event, kind, a) && positions[kind] == 0 {
				positions[kind] = i + 1
			}
		}
	}

	for _, kind := range a.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("all kinds present: %v", a.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Kinds); i++ {
		prev, curr := a.Kinds[i-1], a.Kinds[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("kinds in order: %v", a.Kinds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertEventCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, a.Kind, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d events %s", a.Count, describeFilter(a.Kind, a)),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertNotifications(result *Result, a Assertion) error {
	if got := result.Notifications[a.Handle]; got != a.Count {
		return &AssertionError{
			Type:     AssertNotifications,
			Expected: fmt.Sprintf("%d notifications for %s", a.Count, a.Handle),
			Actual:   fmt.Sprintf("%d notifications", got),
		}
	}
	return nil
}

func assertAppeared(rt *scene.Runtime, a Assertion) error {
	scope := ir.MustParseScope(a.Scope)
	got := rt.Appeared(scope).Strings()

	want := make([]string, len(a.Paths))
	for i, p := range a.Paths {
		want[i] = ir.ParsePath(p).String()
	}

	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertAppeared,
			Expected: fmt.Sprintf("%s appeared %v", scope, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertSubstates(rt *scene.Runtime, a Assertion) error {
	scope := ir.MustParseScope(a.Scope)

	var got []string
	if sc, ok := rt.Scenes().Lookup(scope); ok {
		for _, id := range sc.Root().SubStateIDs() {
			got = append(got, string(id))
		}
	}
	slices.Sort(got)

	want := slices.Clone(a.StateIDs)
	slices.Sort(want)

	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertSubstates,
			Expected: fmt.Sprintf("%s sub-states %v", scope, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertState checks the held store against expect. Only the listed fields
// are compared.
func assertState(actx *AssertionContext, a Assertion) error {
	handles := actx.Handles[a.Handle]
	if len(handles) == 0 {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("held store %s", a.Handle),
			Actual:   "no handle held under that label",
		}
	}
	got := handles[0].Store.Get()

	want, err := ir.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("state assertion: %w", err)
	}
	for _, key := range want.(ir.Object).SortedKeys() {
		expected := want.(ir.Object)[key]
		actual, ok := got[key]
		if !ok {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("%s.%s = %s", a.Handle, key, render(expected)),
				Actual:   "field missing",
			}
		}
		if !ir.Equal(actual, expected) {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("%s.%s = %s", a.Handle, key, render(expected)),
				Actual:   render(actual),
			}
		}
	}
	return nil
}

func assertDistinctStores(actx *AssertionContext, a Assertion) error {
	distinct := make(map[*store.Store[ir.Object]]bool)
	for _, h := range actx.Handles[a.Handle] {
		distinct[h.Store] = true
	}
	if len(distinct) != a.Count {
		return &AssertionError{
			Type:     AssertDistinctStores,
			Expected: fmt.Sprintf("%d distinct stores behind %s", a.Count, a.Handle),
			Actual:   fmt.Sprintf("%d distinct stores", len(distinct)),
		}
	}
	return nil
}

func render(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
