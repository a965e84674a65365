// Package harness runs YAML scenarios against a fresh scene.Runtime and
// checks the resulting trace and state.
//
// # Scenario Format
//
//	name: counter_appear
//	description: "Counter changes while views come and go"
//	specs:
//	  - states.cue        # optional CUE declarations
//	states: |             # optional inline CUE declarations
//	  state: Note: {initial: {text: ""}}
//	steps:
//	  - op: request
//	    scope: s1
//	    state: Counter
//	  - op: dispatch
//	    handle: Counter
//	    action: set
//	    args: {value: 3}
//	  - op: appear
//	    scope: s1
//	    path: /home
//	assertions:
//	  - type: state
//	    handle: Counter
//	    expect: {value: 3}
//	  - type: appeared
//	    scope: s1
//	    paths: [/home]
//
// Declarations start from a builtin set (Counter, Badge, Form); spec files
// and inline states may add to it or replace entries by name.
//
// # Steps
//
//   - request: get or create the shared store of a declared state
//   - dispatch: send a command through a held handle (repeat: n)
//   - release: drop every handle held under a label
//   - appear, disappear: change a scope's appeared-path list
//   - view_add, view_update, view_remove: track view instances
//   - concurrent: run nested steps in parallel goroutines
//   - remove_scene: tear a scope down
//
// Dispatch, appear, disappear and view steps run on the Runtime's main
// loop. Requests run on the calling goroutine.
//
// # Assertion Types
//
//   - event_contains: an event of a kind (optionally scope/path/state_id/code)
//   - event_order: first occurrences of kinds appear in order
//   - event_count: exactly N events of a kind
//   - appeared: the exact appeared-path list of a scope
//   - state: subset match on a held store's snapshot
//   - substates: the exact sub-state keys of a scope root
//   - notifications: subscriber notifications seen for a label
//   - distinct_stores: number of distinct stores behind a label
//
// # Deterministic Traces
//
// The bus, the step entries and the notification entries all draw seqs from
// one testutil.DeterministicClock, and store ids come from a sequence
// generator. Scenarios without concurrent steps therefore produce identical
// traces across runs, which RunWithGolden compares against
// testdata/golden/<name>.golden.
package harness
