package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/monitor"
)

// Scenario drives one Runtime through a list of steps and then checks
// assertions against the trace and the final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE declaration files. Relative paths are resolved
	// against the scenario file's directory (or the base path).
	Specs []string `yaml:"specs,omitempty"`

	// States holds inline CUE declarations in the same format.
	States string `yaml:"states,omitempty"`

	// Steps run in order. Each one finishes before the next starts.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpAppear      = "appear"
	OpDisappear   = "disappear"
	OpRequest     = "request"
	OpDispatch    = "dispatch"
	OpRelease     = "release"
	OpViewAdd     = "view_add"
	OpViewUpdate  = "view_update"
	OpViewRemove  = "view_remove"
	OpConcurrent  = "concurrent"
	OpRemoveScene = "remove_scene"
)

// Step is one operation against the Runtime.
type Step struct {
	Op string `yaml:"op"`

	// Scope defaults to main. A bare name means a custom scope.
	Scope string `yaml:"scope,omitempty"`

	// Path is the view path for appear, disappear and view_* steps.
	Path string `yaml:"path,omitempty"`

	// State is the declared state name for request.
	State string `yaml:"state,omitempty"`

	// Handle labels the handle a request produces, and selects it for
	// dispatch and release. Defaults to State.
	Handle string `yaml:"handle,omitempty"`

	// Action and Args form the command of a dispatch.
	Action string         `yaml:"action,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`

	// StateID and Snapshot identify and carry a view instance.
	StateID  string `yaml:"state_id,omitempty"`
	Snapshot any    `yaml:"snapshot,omitempty"`

	// Repeat runs a dispatch, or each nested concurrent step, this many
	// times. Zero means once.
	Repeat int `yaml:"repeat,omitempty"`

	// Steps are the nested steps of a concurrent step. They run in
	// parallel goroutines.
	Steps []Step `yaml:"steps,omitempty"`

	// ExpectError makes the step pass only if it fails with an error
	// containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Label returns the handle label a step refers to.
func (s Step) Label() string {
	if s.Handle != "" {
		return s.Handle
	}
	return s.State
}

// ScopeID parses the step scope.
func (s Step) ScopeID() (ir.ScopeID, error) {
	return ir.ParseScope(s.Scope)
}

// ViewStateID returns the view state id, defaulting to "View".
func (s Step) ViewStateID() ir.StateID {
	if s.StateID == "" {
		return "View"
	}
	return ir.StateID(s.StateID)
}

func (s Step) times() int {
	if s.Repeat <= 0 {
		return 1
	}
	return s.Repeat
}

// Assertion checks the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind selects events for event_contains and event_count.
	Kind string `yaml:"kind,omitempty"`

	// Kinds is the expected order for event_order.
	Kinds []string `yaml:"kinds,omitempty"`

	// Scope, Path, StateID and Code narrow event matches. Scope also
	// selects the scene for appeared and substates.
	Scope   string `yaml:"scope,omitempty"`
	Path    string `yaml:"path,omitempty"`
	StateID string `yaml:"state_id,omitempty"`
	Code    string `yaml:"code,omitempty"`

	// Handle selects a held store for state, notifications and
	// distinct_stores.
	Handle string `yaml:"handle,omitempty"`

	// Expect holds expected fields for state (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number for event_count, notifications and
	// distinct_stores.
	Count int `yaml:"count,omitempty"`

	// Paths is the exact appeared list, front first.
	Paths []string `yaml:"paths,omitempty"`

	// StateIDs is the exact set of sub-state keys of the scope root.
	StateIDs []string `yaml:"state_ids,omitempty"`
}

// Assertion type constants.
const (
	AssertEventContains  = "event_contains"
	AssertEventOrder     = "event_order"
	AssertEventCount     = "event_count"
	AssertAppeared       = "appeared"
	AssertState          = "state"
	AssertSubstates      = "substates"
	AssertNotifications  = "notifications"
	AssertDistinctStores = "distinct_stores"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving relative spec paths against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML. Unknown fields are rejected. The
// result is not validated; spec paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// Validate checks required fields, step shapes and assertion shapes.
func (s *Scenario) Validate() error {
	return validateScenario(s)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(fmt.Sprintf("steps[%d]", i), step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(at string, step Step) error {
	if _, err := step.ScopeID(); err != nil {
		return fmt.Errorf("%s: %w", at, err)
	}
	if step.Repeat < 0 {
		return fmt.Errorf("%s: repeat must be non-negative", at)
	}

	switch step.Op {
	case "":
		return fmt.Errorf("%s: op is required", at)
	case OpRequest:
		if step.State == "" {
			return fmt.Errorf("%s: state is required for request", at)
		}
	case OpDispatch:
		if step.Label() == "" {
			return fmt.Errorf("%s: handle or state is required for dispatch", at)
		}
		if step.Action == "" {
			return fmt.Errorf("%s: action is required for dispatch", at)
		}
		if _, err := ir.FromAny(step.Args); err != nil {
			return fmt.Errorf("%s.args: %w", at, err)
		}
	case OpRelease:
		if step.Label() == "" {
			return fmt.Errorf("%s: handle or state is required for release", at)
		}
	case OpAppear, OpDisappear, OpViewRemove:
		if step.Path == "" {
			return fmt.Errorf("%s: path is required for %s", at, step.Op)
		}
	case OpViewAdd, OpViewUpdate:
		if step.Path == "" {
			return fmt.Errorf("%s: path is required for %s", at, step.Op)
		}
		if _, err := ir.FromAny(step.Snapshot); err != nil {
			return fmt.Errorf("%s.snapshot: %w", at, err)
		}
	case OpConcurrent:
		if len(step.Steps) == 0 {
			return fmt.Errorf("%s: steps are required for concurrent", at)
		}
		for i, nested := range step.Steps {
			if nested.Op == OpConcurrent {
				return fmt.Errorf("%s.steps[%d]: concurrent steps cannot nest", at, i)
			}
			if err := validateStep(fmt.Sprintf("%s.steps[%d]", at, i), nested); err != nil {
				return err
			}
		}
	case OpRemoveScene:
	default:
		return fmt.Errorf("%s: unknown op %q", at, step.Op)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if _, err := ir.ParseScope(a.Scope); err != nil {
		return fmt.Errorf("assertions[%d]: %w", index, err)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertEventContains, AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for %s", index, a.Type)
		}
		if _, err := monitor.ParseKind(a.Kind); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
		for _, k := range a.Kinds {
			if _, err := monitor.ParseKind(k); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertState:
		if a.Handle == "" {
			return fmt.Errorf("assertions[%d]: handle is required for state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for state", index)
		}
		if _, err := ir.FromAny(a.Expect); err != nil {
			return fmt.Errorf("assertions[%d].expect: %w", index, err)
		}
	case AssertNotifications, AssertDistinctStores:
		if a.Handle == "" {
			return fmt.Errorf("assertions[%d]: handle is required for %s", index, a.Type)
		}
	case AssertAppeared, AssertSubstates:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
