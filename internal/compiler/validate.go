package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/viewflow/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidStateName  = "E101" // state name must be an exported identifier
	ErrDuplicateName     = "E102" // duplicate state or action name
	ErrInvalidOp         = "E103" // op is not a built-in op
	ErrFieldRequired     = "E104" // op needs a field
	ErrUnknownField      = "E105" // field is not in the initial value
	ErrFieldKind         = "E106" // field kind does not fit the op
	ErrMissingOperand    = "E107" // op needs an arg or a value
	ErrUnknownParent     = "E108" // parent is not a declared state
	ErrParentCycle       = "E109" // parent chain loops
	ErrInvalidActionName = "E110" // action name must start lowercase
)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var (
	stateNamePattern  = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`)
	actionNamePattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9_]*$`)
)

// Validate checks a set of declarations. It returns every error found
// instead of stopping at the first.
func Validate(decls []ir.StateDecl) []ValidationError {
	var errs []ValidationError

	names := make(map[string]bool, len(decls))
	for i, d := range decls {
		field := fmt.Sprintf("state[%d]", i)
		if !stateNamePattern.MatchString(d.Name) {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("invalid state name %q", d.Name),
				Code:    ErrInvalidStateName,
			})
		}
		if names[d.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate state name: %q", d.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[d.Name] = true
	}

	for _, d := range decls {
		errs = append(errs, validateState(d, names)...)
	}

	for _, c := range ParentCycles(decls) {
		errs = append(errs, ValidationError{
			Field:   "state." + c.Path[0] + ".parent",
			Message: c.Message,
			Code:    ErrParentCycle,
		})
	}
	return errs
}

func validateState(d ir.StateDecl, names map[string]bool) []ValidationError {
	var errs []ValidationError
	prefix := "state." + d.Name

	if d.Parent != "" && !names[d.Parent] {
		errs = append(errs, ValidationError{
			Field:   prefix + ".parent",
			Message: fmt.Sprintf("unknown parent state %q", d.Parent),
			Code:    ErrUnknownParent,
		})
	}

	seen := make(map[string]bool, len(d.Actions))
	for _, a := range d.Actions {
		field := prefix + ".action." + a.Name
		if !actionNamePattern.MatchString(a.Name) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid action name %q", a.Name),
				Code:    ErrInvalidActionName,
			})
		}
		if seen[a.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate action name: %q", a.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[a.Name] = true
		errs = append(errs, validateAction(a, d.Initial, field)...)
	}
	return errs
}

func validateAction(a ir.ActionDecl, initial ir.Object, field string) []ValidationError {
	if !a.Op.Valid() {
		return []ValidationError{{
			Field:   field + ".op",
			Message: fmt.Sprintf("invalid op %q", a.Op),
			Code:    ErrInvalidOp,
		}}
	}
	if a.Op == ir.OpReset {
		return nil
	}

	if a.Field == "" {
		return []ValidationError{{
			Field:   field + ".field",
			Message: fmt.Sprintf("op %q requires a field", a.Op),
			Code:    ErrFieldRequired,
		}}
	}
	current, ok := initial[a.Field]
	if !ok {
		return []ValidationError{{
			Field:   field + ".field",
			Message: fmt.Sprintf("field %q is not in the initial value", a.Field),
			Code:    ErrUnknownField,
		}}
	}

	var errs []ValidationError
	if want := fieldKindFor(a.Op); want != "" && kindOf(current) != want {
		errs = append(errs, ValidationError{
			Field:   field + ".field",
			Message: fmt.Sprintf("op %q needs a %s field, %q is %s", a.Op, want, a.Field, kindOf(current)),
			Code:    ErrFieldKind,
		})
	}

	switch a.Op {
	case ir.OpSet, ir.OpAppend, ir.OpRemove:
		if a.Arg == "" && a.Value == nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("op %q requires an arg or a value", a.Op),
				Code:    ErrMissingOperand,
			})
		}
	}
	return errs
}

func fieldKindFor(op ir.Op) string {
	switch op {
	case ir.OpAdd:
		return "int"
	case ir.OpToggle:
		return "bool"
	case ir.OpAppend, ir.OpRemove:
		return "list"
	}
	return ""
}

func kindOf(v ir.Value) string {
	switch v.(type) {
	case ir.String:
		return "string"
	case ir.Int:
		return "int"
	case ir.Bool:
		return "bool"
	case ir.List:
		return "list"
	case ir.Object:
		return "object"
	default:
		return "null"
	}
}
