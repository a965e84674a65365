package monitor

import (
	"errors"
	"fmt"

	"github.com/roach88/viewflow/internal/ir"
)

// Code categorizes invariant violations.
type Code string

const (
	// CodeDuplicateAttachment: a child store was attached under a StateID its
	// parent already holds.
	CodeDuplicateAttachment Code = "DUPLICATE_ATTACHMENT"

	// CodeDuplicateScene: a scope root was created while one is live.
	CodeDuplicateScene Code = "DUPLICATE_SCENE"

	// CodeViewInstanceDuplicate: add for a (path, id) already tracked.
	CodeViewInstanceDuplicate Code = "VIEW_INSTANCE_DUPLICATE"

	// CodeViewInstanceNotFound: update or remove for an untracked (path, id).
	CodeViewInstanceNotFound Code = "VIEW_INSTANCE_NOT_FOUND"

	// CodeConstructionCycle: a store factory requested its own key.
	CodeConstructionCycle Code = "CONSTRUCTION_CYCLE"

	// CodeFatal: any other fatal report.
	CodeFatal Code = "FATAL"
)

// Error is an invariant violation routed through Bus.ReportFatal.
type Error struct {
	Code    Code
	Message string
	Scope   ir.ScopeID
	Path    ir.Path
	StateID ir.StateID
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Fatal marks the error as one that must not be swallowed by panic
// recovery in the main loop.
func (e *Error) Fatal() bool {
	return true
}

// HasCode reports whether err is an *Error with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code Code) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// IsDuplicate reports whether err is a duplicate-registration violation
// (store attachment or scene root).
func IsDuplicate(err error) bool {
	return HasCode(err, CodeDuplicateAttachment) || HasCode(err, CodeDuplicateScene)
}

// NewDuplicateAttachmentError reports child already present under parent.
func NewDuplicateAttachmentError(scope ir.ScopeID, parent, child ir.StateID) *Error {
	return &Error{
		Code:    CodeDuplicateAttachment,
		Message: fmt.Sprintf("attach state[%s] to state[%s] failed: state with same id already attached", child, parent),
		Scope:   scope,
		StateID: child,
	}
}

// NewDuplicateSceneError reports a second live root for scope.
func NewDuplicateSceneError(scope ir.ScopeID) *Error {
	return &Error{
		Code:    CodeDuplicateScene,
		Message: fmt.Sprintf("attach scene root[%s] failed: scene with same scope already exists", scope),
		Scope:   scope,
		StateID: scope.StateID(),
	}
}

// NewViewInstanceDuplicateError reports add of an existing view instance.
func NewViewInstanceDuplicateError(scope ir.ScopeID, path ir.Path, id ir.StateID) *Error {
	return &Error{
		Code:    CodeViewInstanceDuplicate,
		Message: fmt.Sprintf("add view state[%s] at %s to scene[%s] failed: state already exists", id, path, scope),
		Scope:   scope,
		Path:    path,
		StateID: id,
	}
}

// NewViewInstanceNotFoundError reports update or remove of an unknown view instance.
func NewViewInstanceNotFoundError(op string, scope ir.ScopeID, path ir.Path, id ir.StateID) *Error {
	return &Error{
		Code:    CodeViewInstanceNotFound,
		Message: fmt.Sprintf("%s view state[%s] at %s on scene[%s] failed: state not exist", op, id, path, scope),
		Scope:   scope,
		Path:    path,
		StateID: id,
	}
}

// NewConstructionCycleError reports a factory that reentrantly requested
// the key it is building.
func NewConstructionCycleError(scope ir.ScopeID, key string) *Error {
	return &Error{
		Code:    CodeConstructionCycle,
		Message: fmt.Sprintf("construct %s in scope[%s] failed: factory requested its own key", key, scope),
		Scope:   scope,
		StateID: ir.StateID(key),
	}
}
