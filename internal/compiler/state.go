package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/viewflow/internal/ir"
)

// CompileStates compiles every declaration under the top-level "state"
// field of v, in source order. A value without "state" yields none.
func CompileStates(v cue.Value) ([]ir.StateDecl, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	statesVal := v.LookupPath(cue.ParsePath("state"))
	if !statesVal.Exists() {
		return nil, nil
	}

	iter, err := statesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []ir.StateDecl
	for iter.Next() {
		decl, err := CompileState(iter.Value())
		if err != nil {
			return nil, err
		}
		decls = append(decls, *decl)
	}
	return decls, nil
}

// CompileState compiles one declaration. The state name is the last
// selector of v's path, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`state: Cart: { initial: {count: 0} }`)
//	decl, err := CompileState(v.LookupPath(cue.ParsePath("state.Cart")))
func CompileState(v cue.Value) (*ir.StateDecl, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	decl := &ir.StateDecl{Initial: ir.Object{}}
	if sels := v.Path().Selectors(); len(sels) > 0 {
		decl.Name = sels[len(sels)-1].String()
	}

	if parentVal := v.LookupPath(cue.ParsePath("parent")); parentVal.Exists() {
		parent, err := parentVal.String()
		if err != nil {
			return nil, &CompileError{Field: "parent", Message: "parent must be a state name", Pos: parentVal.Pos()}
		}
		decl.Parent = parent
	}

	if initVal := v.LookupPath(cue.ParsePath("initial")); initVal.Exists() {
		initial, err := toValue(initVal, "initial")
		if err != nil {
			return nil, err
		}
		obj, ok := initial.(ir.Object)
		if !ok {
			return nil, &CompileError{Field: "initial", Message: "initial must be a struct", Pos: initVal.Pos()}
		}
		decl.Initial = obj
	}

	actions, err := parseActions(v)
	if err != nil {
		return nil, err
	}
	decl.Actions = actions
	return decl, nil
}

func parseActions(v cue.Value) ([]ir.ActionDecl, error) {
	actionVal := v.LookupPath(cue.ParsePath("action"))
	if !actionVal.Exists() {
		return nil, nil
	}

	iter, err := actionVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var actions []ir.ActionDecl
	for iter.Next() {
		name := iter.Label()
		av := iter.Value()
		field := "action." + name

		action := ir.ActionDecl{Name: name}

		opVal := av.LookupPath(cue.ParsePath("op"))
		if !opVal.Exists() {
			return nil, &CompileError{Field: field + ".op", Message: "op is required", Pos: av.Pos()}
		}
		op, err := opVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		action.Op = ir.Op(op)

		for _, s := range []struct {
			label string
			dst   *string
		}{
			{"field", &action.Field},
			{"arg", &action.Arg},
		} {
			sv := av.LookupPath(cue.ParsePath(s.label))
			if !sv.Exists() {
				continue
			}
			str, err := sv.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			*s.dst = str
		}

		if valueVal := av.LookupPath(cue.ParsePath("value")); valueVal.Exists() {
			val, err := toValue(valueVal, field+".value")
			if err != nil {
				return nil, err
			}
			action.Value = val
		}

		if byVal := av.LookupPath(cue.ParsePath("by")); byVal.Exists() {
			if byVal.IncompleteKind() != cue.IntKind {
				return nil, &CompileError{Field: field + ".by", Message: "by must be an int", Pos: byVal.Pos()}
			}
			by, err := byVal.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			action.By = by
		}

		actions = append(actions, action)
	}
	return actions, nil
}

// toValue converts a concrete CUE value to an ir.Value.
func toValue(v cue.Value, field string) (ir.Value, error) {
	if !v.IsConcrete() {
		return nil, &CompileError{Field: field, Message: "value must be concrete", Pos: v.Pos()}
	}

	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := ir.List{}
		for i := 0; iter.Next(); i++ {
			elem, err := toValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Object{}
		for iter.Next() {
			elem, err := toValue(iter.Value(), field+"."+iter.Label())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	case cue.FloatKind:
		return nil, &CompileError{Field: field, Message: "float values are forbidden, use int", Pos: v.Pos()}
	default:
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("unsupported kind: %v", v.Kind()), Pos: v.Pos()}
	}
}

// CompileError is a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
