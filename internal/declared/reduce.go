package declared

import (
	"github.com/roach88/viewflow/internal/ir"
)

// Apply performs action a on draft in place, taking operands from cmd.
// Fields of the wrong kind are left untouched.
func Apply(decl ir.StateDecl, a ir.ActionDecl, draft ir.Object, cmd ir.Command) {
	if a.Op == ir.OpReset {
		clear(draft)
		for k, v := range decl.Initial {
			draft[k] = ir.CloneValue(v)
		}
		return
	}

	operand, hasOperand := operandOf(a, cmd)
	current := draft[a.Field]

	switch a.Op {
	case ir.OpSet:
		if hasOperand {
			draft[a.Field] = operand
		}
	case ir.OpAdd:
		n, ok := current.(ir.Int)
		if !ok {
			return
		}
		by := ir.Int(1)
		if a.By != 0 {
			by = ir.Int(a.By)
		}
		if d, ok := operand.(ir.Int); hasOperand && ok {
			by = d
		}
		draft[a.Field] = n + by
	case ir.OpToggle:
		if b, ok := current.(ir.Bool); ok {
			draft[a.Field] = !b
		}
	case ir.OpAppend:
		list, ok := current.(ir.List)
		if !ok || !hasOperand {
			return
		}
		draft[a.Field] = append(list, operand)
	case ir.OpRemove:
		list, ok := current.(ir.List)
		if !ok || !hasOperand {
			return
		}
		kept := make(ir.List, 0, len(list))
		for _, elem := range list {
			if !ir.Equal(elem, operand) {
				kept = append(kept, elem)
			}
		}
		draft[a.Field] = kept
	}
}

func operandOf(a ir.ActionDecl, cmd ir.Command) (ir.Value, bool) {
	if a.Arg != "" {
		if v, ok := cmd.Arg(a.Arg); ok {
			return ir.CloneValue(v), true
		}
	}
	if a.Value != nil {
		return ir.CloneValue(a.Value), true
	}
	return nil, false
}
