// Package compiler turns CUE state declarations into ir.StateDecl values
// and validates them.
//
// A declaration file looks like:
//
//	state: Cart: {
//		initial: {items: [], count: 0}
//		action: add: {op: "append", field: "items", arg: "item"}
//		action: clear: {op: "reset"}
//	}
//
//	state: CartBadge: {
//		parent: "Cart"
//		initial: {count: 0}
//		action: bump: {op: "add", field: "count"}
//	}
//
// Floats are rejected everywhere; use int.
package compiler
