// Package declared runs states described by ir.StateDecl (usually compiled
// from CUE) as shared stores of ir.Object driven by ir.Command.
package declared
