package harness

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/viewflow/internal/compiler"
	"github.com/roach88/viewflow/internal/ir"
)

//go:embed builtin.cue
var builtinSource []byte

// BuiltinDecls returns the declarations every scenario starts with:
// Counter, Badge (parented to Counter) and Form.
func BuiltinDecls() ([]ir.StateDecl, error) {
	return compileSource(cuecontext.New(), "builtin.cue", builtinSource)
}

// Decls returns the builtin declarations overlaid with the scenario's spec
// files and inline states, in that order. A later declaration replaces an
// earlier one of the same name in place.
func (s *Scenario) Decls() ([]ir.StateDecl, error) {
	cctx := cuecontext.New()

	decls, err := compileSource(cctx, "builtin.cue", builtinSource)
	if err != nil {
		return nil, err
	}

	for _, path := range s.Specs {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read spec file: %w", err)
		}
		more, err := compileSource(cctx, path, src)
		if err != nil {
			return nil, err
		}
		decls = overlay(decls, more)
	}

	if s.States != "" {
		more, err := compileSource(cctx, s.Name+".states", []byte(s.States))
		if err != nil {
			return nil, err
		}
		decls = overlay(decls, more)
	}
	return decls, nil
}

func compileSource(cctx *cue.Context, name string, src []byte) ([]ir.StateDecl, error) {
	v := cctx.CompileBytes(src, cue.Filename(name))
	decls, err := compiler.CompileStates(v)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return decls, nil
}

func overlay(base, more []ir.StateDecl) []ir.StateDecl {
	index := make(map[string]int, len(base))
	for i, d := range base {
		index[d.Name] = i
	}
	for _, d := range more {
		if i, ok := index[d.Name]; ok {
			base[i] = d
			continue
		}
		index[d.Name] = len(base)
		base = append(base, d)
	}
	return base
}
