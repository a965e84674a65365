package declared

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/viewflow/internal/compiler"
	"github.com/roach88/viewflow/internal/ir"
	"github.com/roach88/viewflow/internal/registry"
	"github.com/roach88/viewflow/internal/store"
)

// Catalog holds a validated set of declarations.
type Catalog struct {
	decls map[string]ir.StateDecl
	order []string
}

// NewCatalog validates decls and indexes them by name.
func NewCatalog(decls []ir.StateDecl) (*Catalog, error) {
	if verrs := compiler.Validate(decls); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, fmt.Errorf("invalid declarations: %w", errors.Join(errs...))
	}

	c := &Catalog{decls: make(map[string]ir.StateDecl, len(decls))}
	for _, d := range decls {
		c.decls[d.Name] = d
		c.order = append(c.order, d.Name)
	}
	return c, nil
}

// Names returns the declared state names in declaration order.
func (c *Catalog) Names() []string {
	return slices.Clone(c.order)
}

// Decl returns the declaration of name.
func (c *Catalog) Decl(name string) (ir.StateDecl, bool) {
	d, ok := c.decls[name]
	return d, ok
}

// TypeKey is the registry key of a declared state.
func TypeKey(name string) registry.TypeKey {
	return registry.TypeKey("declared/" + name)
}

// NewStore builds an unregistered store for name with its reducers
// installed. Commands that name no declared action are ignored.
func (c *Catalog) NewStore(name string, opts ...store.Option) (*store.Store[ir.Object], error) {
	decl, ok := c.decls[name]
	if !ok {
		return nil, fmt.Errorf("unknown state %q", name)
	}

	opts = append(slices.Clone(opts), store.WithStateID(ir.StateID(decl.Name)))
	st := store.New(decl.Initial.Clone(), opts...)
	for _, a := range decl.Actions {
		st.Register(a.Name, func(draft *ir.Object, action ir.Action) {
			cmd, ok := action.(ir.Command)
			if !ok {
				return
			}
			Apply(decl, a, *draft, cmd)
		})
	}
	return st, nil
}

// Spec returns the registry spec of name. A declared parent is resolved
// through the same catalog.
func (c *Catalog) Spec(name string) (registry.Spec[ir.Object], error) {
	decl, ok := c.decls[name]
	if !ok {
		return registry.Spec[ir.Object]{}, fmt.Errorf("unknown state %q", name)
	}

	spec := registry.Spec[ir.Object]{
		Type: TypeKey(name),
		New: func(_ context.Context, b registry.Build) (*store.Store[ir.Object], error) {
			return c.NewStore(name, b.Options...)
		},
	}
	if decl.Parent != "" {
		parent := decl.Parent
		spec.Parent = func(ctx context.Context, r *registry.Registry, scope ir.ScopeID) (store.Node, func(), error) {
			h, err := c.Shared(ctx, r, scope, parent)
			if err != nil {
				return nil, nil, err
			}
			return h.Store, h.Release, nil
		}
	}
	return spec, nil
}

// Shared returns a handle to the shared store of name in scope.
func (c *Catalog) Shared(ctx context.Context, reg *registry.Registry, scope ir.ScopeID, name string) (*store.Handle[ir.Object], error) {
	spec, err := c.Spec(name)
	if err != nil {
		return nil, err
	}
	return registry.GetOrCreate(ctx, reg, scope, spec)
}
