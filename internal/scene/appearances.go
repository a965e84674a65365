package scene

import (
	"slices"

	"github.com/roach88/viewflow/internal/ir"
)

// Appearances is the ordered list of paths currently on screen in a scope,
// most recently surfaced and most deeply nested first.
//
// Appearances is a value: Appear and Disappear return a new list and leave
// the receiver untouched.
type Appearances []ir.Path

// Appear inserts p before the first entry that is not a subpath of p.
// Descendants of p ahead of that entry stay ahead of it. When every entry
// is a descendant of p (or the list is empty), p goes first.
func (a Appearances) Appear(p ir.Path) Appearances {
	idx := slices.IndexFunc(a, func(e ir.Path) bool { return !e.IsSubpathOf(p) })
	if idx < 0 {
		idx = 0
	}
	return slices.Insert(slices.Clone(a), idx, p)
}

// Disappear removes the first entry equal to p. Unknown paths are ignored.
func (a Appearances) Disappear(p ir.Path) Appearances {
	idx := slices.Index(a, p)
	if idx < 0 {
		return a
	}
	return slices.Delete(slices.Clone(a), idx, idx+1)
}

// Topmost returns the front entry.
func (a Appearances) Topmost() (ir.Path, bool) {
	if len(a) == 0 {
		return ir.Path{}, false
	}
	return a[0], true
}

// Contains reports whether p is on screen.
func (a Appearances) Contains(p ir.Path) bool {
	return slices.Contains(a, p)
}

// Strings renders every path with Path.String.
func (a Appearances) Strings() []string {
	out := make([]string, len(a))
	for i, p := range a {
		out[i] = p.String()
	}
	return out
}
