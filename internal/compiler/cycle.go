package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/viewflow/internal/ir"
)

// CycleError is a loop in the parent chain of declared states.
type CycleError struct {
	Path    []string `json:"path"` // e.g. ["A", "B", "A"]
	Message string   `json:"message"`
}

// ParentCycles finds every loop formed by parent links. A state that is
// its own parent is reported as a loop of one. Results are sorted by their
// first state name.
func ParentCycles(decls []ir.StateDecl) []CycleError {
	graph := make(parentGraph, len(decls))
	for _, d := range decls {
		if _, ok := graph[d.Name]; !ok {
			graph[d.Name] = nil
		}
		if d.Parent != "" {
			graph[d.Name] = append(graph[d.Name], d.Parent)
		}
	}

	var cycles []CycleError
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || graph.hasSelfLoop(scc[0]) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	slices.SortFunc(cycles, func(a, b CycleError) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return cycles
}

// parentGraph maps state name to its parent.
type parentGraph map[string][]string

func (g parentGraph) hasSelfLoop(node string) bool {
	return slices.Contains(g[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the output is deterministic.
func tarjanSCC(graph parentGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// sccToCycle walks parent links from the smallest name in scc back to it.
func sccToCycle(scc []string, graph parentGraph) CycleError {
	start := slices.Min(scc)
	path := []string{start}
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	for cur := start; ; {
		next := ""
		for _, p := range graph[cur] {
			if members[p] {
				next = p
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		cur = next
	}

	return CycleError{
		Path:    path,
		Message: "parent chain loops: " + strings.Join(path, " -> "),
	}
}

// Error implements the error interface.
func (c CycleError) Error() string {
	return fmt.Sprintf("[%s] %s", ErrParentCycle, c.Message)
}
