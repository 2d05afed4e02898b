// Package callgraph builds the direct-call graph of a program and analyzes
// it for recursion.
//
// Nodes are defined functions. Calls to imports, call_indirect and memory
// size/grow are host operations handled by the gateway; they never become
// edges. Analyze condenses the graph into strongly connected components,
// marks recursion groups, computes a callee-first total order and decides
// which functions need a stack-machine variant.
package callgraph

import (
	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/program"
)

// Graph represents the direct call relationships between defined functions.
// Maps each function index to the defined functions it calls, deduplicated,
// in order of first appearance.
type Graph struct {
	Program *program.Program
	Edges   map[uint32][]uint32
}

// Build collects the direct call targets of every defined function in a
// single pass. A call to an index outside the function index space is a
// malformed-module error.
func Build(p *program.Program) (*Graph, error) {
	g := &Graph{Program: p, Edges: make(map[uint32][]uint32, len(p.Funcs))}
	count := p.NumImports() + len(p.Funcs)

	for _, f := range p.Funcs {
		var callees []uint32
		for _, target := range f.Calls {
			if int(target) >= count {
				return nil, errors.DanglingCall(f.Name, target, count)
			}
			if p.IsImport(target) {
				continue
			}
			callees = appendUnique(callees, target)
		}
		g.Edges[f.Index] = callees
	}
	return g, nil
}

// Callees returns the defined functions fn calls directly.
func (g *Graph) Callees(fn uint32) []uint32 {
	return g.Edges[fn]
}

// Callers returns the inverse graph.
func (g *Graph) Callers() map[uint32][]uint32 {
	callers := make(map[uint32][]uint32)
	for _, f := range g.Program.Funcs {
		for _, c := range g.Edges[f.Index] {
			callers[c] = append(callers[c], f.Index)
		}
	}
	return callers
}

// TransitiveCallees returns every function reachable from sources,
// including the sources themselves.
func (g *Graph) TransitiveCallees(sources map[uint32]bool) map[uint32]bool {
	return closure(sources, g.Edges)
}

// TransitiveCallers returns every function that can reach any target,
// including the targets themselves.
func (g *Graph) TransitiveCallers(targets map[uint32]bool) map[uint32]bool {
	return closure(targets, g.Callers())
}

func closure(seed map[uint32]bool, adj map[uint32][]uint32) map[uint32]bool {
	result := make(map[uint32]bool, len(seed))
	var work []uint32
	for n := range seed {
		result[n] = true
		work = append(work, n)
	}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		for _, m := range adj[n] {
			if !result[m] {
				result[m] = true
				work = append(work, m)
			}
		}
	}
	return result
}

func appendUnique(slice []uint32, val uint32) []uint32 {
	for _, v := range slice {
		if v == val {
			return slice
		}
	}
	return append(slice, val)
}
