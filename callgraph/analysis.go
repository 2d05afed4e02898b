package callgraph

import (
	"sort"

	"github.com/LucentFlux/wasm-gpu/program"
)

// Group is a recursion group: a strongly connected component with more than
// one member, or a single self-recursive function. Members are sorted by
// declaration order.
type Group struct {
	Members []uint32
	ID      int
}

// Analysis holds the recursion analysis of a call graph. It is immutable
// once built and safe for concurrent readers.
type Analysis struct {
	Graph *Graph

	// Groups are listed in total order of their first member.
	Groups []*Group

	// Order lists every defined function callee-first: for each edge F->G
	// between different groups, G precedes F. Ties are broken by
	// declaration order and group members are adjacent.
	Order []uint32

	rank       map[uint32]int
	groupOf    map[uint32]*Group
	reachable  map[uint32]bool
	hostYields map[uint32]bool
	machine    map[uint32]bool
	direct     map[uint32]bool
}

// Analyze computes recursion groups, the total order and the variant
// decisions for every defined function.
func Analyze(g *Graph) *Analysis {
	p := g.Program
	a := &Analysis{
		Graph:      g,
		rank:       make(map[uint32]int, len(p.Funcs)),
		groupOf:    make(map[uint32]*Group),
		hostYields: make(map[uint32]bool),
		direct:     make(map[uint32]bool),
	}

	comps := tarjan(g)
	compOf := make(map[uint32]int, len(p.Funcs))
	for ci, comp := range comps {
		for _, fn := range comp {
			compOf[fn] = ci
		}
	}

	for _, ci := range condensationOrder(g, comps, compOf) {
		comp := comps[ci]
		if len(comp) > 1 || selfLoop(g, comp[0]) {
			grp := &Group{ID: len(a.Groups), Members: comp}
			a.Groups = append(a.Groups, grp)
			for _, fn := range comp {
				a.groupOf[fn] = grp
			}
		}
		a.Order = append(a.Order, comp...)
	}
	for i, fn := range a.Order {
		a.rank[fn] = i
	}

	roots := make(map[uint32]bool, len(a.groupOf))
	for fn := range a.groupOf {
		roots[fn] = true
	}
	a.reachable = g.TransitiveCallees(roots)

	for _, f := range p.Funcs {
		if p.HostOps(f) {
			a.hostYields[f.Index] = true
			roots[f.Index] = true
		}
	}
	a.machine = g.TransitiveCallers(roots)
	for fn := range a.reachable {
		a.machine[fn] = true
	}

	// Order is callee-first, so every callee outside the caller's group is
	// decided before the caller.
	for _, fn := range a.Order {
		if a.groupOf[fn] != nil || a.hostYields[fn] {
			continue
		}
		safe := true
		for _, c := range g.Edges[fn] {
			if !a.direct[c] {
				safe = false
				break
			}
		}
		a.direct[fn] = safe
	}
	return a
}

// GroupOf returns the recursion group containing fn.
func (a *Analysis) GroupOf(fn uint32) (*Group, bool) {
	grp, ok := a.groupOf[fn]
	return grp, ok
}

// Rank returns fn's position in Order, or -1 for imports and unknown indices.
func (a *Analysis) Rank(fn uint32) int {
	r, ok := a.rank[fn]
	if !ok {
		return -1
	}
	return r
}

// ReachableFromGroup reports whether fn is in or reachable from a recursion group.
func (a *Analysis) ReachableFromGroup(fn uint32) bool {
	return a.reachable[fn]
}

// HostYields reports whether fn itself performs a host operation.
func (a *Analysis) HostYields(fn uint32) bool {
	return a.hostYields[fn]
}

// NeedsMachine reports whether fn gets a stack-machine variant: it is in or
// reachable from a recursion group, or it can reach a recursion group or a
// host operation.
func (a *Analysis) NeedsMachine(fn uint32) bool {
	return a.machine[fn]
}

// DirectSafe reports whether fn can run to completion as an ordinary call:
// it is in no group, performs no host operation and only calls DirectSafe
// functions.
func (a *Analysis) DirectSafe(fn uint32) bool {
	return a.direct[fn]
}

// CanCallDirect reports whether a call from caller to callee may be lowered
// as an ordinary direct call. This holds exactly when callee is DirectSafe,
// which places it strictly below caller in Order.
func (a *Analysis) CanCallDirect(caller, callee uint32) bool {
	return a.direct[callee] && a.Rank(callee) < a.Rank(caller)
}

// MachineSet returns the functions needing a stack-machine variant, in Order.
func (a *Analysis) MachineSet() []uint32 {
	var out []uint32
	for _, fn := range a.Order {
		if a.machine[fn] {
			out = append(out, fn)
		}
	}
	return out
}

func selfLoop(g *Graph, fn uint32) bool {
	for _, c := range g.Edges[fn] {
		if c == fn {
			return true
		}
	}
	return false
}

// tarjan returns the strongly connected components of g, each sorted by
// declaration order.
func tarjan(g *Graph) [][]uint32 {
	p := g.Program
	t := &tarjanState{
		g:       g,
		index:   make(map[uint32]int, len(p.Funcs)),
		low:     make(map[uint32]int, len(p.Funcs)),
		onStack: make(map[uint32]bool, len(p.Funcs)),
	}
	for _, f := range p.Funcs {
		if _, seen := t.index[f.Index]; !seen {
			t.visit(f.Index)
		}
	}
	for _, comp := range t.comps {
		sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
	}
	return t.comps
}

type tarjanState struct {
	g       *Graph
	index   map[uint32]int
	low     map[uint32]int
	onStack map[uint32]bool
	stack   []uint32
	comps   [][]uint32
	next    int
}

func (t *tarjanState) visit(v uint32) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.g.Edges[v] {
		if _, seen := t.index[w]; !seen {
			t.visit(w)
			t.low[v] = min(t.low[v], t.low[w])
		} else if t.onStack[w] {
			t.low[v] = min(t.low[v], t.index[w])
		}
	}

	if t.low[v] != t.index[v] {
		return
	}
	var comp []uint32
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		comp = append(comp, w)
		if w == v {
			break
		}
	}
	t.comps = append(t.comps, comp)
}

// condensationOrder topologically sorts the components callee-first. Among
// components whose callees are all placed, the one declared first goes next.
func condensationOrder(g *Graph, comps [][]uint32, compOf map[uint32]int) []int {
	pending := make([]int, len(comps))
	dependents := make([][]int, len(comps))
	for ci, comp := range comps {
		seen := map[int]bool{}
		for _, fn := range comp {
			for _, c := range g.Edges[fn] {
				cj := compOf[c]
				if cj == ci || seen[cj] {
					continue
				}
				seen[cj] = true
				pending[ci]++
				dependents[cj] = append(dependents[cj], ci)
			}
		}
	}

	first := func(ci int) uint32 { return comps[ci][0] }
	var ready []int
	for ci := range comps {
		if pending[ci] == 0 {
			ready = append(ready, ci)
		}
	}

	order := make([]int, 0, len(comps))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return first(ready[i]) < first(ready[j]) })
		ci := ready[0]
		ready = ready[1:]
		order = append(order, ci)
		for _, cj := range dependents[ci] {
			pending[cj]--
			if pending[cj] == 0 {
				ready = append(ready, cj)
			}
		}
	}
	return order
}

// Functions returns the program's defined functions in Order.
func (a *Analysis) Functions() []*program.Function {
	out := make([]*program.Function, 0, len(a.Order))
	for _, fn := range a.Order {
		out = append(out, a.Graph.Program.Func(fn))
	}
	return out
}
