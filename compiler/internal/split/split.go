// Package split partitions a function's structured body into child blocks
// for its stack-machine variant.
//
// Every block ends in exactly one terminator: a jump, a conditional or
// table branch, a call, a host yield, a return or a trap. Calls and host
// operations always end a block. A block, loop or if stays inline inside a
// child block when it contains no split point, no return and no branch that
// leaves it; otherwise the walk descends into it and its label becomes a
// block of its own. Block 0 is the function's entry block and is never the
// target of a branch.
package split

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/callgraph"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/program"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

// TermKind is the kind of a block terminator.
type TermKind uint8

const (
	Goto TermKind = iota
	Branch
	Switch
	Call
	HostYield
	Return
	Trap
)

func (k TermKind) String() string {
	switch k {
	case Goto:
		return "goto"
	case Branch:
		return "branch"
	case Switch:
		return "switch"
	case Call:
		return "call"
	case HostYield:
		return "host"
	case Return:
		return "return"
	case Trap:
		return "trap"
	}
	return fmt.Sprintf("TermKind(%d)", uint8(k))
}

// Edge is a control transfer to another block of the same machine. The
// target is entered with the bottom Keep operands of the current stack
// followed by its top Carry operands.
type Edge struct {
	Target int
	Keep   int
	Carry  int
}

// Term is a block terminator.
type Term struct {
	Host *gateway.HostFunc

	// Edges holds the Goto target, the Branch [taken, not taken] pair, or the
	// Switch cases followed by the default.
	Edges []Edge

	// Args and Results are the callee's types for Call and HostYield.
	Args    []numeric.ValueType
	Results []numeric.ValueType

	// Next is the continuation block of Call and HostYield.
	Next int

	Callee uint32
	Code   gateway.TrapCode
	Kind   TermKind
}

// Successors returns the indices of the blocks control may reach next
// within the machine.
func (t *Term) Successors() []int {
	var out []int
	for _, e := range t.Edges {
		out = append(out, e.Target)
	}
	if t.Kind == Call || t.Kind == HostYield {
		out = append(out, t.Next)
	}
	return out
}

// Block is a child block.
type Block struct {
	// Entry is the operand stack on entry.
	Entry []numeric.ValueType
	// Body is straight-line code; every construct in it is self-contained.
	Body []program.Node
	// Stack is the operand stack when the terminator starts, including any
	// condition, selector, arguments or return values it consumes.
	Stack []numeric.ValueType
	Term  Term
	Index int
}

// Machine is the stack-machine variant of one function.
type Machine struct {
	Func   *program.Function
	Blocks []*Block
}

// Splitter holds the module-wide context for splitting.
type Splitter struct {
	Program  *program.Program
	Analysis *callgraph.Analysis
	Hosts    *gateway.Table
}

type label struct {
	types  []numeric.ValueType
	target int
	height int
	fn     bool
}

type walker struct {
	*Splitter
	f      *program.Function
	m      *Machine
	cur    *Block
	stack  program.TypeStack
	labels []label
	ret    int
}

// Split partitions f into child blocks. f must have passed Program.Check.
func (s *Splitter) Split(f *program.Function) (*Machine, error) {
	w := &walker{Splitter: s, f: f, m: &Machine{Func: f}, ret: -1}
	w.cur = w.newBlock(nil)
	w.labels = []label{{fn: true, types: f.Type.Results}}

	if err := w.seq(f.Body); err != nil {
		return nil, err
	}
	if w.cur != nil {
		w.terminate(Term{Kind: Return, Results: f.Type.Results})
	}
	w.prune()
	return w.m, nil
}

func (w *walker) newBlock(entry []numeric.ValueType) *Block {
	b := &Block{Index: len(w.m.Blocks), Entry: append([]numeric.ValueType(nil), entry...)}
	w.m.Blocks = append(w.m.Blocks, b)
	return b
}

// enter makes b current with its entry stack.
func (w *walker) enter(b *Block) {
	w.cur = b
	w.stack = program.TypeStack(b.Entry).Clone()
}

func (w *walker) terminate(t Term) {
	w.cur.Stack = w.stack.Clone()
	w.cur.Term = t
	w.cur = nil
}

func (w *walker) edge(l label) Edge {
	if l.fn {
		return Edge{Target: w.returnBlock(), Keep: 0, Carry: len(l.types)}
	}
	return Edge{Target: l.target, Keep: l.height, Carry: len(l.types)}
}

// returnBlock is the shared target of conditional branches to the function
// label.
func (w *walker) returnBlock() int {
	if w.ret < 0 {
		b := w.newBlock(w.f.Type.Results)
		b.Stack = append([]numeric.ValueType(nil), w.f.Type.Results...)
		b.Term = Term{Kind: Return, Results: w.f.Type.Results}
		w.ret = b.Index
	}
	return w.ret
}

func (w *walker) seq(s *program.Seq) error {
	for _, n := range s.Children {
		if w.cur == nil {
			// Code after a construct no path falls out of.
			w.cur = w.newBlock(w.stack)
		}

		var err error
		switch n := n.(type) {
		case *program.Instr:
			err = w.instr(n)
		case *program.Block:
			switch {
			case w.native(n):
				w.inline(n, n.Params, n.Results)
			case n.Loop:
				err = w.loop(n)
			default:
				err = w.block(n)
			}
		case *program.If:
			if w.native(n) {
				w.inline(n, append(append([]numeric.ValueType(nil), n.Params...), numeric.I32), n.Results)
			} else {
				err = w.ifElse(n)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) inline(n program.Node, pops, pushes []numeric.ValueType) {
	w.cur.Body = append(w.cur.Body, n)
	w.stack = w.stack[:len(w.stack)-len(pops)]
	w.stack = append(w.stack, pushes...)
}

func (w *walker) block(n *program.Block) error {
	base := len(w.stack) - len(n.Params)
	join := w.newBlock(append(w.stack[:base:base], n.Results...))

	w.labels = append(w.labels, label{target: join.Index, types: n.Results, height: base})
	err := w.seq(n.Body)
	w.labels = w.labels[:len(w.labels)-1]
	if err != nil {
		return err
	}
	if w.cur != nil {
		w.terminate(Term{Kind: Goto, Edges: []Edge{{Target: join.Index, Keep: base, Carry: len(n.Results)}}})
	}
	w.enter(join)
	return nil
}

func (w *walker) loop(n *program.Block) error {
	base := len(w.stack) - len(n.Params)
	header := w.newBlock(w.stack)
	w.terminate(Term{Kind: Goto, Edges: []Edge{{Target: header.Index, Keep: len(header.Entry)}}})
	w.enter(header)

	w.labels = append(w.labels, label{target: header.Index, types: n.Params, height: base})
	err := w.seq(n.Body)
	w.labels = w.labels[:len(w.labels)-1]
	if err != nil {
		return err
	}
	// The loop falls out with its results in place.
	w.stack = append(w.stack[:base:base], n.Results...)
	return nil
}

func (w *walker) ifElse(n *program.If) error {
	cond := w.stack.Clone()
	w.stack = w.stack[:len(w.stack)-1]
	h := len(w.stack)
	base := h - len(n.Params)

	join := w.newBlock(append(w.stack[:base:base], n.Results...))
	then := w.newBlock(w.stack)
	els := join
	if n.Else != nil {
		els = w.newBlock(w.stack)
	}
	w.cur.Stack = cond
	w.cur.Term = Term{Kind: Branch, Edges: []Edge{
		{Target: then.Index, Keep: h},
		{Target: els.Index, Keep: h},
	}}

	arms := []struct {
		b    *Block
		body *program.Seq
	}{{then, n.Then}}
	if n.Else != nil {
		arms = append(arms, struct {
			b    *Block
			body *program.Seq
		}{els, n.Else})
	}

	w.labels = append(w.labels, label{target: join.Index, types: n.Results, height: base})
	for _, arm := range arms {
		w.enter(arm.b)
		if err := w.seq(arm.body); err != nil {
			return err
		}
		if w.cur != nil {
			w.terminate(Term{Kind: Goto, Edges: []Edge{{Target: join.Index, Keep: base, Carry: len(n.Results)}}})
		}
	}
	w.labels = w.labels[:len(w.labels)-1]
	w.enter(join)
	return nil
}

func (w *walker) target(depth uint32) label {
	return w.labels[len(w.labels)-1-int(depth)]
}

func (w *walker) instr(n *program.Instr) error {
	p := w.Program
	switch n.Opcode {
	case wasm.OpBr:
		l := w.target(n.Imm.(wasm.BranchImm).LabelIdx)
		if l.fn {
			w.terminate(Term{Kind: Return, Results: l.types})
			return nil
		}
		w.terminate(Term{Kind: Goto, Edges: []Edge{w.edge(l)}})
		return nil

	case wasm.OpBrIf:
		l := w.target(n.Imm.(wasm.BranchImm).LabelIdx)
		taken := w.edge(l)
		stack := w.stack.Clone()
		w.stack = w.stack[:len(w.stack)-1]
		next := w.newBlock(w.stack)
		w.cur.Stack = stack
		w.cur.Term = Term{Kind: Branch, Edges: []Edge{taken, {Target: next.Index, Keep: len(w.stack)}}}
		w.enter(next)
		return nil

	case wasm.OpBrTable:
		imm := n.Imm.(wasm.BrTableImm)
		var edges []Edge
		for _, d := range imm.Labels {
			edges = append(edges, w.edge(w.target(d)))
		}
		edges = append(edges, w.edge(w.target(imm.Default)))
		w.terminate(Term{Kind: Switch, Edges: edges})
		return nil

	case wasm.OpReturn:
		w.terminate(Term{Kind: Return, Results: w.f.Type.Results})
		return nil

	case wasm.OpUnreachable:
		w.terminate(Term{Kind: Trap, Code: gateway.TrapUnreachable})
		return nil

	case wasm.OpCall:
		target := n.Imm.(wasm.CallImm).FuncIdx
		sig, _ := p.Signature(target)
		if p.IsImport(target) {
			w.yield(Term{Kind: HostYield, Host: w.Hosts.Import(p.Imports[target])}, sig.Params, sig.Results)
			return nil
		}
		if w.Analysis.CanCallDirect(w.f.Index, target) {
			break
		}
		w.yield(Term{Kind: Call, Callee: target}, sig.Params, sig.Results)
		return nil

	case wasm.OpCallIndirect:
		typeIdx := n.Imm.(wasm.CallIndirectImm).TypeIdx
		h := w.Hosts.Indirect(typeIdx, p.Types[typeIdx])
		w.yield(Term{Kind: HostYield, Host: h}, h.Params, h.Results)
		return nil

	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		kind := gateway.HostMemorySize
		if n.Opcode == wasm.OpMemoryGrow {
			kind = gateway.HostMemoryGrow
		}
		h := w.Hosts.Memory(kind)
		w.yield(Term{Kind: HostYield, Host: h}, h.Params, h.Results)
		return nil
	}

	eff, err := p.Effect(w.f, n.Instruction, w.stack)
	if err != nil {
		return err
	}
	if err := w.stack.Apply(w.f.Name, eff); err != nil {
		return err
	}
	w.cur.Body = append(w.cur.Body, n)
	return nil
}

// yield ends the block with a call or host yield whose results arrive on
// top of the continuation's entry stack.
func (w *walker) yield(t Term, params, results []numeric.ValueType) {
	t.Args = params
	t.Results = results
	stack := w.stack.Clone()
	base := len(w.stack) - len(params)
	next := w.newBlock(append(w.stack[:base:base], results...))
	t.Next = next.Index
	w.cur.Stack = stack
	w.cur.Term = t
	w.enter(next)
}

// native reports whether n can stay inline: it contains no call that needs
// the stack machine, no host operation, no return and no branch leaving n.
func (w *walker) native(n program.Node) bool {
	return w.nativeAt(n, 0)
}

func (w *walker) nativeAt(n program.Node, depth int) bool {
	switch n := n.(type) {
	case *program.Seq:
		for _, c := range n.Children {
			if !w.nativeAt(c, depth) {
				return false
			}
		}
		return true
	case *program.Block:
		return w.nativeAt(n.Body, depth+1)
	case *program.If:
		return w.nativeAt(n.Then, depth+1) && (n.Else == nil || w.nativeAt(n.Else, depth+1))
	case *program.Instr:
		switch n.Opcode {
		case wasm.OpBr, wasm.OpBrIf:
			return int(n.Imm.(wasm.BranchImm).LabelIdx) < depth
		case wasm.OpBrTable:
			imm := n.Imm.(wasm.BrTableImm)
			if int(imm.Default) >= depth {
				return false
			}
			for _, l := range imm.Labels {
				if int(l) >= depth {
					return false
				}
			}
			return true
		case wasm.OpReturn, wasm.OpCallIndirect, wasm.OpMemorySize, wasm.OpMemoryGrow:
			return false
		case wasm.OpCall:
			return w.Analysis.CanCallDirect(w.f.Index, n.Imm.(wasm.CallImm).FuncIdx)
		}
	}
	return true
}

// prune drops blocks unreachable from the entry block and renumbers the rest.
func (w *walker) prune() {
	blocks := w.m.Blocks
	seen := make([]bool, len(blocks))
	order := []int{0}
	seen[0] = true
	for i := 0; i < len(order); i++ {
		for _, s := range blocks[order[i]].Term.Successors() {
			if !seen[s] {
				seen[s] = true
				order = append(order, s)
			}
		}
	}

	remap := make([]int, len(blocks))
	var kept []*Block
	for i, b := range blocks {
		if seen[i] {
			remap[i] = len(kept)
			kept = append(kept, b)
		}
	}
	for _, b := range kept {
		b.Index = remap[b.Index]
		for i := range b.Term.Edges {
			b.Term.Edges[i].Target = remap[b.Term.Edges[i].Target]
		}
		if b.Term.Kind == Call || b.Term.Kind == HostYield {
			b.Term.Next = remap[b.Term.Next]
		}
	}
	w.m.Blocks = kept
}
