package frame

import (
	"github.com/LucentFlux/wasm-gpu/compiler/internal/split"
	"github.com/LucentFlux/wasm-gpu/program"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

// Liveness computes, for every block of m, the locals live on entry: those
// read on some path before being written. Writes inside a nested construct
// are conditional, so only writes at a block's top level kill.
func Liveness(m *split.Machine) []*BitSet {
	n := len(m.Func.Locals)
	gen := make([]*BitSet, len(m.Blocks))
	kill := make([]*BitSet, len(m.Blocks))
	for i, b := range m.Blocks {
		gen[i], kill[i] = NewBitSet(n), NewBitSet(n)
		for _, node := range b.Body {
			transfer(node, gen[i], kill[i], true)
		}
	}

	liveIn := make([]*BitSet, len(m.Blocks))
	for i := range liveIn {
		liveIn[i] = gen[i].Clone()
	}

	// Backward dataflow to a fixed point. Visiting blocks in reverse creation
	// order converges quickly for structured code.
	for changed := true; changed; {
		changed = false
		for i := len(m.Blocks) - 1; i >= 0; i-- {
			out := NewBitSet(n)
			for _, s := range m.Blocks[i].Term.Successors() {
				out.Union(liveIn[s])
			}
			if liveIn[i].UnionMinus(out, kill[i]) {
				changed = true
			}
		}
	}
	return liveIn
}

func transfer(node program.Node, gen, kill *BitSet, top bool) {
	switch n := node.(type) {
	case *program.Seq:
		for _, c := range n.Children {
			transfer(c, gen, kill, top)
		}
	case *program.Block:
		transfer(n.Body, gen, kill, false)
	case *program.If:
		transfer(n.Then, gen, kill, false)
		if n.Else != nil {
			transfer(n.Else, gen, kill, false)
		}
	case *program.Instr:
		switch n.Opcode {
		case wasm.OpLocalGet:
			idx := n.Imm.(wasm.LocalImm).LocalIdx
			if !kill.Has(idx) {
				gen.Set(idx)
			}
		case wasm.OpLocalSet, wasm.OpLocalTee:
			if top {
				kill.Set(n.Imm.(wasm.LocalImm).LocalIdx)
			}
		}
	}
}
