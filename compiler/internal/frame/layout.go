// Package frame lays out stack frames for child blocks and emits the shader
// code that pushes and pops them.
//
// A frame is the block's payload followed by its BlockID. The payload of the
// entry block is the function's parameters. The payload of any other block
// is the locals live on entry, in index order, followed by its entry operand
// stack. A call pushes the continuation's payload without the callee's
// results, reserves room for the results, pushes the continuation BlockID,
// then the arguments and the callee's entry BlockID. The callee's entry
// frame is exactly [arguments][entry BlockID].
package frame

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/compiler/internal/split"
	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/numeric"
)

// Payload describes the frame of one block.
type Payload struct {
	// Locals are the saved local indices, ascending.
	Locals []uint32
	// Types lists the payload's value types: the saved locals then the entry
	// operand stack.
	Types   []numeric.ValueType
	Offsets []int
	Words   int
}

// FrameWords is the payload plus the BlockID slot.
func (p *Payload) FrameWords() int {
	return p.Words + 1
}

// Frames is the frame layout of one machine.
type Frames struct {
	Machine  *split.Machine
	Layout   numeric.Layout
	Payloads []*Payload
}

// Build lays out every block of m and checks that each push fits in a stack
// of stackWords data words.
func Build(m *split.Machine, l numeric.Layout, stackWords uint32) (*Frames, error) {
	fr := &Frames{Machine: m, Layout: l, Payloads: make([]*Payload, len(m.Blocks))}
	live := Liveness(m)
	params := len(m.Func.Type.Params)

	for i, b := range m.Blocks {
		p := &Payload{}
		if i == 0 {
			for j := 0; j < params; j++ {
				p.Locals = append(p.Locals, uint32(j))
			}
		} else {
			p.Locals = live[i].Slice()
		}
		for _, idx := range p.Locals {
			p.Types = append(p.Types, m.Func.Locals[idx])
		}
		p.Types = append(p.Types, b.Entry...)
		p.Offsets, p.Words = l.Offsets(p.Types)
		fr.Payloads[i] = p
	}

	for _, b := range m.Blocks {
		if need := fr.PushWords(b); need > int(stackWords) {
			return nil, errors.New(errors.PhaseLayout, errors.KindCapacity).
				Func(m.Func.Name).
				Detail("block %d pushes %d words, stack holds %d", b.Index, need, stackWords).
				Value(uint64(need)).Build()
		}
	}
	return fr, nil
}

// PushWords returns the number of words b's terminator pushes after b's own
// frame has been popped.
func (fr *Frames) PushWords(b *split.Block) int {
	switch b.Term.Kind {
	case split.Goto, split.Branch, split.Switch:
		n := 0
		for _, e := range b.Term.Edges {
			n = max(n, fr.Payloads[e.Target].FrameWords())
		}
		return n
	case split.Call, split.HostYield:
		return fr.Payloads[b.Term.Next].FrameWords() + fr.Layout.SizeOf(b.Term.Args) + 1
	}
	return 0
}

// Saved returns the continuation payload words a call from b writes before
// the reserved result region: the payload of Next minus the results.
func (fr *Frames) Saved(b *split.Block) int {
	return fr.Payloads[b.Term.Next].Words - fr.Layout.SizeOf(b.Term.Results)
}

func (p *Payload) String() string {
	return fmt.Sprintf("locals %v types %v (%d words)", p.Locals, p.Types, p.Words)
}
