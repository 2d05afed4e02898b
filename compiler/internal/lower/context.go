// Package lower emits shader functions: the direct variant of every
// function, one function per child block of every stack-machine variant,
// and the i64 polyfills.
//
// Operand stack positions become typed variables named s{depth}_{type},
// locals become l{index} and direct-variant parameters a{index}. Branches
// move carried values into the target label's slots and then break or
// continue a labeled block or loop.
package lower

import (
	"github.com/LucentFlux/wasm-gpu/callgraph"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/program"
)

// BlockIDs resolves the BlockID of a machine's block.
type BlockIDs interface {
	BlockID(fn uint32, block int) gateway.BlockID
}

// Context is the module-wide state shared by every emitted function.
type Context struct {
	Program    *program.Program
	Analysis   *callgraph.Analysis
	Layout     numeric.Layout
	Globals    *Globals
	StackWords uint32

	// DirectName names the direct variant of a function.
	DirectName func(fn uint32) string
}

// Globals places the mutable globals in the per-lane globals buffer.
// Immutable globals are emitted as literals.
type Globals struct {
	Offsets []int
	Words   int
	Init    []uint32
}

// LayoutGlobals assigns buffer offsets to p's mutable globals.
func LayoutGlobals(p *program.Program, l numeric.Layout) *Globals {
	g := &Globals{Offsets: make([]int, len(p.Globals))}
	for i, gl := range p.Globals {
		if !gl.Mutable {
			g.Offsets[i] = -1
			continue
		}
		g.Offsets[i] = g.Words
		g.Words += l.Words(gl.Type)
		g.Init = append(g.Init, l.Encode(gl.Init)...)
	}
	return g
}
