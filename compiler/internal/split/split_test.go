package split

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LucentFlux/wasm-gpu/callgraph"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/internal/testmod"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/program"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

var i32 = testmod.Types(testmod.I32T)

func splitter(t *testing.T, b *testmod.Builder) (*Splitter, *program.Program) {
	t.Helper()
	p, err := program.FromModule(b.Module())
	require.NoError(t, err)
	for _, f := range p.Funcs {
		require.NoError(t, p.Check(f))
	}
	g, err := callgraph.Build(p)
	require.NoError(t, err)
	return &Splitter{Program: p, Analysis: callgraph.Analyze(g), Hosts: gateway.NewTable(numeric.Layout{})}, p
}

// fact computes n! recursively.
func fact(b *testmod.Builder) uint32 {
	idx := b.NextFunc()
	return b.Func("fact", i32, i32, nil,
		testmod.Get(0), testmod.Op(wasm.OpI32Eqz),
		testmod.If(testmod.BlkI32),
		testmod.I32(1),
		testmod.Else(),
		testmod.Get(0),
		testmod.Get(0), testmod.I32(1), testmod.Op(wasm.OpI32Sub),
		testmod.Call(idx),
		testmod.Op(wasm.OpI32Mul),
		testmod.End(),
	)
}

func TestSplit_StraightLine(t *testing.T) {
	b := testmod.New()
	b.Func("inc", i32, i32, nil, testmod.Get(0), testmod.I32(1), testmod.Op(wasm.OpI32Add))
	s, p := splitter(t, b)

	m, err := s.Split(p.Funcs[0])
	require.NoError(t, err)
	require.Len(t, m.Blocks, 1)
	blk := m.Blocks[0]
	require.Equal(t, Return, blk.Term.Kind)
	require.Empty(t, blk.Entry)
	require.Equal(t, []numeric.ValueType{numeric.I32}, blk.Stack)
	require.Len(t, blk.Body, 3)
}

func TestSplit_CallEndsBlock(t *testing.T) {
	b := testmod.New()
	fact(b)
	s, p := splitter(t, b)

	m, err := s.Split(p.Funcs[0])
	require.NoError(t, err)
	require.Len(t, m.Blocks, 5)

	entry := m.Blocks[0]
	require.Equal(t, Branch, entry.Term.Kind)
	require.Equal(t, []int{2, 3}, entry.Term.Successors())

	els := m.Blocks[3]
	require.Equal(t, Call, els.Term.Kind)
	require.Equal(t, uint32(0), els.Term.Callee)
	require.Equal(t, 4, els.Term.Next)
	require.Equal(t, []numeric.ValueType{numeric.I32, numeric.I32}, els.Stack)

	cont := m.Blocks[4]
	require.Equal(t, []numeric.ValueType{numeric.I32, numeric.I32}, cont.Entry)
	require.Equal(t, Goto, cont.Term.Kind)
	require.Equal(t, Edge{Target: 1, Keep: 0, Carry: 1}, cont.Term.Edges[0])

	require.Equal(t, Return, m.Blocks[1].Term.Kind)

	for _, blk := range m.Blocks {
		for _, n := range blk.Body {
			if in, ok := n.(*program.Instr); ok {
				require.NotEqual(t, wasm.OpCall, in.Opcode, "block %d keeps a machine call in its body", blk.Index)
			}
		}
	}
}

func TestSplit_DirectSafeCallStaysInline(t *testing.T) {
	b := testmod.New()
	leaf := b.Func("", i32, i32, nil, testmod.Get(0), testmod.I32(2), testmod.Op(wasm.OpI32Mul))
	self := b.NextFunc()
	b.Func("f", i32, i32, nil,
		testmod.Get(0), testmod.Call(leaf),
		testmod.Call(self),
	)
	s, p := splitter(t, b)

	m, err := s.Split(p.Funcs[1])
	require.NoError(t, err)
	require.Len(t, m.Blocks, 2)
	require.Len(t, m.Blocks[0].Body, 2)
	require.Equal(t, Call, m.Blocks[0].Term.Kind)
	require.Equal(t, Return, m.Blocks[1].Term.Kind)
}

func TestSplit_HostYield(t *testing.T) {
	b := testmod.New()
	imp := b.Import("env", "log", i32, nil)
	b.Func("f", i32, i32, nil,
		testmod.Get(0), testmod.Call(imp),
		testmod.I32(3),
	)
	s, p := splitter(t, b)

	m, err := s.Split(p.Funcs[0])
	require.NoError(t, err)
	require.Len(t, m.Blocks, 2)

	term := m.Blocks[0].Term
	require.Equal(t, HostYield, term.Kind)
	require.True(t, term.Host.ID.IsHost())
	require.Equal(t, "env.log", term.Host.Name)
	require.Equal(t, 1, term.Next)
	require.Empty(t, m.Blocks[1].Entry)
}

func TestSplit_BrIfToFunctionLabel(t *testing.T) {
	b := testmod.New()
	b.Func("f", i32, i32, nil,
		testmod.I32(7), testmod.Get(0), testmod.BrIf(0),
		testmod.Drop(), testmod.I32(9),
	)
	s, p := splitter(t, b)

	m, err := s.Split(p.Funcs[0])
	require.NoError(t, err)
	require.Len(t, m.Blocks, 3)

	term := m.Blocks[0].Term
	require.Equal(t, Branch, term.Kind)
	require.Equal(t, Edge{Target: 1, Keep: 0, Carry: 1}, term.Edges[0])
	require.Equal(t, Edge{Target: 2, Keep: 1, Carry: 0}, term.Edges[1])

	ret := m.Blocks[1]
	require.Equal(t, Return, ret.Term.Kind)
	require.Equal(t, []numeric.ValueType{numeric.I32}, ret.Entry)
	require.Equal(t, Return, m.Blocks[2].Term.Kind)
}

func TestSplit_NativeLoopInlined(t *testing.T) {
	b := testmod.New()
	// Counts n down to zero.
	b.Func("f", i32, i32, nil,
		testmod.Loop(testmod.Void),
		testmod.Get(0), testmod.I32(1), testmod.Op(wasm.OpI32Sub), testmod.Tee(0),
		testmod.BrIf(0),
		testmod.End(),
		testmod.Get(0),
	)
	s, p := splitter(t, b)

	m, err := s.Split(p.Funcs[0])
	require.NoError(t, err)
	require.Len(t, m.Blocks, 1)
	require.IsType(t, &program.Block{}, m.Blocks[0].Body[0])
}

func TestSplit_LoopWithCall(t *testing.T) {
	b := testmod.New()
	self := b.NextFunc()
	b.Func("f", i32, i32, nil,
		testmod.Loop(testmod.Void),
		testmod.Get(0), testmod.Call(self), testmod.Drop(),
		testmod.Get(0), testmod.I32(1), testmod.Op(wasm.OpI32Sub), testmod.Tee(0),
		testmod.BrIf(0),
		testmod.End(),
		testmod.Get(0),
	)
	s, p := splitter(t, b)

	m, err := s.Split(p.Funcs[0])
	require.NoError(t, err)

	// entry -> header -> (call) -> continuation -> br_if back to header / fallthrough
	require.Equal(t, Goto, m.Blocks[0].Term.Kind)
	header := m.Blocks[0].Term.Edges[0].Target
	require.Equal(t, Call, m.Blocks[header].Term.Kind)
	cont := m.Blocks[m.Blocks[header].Term.Next]
	require.Equal(t, Branch, cont.Term.Kind)
	require.Equal(t, header, cont.Term.Edges[0].Target)
	exit := m.Blocks[cont.Term.Edges[1].Target]
	require.Equal(t, Return, exit.Term.Kind)
}

func TestSplit_Unreachable(t *testing.T) {
	b := testmod.New()
	b.Func("f", nil, i32, nil, testmod.Unreachable())
	s, p := splitter(t, b)

	m, err := s.Split(p.Funcs[0])
	require.NoError(t, err)
	require.Len(t, m.Blocks, 1)
	require.Equal(t, Trap, m.Blocks[0].Term.Kind)
	require.Equal(t, gateway.TrapUnreachable, m.Blocks[0].Term.Code)
}
