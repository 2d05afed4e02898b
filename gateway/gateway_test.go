package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/program"
)

func TestBlockIDPartition(t *testing.T) {
	a := NewAllocator(0)
	for i := 0; i < 100; i++ {
		id, err := a.Next()
		require.NoError(t, err)
		require.False(t, id.IsHost())
		require.Equal(t, uint32(i), id.Index())
	}
	require.Equal(t, uint32(100), a.Count())

	tbl := NewTable(numeric.Layout{})
	for i := 0; i < 4; i++ {
		h := tbl.Import(&program.Import{Index: uint32(i), Module: "env", Name: "f"})
		require.True(t, h.ID.IsHost())
		require.Equal(t, uint32(i), h.ID.Index())
	}
	require.Equal(t, BlockID(0x80000002), HostID(2))
	require.Equal(t, "host#2", HostID(2).String())
	require.Equal(t, "blk#7", BlockID(7).String())
}

func TestAllocatorCapacity(t *testing.T) {
	a := NewAllocator(2)
	_, err := a.Next()
	require.NoError(t, err)
	_, err = a.Next()
	require.NoError(t, err)
	_, err = a.Next()
	require.True(t, errors.IsCapacity(err))
}

func TestTableDeduplicates(t *testing.T) {
	tbl := NewTable(numeric.Layout{})
	imp := &program.Import{Index: 3, Module: "env", Name: "log", Type: program.Signature{Params: []numeric.ValueType{numeric.I64}}}
	require.Same(t, tbl.Import(imp), tbl.Import(imp))

	sig := program.Signature{Params: []numeric.ValueType{numeric.F64}, Results: []numeric.ValueType{numeric.I32}}
	ind := tbl.Indirect(1, sig)
	require.Same(t, ind, tbl.Indirect(1, sig))
	require.Equal(t, []numeric.ValueType{numeric.F64, numeric.I32}, ind.Params)
	require.Equal(t, uint32(4), tbl.ArgWords(ind), "emulated f64 plus table index")

	grow := tbl.Memory(HostMemoryGrow)
	size := tbl.Memory(HostMemorySize)
	require.Same(t, grow, tbl.Memory(HostMemoryGrow))
	require.Len(t, grow.Params, 1)
	require.Empty(t, size.Params)
	require.Len(t, tbl.Funcs, 4)

	got, ok := tbl.Lookup(size.ID)
	require.True(t, ok)
	require.Same(t, size, got)
	_, ok = tbl.Lookup(HostID(9))
	require.False(t, ok)
	_, ok = tbl.Lookup(BlockID(0))
	require.False(t, ok)
}

func TestStackPushPop(t *testing.T) {
	s := NewStack(4)
	require.NoError(t, s.Push(1, 2, 3))
	require.Equal(t, uint32(3), s.SP())
	require.Equal(t, BlockID(3), s.Top())

	err := s.Push(4, 5)
	require.ErrorIs(t, err, errors.ErrStackOverflow)
	require.Equal(t, uint32(3), s.SP())

	words, err := s.Pop(2)
	require.NoError(t, err)
	require.Equal(t, []uint32{2, 3}, words)
	_, err = s.Pop(2)
	require.Error(t, err)

	s.SetTrap(TrapDivByZero)
	c := s.Clone()
	s.Reset()
	require.Equal(t, TrapDivByZero, c.Trap())
	require.Equal(t, uint32(1), c.SP())
	require.Equal(t, TrapNone, s.Trap())
	require.Equal(t, "integer divide by zero", TrapDivByZero.String())
}

func TestPendingComplete(t *testing.T) {
	layout := numeric.Layout{}
	tbl := NewTable(layout)
	imp := &program.Import{
		Index: 0, Module: "env", Name: "add64",
		Type: program.Signature{
			Params:  []numeric.ValueType{numeric.I64, numeric.I32},
			Results: []numeric.ValueType{numeric.I64},
		},
	}
	h := tbl.Import(imp)

	// [saved local][2 result words][continuation][i64 arg][i32 arg][host]
	s := NewStack(16)
	require.NoError(t, s.Push(42, 0, 0, 7))
	require.NoError(t, s.Push(layout.EncodeAll([]numeric.Value{numeric.ValueI64(-2), numeric.ValueI32(5)})...))
	require.NoError(t, s.Push(uint32(h.ID)))

	p, ok, err := tbl.Pending(s)
	require.NoError(t, err)
	require.True(t, ok)
	require.Same(t, h, p.Func)
	require.Equal(t, int64(-2), p.Args[0].I64())
	require.Equal(t, int32(5), p.Args[1].I32())

	require.Error(t, tbl.Complete(s.Clone(), p, nil))
	require.Error(t, tbl.Complete(s.Clone(), p, []numeric.Value{numeric.ValueI32(1)}))

	require.NoError(t, tbl.Complete(s, p, []numeric.Value{numeric.ValueI64(0x1_0000_0003)}))
	require.Equal(t, uint32(4), s.SP())
	require.Equal(t, BlockID(7), s.Top())
	require.Equal(t, []uint32{42, 3, 1, 7}, s.Data()[:4])

	s.Reset()
	_, ok, err = tbl.Pending(s)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Push(uint32(HostID(40))))
	_, _, err = tbl.Pending(s)
	require.ErrorIs(t, err, errors.ErrInvalidBlock)
}
