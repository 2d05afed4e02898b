package program

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/internal/testmod"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

func checkOne(t *testing.T, params, results []wasm.ValType, body ...wasm.Instruction) error {
	t.Helper()
	b := testmod.New()
	b.Func("f", params, results, nil, body...)
	p, err := FromModule(b.Module())
	require.NoError(t, err)
	return p.Check(p.Funcs[0])
}

func TestCheck(t *testing.T) {
	i32 := testmod.Types(testmod.I32T)

	t.Run("valid if else", func(t *testing.T) {
		err := checkOne(t, i32, i32,
			testmod.Get(0),
			testmod.If(testmod.BlkI32), testmod.I32(1), testmod.Else(), testmod.I32(2), testmod.End())
		require.NoError(t, err)
	})

	t.Run("wrong result type", func(t *testing.T) {
		err := checkOne(t, nil, i32, testmod.I64(1))
		require.Error(t, err)
		require.True(t, errors.IsMalformed(err))
	})

	t.Run("leftover operand", func(t *testing.T) {
		err := checkOne(t, nil, nil, testmod.I32(1))
		require.Error(t, err)
		require.True(t, errors.IsMalformed(err))
	})

	t.Run("if without else changes stack", func(t *testing.T) {
		err := checkOne(t, i32, i32,
			testmod.Get(0), testmod.If(testmod.BlkI32), testmod.I32(1), testmod.End())
		require.Error(t, err)
		require.Contains(t, err.Error(), "if without else")
	})

	t.Run("branch too deep", func(t *testing.T) {
		err := checkOne(t, nil, nil, testmod.Br(3))
		require.Error(t, err)
		require.Contains(t, err.Error(), "exceeds nesting")
	})

	t.Run("branch carries wrong type", func(t *testing.T) {
		err := checkOne(t, nil, i32, testmod.F32(1), testmod.Br(0))
		require.Error(t, err)
		require.True(t, errors.IsMalformed(err))
	})

	t.Run("code after return is not checked", func(t *testing.T) {
		err := checkOne(t, nil, i32, testmod.I32(4), testmod.Return(), testmod.F32(1))
		require.NoError(t, err)
	})

	t.Run("memory access unsupported", func(t *testing.T) {
		b := testmod.New()
		b.Memory(1)
		b.Func("f", nil, i32, nil, testmod.I32(0), wasm.Instruction{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{Align: 2}})
		p, err := FromModule(b.Module())
		require.NoError(t, err)
		err = p.Check(p.Funcs[0])
		require.Error(t, err)
		require.True(t, errors.IsUnsupported(err))
	})
}
