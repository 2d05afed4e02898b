package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LucentFlux/wasm-gpu/numeric"
)

func TestParseArgs(t *testing.T) {
	types := []numeric.ValueType{numeric.I32, numeric.I64, numeric.F32, numeric.F64}
	got, err := parseArgs("-3, 0x10, 1.5, 2.25", types)
	require.NoError(t, err)
	require.Equal(t, []numeric.Value{
		numeric.ValueI32(-3),
		numeric.ValueI64(16),
		numeric.ValueF32(1.5),
		numeric.ValueF64(2.25),
	}, got)

	got, err = parseArgs("4294967295", []numeric.ValueType{numeric.I32})
	require.NoError(t, err)
	require.Equal(t, int32(-1), got[0].I32())

	got, err = parseArgs("", nil)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = parseArgs("1", types)
	require.Error(t, err)
	require.Contains(t, err.Error(), "got 1 arguments, want 4")

	_, err = parseArgs("x", []numeric.ValueType{numeric.I32})
	require.Error(t, err)
	require.Contains(t, err.Error(), "argument 0")
}

func TestFromRaw(t *testing.T) {
	require.Equal(t, numeric.ValueI32(-1), fromRaw(numeric.I32, math.MaxUint64))
	require.Equal(t, numeric.ValueI64(-1), fromRaw(numeric.I64, math.MaxUint64))
	require.Equal(t, []uint64{7, math.Float64bits(0.5)}, rawValues([]numeric.Value{numeric.ValueI32(7), numeric.ValueF64(0.5)}))
}

func TestCompare(t *testing.T) {
	a := []numeric.Value{numeric.ValueF64(0.1)}
	require.NoError(t, compare(a, a, true))
	require.NoError(t, compare(a, []numeric.Value{numeric.ValueF64(0.1 * (1 + 1e-15))}, false))
	require.Error(t, compare(a, []numeric.Value{numeric.ValueF64(0.2)}, false))
	require.Error(t, compare(a, nil, false))

	require.Error(t, compare([]numeric.Value{numeric.ValueI32(1)}, []numeric.Value{numeric.ValueI32(2)}, false))
}
