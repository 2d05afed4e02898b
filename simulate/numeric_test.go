package simulate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LucentFlux/wasm-gpu/numeric"
)

func TestEvalNumeric_I64Words(t *testing.T) {
	var l numeric.Layout
	neg, one := numeric.ValueI64(-1), numeric.ValueI64(1)

	tests := []struct {
		op   string
		a, b numeric.Value
		want numeric.Value
	}{
		{"i64.add", numeric.ValueI64(0xFFFFFFFF), one, numeric.ValueI64(0x1_00000000)},
		{"i64.sub", numeric.ValueI64(0x1_00000000), one, numeric.ValueI64(0xFFFFFFFF)},
		{"i64.add", neg, one, numeric.ValueI64(0)},
		{"i64.lt_s", neg, one, numeric.ValueI32(1)},
		{"i64.lt_u", neg, one, numeric.ValueI32(0)},
		{"i64.gt_s", neg, one, numeric.ValueI32(0)},
		{"i64.gt_u", neg, one, numeric.ValueI32(1)},
		{"i64.le_s", one, one, numeric.ValueI32(1)},
		{"i64.le_u", neg, one, numeric.ValueI32(0)},
		{"i64.ge_s", numeric.ValueI64(math.MinInt64), neg, numeric.ValueI32(0)},
		{"i64.ge_u", numeric.ValueI64(math.MinInt64), neg, numeric.ValueI32(0)},
		{"i64.ge_u", numeric.ValueI64(0x2_00000000), numeric.ValueI64(0x1_FFFFFFFF), numeric.ValueI32(1)},
	}
	for _, tt := range tests {
		got, err := evalNumeric(tt.op, []numeric.Value{tt.a, tt.b}, l)
		require.NoError(t, err, tt.op)
		require.Equal(t, tt.want, got, "%s %v %v", tt.op, tt.a, tt.b)
	}
}

func TestEvalNumeric_EmulatedF64(t *testing.T) {
	wide := 1 + math.Ldexp(1, -24) + math.Ldexp(1, -52)
	args := []numeric.Value{numeric.ValueF64(wide), numeric.ValueF64(1)}

	got, err := evalNumeric("f64.mul", args, numeric.Layout{NativeF64: true})
	require.NoError(t, err)
	require.Equal(t, wide, got.F64())

	// the emulated triple keeps 48 significant bits
	got, err = evalNumeric("f64.mul", args, numeric.Layout{})
	require.NoError(t, err)
	require.Equal(t, 1+math.Ldexp(1, -24), got.F64())

	exact := []struct {
		op   string
		a, b float64
		want float64
	}{
		{"f64.add", 1.5, 3, 4.5},
		{"f64.sub", 1.5, 3, -1.5},
		{"f64.mul", 1.5, 2.5, 3.75},
		{"f64.div", 7.59375, 1.5, 5.0625},
	}
	for _, tt := range exact {
		got, err := evalNumeric(tt.op, []numeric.Value{numeric.ValueF64(tt.a), numeric.ValueF64(tt.b)}, numeric.Layout{})
		require.NoError(t, err, tt.op)
		require.Equal(t, tt.want, got.F64(), tt.op)
	}

	got, err = evalNumeric("f64.div", []numeric.Value{numeric.ValueF64(1), numeric.ValueF64(0)}, numeric.Layout{})
	require.NoError(t, err)
	require.True(t, math.IsInf(got.F64(), 1))
}
