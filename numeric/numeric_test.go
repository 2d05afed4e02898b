package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LucentFlux/wasm-gpu/wasm"
)

func TestWords(t *testing.T) {
	emulated := Layout{}
	native := Layout{NativeF64: true}

	require.Equal(t, 1, emulated.Words(I32))
	require.Equal(t, 1, emulated.Words(F32))
	require.Equal(t, 2, emulated.Words(I64))
	require.Equal(t, 3, emulated.Words(F64))
	require.Equal(t, 2, native.Words(F64))
	require.Equal(t, 4, emulated.Words(V128))

	offsets, total := emulated.Offsets([]ValueType{I32, F64, I64, V128})
	require.Equal(t, []int{0, 1, 4, 6}, offsets)
	require.Equal(t, 10, total)
}

func TestFromWasm(t *testing.T) {
	vt, ok := FromWasm(wasm.ValF64)
	require.True(t, ok)
	require.Equal(t, F64, vt)

	_, ok = FromWasm(wasm.ValFuncRef)
	require.False(t, ok)
}

func TestI64Encoding(t *testing.T) {
	l := Layout{}
	v := ValueI64(0x00000001_80000000)

	words := l.Encode(v)
	require.Equal(t, []uint32{0x80000000, 0x00000001}, words)
	require.Equal(t, v, l.Decode(I64, words))

	neg := ValueI64(-0x7FFFFFFF_00000000)
	require.Equal(t, []uint32{0x00000000, 0x80000001}, l.Encode(neg))
}

func TestI64Carry(t *testing.T) {
	tests := []struct {
		a, b uint64
	}{
		{0xFFFFFFFF, 1},
		{0xFFFFFFFF_FFFFFFFF, 1},
		{0x00000001_80000000, 0x00000002_80000000},
		{0, 0xFFFFFFFF_FFFFFFFF},
		{0x12345678_9ABCDEF0, 0x0FEDCBA9_87654321},
	}
	for _, tt := range tests {
		sum := AddI64(SplitI64(tt.a), SplitI64(tt.b))
		require.Equal(t, tt.a+tt.b, JoinI64(sum), "add %x %x", tt.a, tt.b)

		diff := SubI64(SplitI64(tt.a), SplitI64(tt.b))
		require.Equal(t, tt.a-tt.b, JoinI64(diff), "sub %x %x", tt.a, tt.b)

		require.Equal(t, int64(tt.a) < int64(tt.b), LessI64(SplitI64(tt.a), SplitI64(tt.b), true))
		require.Equal(t, tt.a < tt.b, LessI64(SplitI64(tt.a), SplitI64(tt.b), false))
	}
}

func TestF64Triple(t *testing.T) {
	values := []float64{
		1, -1, 1.5, 123456.75, -3.25e10, 1e10, math.Ldexp(1, -1000), math.Ldexp(-3, 1000),
		float64(1<<47 + 1), math.Inf(1), math.Inf(-1),
	}
	for _, x := range values {
		tr := EncodeF64(x)
		require.True(t, tr.IsNormalized(), "%g -> %+v", x, tr)
		require.Equal(t, x, tr.Float64(), "%g -> %+v", x, tr)
		require.Equal(t, tr, TripleFromWords(tr.Words()))
	}

	nan := EncodeF64(math.NaN())
	require.True(t, math.IsNaN(nan.Float64()))

	negZero := EncodeF64(math.Copysign(0, -1))
	require.True(t, math.Signbit(negZero.Float64()))
}

func TestF64TruncatesTo48Bits(t *testing.T) {
	x := 0.1
	got := EncodeF64(x).Float64()
	require.NotEqual(t, x, got)
	require.InDelta(t, x, got, math.Ldexp(x, -47))
}

func TestNormalize(t *testing.T) {
	// 3·2^4 spread across a denormalized triple
	tr := Triple{A: 2, B: 1, C: 4}
	require.False(t, tr.IsNormalized())

	n := tr.Normalize()
	require.True(t, n.IsNormalized())
	require.Equal(t, 48.0, n.Float64())
	require.Equal(t, Triple{A: 1.5, B: 0, C: 5}, n)

	mixed := Triple{A: 1, B: -0.25, C: 0}
	require.False(t, mixed.IsNormalized())
	require.Equal(t, 0.75, mixed.Normalize().Float64())

	zero := Triple{A: 1, B: -1, C: 7}.Normalize()
	require.Equal(t, Triple{}, zero)
}

func TestF64Ops(t *testing.T) {
	a, b := EncodeF64(6.5), EncodeF64(-2)
	require.Equal(t, 4.5, AddF64(a, b).Float64())
	require.Equal(t, 8.5, SubF64(a, b).Float64())
	require.Equal(t, -13.0, MulF64(a, b).Float64())
	require.Equal(t, -3.25, DivF64(a, b).Float64())
	require.True(t, MulF64(a, b).IsNormalized())
}

func TestRoundTripAllTypes(t *testing.T) {
	for _, l := range []Layout{{}, {NativeF64: true}} {
		vals := []Value{
			ValueI32(-7),
			ValueI64(math.MinInt64),
			ValueF32(-0.5),
			ValueF64(1234.5),
			ValueV128(0x0706050403020100, 0x0F0E0D0C0B0A0908),
		}
		words := l.EncodeAll(vals)
		types := []ValueType{I32, I64, F32, F64, V128}
		require.Len(t, words, l.SizeOf(types))

		got, err := l.DecodeAll(types, words)
		require.NoError(t, err)
		require.Equal(t, vals, got)

		_, err = l.DecodeAll(types, words[:3])
		require.Error(t, err)
	}
}

func TestTripleLowWordGap(t *testing.T) {
	require.True(t, Triple{A: 1, B: float32(math.Ldexp(1, -24))}.IsNormalized())
	require.True(t, Triple{A: -1.5, B: -float32(math.Ldexp(1, -30))}.IsNormalized())
	require.False(t, Triple{A: 1, B: float32(math.Ldexp(1, -23))}.IsNormalized())

	// a remainder with leading zero bits sits more than 24 orders below a
	tr := EncodeF64(1 + math.Ldexp(1, -40))
	require.Equal(t, float32(1), tr.A)
	require.Equal(t, float32(math.Ldexp(1, -40)), tr.B)
	require.True(t, tr.IsNormalized())
}
