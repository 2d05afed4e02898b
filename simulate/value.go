package simulate

import (
	"fmt"
	"math"

	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/shader"
)

// value is a shader value: its type and up to four u32 components. f64
// holds its bit pattern in X[0] (low) and X[1] (high); bool holds 0 or 1.
type value struct {
	T shader.Type
	X [4]uint32
}

func u32(v uint32) value { return value{T: shader.U32, X: [4]uint32{v}} }

func boolean(b bool) value {
	if b {
		return value{T: shader.Bool, X: [4]uint32{1}}
	}
	return value{T: shader.Bool}
}

func f32(f float32) value { return value{T: shader.F32, X: [4]uint32{math.Float32bits(f)}} }

func f64(f float64) value {
	b := math.Float64bits(f)
	return value{T: shader.F64, X: [4]uint32{uint32(b), uint32(b >> 32)}}
}

func (v value) f32() float32 { return math.Float32frombits(v.X[0]) }

func (v value) f64() float64 { return math.Float64frombits(uint64(v.X[0]) | uint64(v.X[1])<<32) }

func (v value) truth() bool { return v.X[0] != 0 }

// words returns the value's storage words.
func (v value) words() []uint32 {
	n := v.T.Components()
	if v.T == shader.F64 {
		n = 2
	}
	return v.X[:n]
}

func zero(t shader.Type) value { return value{T: t} }

func fromWords(t shader.Type, w []uint32) value {
	v := value{T: t}
	copy(v.X[:], w)
	return v
}

// toNumeric decodes v as a logical value of type t.
func toNumeric(v value, t numeric.ValueType, l numeric.Layout) numeric.Value {
	return l.Decode(t, v.X[:])
}

// fromNumeric encodes a logical value as its shader value.
func fromNumeric(n numeric.Value, l numeric.Layout) value {
	return fromWords(shader.FromValue(n.Type, l), l.Encode(n))
}

func (v value) String() string {
	switch v.T {
	case shader.Bool:
		return fmt.Sprint(v.truth())
	case shader.U32:
		return fmt.Sprintf("%du", v.X[0])
	case shader.I32:
		return fmt.Sprintf("%di", int32(v.X[0]))
	case shader.F32:
		return fmt.Sprintf("%gf", v.f32())
	case shader.F64:
		return fmt.Sprintf("%g", v.f64())
	}
	return fmt.Sprintf("%s%x", v.T, v.words())
}
