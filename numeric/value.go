package numeric

import (
	"fmt"
	"math"
)

// Value is a logical WebAssembly value stored as its raw bit pattern.
// Lo holds the low 64 bits (the whole value for scalars), Hi the upper half of a V128.
type Value struct {
	Lo   uint64
	Hi   uint64
	Type ValueType
}

func ValueI32(v int32) Value        { return Value{Type: I32, Lo: uint64(uint32(v))} }
func ValueI64(v int64) Value        { return Value{Type: I64, Lo: uint64(v)} }
func ValueF32(v float32) Value      { return Value{Type: F32, Lo: uint64(math.Float32bits(v))} }
func ValueF64(v float64) Value      { return Value{Type: F64, Lo: math.Float64bits(v)} }
func ValueV128(lo, hi uint64) Value { return Value{Type: V128, Lo: lo, Hi: hi} }

func (v Value) I32() int32   { return int32(uint32(v.Lo)) }
func (v Value) I64() int64   { return int64(v.Lo) }
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.Lo)) }
func (v Value) F64() float64 { return math.Float64frombits(v.Lo) }

// Zero returns the zero value of t.
func Zero(t ValueType) Value {
	return Value{Type: t}
}

func (v Value) String() string {
	switch v.Type {
	case I32:
		return fmt.Sprintf("i32:%d", v.I32())
	case I64:
		return fmt.Sprintf("i64:%d", v.I64())
	case F32:
		return fmt.Sprintf("f32:%g", v.F32())
	case F64:
		return fmt.Sprintf("f64:%g", v.F64())
	default:
		return fmt.Sprintf("v128:%016x%016x", v.Hi, v.Lo)
	}
}

// Encode converts a logical value into its word sequence.
func (l Layout) Encode(v Value) []uint32 {
	switch v.Type {
	case I32, F32:
		return []uint32{uint32(v.Lo)}
	case I64:
		w := SplitI64(v.Lo)
		return w[:]
	case F64:
		if l.NativeF64 {
			w := SplitI64(v.Lo)
			return w[:]
		}
		t := EncodeF64(v.F64())
		w := t.Words()
		return w[:]
	case V128:
		return []uint32{uint32(v.Lo), uint32(v.Lo >> 32), uint32(v.Hi), uint32(v.Hi >> 32)}
	}
	panic(fmt.Sprintf("numeric: unknown value type %d", v.Type))
}

// Decode converts a word sequence back into a logical value.
// words must hold at least Words(t) entries.
func (l Layout) Decode(t ValueType, words []uint32) Value {
	switch t {
	case I32, F32:
		return Value{Type: t, Lo: uint64(words[0])}
	case I64:
		return Value{Type: t, Lo: JoinI64([2]uint32{words[0], words[1]})}
	case F64:
		if l.NativeF64 {
			return Value{Type: t, Lo: JoinI64([2]uint32{words[0], words[1]})}
		}
		return ValueF64(TripleFromWords([3]uint32{words[0], words[1], words[2]}).Float64())
	case V128:
		return Value{
			Type: t,
			Lo:   uint64(words[0]) | uint64(words[1])<<32,
			Hi:   uint64(words[2]) | uint64(words[3])<<32,
		}
	}
	panic(fmt.Sprintf("numeric: unknown value type %d", t))
}

// EncodeAll concatenates the encodings of vals.
func (l Layout) EncodeAll(vals []Value) []uint32 {
	var out []uint32
	for _, v := range vals {
		out = append(out, l.Encode(v)...)
	}
	return out
}

// DecodeAll decodes consecutive values of the given types.
func (l Layout) DecodeAll(types []ValueType, words []uint32) ([]Value, error) {
	if need := l.SizeOf(types); len(words) < need {
		return nil, fmt.Errorf("need %d words, have %d", need, len(words))
	}
	out := make([]Value, len(types))
	off := 0
	for i, t := range types {
		out[i] = l.Decode(t, words[off:])
		off += l.Words(t)
	}
	return out, nil
}
