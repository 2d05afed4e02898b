package numeric

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/wasm"
)

// ValueType is a WebAssembly numeric value type.
type ValueType uint8

const (
	I32 ValueType = iota
	I64
	F32
	F64
	V128
)

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case V128:
		return "v128"
	default:
		return fmt.Sprintf("valuetype(%d)", uint8(t))
	}
}

// FromWasm converts a binary value type. Reference types are rejected.
func FromWasm(v wasm.ValType) (ValueType, bool) {
	switch v {
	case wasm.ValI32:
		return I32, true
	case wasm.ValI64:
		return I64, true
	case wasm.ValF32:
		return F32, true
	case wasm.ValF64:
		return F64, true
	case wasm.ValV128:
		return V128, true
	}
	return 0, false
}

// Layout fixes the word representation of every value type for one module.
type Layout struct {
	// NativeF64 stores F64 as its raw 64-bit pattern in two words.
	// Otherwise F64 is emulated as an (a, b, c) triple.
	NativeF64 bool
}

// Words returns the number of u32 words a value of type t occupies.
func (l Layout) Words(t ValueType) int {
	switch t {
	case I32, F32:
		return 1
	case I64:
		return 2
	case F64:
		if l.NativeF64 {
			return 2
		}
		return 3
	case V128:
		return 4
	}
	panic(fmt.Sprintf("numeric: unknown value type %d", t))
}

// SizeOf sums the words of a type list.
func (l Layout) SizeOf(types []ValueType) int {
	n := 0
	for _, t := range types {
		n += l.Words(t)
	}
	return n
}

// Offsets returns the word offset of each type when laid out contiguously in
// declaration order, plus the total size.
func (l Layout) Offsets(types []ValueType) ([]int, int) {
	offsets := make([]int, len(types))
	n := 0
	for i, t := range types {
		offsets[i] = n
		n += l.Words(t)
	}
	return offsets, n
}
