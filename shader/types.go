// Package shader defines the compute-shader intermediate representation
// the compiler emits, and a WGSL-flavoured text writer for it.
//
// The model follows naga's Module/Function/EntryPoint shape with tree
// expressions instead of expression arenas. Storage buffers are flat arrays
// of u32 words shared by all lanes; each lane addresses its own region
// through private base variables set up by the entry points.
package shader

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/numeric"
)

// Type is a shader value type.
type Type uint8

const (
	Bool Type = iota
	U32
	I32
	F32
	F64
	Vec2U32
	Vec3U32
	Vec4U32
)

func (t Type) String() string {
	switch t {
	case Bool:
		return "bool"
	case U32:
		return "u32"
	case I32:
		return "i32"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Vec2U32:
		return "vec2<u32>"
	case Vec3U32:
		return "vec3<u32>"
	case Vec4U32:
		return "vec4<u32>"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Components returns the number of vector components, 1 for scalars.
func (t Type) Components() int {
	switch t {
	case Vec2U32:
		return 2
	case Vec3U32:
		return 3
	case Vec4U32:
		return 4
	}
	return 1
}

// IsVector reports whether t is a u32 vector.
func (t Type) IsVector() bool {
	return t.Components() > 1
}

// VectorOf returns the u32 vector type with n components.
func VectorOf(n int) Type {
	switch n {
	case 2:
		return Vec2U32
	case 3:
		return Vec3U32
	case 4:
		return Vec4U32
	}
	panic(fmt.Sprintf("shader: no u32 vector with %d components", n))
}

// FromValue maps a WebAssembly value type to the shader type that carries
// it: I32 as u32, I64 as vec2<u32>, F32 as f32, F64 as f64 or an emulated
// vec3<u32> triple, V128 as vec4<u32>.
func FromValue(t numeric.ValueType, l numeric.Layout) Type {
	switch t {
	case numeric.I32:
		return U32
	case numeric.I64:
		return Vec2U32
	case numeric.F32:
		return F32
	case numeric.F64:
		if l.NativeF64 {
			return F64
		}
		return Vec3U32
	case numeric.V128:
		return Vec4U32
	}
	panic(fmt.Sprintf("shader: unknown value type %d", t))
}
