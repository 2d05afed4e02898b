package simulate

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
)

// trapError aborts an invocation.
type trapError struct {
	code gateway.TrapCode
}

func (t *trapError) Error() string { return t.code.String() }

func trap(code gateway.TrapCode) error { return &trapError{code: code} }

func b2i(b bool) numeric.Value {
	if b {
		return numeric.ValueI32(1)
	}
	return numeric.ValueI32(0)
}

func i32v(v uint32) numeric.Value { return numeric.Value{Type: numeric.I32, Lo: uint64(v)} }
func i64v(v uint64) numeric.Value { return numeric.Value{Type: numeric.I64, Lo: v} }

// evalNumeric evaluates a WebAssembly numeric instruction by name.
// Emulated f64 arithmetic rounds through the triple representation of l.
func evalNumeric(name string, args []numeric.Value, l numeric.Layout) (numeric.Value, error) {
	switch name[:3] {
	case "i32":
		return evalI32(name[4:], args)
	case "i64":
		return evalI64(name[4:], args)
	case "f32":
		return evalF32(name[4:], args)
	case "f64":
		return evalF64(name[4:], args, l)
	}
	return numeric.Value{}, fmt.Errorf("unknown numeric op %q", name)
}

func evalI32(op string, args []numeric.Value) (numeric.Value, error) {
	a := uint32(args[0].Lo)
	var b uint32
	if len(args) > 1 {
		b = uint32(args[1].Lo)
	}
	sa, sb := int32(a), int32(b)
	switch op {
	case "eqz":
		return b2i(a == 0), nil
	case "eq":
		return b2i(a == b), nil
	case "ne":
		return b2i(a != b), nil
	case "lt_s":
		return b2i(sa < sb), nil
	case "lt_u":
		return b2i(a < b), nil
	case "gt_s":
		return b2i(sa > sb), nil
	case "gt_u":
		return b2i(a > b), nil
	case "le_s":
		return b2i(sa <= sb), nil
	case "le_u":
		return b2i(a <= b), nil
	case "ge_s":
		return b2i(sa >= sb), nil
	case "ge_u":
		return b2i(a >= b), nil
	case "clz":
		return i32v(uint32(bits.LeadingZeros32(a))), nil
	case "ctz":
		return i32v(uint32(bits.TrailingZeros32(a))), nil
	case "popcnt":
		return i32v(uint32(bits.OnesCount32(a))), nil
	case "add":
		return i32v(a + b), nil
	case "sub":
		return i32v(a - b), nil
	case "mul":
		return i32v(a * b), nil
	case "div_s":
		if b == 0 {
			return numeric.Value{}, trap(gateway.TrapDivByZero)
		}
		if sa == math.MinInt32 && sb == -1 {
			return numeric.Value{}, trap(gateway.TrapIntOverflow)
		}
		return i32v(uint32(sa / sb)), nil
	case "div_u":
		if b == 0 {
			return numeric.Value{}, trap(gateway.TrapDivByZero)
		}
		return i32v(a / b), nil
	case "rem_s":
		if b == 0 {
			return numeric.Value{}, trap(gateway.TrapDivByZero)
		}
		if sb == -1 {
			return i32v(0), nil
		}
		return i32v(uint32(sa % sb)), nil
	case "rem_u":
		if b == 0 {
			return numeric.Value{}, trap(gateway.TrapDivByZero)
		}
		return i32v(a % b), nil
	case "and":
		return i32v(a & b), nil
	case "or":
		return i32v(a | b), nil
	case "xor":
		return i32v(a ^ b), nil
	case "shl":
		return i32v(a << (b & 31)), nil
	case "shr_s":
		return i32v(uint32(sa >> (b & 31))), nil
	case "shr_u":
		return i32v(a >> (b & 31)), nil
	case "rotl":
		return i32v(bits.RotateLeft32(a, int(b&31))), nil
	case "rotr":
		return i32v(bits.RotateLeft32(a, -int(b&31))), nil
	case "wrap_i64":
		return i32v(uint32(args[0].Lo)), nil
	case "trunc_f32_s":
		return truncI32(float64(args[0].F32()), true)
	case "trunc_f32_u":
		return truncI32(float64(args[0].F32()), false)
	case "trunc_f64_s":
		return truncI32(args[0].F64(), true)
	case "trunc_f64_u":
		return truncI32(args[0].F64(), false)
	case "reinterpret_f32":
		return i32v(uint32(args[0].Lo)), nil
	case "extend8_s":
		return i32v(uint32(int32(int8(a)))), nil
	case "extend16_s":
		return i32v(uint32(int32(int16(a)))), nil
	}
	return numeric.Value{}, fmt.Errorf("unknown op i32.%s", op)
}

func evalI64(op string, args []numeric.Value) (numeric.Value, error) {
	a := args[0].Lo
	var b uint64
	if len(args) > 1 {
		b = args[1].Lo
	}
	sa, sb := int64(a), int64(b)
	wa, wb := numeric.SplitI64(a), numeric.SplitI64(b)
	switch op {
	case "eqz":
		return b2i(a == 0), nil
	case "eq":
		return b2i(a == b), nil
	case "ne":
		return b2i(a != b), nil
	case "lt_s":
		return b2i(numeric.LessI64(wa, wb, true)), nil
	case "lt_u":
		return b2i(numeric.LessI64(wa, wb, false)), nil
	case "gt_s":
		return b2i(numeric.LessI64(wb, wa, true)), nil
	case "gt_u":
		return b2i(numeric.LessI64(wb, wa, false)), nil
	case "le_s":
		return b2i(!numeric.LessI64(wb, wa, true)), nil
	case "le_u":
		return b2i(!numeric.LessI64(wb, wa, false)), nil
	case "ge_s":
		return b2i(!numeric.LessI64(wa, wb, true)), nil
	case "ge_u":
		return b2i(!numeric.LessI64(wa, wb, false)), nil
	case "clz":
		return i64v(uint64(bits.LeadingZeros64(a))), nil
	case "ctz":
		return i64v(uint64(bits.TrailingZeros64(a))), nil
	case "popcnt":
		return i64v(uint64(bits.OnesCount64(a))), nil
	case "add":
		return i64v(numeric.JoinI64(numeric.AddI64(wa, wb))), nil
	case "sub":
		return i64v(numeric.JoinI64(numeric.SubI64(wa, wb))), nil
	case "mul":
		return i64v(a * b), nil
	case "div_s":
		if b == 0 {
			return numeric.Value{}, trap(gateway.TrapDivByZero)
		}
		if sa == math.MinInt64 && sb == -1 {
			return numeric.Value{}, trap(gateway.TrapIntOverflow)
		}
		return i64v(uint64(sa / sb)), nil
	case "div_u":
		if b == 0 {
			return numeric.Value{}, trap(gateway.TrapDivByZero)
		}
		return i64v(a / b), nil
	case "rem_s":
		if b == 0 {
			return numeric.Value{}, trap(gateway.TrapDivByZero)
		}
		if sb == -1 {
			return i64v(0), nil
		}
		return i64v(uint64(sa % sb)), nil
	case "rem_u":
		if b == 0 {
			return numeric.Value{}, trap(gateway.TrapDivByZero)
		}
		return i64v(a % b), nil
	case "and":
		return i64v(a & b), nil
	case "or":
		return i64v(a | b), nil
	case "xor":
		return i64v(a ^ b), nil
	case "shl":
		return i64v(a << (b & 63)), nil
	case "shr_s":
		return i64v(uint64(sa >> (b & 63))), nil
	case "shr_u":
		return i64v(a >> (b & 63)), nil
	case "rotl":
		return i64v(bits.RotateLeft64(a, int(b&63))), nil
	case "rotr":
		return i64v(bits.RotateLeft64(a, -int(b&63))), nil
	case "extend_i32_s":
		return i64v(uint64(int64(int32(uint32(a))))), nil
	case "extend_i32_u":
		return i64v(uint64(uint32(a))), nil
	case "trunc_f32_s":
		return truncI64(float64(args[0].F32()), true)
	case "trunc_f32_u":
		return truncI64(float64(args[0].F32()), false)
	case "trunc_f64_s":
		return truncI64(args[0].F64(), true)
	case "trunc_f64_u":
		return truncI64(args[0].F64(), false)
	case "reinterpret_f64":
		return i64v(a), nil
	case "extend8_s":
		return i64v(uint64(int64(int8(a)))), nil
	case "extend16_s":
		return i64v(uint64(int64(int16(a)))), nil
	case "extend32_s":
		return i64v(uint64(int64(int32(a)))), nil
	}
	return numeric.Value{}, fmt.Errorf("unknown op i64.%s", op)
}

func truncI32(x float64, signed bool) (numeric.Value, error) {
	if math.IsNaN(x) {
		return numeric.Value{}, trap(gateway.TrapInvalidConversion)
	}
	t := math.Trunc(x)
	if signed {
		if t < math.MinInt32 || t > math.MaxInt32 {
			return numeric.Value{}, trap(gateway.TrapIntOverflow)
		}
		return i32v(uint32(int32(t))), nil
	}
	if t < 0 || t > math.MaxUint32 {
		return numeric.Value{}, trap(gateway.TrapIntOverflow)
	}
	return i32v(uint32(t)), nil
}

func truncI64(x float64, signed bool) (numeric.Value, error) {
	if math.IsNaN(x) {
		return numeric.Value{}, trap(gateway.TrapInvalidConversion)
	}
	t := math.Trunc(x)
	if signed {
		if t < -(1<<63) || t >= 1<<63 {
			return numeric.Value{}, trap(gateway.TrapIntOverflow)
		}
		return i64v(uint64(int64(t))), nil
	}
	if t < 0 || t >= 1<<64 {
		return numeric.Value{}, trap(gateway.TrapIntOverflow)
	}
	return i64v(uint64(t)), nil
}

// fmin and fmax follow WebAssembly: NaN propagates and -0 < +0.
func fmin(a, b float64) float64 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return math.NaN()
	case a == 0 && b == 0:
		if math.Signbit(a) {
			return a
		}
		return b
	}
	return math.Min(a, b)
}

func fmax(a, b float64) float64 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return math.NaN()
	case a == 0 && b == 0:
		if math.Signbit(a) {
			return b
		}
		return a
	}
	return math.Max(a, b)
}

func evalF32(op string, args []numeric.Value) (numeric.Value, error) {
	a := args[0].F32()
	var b float32
	if len(args) > 1 {
		b = args[1].F32()
	}
	bitsA := uint32(args[0].Lo)
	switch op {
	case "eq":
		return b2i(a == b), nil
	case "ne":
		return b2i(a != b), nil
	case "lt":
		return b2i(a < b), nil
	case "gt":
		return b2i(a > b), nil
	case "le":
		return b2i(a <= b), nil
	case "ge":
		return b2i(a >= b), nil
	case "abs":
		return i32f(bitsA &^ (1 << 31)), nil
	case "neg":
		return i32f(bitsA ^ (1 << 31)), nil
	case "ceil":
		return numeric.ValueF32(float32(math.Ceil(float64(a)))), nil
	case "floor":
		return numeric.ValueF32(float32(math.Floor(float64(a)))), nil
	case "trunc":
		return numeric.ValueF32(float32(math.Trunc(float64(a)))), nil
	case "nearest":
		return numeric.ValueF32(float32(math.RoundToEven(float64(a)))), nil
	case "sqrt":
		return numeric.ValueF32(float32(math.Sqrt(float64(a)))), nil
	case "add":
		return numeric.ValueF32(a + b), nil
	case "sub":
		return numeric.ValueF32(a - b), nil
	case "mul":
		return numeric.ValueF32(a * b), nil
	case "div":
		return numeric.ValueF32(a / b), nil
	case "min":
		return numeric.ValueF32(float32(fmin(float64(a), float64(b)))), nil
	case "max":
		return numeric.ValueF32(float32(fmax(float64(a), float64(b)))), nil
	case "copysign":
		return i32f(bitsA&^(1<<31) | uint32(args[1].Lo)&(1<<31)), nil
	case "convert_i32_s":
		return numeric.ValueF32(float32(int32(uint32(args[0].Lo)))), nil
	case "convert_i32_u":
		return numeric.ValueF32(float32(uint32(args[0].Lo))), nil
	case "convert_i64_s":
		return numeric.ValueF32(float32(int64(args[0].Lo))), nil
	case "convert_i64_u":
		return numeric.ValueF32(float32(args[0].Lo)), nil
	case "demote_f64":
		return numeric.ValueF32(float32(args[0].F64())), nil
	case "reinterpret_i32":
		return i32f(uint32(args[0].Lo)), nil
	}
	return numeric.Value{}, fmt.Errorf("unknown op f32.%s", op)
}

func i32f(b uint32) numeric.Value { return numeric.Value{Type: numeric.F32, Lo: uint64(b)} }

func evalF64(op string, args []numeric.Value, l numeric.Layout) (numeric.Value, error) {
	a := args[0].F64()
	var b float64
	if len(args) > 1 {
		b = args[1].F64()
	}
	bitsA := args[0].Lo
	switch op {
	case "eq":
		return b2i(a == b), nil
	case "ne":
		return b2i(a != b), nil
	case "lt":
		return b2i(a < b), nil
	case "gt":
		return b2i(a > b), nil
	case "le":
		return b2i(a <= b), nil
	case "ge":
		return b2i(a >= b), nil
	case "abs":
		return numeric.Value{Type: numeric.F64, Lo: bitsA &^ (1 << 63)}, nil
	case "neg":
		return numeric.Value{Type: numeric.F64, Lo: bitsA ^ (1 << 63)}, nil
	case "ceil":
		return numeric.ValueF64(math.Ceil(a)), nil
	case "floor":
		return numeric.ValueF64(math.Floor(a)), nil
	case "trunc":
		return numeric.ValueF64(math.Trunc(a)), nil
	case "nearest":
		return numeric.ValueF64(math.RoundToEven(a)), nil
	case "sqrt":
		return numeric.ValueF64(math.Sqrt(a)), nil
	case "add", "sub", "mul", "div":
		if !l.NativeF64 {
			return emulatedF64(op, a, b), nil
		}
		switch op {
		case "add":
			return numeric.ValueF64(a + b), nil
		case "sub":
			return numeric.ValueF64(a - b), nil
		case "mul":
			return numeric.ValueF64(a * b), nil
		}
		return numeric.ValueF64(a / b), nil
	case "min":
		return numeric.ValueF64(fmin(a, b)), nil
	case "max":
		return numeric.ValueF64(fmax(a, b)), nil
	case "copysign":
		return numeric.Value{Type: numeric.F64, Lo: bitsA&^(1<<63) | args[1].Lo&(1<<63)}, nil
	case "convert_i32_s":
		return numeric.ValueF64(float64(int32(uint32(args[0].Lo)))), nil
	case "convert_i32_u":
		return numeric.ValueF64(float64(uint32(args[0].Lo))), nil
	case "convert_i64_s":
		return numeric.ValueF64(float64(int64(args[0].Lo))), nil
	case "convert_i64_u":
		return numeric.ValueF64(float64(args[0].Lo)), nil
	case "promote_f32":
		return numeric.ValueF64(float64(args[0].F32())), nil
	case "reinterpret_i64":
		return numeric.Value{Type: numeric.F64, Lo: args[0].Lo}, nil
	}
	return numeric.Value{}, fmt.Errorf("unknown op f64.%s", op)
}

func emulatedF64(op string, a, b float64) numeric.Value {
	x, y := numeric.EncodeF64(a), numeric.EncodeF64(b)
	var r numeric.Triple
	switch op {
	case "add":
		r = numeric.AddF64(x, y)
	case "sub":
		r = numeric.SubF64(x, y)
	case "mul":
		r = numeric.MulF64(x, y)
	default:
		r = numeric.DivF64(x, y)
	}
	return numeric.ValueF64(r.Float64())
}
