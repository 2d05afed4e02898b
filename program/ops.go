package program

import (
	"strings"

	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

// NumericOp describes a numeric instruction by its text-format name and
// stack signature.
type NumericOp struct {
	Name    string
	Params  []numeric.ValueType
	Results []numeric.ValueType
}

// Type returns the value type named by the op's prefix ("i64" for "i64.add").
func (o NumericOp) Type() numeric.ValueType {
	t, _ := typeByName(o.Name[:3])
	return t
}

// Mnemonic returns the op name without its type prefix ("add" for "i64.add").
func (o NumericOp) Mnemonic() string {
	return o.Name[4:]
}

var numericNames = [...]string{
	"i32.eqz", "i32.eq", "i32.ne", "i32.lt_s", "i32.lt_u", "i32.gt_s", "i32.gt_u",
	"i32.le_s", "i32.le_u", "i32.ge_s", "i32.ge_u",
	"i64.eqz", "i64.eq", "i64.ne", "i64.lt_s", "i64.lt_u", "i64.gt_s", "i64.gt_u",
	"i64.le_s", "i64.le_u", "i64.ge_s", "i64.ge_u",
	"f32.eq", "f32.ne", "f32.lt", "f32.gt", "f32.le", "f32.ge",
	"f64.eq", "f64.ne", "f64.lt", "f64.gt", "f64.le", "f64.ge",
	"i32.clz", "i32.ctz", "i32.popcnt", "i32.add", "i32.sub", "i32.mul", "i32.div_s",
	"i32.div_u", "i32.rem_s", "i32.rem_u", "i32.and", "i32.or", "i32.xor", "i32.shl",
	"i32.shr_s", "i32.shr_u", "i32.rotl", "i32.rotr",
	"i64.clz", "i64.ctz", "i64.popcnt", "i64.add", "i64.sub", "i64.mul", "i64.div_s",
	"i64.div_u", "i64.rem_s", "i64.rem_u", "i64.and", "i64.or", "i64.xor", "i64.shl",
	"i64.shr_s", "i64.shr_u", "i64.rotl", "i64.rotr",
	"f32.abs", "f32.neg", "f32.ceil", "f32.floor", "f32.trunc", "f32.nearest", "f32.sqrt",
	"f32.add", "f32.sub", "f32.mul", "f32.div", "f32.min", "f32.max", "f32.copysign",
	"f64.abs", "f64.neg", "f64.ceil", "f64.floor", "f64.trunc", "f64.nearest", "f64.sqrt",
	"f64.add", "f64.sub", "f64.mul", "f64.div", "f64.min", "f64.max", "f64.copysign",
	"i32.wrap_i64", "i32.trunc_f32_s", "i32.trunc_f32_u", "i32.trunc_f64_s", "i32.trunc_f64_u",
	"i64.extend_i32_s", "i64.extend_i32_u", "i64.trunc_f32_s", "i64.trunc_f32_u",
	"i64.trunc_f64_s", "i64.trunc_f64_u",
	"f32.convert_i32_s", "f32.convert_i32_u", "f32.convert_i64_s", "f32.convert_i64_u",
	"f32.demote_f64",
	"f64.convert_i32_s", "f64.convert_i32_u", "f64.convert_i64_s", "f64.convert_i64_u",
	"f64.promote_f32",
	"i32.reinterpret_f32", "i64.reinterpret_f64", "f32.reinterpret_i32", "f64.reinterpret_i64",
	"i32.extend8_s", "i32.extend16_s", "i64.extend8_s", "i64.extend16_s", "i64.extend32_s",
}

var numericOps [len(numericNames)]NumericOp

func init() {
	for i, name := range numericNames {
		numericOps[i] = deriveOp(name)
	}
}

func typeByName(s string) (numeric.ValueType, bool) {
	switch s {
	case "i32":
		return numeric.I32, true
	case "i64":
		return numeric.I64, true
	case "f32":
		return numeric.F32, true
	case "f64":
		return numeric.F64, true
	}
	return 0, false
}

// deriveOp computes the stack signature from the op name: comparisons and
// eqz produce i32, conversions take the type named in their suffix, and
// everything else is a unary or binary op over the prefix type.
func deriveOp(name string) NumericOp {
	t, _ := typeByName(name[:3])
	op := NumericOp{Name: name}
	mn := name[4:]

	if _, from, ok := strings.Cut(mn, "_"); ok && len(from) >= 3 {
		if src, isConv := typeByName(from[:3]); isConv {
			op.Params = []numeric.ValueType{src}
			op.Results = []numeric.ValueType{t}
			return op
		}
	}

	switch mn {
	case "eqz":
		op.Params = []numeric.ValueType{t}
		op.Results = []numeric.ValueType{numeric.I32}
	case "eq", "ne", "lt", "gt", "le", "ge", "lt_s", "lt_u", "gt_s", "gt_u", "le_s", "le_u", "ge_s", "ge_u":
		op.Params = []numeric.ValueType{t, t}
		op.Results = []numeric.ValueType{numeric.I32}
	case "clz", "ctz", "popcnt", "abs", "neg", "ceil", "floor", "trunc", "nearest", "sqrt",
		"extend8_s", "extend16_s", "extend32_s":
		op.Params = []numeric.ValueType{t}
		op.Results = []numeric.ValueType{t}
	default:
		op.Params = []numeric.ValueType{t, t}
		op.Results = []numeric.ValueType{t}
	}
	return op
}

// LookupNumeric returns the numeric op for a single-byte opcode in
// [i32.eqz, i64.extend32_s].
func LookupNumeric(op byte) (NumericOp, bool) {
	if op < wasm.OpI32Eqz || op > wasm.OpI64Extend32S {
		return NumericOp{}, false
	}
	return numericOps[op-wasm.OpI32Eqz], true
}
