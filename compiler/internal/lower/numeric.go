package lower

import (
	"strings"

	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/program"
	"github.com/LucentFlux/wasm-gpu/shader"
)

// Polyfill function names.
const (
	I64Add = "i64_add"
	I64Sub = "i64_sub"
)

var comparisons = map[string]shader.BinaryOp{
	"eq": shader.Eq, "ne": shader.Ne,
	"lt": shader.Lt, "gt": shader.Gt, "le": shader.Le, "ge": shader.Ge,
}

var arithmetic = map[string]shader.BinaryOp{
	"add": shader.Add, "sub": shader.Sub, "mul": shader.Mul, "div": shader.Div,
	"and": shader.And, "or": shader.Or, "xor": shader.Xor,
}

var unaries = map[string]shader.UnaryOp{
	"clz": shader.Clz, "ctz": shader.Ctz, "popcnt": shader.Popcnt,
	"abs": shader.Abs, "neg": shader.Neg, "ceil": shader.Ceil, "floor": shader.Floor,
	"trunc": shader.Trunc, "nearest": shader.Nearest, "sqrt": shader.Sqrt,
}

func lit(v uint32) shader.Expr { return shader.U32Lit(v) }

func asI32(x shader.Expr) shader.Expr { return &shader.Bitcast{Type: shader.I32, X: x} }

func asU32(x shader.Expr) shader.Expr { return &shader.Bitcast{Type: shader.U32, X: x} }

func boolToU32(c shader.Expr) shader.Expr {
	return &shader.Select{Cond: c, True: lit(1), False: lit(0)}
}

func mask31(x shader.Expr) shader.Expr { return shader.Bin(shader.And, x, lit(31)) }

func trapIf(cond shader.Expr, code gateway.TrapCode) shader.Stmt {
	return &shader.If{Cond: cond, Then: []shader.Stmt{&shader.Trap{Code: uint32(code)}}}
}

// numeric lowers one numeric instruction. Operations without a direct
// shader equivalent become intrinsics.
func (e *emitter) numeric(op program.NumericOp) []shader.Stmt {
	args := e.pop(len(op.Params))
	dst := e.push(op.Results[0])
	var pre []shader.Stmt
	assign := func(x shader.Expr) []shader.Stmt {
		return append(pre, &shader.Assign{Name: dst, Value: x})
	}
	intrinsic := func() []shader.Stmt {
		return assign(&shader.Intrinsic{Op: op.Name, Args: args, Params: op.Params, Results: op.Results})
	}

	native := e.ctx.Layout.NativeF64
	if !native && (op.Type() == numeric.F64 || op.Params[0] == numeric.F64) {
		return intrinsic()
	}

	mn := op.Mnemonic()
	switch op.Type() {
	case numeric.I32:
		x := e.i32(mn, args, &pre)
		if x == nil {
			return intrinsic()
		}
		return assign(x)

	case numeric.I64:
		switch mn {
		case "add", "sub":
			fn := I64Add
			if mn == "sub" {
				fn = I64Sub
			}
			return []shader.Stmt{&shader.Call{Func: fn, Args: args, Results: []string{dst}}}
		case "extend_i32_u":
			return assign(&shader.Compose{Type: shader.Vec2U32, Parts: []shader.Expr{args[0], lit(0)}})
		case "extend_i32_s":
			sign := asU32(shader.Bin(shader.Shr, asI32(args[0]), lit(31)))
			return assign(&shader.Compose{Type: shader.Vec2U32, Parts: []shader.Expr{args[0], sign}})
		case "reinterpret_f64":
			return assign(&shader.Bitcast{Type: shader.Vec2U32, X: args[0]})
		}
		return intrinsic()

	case numeric.F32, numeric.F64:
		ft := shader.FromValue(op.Type(), e.ctx.Layout)
		switch mn {
		case "add", "sub", "mul", "div":
			bop := arithmetic[mn]
			return assign(shader.Bin(bop, args[0], args[1]))
		}
		if cmp, ok := comparisons[mn]; ok {
			return assign(boolToU32(shader.Bin(cmp, args[0], args[1])))
		}
		if uop, ok := unaries[mn]; ok {
			return assign(&shader.Unary{Op: uop, X: args[0]})
		}
		switch mn {
		case "convert_i32_s":
			return assign(&shader.Convert{Type: ft, X: asI32(args[0])})
		case "convert_i32_u", "demote_f64", "promote_f32":
			return assign(&shader.Convert{Type: ft, X: args[0]})
		case "reinterpret_i32", "reinterpret_i64":
			return assign(&shader.Bitcast{Type: ft, X: args[0]})
		}
		return intrinsic()
	}
	return intrinsic()
}

// i32 returns the expression computing an i32 op, or nil when it has no
// direct lowering. Checks that must run first are appended to pre.
func (e *emitter) i32(mn string, args []shader.Expr, pre *[]shader.Stmt) shader.Expr {
	a := args[0]
	var b shader.Expr
	if len(args) > 1 {
		b = args[1]
	}

	if mn == "eqz" {
		return boolToU32(shader.Bin(shader.Eq, a, lit(0)))
	}
	if name, sign, ok := strings.Cut(mn, "_"); ok {
		if cmp, isCmp := comparisons[name]; isCmp {
			if sign == "s" {
				return boolToU32(shader.Bin(cmp, asI32(a), asI32(b)))
			}
			return boolToU32(shader.Bin(cmp, a, b))
		}
	}
	if cmp, ok := comparisons[mn]; ok {
		return boolToU32(shader.Bin(cmp, a, b))
	}
	if op, ok := arithmetic[mn]; ok && op != shader.Div {
		return shader.Bin(op, a, b)
	}
	if op, ok := unaries[mn]; ok {
		return &shader.Unary{Op: op, X: a}
	}

	switch mn {
	case "div_u", "rem_u":
		*pre = append(*pre, trapIf(shader.Bin(shader.Eq, b, lit(0)), gateway.TrapDivByZero))
		if mn == "div_u" {
			return shader.Bin(shader.Div, a, b)
		}
		return shader.Bin(shader.Rem, a, b)
	case "div_s":
		*pre = append(*pre,
			trapIf(shader.Bin(shader.Eq, b, lit(0)), gateway.TrapDivByZero),
			trapIf(shader.Bin(shader.LogicalAnd,
				shader.Bin(shader.Eq, a, lit(0x80000000)),
				shader.Bin(shader.Eq, b, lit(0xffffffff))), gateway.TrapIntOverflow),
		)
		return asU32(shader.Bin(shader.Div, asI32(a), asI32(b)))
	case "rem_s":
		*pre = append(*pre, trapIf(shader.Bin(shader.Eq, b, lit(0)), gateway.TrapDivByZero))
		return &shader.Select{
			Cond:  shader.Bin(shader.Eq, b, lit(0xffffffff)),
			True:  lit(0),
			False: asU32(shader.Bin(shader.Rem, asI32(a), asI32(b))),
		}
	case "shl":
		return shader.Bin(shader.Shl, a, mask31(b))
	case "shr_u":
		return shader.Bin(shader.Shr, a, mask31(b))
	case "shr_s":
		return asU32(shader.Bin(shader.Shr, asI32(a), mask31(b)))
	case "rotl", "rotr":
		first, second := shader.Shl, shader.Shr
		if mn == "rotr" {
			first, second = shader.Shr, shader.Shl
		}
		back := mask31(shader.Bin(shader.Sub, lit(32), mask31(b)))
		return shader.Bin(shader.Or, shader.Bin(first, a, mask31(b)), shader.Bin(second, a, back))
	case "extend8_s", "extend16_s":
		n := uint32(24)
		if mn == "extend16_s" {
			n = 16
		}
		return asU32(shader.Bin(shader.Shr, asI32(shader.Bin(shader.Shl, a, lit(n))), lit(n)))
	case "wrap_i64":
		return &shader.Extract{X: a, Index: 0}
	case "reinterpret_f32":
		return asU32(a)
	}
	return nil
}

// Polyfills returns the helper functions i64 lowering calls.
func Polyfills() []*shader.Function {
	v2 := []shader.Variable{{Name: "a", Type: shader.Vec2U32}, {Name: "b", Type: shader.Vec2U32}}
	x := func(v string, i int) shader.Expr { return &shader.Extract{X: shader.V(v), Index: i} }

	// lo = a.x + b.x; carry when lo < a.x.
	add := &shader.Function{
		Name:    I64Add,
		Params:  v2,
		Results: []shader.Type{shader.Vec2U32},
		Locals:  []shader.Variable{{Name: "lo", Type: shader.U32}},
		Body: []shader.Stmt{
			&shader.Assign{Name: "lo", Value: shader.Bin(shader.Add, x("a", 0), x("b", 0))},
			&shader.Return{Values: []shader.Expr{&shader.Compose{Type: shader.Vec2U32, Parts: []shader.Expr{
				shader.V("lo"),
				shader.Bin(shader.Add,
					shader.Bin(shader.Add, x("a", 1), x("b", 1)),
					boolToU32(shader.Bin(shader.Lt, shader.V("lo"), x("a", 0)))),
			}}}},
		},
	}
	sub := &shader.Function{
		Name:    I64Sub,
		Params:  v2,
		Results: []shader.Type{shader.Vec2U32},
		Body: []shader.Stmt{
			&shader.Return{Values: []shader.Expr{&shader.Compose{Type: shader.Vec2U32, Parts: []shader.Expr{
				shader.Bin(shader.Sub, x("a", 0), x("b", 0)),
				shader.Bin(shader.Sub,
					shader.Bin(shader.Sub, x("a", 1), x("b", 1)),
					boolToU32(shader.Bin(shader.Lt, x("a", 0), x("b", 0)))),
			}}}},
		},
	}
	return []*shader.Function{add, sub}
}
