package shader

import (
	"github.com/LucentFlux/wasm-gpu/numeric"
)

// Expr is a side-effect free expression. Intrinsics may trap.
type Expr interface {
	expr()
}

// Literal is a constant. Words holds one word per scalar or vector
// component; an f64 literal holds its bits as [lo, hi].
type Literal struct {
	Words []uint32
	Type  Type
}

// Var reads a function argument, local or module private variable.
type Var struct {
	Name string
}

// LaneIndex is the global invocation index of the executing lane.
type LaneIndex struct{}

// Load reads one u32 word from a storage buffer.
type Load struct {
	Index  Expr
	Buffer string
}

// BinaryOp is a binary operator. Comparisons produce bool.
type BinaryOp uint8

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Rem
	And
	Or
	Xor
	Shl
	Shr
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	LogicalAnd
	LogicalOr
)

var binaryNames = [...]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Rem: "%",
	And: "&", Or: "|", Xor: "^", Shl: "<<", Shr: ">>",
	Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
	LogicalAnd: "&&", LogicalOr: "||",
}

func (op BinaryOp) String() string { return binaryNames[op] }

// Comparison reports whether op yields bool.
func (op BinaryOp) Comparison() bool {
	return op >= Eq && op <= Ge
}

// Binary applies op to two operands of the same type. Shr is arithmetic on
// i32 and logical on u32.
type Binary struct {
	Left  Expr
	Right Expr
	Op    BinaryOp
}

// UnaryOp is a unary operator or builtin.
type UnaryOp uint8

const (
	Neg UnaryOp = iota
	Not
	Clz
	Ctz
	Popcnt
	Abs
	Ceil
	Floor
	Trunc
	Nearest
	Sqrt
)

var unaryNames = [...]string{
	Neg: "-", Not: "!", Clz: "countLeadingZeros", Ctz: "countTrailingZeros",
	Popcnt: "countOneBits", Abs: "abs", Ceil: "ceil", Floor: "floor",
	Trunc: "trunc", Nearest: "round", Sqrt: "sqrt",
}

func (op UnaryOp) String() string { return unaryNames[op] }

// Unary applies op to one operand. Not is bitwise on integers and logical on bool.
type Unary struct {
	X  Expr
	Op UnaryOp
}

// Select yields True when Cond holds, else False.
type Select struct {
	Cond  Expr
	True  Expr
	False Expr
}

// Compose builds a u32 vector from scalar components.
type Compose struct {
	Parts []Expr
	Type  Type
}

// Extract reads one component of a vector.
type Extract struct {
	X     Expr
	Index int
}

// Bitcast reinterprets bits: between u32, i32 and f32, or between f64 and vec2<u32>.
type Bitcast struct {
	X    Expr
	Type Type
}

// Convert converts a value numerically, including bool to u32.
type Convert struct {
	X    Expr
	Type Type
}

// Intrinsic is a WebAssembly numeric operation provided by the backend,
// identified by its instruction name. Params and Results describe the
// logical operand types; operands are carried in the shader types FromValue
// assigns to them.
type Intrinsic struct {
	Op      string
	Args    []Expr
	Params  []numeric.ValueType
	Results []numeric.ValueType
}

func (*Literal) expr()   {}
func (*Var) expr()       {}
func (*LaneIndex) expr() {}
func (*Load) expr()      {}
func (*Binary) expr()    {}
func (*Unary) expr()     {}
func (*Select) expr()    {}
func (*Compose) expr()   {}
func (*Extract) expr()   {}
func (*Bitcast) expr()   {}
func (*Convert) expr()   {}
func (*Intrinsic) expr() {}

// U32Lit returns a u32 literal.
func U32Lit(v uint32) *Literal {
	return &Literal{Type: U32, Words: []uint32{v}}
}

// BoolLit returns a bool literal.
func BoolLit(v bool) *Literal {
	if v {
		return &Literal{Type: Bool, Words: []uint32{1}}
	}
	return &Literal{Type: Bool, Words: []uint32{0}}
}

// Zero returns the zero value of t.
func Zero(t Type) *Literal {
	n := t.Components()
	if t == F64 {
		n = 2
	}
	return &Literal{Type: t, Words: make([]uint32, n)}
}

// V returns a variable reference.
func V(name string) *Var {
	return &Var{Name: name}
}

// Bin returns a binary expression.
func Bin(op BinaryOp, l, r Expr) *Binary {
	return &Binary{Op: op, Left: l, Right: r}
}
