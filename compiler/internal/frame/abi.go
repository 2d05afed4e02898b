package frame

import (
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/shader"
)

// Storage buffers and the per-lane private bases the entry points set up.
const (
	BufStack   = "stack"
	BufIO      = "io"
	BufGlobals = "globals"

	HeaderBase = "hbase"
	DataBase   = "sbase"
	IOBase     = "iobase"
	GlobalBase = "gbase"

	// SP is the local variable holding the stack pointer inside block,
	// brain and entry functions.
	SP = "sp"
)

// Buffers returns the module's storage buffers.
func Buffers() []shader.Buffer {
	return []shader.Buffer{
		{Name: BufStack, Binding: 0},
		{Name: BufIO, Binding: 1},
		{Name: BufGlobals, Binding: 2},
	}
}

// Privates returns the module's private variables.
func Privates() []shader.Variable {
	return []shader.Variable{
		{Name: HeaderBase, Type: shader.U32},
		{Name: DataBase, Type: shader.U32},
		{Name: IOBase, Type: shader.U32},
		{Name: GlobalBase, Type: shader.U32},
	}
}

// Offset returns base + off.
func Offset(base shader.Expr, off int) shader.Expr {
	if off == 0 {
		return base
	}
	return shader.Bin(shader.Add, base, shader.U32Lit(uint32(off)))
}

// DataAt returns the stack buffer index of data word sp + off.
func DataAt(off int) shader.Expr {
	return Offset(shader.Bin(shader.Add, shader.V(DataBase), shader.V(SP)), off)
}

// ReadSP loads the stack pointer from the lane header.
func ReadSP() shader.Stmt {
	return &shader.Assign{Name: SP, Value: &shader.Load{Buffer: BufStack, Index: shader.V(HeaderBase)}}
}

// WriteSP stores the stack pointer into the lane header.
func WriteSP() shader.Stmt {
	return &shader.Store{Buffer: BufStack, Index: shader.V(HeaderBase), Value: shader.V(SP)}
}

// AddSP adjusts the stack pointer by delta words.
func AddSP(delta int) shader.Stmt {
	op := shader.Add
	if delta < 0 {
		op, delta = shader.Sub, -delta
	}
	return &shader.Assign{Name: SP, Value: shader.Bin(op, shader.V(SP), shader.U32Lit(uint32(delta)))}
}

// LoadValue reads a value of type t whose k-th word is at at(k).
func LoadValue(buf string, at func(k int) shader.Expr, t numeric.ValueType, l numeric.Layout) shader.Expr {
	word := func(k int) shader.Expr { return &shader.Load{Buffer: buf, Index: at(k)} }
	st := shader.FromValue(t, l)
	switch st {
	case shader.U32:
		return word(0)
	case shader.F32:
		return &shader.Bitcast{Type: shader.F32, X: word(0)}
	case shader.F64:
		return &shader.Bitcast{Type: shader.F64, X: &shader.Compose{Type: shader.Vec2U32, Parts: []shader.Expr{word(0), word(1)}}}
	}
	parts := make([]shader.Expr, st.Components())
	for k := range parts {
		parts[k] = word(k)
	}
	return &shader.Compose{Type: st, Parts: parts}
}

// StoreValue writes v of type t word by word to at(k).
func StoreValue(buf string, at func(k int) shader.Expr, v shader.Expr, t numeric.ValueType, l numeric.Layout) []shader.Stmt {
	store := func(k int, x shader.Expr) shader.Stmt {
		return &shader.Store{Buffer: buf, Index: at(k), Value: x}
	}
	st := shader.FromValue(t, l)
	switch st {
	case shader.U32:
		return []shader.Stmt{store(0, v)}
	case shader.F32:
		return []shader.Stmt{store(0, &shader.Bitcast{Type: shader.U32, X: v})}
	case shader.F64:
		bits := &shader.Bitcast{Type: shader.Vec2U32, X: v}
		return []shader.Stmt{
			store(0, &shader.Extract{X: bits, Index: 0}),
			store(1, &shader.Extract{X: bits, Index: 1}),
		}
	}
	out := make([]shader.Stmt, st.Components())
	for k := range out {
		out[k] = store(k, &shader.Extract{X: v, Index: k})
	}
	return out
}

// Push accumulates words written above the stack pointer.
type Push struct {
	Layout     numeric.Layout
	StackWords uint32

	stmts []shader.Stmt
	n     int
}

// Value pushes v of type t.
func (p *Push) Value(v shader.Expr, t numeric.ValueType) {
	off := p.n
	p.stmts = append(p.stmts, StoreValue(BufStack, func(k int) shader.Expr { return DataAt(off + k) }, v, t, p.Layout)...)
	p.n += p.Layout.Words(t)
}

// Word pushes one u32 word.
func (p *Push) Word(v shader.Expr) {
	p.stmts = append(p.stmts, &shader.Store{Buffer: BufStack, Index: DataAt(p.n), Value: v})
	p.n++
}

// BlockID pushes a BlockID.
func (p *Push) BlockID(id gateway.BlockID) {
	p.Word(shader.U32Lit(uint32(id)))
}

// Reserve skips n words, left for a callee or the host to fill.
func (p *Push) Reserve(n int) {
	p.n += n
}

// Len returns the number of words pushed so far.
func (p *Push) Len() int {
	return p.n
}

// Finish returns the push: a stack overflow check, the stores and the stack
// pointer update.
func (p *Push) Finish() []shader.Stmt {
	check := &shader.If{
		Cond: shader.Bin(shader.Gt,
			shader.Bin(shader.Add, shader.V(SP), shader.U32Lit(uint32(p.n))),
			shader.U32Lit(p.StackWords)),
		Then: []shader.Stmt{&shader.Trap{Code: uint32(gateway.TrapStackOverflow)}},
	}
	out := append([]shader.Stmt{check}, p.stmts...)
	return append(out, AddSP(p.n))
}

// Pop returns statements that pop the frame described by p and load its
// payload into vars, one per payload type.
func Pop(p *Payload, vars []string, l numeric.Layout) []shader.Stmt {
	out := []shader.Stmt{AddSP(-p.FrameWords())}
	for i, t := range p.Types {
		off := p.Offsets[i]
		out = append(out, &shader.Assign{
			Name:  vars[i],
			Value: LoadValue(BufStack, func(k int) shader.Expr { return DataAt(off + k) }, t, l),
		})
	}
	return out
}
