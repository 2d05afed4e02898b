package lower

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/compiler/internal/frame"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/program"
	"github.com/LucentFlux/wasm-gpu/shader"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

type label struct {
	name   string
	types  []numeric.ValueType
	height int
	loop   bool
	fn     bool
}

// emitter lowers the body of one function, either completely (direct
// variant) or one child block at a time.
type emitter struct {
	ctx    *Context
	f      *program.Function
	vars   map[string]bool
	decls  []shader.Variable
	stack  program.TypeStack
	labels []label
	nlabel int
}

func newEmitter(ctx *Context, f *program.Function) *emitter {
	return &emitter{ctx: ctx, f: f, vars: make(map[string]bool)}
}

func (e *emitter) declare(name string, t shader.Type) string {
	if !e.vars[name] {
		e.vars[name] = true
		e.decls = append(e.decls, shader.Variable{Name: name, Type: t})
	}
	return name
}

func (e *emitter) local(i uint32) string {
	return e.declare(fmt.Sprintf("l%d", i), shader.FromValue(e.f.Locals[i], e.ctx.Layout))
}

func (e *emitter) slot(pos int, t numeric.ValueType) string {
	return e.declare(fmt.Sprintf("s%d_%s", pos, t), shader.FromValue(t, e.ctx.Layout))
}

// push adds a value of type t and returns its slot.
func (e *emitter) push(t numeric.ValueType) string {
	e.stack = append(e.stack, t)
	return e.slot(len(e.stack)-1, t)
}

// pop removes the top n values and returns their slots, bottom first.
func (e *emitter) pop(n int) []shader.Expr {
	base := len(e.stack) - n
	out := make([]shader.Expr, n)
	for i := 0; i < n; i++ {
		out[i] = shader.V(e.slot(base+i, e.stack[base+i]))
	}
	e.stack = e.stack[:base]
	return out
}

// slots returns the slots of stack positions [from, to) of types.
func (e *emitter) slots(types []numeric.ValueType, from, to int) []shader.Expr {
	out := make([]shader.Expr, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, shader.V(e.slot(i, types[i])))
	}
	return out
}

func (e *emitter) newLabel() string {
	e.nlabel++
	return fmt.Sprintf("L%d", e.nlabel)
}

func truthy(x shader.Expr) shader.Expr {
	return shader.Bin(shader.Ne, x, shader.U32Lit(0))
}

func (e *emitter) seq(s *program.Seq) []shader.Stmt {
	var out []shader.Stmt
	for _, n := range s.Children {
		out = append(out, e.node(n)...)
	}
	return out
}

func (e *emitter) node(n program.Node) []shader.Stmt {
	switch n := n.(type) {
	case *program.Seq:
		return e.seq(n)

	case *program.Block:
		base := len(e.stack) - len(n.Params)
		name := e.newLabel()
		e.labels = append(e.labels, label{name: name, loop: n.Loop, types: n.LabelTypes(), height: base})
		body := e.seq(n.Body)
		e.labels = e.labels[:len(e.labels)-1]
		e.stack = append(e.stack[:base:base], n.Results...)
		if n.Loop {
			return []shader.Stmt{&shader.Loop{Label: name, Body: append(body, &shader.Break{Label: name})}}
		}
		return []shader.Stmt{&shader.Block{Label: name, Body: body}}

	case *program.If:
		cond := e.pop(1)[0]
		base := len(e.stack) - len(n.Params)
		entry := e.stack.Clone()
		name := e.newLabel()
		e.labels = append(e.labels, label{name: name, types: n.Results, height: base})
		then := e.seq(n.Then)
		var els []shader.Stmt
		if n.Else != nil {
			e.stack = entry.Clone()
			els = e.seq(n.Else)
		}
		e.labels = e.labels[:len(e.labels)-1]
		e.stack = append(entry[:base:base], n.Results...)
		return []shader.Stmt{&shader.Block{Label: name, Body: []shader.Stmt{
			&shader.If{Cond: truthy(cond), Then: then, Else: els},
		}}}

	case *program.Instr:
		return e.instr(n.Instruction)
	}
	panic(fmt.Sprintf("lower: unknown node %T", n))
}

// branch transfers to the label at depth: it moves the carried values into
// the label's slots, then breaks or continues.
func (e *emitter) branch(depth uint32) []shader.Stmt {
	l := e.labels[len(e.labels)-1-int(depth)]
	n := len(l.types)
	h := len(e.stack)
	if l.fn {
		return []shader.Stmt{&shader.Return{Values: e.slots(e.stack, h-n, h)}}
	}
	var out []shader.Stmt
	for i, t := range l.types {
		dst, src := l.height+i, h-n+i
		if dst != src {
			out = append(out, &shader.Assign{Name: e.slot(dst, t), Value: shader.V(e.slot(src, t))})
		}
	}
	if l.loop {
		return append(out, &shader.Continue{Label: l.name})
	}
	return append(out, &shader.Break{Label: l.name})
}

func (e *emitter) trap(code gateway.TrapCode) *shader.Trap {
	return &shader.Trap{Code: uint32(code)}
}

// skip applies an instruction's stack effect without computing anything.
func (e *emitter) skip(pops []numeric.ValueType, pushes []numeric.ValueType) {
	e.pop(len(pops))
	for _, t := range pushes {
		e.push(t)
	}
}

func (e *emitter) instr(in wasm.Instruction) []shader.Stmt {
	p := e.ctx.Program
	l := e.ctx.Layout

	if op, ok := program.LookupNumeric(in.Opcode); ok {
		return e.numeric(op)
	}

	switch in.Opcode {
	case wasm.OpNop:
		return nil
	case wasm.OpUnreachable:
		return []shader.Stmt{e.trap(gateway.TrapUnreachable)}
	case wasm.OpBr:
		return e.branch(in.Imm.(wasm.BranchImm).LabelIdx)
	case wasm.OpBrIf:
		cond := e.pop(1)[0]
		return []shader.Stmt{&shader.If{Cond: truthy(cond), Then: e.branch(in.Imm.(wasm.BranchImm).LabelIdx)}}
	case wasm.OpBrTable:
		imm := in.Imm.(wasm.BrTableImm)
		sel := e.pop(1)[0]
		sw := &shader.Switch{Selector: sel, Default: e.branch(imm.Default)}
		for i, d := range imm.Labels {
			sw.Cases = append(sw.Cases, shader.Case{Values: []uint32{uint32(i)}, Body: e.branch(d)})
		}
		return []shader.Stmt{sw}
	case wasm.OpReturn:
		n := len(e.f.Type.Results)
		h := len(e.stack)
		return []shader.Stmt{&shader.Return{Values: e.slots(e.stack, h-n, h)}}

	case wasm.OpI32Const:
		return e.constant(numeric.ValueI32(in.Imm.(wasm.I32Imm).Value))
	case wasm.OpI64Const:
		return e.constant(numeric.ValueI64(in.Imm.(wasm.I64Imm).Value))
	case wasm.OpF32Const:
		return e.constant(numeric.ValueF32(in.Imm.(wasm.F32Imm).Value))
	case wasm.OpF64Const:
		return e.constant(numeric.ValueF64(in.Imm.(wasm.F64Imm).Value))
	case wasm.OpPrefixSIMD:
		b := in.Imm.(wasm.V128Imm).Bytes
		var lo, hi uint64
		for i := 7; i >= 0; i-- {
			lo = lo<<8 | uint64(b[i])
			hi = hi<<8 | uint64(b[8+i])
		}
		return e.constant(numeric.ValueV128(lo, hi))

	case wasm.OpDrop:
		e.pop(1)
		return nil
	case wasm.OpSelect:
		t := e.stack[len(e.stack)-3]
		args := e.pop(3)
		dst := e.push(t)
		return []shader.Stmt{&shader.Assign{Name: dst, Value: &shader.Select{Cond: truthy(args[2]), True: args[0], False: args[1]}}}

	case wasm.OpLocalGet:
		idx := in.Imm.(wasm.LocalImm).LocalIdx
		dst := e.push(e.f.Locals[idx])
		return []shader.Stmt{&shader.Assign{Name: dst, Value: shader.V(e.local(idx))}}
	case wasm.OpLocalSet:
		idx := in.Imm.(wasm.LocalImm).LocalIdx
		v := e.pop(1)[0]
		return []shader.Stmt{&shader.Assign{Name: e.local(idx), Value: v}}
	case wasm.OpLocalTee:
		idx := in.Imm.(wasm.LocalImm).LocalIdx
		top := len(e.stack) - 1
		return []shader.Stmt{&shader.Assign{Name: e.local(idx), Value: shader.V(e.slot(top, e.stack[top]))}}

	case wasm.OpGlobalGet:
		idx := in.Imm.(wasm.GlobalImm).GlobalIdx
		g := p.Globals[idx]
		if !g.Mutable {
			return e.constant(g.Init)
		}
		off := e.ctx.Globals.Offsets[idx]
		dst := e.push(g.Type)
		at := func(k int) shader.Expr { return frame.Offset(shader.V(frame.GlobalBase), off+k) }
		return []shader.Stmt{&shader.Assign{Name: dst, Value: frame.LoadValue(frame.BufGlobals, at, g.Type, l)}}
	case wasm.OpGlobalSet:
		idx := in.Imm.(wasm.GlobalImm).GlobalIdx
		g := p.Globals[idx]
		off := e.ctx.Globals.Offsets[idx]
		v := e.pop(1)[0]
		at := func(k int) shader.Expr { return frame.Offset(shader.V(frame.GlobalBase), off+k) }
		return frame.StoreValue(frame.BufGlobals, at, v, g.Type, l)

	case wasm.OpCall:
		target := in.Imm.(wasm.CallImm).FuncIdx
		sig, _ := p.Signature(target)
		switch {
		case p.IsImport(target):
			e.skip(sig.Params, sig.Results)
			return []shader.Stmt{e.trap(gateway.TrapUnsupported)}
		case !e.ctx.Analysis.CanCallDirect(e.f.Index, target):
			e.skip(sig.Params, sig.Results)
			return []shader.Stmt{e.trap(gateway.TrapRecursionUnavailable)}
		}
		args := e.pop(len(sig.Params))
		results := make([]string, len(sig.Results))
		for i, t := range sig.Results {
			results[i] = e.push(t)
		}
		return []shader.Stmt{&shader.Call{Func: e.ctx.DirectName(target), Args: args, Results: results}}

	case wasm.OpCallIndirect:
		sig := p.Types[in.Imm.(wasm.CallIndirectImm).TypeIdx]
		e.skip(append(append([]numeric.ValueType{}, sig.Params...), numeric.I32), sig.Results)
		return []shader.Stmt{e.trap(gateway.TrapUnsupported)}
	case wasm.OpMemorySize:
		e.push(numeric.I32)
		return []shader.Stmt{e.trap(gateway.TrapUnsupported)}
	case wasm.OpMemoryGrow:
		e.skip([]numeric.ValueType{numeric.I32}, []numeric.ValueType{numeric.I32})
		return []shader.Stmt{e.trap(gateway.TrapUnsupported)}
	}
	panic(fmt.Sprintf("lower: opcode 0x%02x reached emission", in.Opcode))
}

func (e *emitter) constant(v numeric.Value) []shader.Stmt {
	dst := e.push(v.Type)
	return []shader.Stmt{&shader.Assign{Name: dst, Value: Literal(v, e.ctx.Layout)}}
}

// Literal returns the shader constant carrying v.
func Literal(v numeric.Value, l numeric.Layout) *shader.Literal {
	return &shader.Literal{Type: shader.FromValue(v.Type, l), Words: l.Encode(v)}
}
