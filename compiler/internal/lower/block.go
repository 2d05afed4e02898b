package lower

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/compiler/internal/frame"
	"github.com/LucentFlux/wasm-gpu/compiler/internal/split"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/program"
	"github.com/LucentFlux/wasm-gpu/shader"
)

// BlockName returns the shader function name of a child block.
func BlockName(id gateway.BlockID) string {
	return fmt.Sprintf("blk_%d", uint32(id))
}

// Block emits the function of child block b of fr.Machine. It pops the
// block's frame, runs its body and performs its terminator.
func (c *Context) Block(fr *frame.Frames, b *split.Block, ids BlockIDs) *shader.Function {
	f := fr.Machine.Func
	e := newEmitter(c, f)
	e.declare(frame.SP, shader.U32)

	payload := fr.Payloads[b.Index]
	vars := make([]string, 0, len(payload.Types))
	for _, idx := range payload.Locals {
		vars = append(vars, e.local(idx))
	}
	for i, t := range b.Entry {
		vars = append(vars, e.slot(i, t))
	}

	body := []shader.Stmt{frame.ReadSP()}
	body = append(body, frame.Pop(payload, vars, c.Layout)...)

	e.stack = append(program.TypeStack(nil), b.Entry...)
	for _, n := range b.Body {
		body = append(body, e.node(n)...)
	}
	body = append(body, e.terminator(fr, b, ids)...)
	body = append(body, frame.WriteSP())

	return &shader.Function{
		Name:   BlockName(ids.BlockID(f.Index, b.Index)),
		Locals: e.decls,
		Body:   body,
	}
}

// pushLocals pushes the locals saved in target's payload.
func (e *emitter) pushLocals(p *frame.Push, target *frame.Payload) {
	for _, idx := range target.Locals {
		p.Value(shader.V(e.local(idx)), e.f.Locals[idx])
	}
}

// edge pushes the frame of an intra-machine transfer, taken with the
// operand stack stack.
func (e *emitter) edge(fr *frame.Frames, ed split.Edge, stack []numeric.ValueType, ids BlockIDs) []shader.Stmt {
	p := &frame.Push{Layout: e.ctx.Layout, StackWords: e.ctx.StackWords}
	e.pushLocals(p, fr.Payloads[ed.Target])
	for i := 0; i < ed.Keep; i++ {
		p.Value(shader.V(e.slot(i, stack[i])), stack[i])
	}
	for i := len(stack) - ed.Carry; i < len(stack); i++ {
		p.Value(shader.V(e.slot(i, stack[i])), stack[i])
	}
	p.BlockID(ids.BlockID(e.f.Index, ed.Target))
	return p.Finish()
}

func (e *emitter) terminator(fr *frame.Frames, b *split.Block, ids BlockIDs) []shader.Stmt {
	t := &b.Term
	stack := b.Stack
	h := len(stack)
	l := e.ctx.Layout

	switch t.Kind {
	case split.Goto:
		return e.edge(fr, t.Edges[0], stack, ids)

	case split.Branch:
		cond := shader.V(e.slot(h-1, stack[h-1]))
		return []shader.Stmt{&shader.If{
			Cond: truthy(cond),
			Then: e.edge(fr, t.Edges[0], stack[:h-1], ids),
			Else: e.edge(fr, t.Edges[1], stack[:h-1], ids),
		}}

	case split.Switch:
		sel := shader.V(e.slot(h-1, stack[h-1]))
		n := len(t.Edges) - 1
		sw := &shader.Switch{Selector: sel, Default: e.edge(fr, t.Edges[n], stack[:h-1], ids)}
		for i := 0; i < n; i++ {
			sw.Cases = append(sw.Cases, shader.Case{Values: []uint32{uint32(i)}, Body: e.edge(fr, t.Edges[i], stack[:h-1], ids)})
		}
		return []shader.Stmt{sw}

	case split.Call, split.HostYield:
		base := h - len(t.Args)
		p := &frame.Push{Layout: l, StackWords: e.ctx.StackWords}
		e.pushLocals(p, fr.Payloads[t.Next])
		for i := 0; i < base; i++ {
			p.Value(shader.V(e.slot(i, stack[i])), stack[i])
		}
		p.Reserve(l.SizeOf(t.Results))
		p.BlockID(ids.BlockID(e.f.Index, t.Next))
		for i := base; i < h; i++ {
			p.Value(shader.V(e.slot(i, stack[i])), stack[i])
		}
		if t.Kind == split.Call {
			p.BlockID(ids.BlockID(t.Callee, 0))
		} else {
			p.BlockID(t.Host.ID)
		}
		return p.Finish()

	case split.Return:
		results := e.f.Type.Results
		rw := l.SizeOf(results)
		offs, _ := l.Offsets(results)
		var out []shader.Stmt
		for i, rt := range results {
			src := shader.V(e.slot(h-len(results)+i, rt))
			off := offs[i]
			at := func(k int) shader.Expr {
				return frame.Offset(shader.Bin(shader.Sub,
					shader.Bin(shader.Add, shader.V(frame.DataBase), shader.V(frame.SP)),
					shader.U32Lit(uint32(1+rw))), off+k)
			}
			out = append(out, frame.StoreValue(frame.BufStack, at, src, rt, l)...)
		}
		return out

	case split.Trap:
		return []shader.Stmt{e.trap(t.Code)}
	}
	panic(fmt.Sprintf("lower: unknown terminator %v", t.Kind))
}
