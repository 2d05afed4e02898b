package shader

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Write renders m as WGSL-flavoured text. Multiple results, traps and
// intrinsics use pseudo-syntax; the output is meant for inspection.
func Write(w io.Writer, m *Module) error {
	p := &printer{}
	p.module(m)
	_, err := w.Write(p.buf.Bytes())
	return err
}

// String renders m with Write.
func (m *Module) String() string {
	var b strings.Builder
	_ = Write(&b, m)
	return b.String()
}

type printer struct {
	buf    bytes.Buffer
	indent int
}

func (p *printer) line(format string, args ...any) {
	p.buf.WriteString(strings.Repeat("    ", p.indent))
	fmt.Fprintf(&p.buf, format, args...)
	p.buf.WriteByte('\n')
}

func (p *printer) module(m *Module) {
	for _, b := range m.Buffers {
		p.line("@group(0) @binding(%d) var<storage, read_write> %s: array<u32>;", b.Binding, b.Name)
	}
	for _, v := range m.Privates {
		p.line("var<private> %s: %s;", v.Name, v.Type)
	}
	for _, f := range m.Functions {
		p.line("")
		p.function(f)
	}
	for _, ep := range m.EntryPoints {
		p.line("")
		p.line("@compute @workgroup_size(%d, %d, %d)", ep.Workgroup[0], ep.Workgroup[1], ep.Workgroup[2])
		p.line("fn %s(@builtin(global_invocation_id) lane: vec3<u32>) { %s(); }", ep.Name, ep.Function)
	}
}

func (p *printer) function(f *Function) {
	params := make([]string, len(f.Params))
	for i, v := range f.Params {
		params[i] = v.Name + ": " + v.Type.String()
	}
	sig := "fn " + f.Name + "(" + strings.Join(params, ", ") + ")"
	switch len(f.Results) {
	case 0:
	case 1:
		sig += " -> " + f.Results[0].String()
	default:
		rs := make([]string, len(f.Results))
		for i, r := range f.Results {
			rs[i] = r.String()
		}
		sig += " -> (" + strings.Join(rs, ", ") + ")"
	}
	p.line("%s {", sig)
	p.indent++
	for _, v := range f.Locals {
		p.line("var %s: %s;", v.Name, v.Type)
	}
	p.stmts(f.Body)
	p.indent--
	p.line("}")
}

func (p *printer) stmts(body []Stmt) {
	for _, s := range body {
		p.stmt(s)
	}
}

func (p *printer) stmt(s Stmt) {
	switch s := s.(type) {
	case *Assign:
		p.line("%s = %s;", s.Name, p.expr(s.Value))
	case *Store:
		p.line("%s[%s] = %s;", s.Buffer, p.expr(s.Index), p.expr(s.Value))
	case *If:
		p.line("if %s {", p.expr(s.Cond))
		p.indent++
		p.stmts(s.Then)
		p.indent--
		if len(s.Else) > 0 {
			p.line("} else {")
			p.indent++
			p.stmts(s.Else)
			p.indent--
		}
		p.line("}")
	case *Block:
		p.line("%s: {", s.Label)
		p.indent++
		p.stmts(s.Body)
		p.indent--
		p.line("}")
	case *Loop:
		p.line("%s: loop {", s.Label)
		p.indent++
		p.stmts(s.Body)
		p.indent--
		p.line("}")
	case *Break:
		p.line("break %s;", s.Label)
	case *Continue:
		p.line("continue %s;", s.Label)
	case *Switch:
		p.line("switch %s {", p.expr(s.Selector))
		p.indent++
		for _, c := range s.Cases {
			vals := make([]string, len(c.Values))
			for i, v := range c.Values {
				vals[i] = strconv.FormatUint(uint64(v), 10) + "u"
			}
			p.line("case %s: {", strings.Join(vals, ", "))
			p.indent++
			p.stmts(c.Body)
			p.indent--
			p.line("}")
		}
		p.line("default: {")
		p.indent++
		p.stmts(s.Default)
		p.indent--
		p.line("}")
		p.indent--
		p.line("}")
	case *Return:
		switch len(s.Values) {
		case 0:
			p.line("return;")
		case 1:
			p.line("return %s;", p.expr(s.Values[0]))
		default:
			p.line("return (%s);", p.exprs(s.Values))
		}
	case *Call:
		call := fmt.Sprintf("%s(%s)", s.Func, p.exprs(s.Args))
		if len(s.Results) == 0 {
			p.line("%s;", call)
		} else {
			p.line("%s = %s;", strings.Join(s.Results, ", "), call)
		}
	case *Trap:
		p.line("trap(%du);", s.Code)
	default:
		p.line("/* unknown statement %T */", s)
	}
}

func (p *printer) exprs(es []Expr) string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = p.expr(e)
	}
	return strings.Join(out, ", ")
}

func (p *printer) expr(e Expr) string {
	switch e := e.(type) {
	case *Literal:
		return literal(e)
	case *Var:
		return e.Name
	case *LaneIndex:
		return "lane.x"
	case *Load:
		return fmt.Sprintf("%s[%s]", e.Buffer, p.expr(e.Index))
	case *Binary:
		return fmt.Sprintf("(%s %s %s)", p.expr(e.Left), e.Op, p.expr(e.Right))
	case *Unary:
		if e.Op == Neg || e.Op == Not {
			return e.Op.String() + p.expr(e.X)
		}
		return fmt.Sprintf("%s(%s)", e.Op, p.expr(e.X))
	case *Select:
		return fmt.Sprintf("select(%s, %s, %s)", p.expr(e.False), p.expr(e.True), p.expr(e.Cond))
	case *Compose:
		return fmt.Sprintf("%s(%s)", e.Type, p.exprs(e.Parts))
	case *Extract:
		return fmt.Sprintf("%s[%d]", p.expr(e.X), e.Index)
	case *Bitcast:
		return fmt.Sprintf("bitcast<%s>(%s)", e.Type, p.expr(e.X))
	case *Convert:
		return fmt.Sprintf("%s(%s)", e.Type, p.expr(e.X))
	case *Intrinsic:
		return fmt.Sprintf("wasm_%s(%s)", strings.ReplaceAll(e.Op, ".", "_"), p.exprs(e.Args))
	}
	return fmt.Sprintf("/* unknown expression %T */", e)
}

func literal(l *Literal) string {
	switch l.Type {
	case Bool:
		return strconv.FormatBool(l.Words[0] != 0)
	case U32:
		return strconv.FormatUint(uint64(l.Words[0]), 10) + "u"
	case I32:
		return strconv.FormatInt(int64(int32(l.Words[0])), 10) + "i"
	case F32:
		f := math.Float32frombits(l.Words[0])
		if math.IsInf(float64(f), 0) || math.IsNaN(float64(f)) {
			return fmt.Sprintf("bitcast<f32>(0x%08xu)", l.Words[0])
		}
		return strconv.FormatFloat(float64(f), 'g', -1, 32) + "f"
	case F64:
		return fmt.Sprintf("bitcast<f64>(vec2<u32>(0x%08xu, 0x%08xu))", l.Words[0], l.Words[1])
	}
	parts := make([]string, len(l.Words))
	for i, w := range l.Words {
		parts[i] = fmt.Sprintf("0x%08xu", w)
	}
	return fmt.Sprintf("%s(%s)", l.Type, strings.Join(parts, ", "))
}
