package simulate

import (
	"context"
	"fmt"
	"math"
	"math/bits"

	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/shader"
)

type flow uint8

const (
	flowNext flow = iota
	flowBreak
	flowContinue
	flowReturn
)

type signal struct {
	label  string
	values []value
	kind   flow
}

// machine runs shader code for one lane.
type machine struct {
	ctx      context.Context
	exec     *Executor
	lane     *Lane
	privates map[string]value
}

type scope struct {
	vars map[string]value
}

func (m *machine) lookup(s *scope, name string) (value, error) {
	if v, ok := s.vars[name]; ok {
		return v, nil
	}
	if v, ok := m.privates[name]; ok {
		return v, nil
	}
	return value{}, fmt.Errorf("undefined variable %q", name)
}

func (m *machine) assign(s *scope, name string, v value) error {
	if _, ok := s.vars[name]; ok {
		s.vars[name] = v
		return nil
	}
	if _, ok := m.privates[name]; ok {
		m.privates[name] = v
		return nil
	}
	return fmt.Errorf("assignment to undefined variable %q", name)
}

// region maps a global buffer index into the lane's own region.
func (m *machine) region(buf string, idx uint32) ([]uint32, int, error) {
	var words []uint32
	var base uint32
	switch buf {
	case BufStack:
		words, base = m.lane.Stack, m.lane.Index*uint32(len(m.lane.Stack))
	case BufIO:
		words, base = m.lane.IO, m.lane.Index*uint32(len(m.lane.IO))
	case BufGlobals:
		words, base = m.lane.Globals, m.lane.Index*uint32(len(m.lane.Globals))
	default:
		return nil, 0, fmt.Errorf("unknown buffer %q", buf)
	}
	if idx < base || idx-base >= uint32(len(words)) {
		return nil, 0, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("lane %d: %s[%d] outside its region", m.lane.Index, buf, idx).Build()
	}
	return words, int(idx - base), nil
}

func (m *machine) call(fn *shader.Function, args []value) ([]value, error) {
	if len(args) != len(fn.Params) {
		return nil, fmt.Errorf("%s: %d arguments, want %d", fn.Name, len(args), len(fn.Params))
	}
	s := &scope{vars: make(map[string]value, len(fn.Params)+len(fn.Locals))}
	for i, p := range fn.Params {
		s.vars[p.Name] = args[i]
	}
	for _, l := range fn.Locals {
		s.vars[l.Name] = zero(l.Type)
	}
	sig, err := m.stmts(s, fn.Body)
	if err != nil {
		return nil, err
	}
	switch sig.kind {
	case flowReturn:
		return sig.values, nil
	case flowNext:
		if len(fn.Results) != 0 {
			return nil, fmt.Errorf("%s: fell off the end without returning", fn.Name)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%s: %v %q escaped the function", fn.Name, sig.kind, sig.label)
}

func (m *machine) stmts(s *scope, body []shader.Stmt) (signal, error) {
	for _, st := range body {
		sig, err := m.stmt(s, st)
		if err != nil || sig.kind != flowNext {
			return sig, err
		}
	}
	return signal{}, nil
}

func (m *machine) stmt(s *scope, st shader.Stmt) (signal, error) {
	switch st := st.(type) {
	case *shader.Assign:
		v, err := m.expr(s, st.Value)
		if err != nil {
			return signal{}, err
		}
		return signal{}, m.assign(s, st.Name, v)

	case *shader.Store:
		idx, err := m.expr(s, st.Index)
		if err != nil {
			return signal{}, err
		}
		v, err := m.expr(s, st.Value)
		if err != nil {
			return signal{}, err
		}
		words, at, err := m.region(st.Buffer, idx.X[0])
		if err != nil {
			return signal{}, err
		}
		words[at] = v.X[0]
		return signal{}, nil

	case *shader.If:
		c, err := m.expr(s, st.Cond)
		if err != nil {
			return signal{}, err
		}
		if c.truth() {
			return m.stmts(s, st.Then)
		}
		return m.stmts(s, st.Else)

	case *shader.Block:
		sig, err := m.stmts(s, st.Body)
		if err == nil && sig.kind == flowBreak && sig.label == st.Label {
			return signal{}, nil
		}
		return sig, err

	case *shader.Loop:
		for {
			sig, err := m.stmts(s, st.Body)
			if err != nil {
				return sig, err
			}
			switch {
			case sig.kind == flowBreak && sig.label == st.Label:
				return signal{}, nil
			case sig.kind == flowContinue && sig.label == st.Label, sig.kind == flowNext:
				if err := m.ctx.Err(); err != nil {
					return signal{}, err
				}
				continue
			}
			return sig, nil
		}

	case *shader.Break:
		return signal{kind: flowBreak, label: st.Label}, nil
	case *shader.Continue:
		return signal{kind: flowContinue, label: st.Label}, nil

	case *shader.Switch:
		sel, err := m.expr(s, st.Selector)
		if err != nil {
			return signal{}, err
		}
		for _, c := range st.Cases {
			for _, v := range c.Values {
				if v == sel.X[0] {
					return m.stmts(s, c.Body)
				}
			}
		}
		return m.stmts(s, st.Default)

	case *shader.Return:
		vals, err := m.exprs(s, st.Values)
		return signal{kind: flowReturn, values: vals}, err

	case *shader.Call:
		return signal{}, m.callStmt(s, st)

	case *shader.Trap:
		code := gateway.TrapCode(st.Code)
		m.lane.Stack.SetTrap(code)
		return signal{}, trap(code)
	}
	return signal{}, fmt.Errorf("unknown statement %T", st)
}

func (m *machine) callStmt(s *scope, st *shader.Call) error {
	fn, ok := m.exec.funcs[st.Func]
	if !ok {
		return fmt.Errorf("call to undefined function %q", st.Func)
	}
	if id, isBlock := m.exec.blocks[st.Func]; isBlock {
		if err := m.dispatch(id); err != nil {
			return err
		}
	}
	args, err := m.exprs(s, st.Args)
	if err != nil {
		return err
	}
	results, err := m.call(fn, args)
	if err != nil {
		return err
	}
	if len(results) != len(st.Results) {
		return fmt.Errorf("%s returned %d values, want %d", st.Func, len(results), len(st.Results))
	}
	for i, name := range st.Results {
		if err := m.assign(s, name, results[i]); err != nil {
			return err
		}
	}
	return nil
}

// dispatch accounts for one brain dispatch of a child block.
func (m *machine) dispatch(id gateway.BlockID) error {
	if err := m.ctx.Err(); err != nil {
		return err
	}
	m.lane.steps++
	if limit := m.exec.cfg.MaxSteps; limit > 0 && m.lane.steps > limit {
		return errors.New(errors.PhaseRuntime, errors.KindStepLimit).
			Detail("lane %d exceeded %d dispatches", m.lane.Index, limit).Value(limit).Build()
	}
	if hook := m.exec.cfg.OnDispatch; hook != nil {
		hook(m.lane.Index, id, m.lane.Stack)
	}
	return nil
}

func (m *machine) exprs(s *scope, es []shader.Expr) ([]value, error) {
	out := make([]value, len(es))
	for i, e := range es {
		v, err := m.expr(s, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *machine) expr(s *scope, e shader.Expr) (value, error) {
	switch e := e.(type) {
	case *shader.Literal:
		return fromWords(e.Type, e.Words), nil
	case *shader.Var:
		return m.lookup(s, e.Name)
	case *shader.LaneIndex:
		return u32(m.lane.Index), nil
	case *shader.Load:
		idx, err := m.expr(s, e.Index)
		if err != nil {
			return value{}, err
		}
		words, at, err := m.region(e.Buffer, idx.X[0])
		if err != nil {
			return value{}, err
		}
		return u32(words[at]), nil

	case *shader.Binary:
		l, err := m.expr(s, e.Left)
		if err != nil {
			return value{}, err
		}
		r, err := m.expr(s, e.Right)
		if err != nil {
			return value{}, err
		}
		return binary(e.Op, l, r)

	case *shader.Unary:
		x, err := m.expr(s, e.X)
		if err != nil {
			return value{}, err
		}
		return unary(e.Op, x)

	case *shader.Select:
		c, err := m.expr(s, e.Cond)
		if err != nil {
			return value{}, err
		}
		if c.truth() {
			return m.expr(s, e.True)
		}
		return m.expr(s, e.False)

	case *shader.Compose:
		parts, err := m.exprs(s, e.Parts)
		if err != nil {
			return value{}, err
		}
		v := value{T: e.Type}
		for i, p := range parts {
			v.X[i] = p.X[0]
		}
		return v, nil

	case *shader.Extract:
		x, err := m.expr(s, e.X)
		if err != nil {
			return value{}, err
		}
		return u32(x.X[e.Index]), nil

	case *shader.Bitcast:
		x, err := m.expr(s, e.X)
		if err != nil {
			return value{}, err
		}
		x.T = e.Type
		return x, nil

	case *shader.Convert:
		x, err := m.expr(s, e.X)
		if err != nil {
			return value{}, err
		}
		return convert(x, e.Type)

	case *shader.Intrinsic:
		args, err := m.exprs(s, e.Args)
		if err != nil {
			return value{}, err
		}
		l := m.exec.out.Layout
		in := make([]numeric.Value, len(args))
		for i, a := range args {
			in[i] = toNumeric(a, e.Params[i], l)
		}
		res, err := evalNumeric(e.Op, in, l)
		if err != nil {
			if t, ok := err.(*trapError); ok {
				m.lane.Stack.SetTrap(t.code)
			}
			return value{}, err
		}
		return fromNumeric(res, l), nil
	}
	return value{}, fmt.Errorf("unknown expression %T", e)
}

func binary(op shader.BinaryOp, l, r value) (value, error) {
	switch l.T {
	case shader.Bool:
		a, b := l.truth(), r.truth()
		switch op {
		case shader.LogicalAnd:
			return boolean(a && b), nil
		case shader.LogicalOr:
			return boolean(a || b), nil
		case shader.Eq:
			return boolean(a == b), nil
		case shader.Ne:
			return boolean(a != b), nil
		}

	case shader.U32:
		a, b := l.X[0], r.X[0]
		switch op {
		case shader.Add:
			return u32(a + b), nil
		case shader.Sub:
			return u32(a - b), nil
		case shader.Mul:
			return u32(a * b), nil
		case shader.Div:
			if b == 0 {
				return u32(a), nil
			}
			return u32(a / b), nil
		case shader.Rem:
			if b == 0 {
				return u32(0), nil
			}
			return u32(a % b), nil
		case shader.And:
			return u32(a & b), nil
		case shader.Or:
			return u32(a | b), nil
		case shader.Xor:
			return u32(a ^ b), nil
		case shader.Shl:
			return u32(a << (b & 31)), nil
		case shader.Shr:
			return u32(a >> (b & 31)), nil
		case shader.Eq:
			return boolean(a == b), nil
		case shader.Ne:
			return boolean(a != b), nil
		case shader.Lt:
			return boolean(a < b), nil
		case shader.Le:
			return boolean(a <= b), nil
		case shader.Gt:
			return boolean(a > b), nil
		case shader.Ge:
			return boolean(a >= b), nil
		}

	case shader.I32:
		a, b := int32(l.X[0]), int32(r.X[0])
		i32 := func(v int32) value { return value{T: shader.I32, X: [4]uint32{uint32(v)}} }
		switch op {
		case shader.Add:
			return i32(a + b), nil
		case shader.Sub:
			return i32(a - b), nil
		case shader.Mul:
			return i32(a * b), nil
		case shader.Div:
			if b == 0 || (a == math.MinInt32 && b == -1) {
				return i32(a), nil
			}
			return i32(a / b), nil
		case shader.Rem:
			if b == 0 || b == -1 {
				return i32(0), nil
			}
			return i32(a % b), nil
		case shader.Shl:
			return i32(a << (uint32(b) & 31)), nil
		case shader.Shr:
			return i32(a >> (uint32(b) & 31)), nil
		case shader.Eq:
			return boolean(a == b), nil
		case shader.Ne:
			return boolean(a != b), nil
		case shader.Lt:
			return boolean(a < b), nil
		case shader.Le:
			return boolean(a <= b), nil
		case shader.Gt:
			return boolean(a > b), nil
		case shader.Ge:
			return boolean(a >= b), nil
		}

	case shader.F32:
		a, b := l.f32(), r.f32()
		switch op {
		case shader.Add:
			return f32(a + b), nil
		case shader.Sub:
			return f32(a - b), nil
		case shader.Mul:
			return f32(a * b), nil
		case shader.Div:
			return f32(a / b), nil
		case shader.Eq:
			return boolean(a == b), nil
		case shader.Ne:
			return boolean(a != b), nil
		case shader.Lt:
			return boolean(a < b), nil
		case shader.Le:
			return boolean(a <= b), nil
		case shader.Gt:
			return boolean(a > b), nil
		case shader.Ge:
			return boolean(a >= b), nil
		}

	case shader.F64:
		a, b := l.f64(), r.f64()
		switch op {
		case shader.Add:
			return f64(a + b), nil
		case shader.Sub:
			return f64(a - b), nil
		case shader.Mul:
			return f64(a * b), nil
		case shader.Div:
			return f64(a / b), nil
		case shader.Eq:
			return boolean(a == b), nil
		case shader.Ne:
			return boolean(a != b), nil
		case shader.Lt:
			return boolean(a < b), nil
		case shader.Le:
			return boolean(a <= b), nil
		case shader.Gt:
			return boolean(a > b), nil
		case shader.Ge:
			return boolean(a >= b), nil
		}
	}
	return value{}, fmt.Errorf("binary %s on %s", op, l.T)
}

func unary(op shader.UnaryOp, x value) (value, error) {
	switch x.T {
	case shader.Bool:
		if op == shader.Not {
			return boolean(!x.truth()), nil
		}
	case shader.U32, shader.I32:
		a := x.X[0]
		var r uint32
		switch op {
		case shader.Not:
			r = ^a
		case shader.Neg:
			r = -a
		case shader.Clz:
			r = uint32(bits.LeadingZeros32(a))
		case shader.Ctz:
			r = uint32(bits.TrailingZeros32(a))
		case shader.Popcnt:
			r = uint32(bits.OnesCount32(a))
		default:
			return value{}, fmt.Errorf("unary %s on %s", op, x.T)
		}
		return value{T: x.T, X: [4]uint32{r}}, nil
	case shader.F32:
		switch op {
		case shader.Neg:
			return u32f(x.X[0] ^ (1 << 31)), nil
		case shader.Abs:
			return u32f(x.X[0] &^ (1 << 31)), nil
		}
		if fn := floatUnary(op); fn != nil {
			return f32(float32(fn(float64(x.f32())))), nil
		}
	case shader.F64:
		switch op {
		case shader.Neg:
			x.X[1] ^= 1 << 31
			return x, nil
		case shader.Abs:
			x.X[1] &^= 1 << 31
			return x, nil
		}
		if fn := floatUnary(op); fn != nil {
			return f64(fn(x.f64())), nil
		}
	}
	return value{}, fmt.Errorf("unary %s on %s", op, x.T)
}

func u32f(b uint32) value { return value{T: shader.F32, X: [4]uint32{b}} }

func floatUnary(op shader.UnaryOp) func(float64) float64 {
	switch op {
	case shader.Ceil:
		return math.Ceil
	case shader.Floor:
		return math.Floor
	case shader.Trunc:
		return math.Trunc
	case shader.Nearest:
		return math.RoundToEven
	case shader.Sqrt:
		return math.Sqrt
	}
	return nil
}

func convert(x value, t shader.Type) (value, error) {
	var f float64
	switch x.T {
	case shader.Bool, shader.U32:
		f = float64(x.X[0])
		if t == shader.U32 {
			return u32(x.X[0]), nil
		}
	case shader.I32:
		f = float64(int32(x.X[0]))
	case shader.F32:
		f = float64(x.f32())
	case shader.F64:
		f = x.f64()
	default:
		return value{}, fmt.Errorf("convert %s to %s", x.T, t)
	}
	switch t {
	case shader.F32:
		return f32(float32(f)), nil
	case shader.F64:
		return f64(f), nil
	}
	return value{}, fmt.Errorf("convert %s to %s", x.T, t)
}
