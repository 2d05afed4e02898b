package program

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

// StackEffect is the operand types an instruction pops (bottom first) and
// pushes.
type StackEffect struct {
	Pops   []numeric.ValueType
	Pushes []numeric.ValueType
}

var (
	typesI32 = []numeric.ValueType{numeric.I32}
	typesI64 = []numeric.ValueType{numeric.I64}
	typesF32 = []numeric.ValueType{numeric.F32}
	typesF64 = []numeric.ValueType{numeric.F64}
)

// Effect returns the stack effect of a non-structured instruction in f.
// Drop and select take their operand type from stack. Branches report only
// their condition or selector; label arity is handled by the caller.
func (p *Program) Effect(f *Function, in wasm.Instruction, stack []numeric.ValueType) (StackEffect, error) {
	if op, ok := LookupNumeric(in.Opcode); ok {
		return StackEffect{Pops: op.Params, Pushes: op.Results}, nil
	}

	switch in.Opcode {
	case wasm.OpNop, wasm.OpUnreachable, wasm.OpBr, wasm.OpReturn:
		return StackEffect{}, nil
	case wasm.OpBrIf, wasm.OpBrTable:
		return StackEffect{Pops: typesI32}, nil

	case wasm.OpI32Const:
		return StackEffect{Pushes: typesI32}, nil
	case wasm.OpI64Const:
		return StackEffect{Pushes: typesI64}, nil
	case wasm.OpF32Const:
		return StackEffect{Pushes: typesF32}, nil
	case wasm.OpF64Const:
		return StackEffect{Pushes: typesF64}, nil
	case wasm.OpPrefixSIMD:
		return StackEffect{Pushes: []numeric.ValueType{numeric.V128}}, nil

	case wasm.OpDrop:
		if len(stack) < 1 {
			return StackEffect{}, errors.Malformed(errors.PhaseSplit, "%s: drop on empty stack", f.Name)
		}
		return StackEffect{Pops: stack[len(stack)-1:]}, nil
	case wasm.OpSelect:
		if len(stack) < 3 {
			return StackEffect{}, errors.Malformed(errors.PhaseSplit, "%s: select needs 3 operands", f.Name)
		}
		t := stack[len(stack)-2]
		return StackEffect{
			Pops:   []numeric.ValueType{t, t, numeric.I32},
			Pushes: []numeric.ValueType{t},
		}, nil

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		idx := in.Imm.(wasm.LocalImm).LocalIdx
		if int(idx) >= len(f.Locals) {
			return StackEffect{}, errors.Malformed(errors.PhaseSplit, "%s: local %d out of range", f.Name, idx)
		}
		t := []numeric.ValueType{f.Locals[idx]}
		switch in.Opcode {
		case wasm.OpLocalGet:
			return StackEffect{Pushes: t}, nil
		case wasm.OpLocalSet:
			return StackEffect{Pops: t}, nil
		}
		return StackEffect{Pops: t, Pushes: t}, nil

	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		idx := in.Imm.(wasm.GlobalImm).GlobalIdx
		if int(idx) >= len(p.Globals) {
			return StackEffect{}, errors.Malformed(errors.PhaseSplit, "%s: global %d out of range", f.Name, idx)
		}
		g := p.Globals[idx]
		t := []numeric.ValueType{g.Type}
		if in.Opcode == wasm.OpGlobalGet {
			return StackEffect{Pushes: t}, nil
		}
		if !g.Mutable {
			return StackEffect{}, errors.Malformed(errors.PhaseSplit, "%s: global.set of immutable global %d", f.Name, idx)
		}
		return StackEffect{Pops: t}, nil

	case wasm.OpCall:
		target := in.Imm.(wasm.CallImm).FuncIdx
		sig, ok := p.Signature(target)
		if !ok {
			return StackEffect{}, errors.DanglingCall(f.Name, target, p.NumImports()+len(p.Funcs))
		}
		return StackEffect{Pops: sig.Params, Pushes: sig.Results}, nil

	case wasm.OpCallIndirect:
		typeIdx := in.Imm.(wasm.CallIndirectImm).TypeIdx
		if int(typeIdx) >= len(p.Types) {
			return StackEffect{}, errors.Malformed(errors.PhaseSplit, "%s: call_indirect type %d out of range", f.Name, typeIdx)
		}
		if err := p.TypeErrs[typeIdx]; err != nil {
			return StackEffect{}, err
		}
		sig := p.Types[typeIdx]
		pops := append(append([]numeric.ValueType{}, sig.Params...), numeric.I32)
		return StackEffect{Pops: pops, Pushes: sig.Results}, nil

	case wasm.OpMemorySize:
		return StackEffect{Pushes: typesI32}, nil
	case wasm.OpMemoryGrow:
		return StackEffect{Pops: typesI32, Pushes: typesI32}, nil
	}

	if in.Opcode >= wasm.OpI32Load && in.Opcode <= wasm.OpI64Store32 {
		return StackEffect{}, errors.Unsupported(errors.PhaseSplit, f.Name, fmt.Sprintf("linear memory access (opcode 0x%02x)", in.Opcode))
	}
	return StackEffect{}, errors.Unsupported(errors.PhaseSplit, f.Name, fmt.Sprintf("opcode 0x%02x", in.Opcode))
}

// TypeStack tracks operand types while walking a function body.
type TypeStack []numeric.ValueType

// Apply checks and applies an effect.
func (s *TypeStack) Apply(fn string, e StackEffect) error {
	if err := s.PopTypes(fn, e.Pops); err != nil {
		return err
	}
	*s = append(*s, e.Pushes...)
	return nil
}

// PopTypes removes want from the top of the stack, checking each type.
func (s *TypeStack) PopTypes(fn string, want []numeric.ValueType) error {
	st := *s
	if len(st) < len(want) {
		return errors.TypeMismatch(errors.PhaseSplit, fn, fmt.Sprint(want), fmt.Sprint([]numeric.ValueType(st)))
	}
	base := len(st) - len(want)
	for i, t := range want {
		if st[base+i] != t {
			return errors.TypeMismatch(errors.PhaseSplit, fn, t.String(), st[base+i].String())
		}
	}
	*s = st[:base]
	return nil
}

// Top returns a copy of the top n types.
func (s TypeStack) Top(n int) []numeric.ValueType {
	return append([]numeric.ValueType(nil), s[len(s)-n:]...)
}

// Clone copies the stack.
func (s TypeStack) Clone() TypeStack {
	return append(TypeStack(nil), s...)
}

// Equal reports whether s holds exactly want.
func (s TypeStack) Equal(want []numeric.ValueType) bool {
	if len(s) != len(want) {
		return false
	}
	for i := range s {
		if s[i] != want[i] {
			return false
		}
	}
	return true
}
