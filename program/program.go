package program

import (
	"fmt"
	"strconv"

	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

// Signature is a function type over numeric value types.
type Signature struct {
	Params  []numeric.ValueType
	Results []numeric.ValueType
}

func (s Signature) String() string {
	return fmt.Sprintf("%v -> %v", s.Params, s.Results)
}

// Function is a defined function: an identifier, its locals (parameters
// first) and its structured body. Immutable after construction.
type Function struct {
	// Err is set when the function uses a construct the compiler cannot
	// represent (for example reference-typed locals). Body may be nil.
	Err error

	Body    *Seq
	Name    string
	Exports []string
	Type    Signature
	Locals  []numeric.ValueType

	// Calls lists direct call targets in order of appearance, including
	// calls to imported functions.
	Calls []uint32

	// Index is the function's index in the module's function index space.
	Index uint32
	// Pos is the function's position among defined functions (declaration order).
	Pos int

	// IndirectCalls and MemoryOps count call_indirect and memory.size/grow sites.
	IndirectCalls int
	MemoryOps     int
}

// Import is an imported function, executed by the host.
type Import struct {
	Err    error
	Module string
	Name   string
	Type   Signature
	Index  uint32
}

// Global is a module-defined global with its constant initial value.
type Global struct {
	Init    numeric.Value
	Type    numeric.ValueType
	Mutable bool
}

// Program is the function set of one module.
type Program struct {
	Imports []*Import
	Funcs   []*Function
	Globals []Global
	// Types holds every module type; entries with reference types are
	// marked by TypeErrs.
	Types    []Signature
	TypeErrs []error
}

// NumImports returns the number of imported functions.
func (p *Program) NumImports() int {
	return len(p.Imports)
}

// IsImport reports whether idx addresses an imported function.
func (p *Program) IsImport(idx uint32) bool {
	return int(idx) < len(p.Imports)
}

// Func returns the defined function at function index idx, or nil.
func (p *Program) Func(idx uint32) *Function {
	if p.IsImport(idx) {
		return nil
	}
	pos := int(idx) - len(p.Imports)
	if pos >= len(p.Funcs) {
		return nil
	}
	return p.Funcs[pos]
}

// Signature returns the type of any function index.
func (p *Program) Signature(idx uint32) (Signature, bool) {
	if p.IsImport(idx) {
		return p.Imports[idx].Type, true
	}
	if f := p.Func(idx); f != nil {
		return f.Type, true
	}
	return Signature{}, false
}

// HostOps reports whether f performs an operation the host must mediate:
// a call to an import, call_indirect, or memory.size/grow.
func (p *Program) HostOps(f *Function) bool {
	if f.IndirectCalls > 0 || f.MemoryOps > 0 {
		return true
	}
	for _, c := range f.Calls {
		if p.IsImport(c) {
			return true
		}
	}
	return false
}

// FunctionByName finds a defined function by export name or generated name.
func (p *Program) FunctionByName(name string) *Function {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
		for _, e := range f.Exports {
			if e == name {
				return f
			}
		}
	}
	return nil
}

func convertTypes(vts []wasm.ValType) ([]numeric.ValueType, error) {
	out := make([]numeric.ValueType, len(vts))
	for i, vt := range vts {
		t, ok := numeric.FromWasm(vt)
		if !ok {
			return nil, fmt.Errorf("value type %s", vt)
		}
		out[i] = t
	}
	return out, nil
}

func convertSig(ft wasm.FuncType) (Signature, error) {
	params, err := convertTypes(ft.Params)
	if err != nil {
		return Signature{}, err
	}
	results, err := convertTypes(ft.Results)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Params: params, Results: results}, nil
}

// FromModule builds the function set of a parsed module.
// Structural decoding failures are malformed-module errors; constructs the
// compiler cannot represent are recorded per function in Function.Err.
func FromModule(m *wasm.Module) (*Program, error) {
	if len(m.Funcs) != len(m.Code) {
		return nil, errors.Malformed(errors.PhaseProgram, "%d functions declared, %d bodies", len(m.Funcs), len(m.Code))
	}
	p := &Program{
		Types:    make([]Signature, len(m.Types)),
		TypeErrs: make([]error, len(m.Types)),
	}
	for i, ft := range m.Types {
		sig, err := convertSig(ft)
		p.Types[i] = sig
		if err != nil {
			p.TypeErrs[i] = errors.Unsupported(errors.PhaseProgram, "", fmt.Sprintf("type %d: %v", i, err))
		}
	}

	sigAt := func(typeIdx uint32) (sig Signature, unsupported bool, err error) {
		if int(typeIdx) >= len(p.Types) {
			return Signature{}, false, errors.Malformed(errors.PhaseProgram, "type index %d out of range", typeIdx)
		}
		return p.Types[typeIdx], p.TypeErrs[typeIdx] != nil, nil
	}

	for _, imp := range m.Imports {
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			sig, unsupported, err := sigAt(imp.Desc.TypeIdx)
			if err != nil {
				return nil, err
			}
			p.Imports = append(p.Imports, &Import{
				Index:  uint32(len(p.Imports)),
				Module: imp.Module,
				Name:   imp.Name,
				Type:   sig,
			})
			if unsupported {
				p.Imports[len(p.Imports)-1].Err = p.TypeErrs[imp.Desc.TypeIdx]
			}
		case wasm.KindGlobal:
			return nil, errors.Unsupported(errors.PhaseProgram, "", fmt.Sprintf("imported global %s.%s", imp.Module, imp.Name))
		}
	}

	for i, g := range m.Globals {
		vt, ok := numeric.FromWasm(g.Type.ValType)
		if !ok {
			return nil, errors.Unsupported(errors.PhaseProgram, "", fmt.Sprintf("global %d of type %s", i, g.Type.ValType))
		}
		init, err := constValue(g.Init, vt)
		if err != nil {
			return nil, errors.New(errors.PhaseProgram, errors.KindMalformed).
				Path("global", strconv.Itoa(i)).Cause(err).Build()
		}
		p.Globals = append(p.Globals, Global{Type: vt, Mutable: g.Type.Mutable, Init: init})
	}

	exports := map[uint32][]string{}
	for _, e := range m.Exports {
		if e.Kind == wasm.KindFunc {
			exports[e.Idx] = append(exports[e.Idx], e.Name)
		}
	}

	base := uint32(len(p.Imports))
	for pos, typeIdx := range m.Funcs {
		idx := base + uint32(pos)
		f := &Function{
			Index:   idx,
			Pos:     pos,
			Name:    "f" + strconv.Itoa(int(idx)),
			Exports: exports[idx],
		}
		if len(f.Exports) > 0 {
			f.Name = f.Exports[0]
		}
		p.Funcs = append(p.Funcs, f)

		sig, unsupported, err := sigAt(typeIdx)
		if err != nil {
			return nil, err
		}
		f.Type = sig
		if unsupported {
			f.Err = errors.Unsupported(errors.PhaseProgram, f.Name, "signature uses reference types")
			continue
		}

		f.Locals = append(f.Locals, sig.Params...)
		for _, l := range m.Code[pos].Locals {
			t, ok := numeric.FromWasm(l.ValType)
			if !ok {
				f.Err = errors.Unsupported(errors.PhaseProgram, f.Name, fmt.Sprintf("local of type %s", l.ValType))
				break
			}
			for j := uint32(0); j < l.Count; j++ {
				f.Locals = append(f.Locals, t)
			}
		}
		if f.Err != nil {
			continue
		}

		instrs, err := wasm.DecodeInstructions(m.Code[pos].Code)
		if err != nil {
			return nil, errors.New(errors.PhaseProgram, errors.KindMalformed).Func(f.Name).Cause(err).Build()
		}
		body, err := Parse(instrs, m.Types)
		if err != nil {
			return nil, errors.New(errors.PhaseProgram, errors.KindMalformed).Func(f.Name).Cause(err).Build()
		}
		f.Body = body
		collectSites(f, body)
	}

	return p, nil
}

func collectSites(f *Function, n Node) {
	switch n := n.(type) {
	case *Seq:
		for _, c := range n.Children {
			collectSites(f, c)
		}
	case *Block:
		collectSites(f, n.Body)
	case *If:
		collectSites(f, n.Then)
		if n.Else != nil {
			collectSites(f, n.Else)
		}
	case *Instr:
		switch n.Opcode {
		case wasm.OpCall:
			f.Calls = append(f.Calls, n.Imm.(wasm.CallImm).FuncIdx)
		case wasm.OpCallIndirect:
			f.IndirectCalls++
		case wasm.OpMemorySize, wasm.OpMemoryGrow:
			f.MemoryOps++
		}
	}
}

func constValue(init []byte, t numeric.ValueType) (numeric.Value, error) {
	instrs, err := wasm.DecodeInstructions(init)
	if err != nil {
		return numeric.Value{}, err
	}
	if len(instrs) != 2 || instrs[1].Opcode != wasm.OpEnd {
		return numeric.Value{}, fmt.Errorf("initializer is not a single constant")
	}
	var v numeric.Value
	switch imm := instrs[0].Imm.(type) {
	case wasm.I32Imm:
		v = numeric.ValueI32(imm.Value)
	case wasm.I64Imm:
		v = numeric.ValueI64(imm.Value)
	case wasm.F32Imm:
		v = numeric.ValueF32(imm.Value)
	case wasm.F64Imm:
		v = numeric.ValueF64(imm.Value)
	default:
		return numeric.Value{}, fmt.Errorf("unsupported initializer opcode 0x%02x", instrs[0].Opcode)
	}
	if v.Type != t {
		return numeric.Value{}, fmt.Errorf("initializer of type %s for %s global", v.Type, t)
	}
	return v, nil
}
