// Package testmod builds small WebAssembly modules in code for tests.
package testmod

import (
	"github.com/LucentFlux/wasm-gpu/wasm"
)

// Builder accumulates a module. Imports must be declared before functions
// so that function indices are stable.
type Builder struct {
	m     wasm.Module
	funcs int
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) typeIdx(params, results []wasm.ValType) uint32 {
	ft := wasm.FuncType{Params: params, Results: results}
	for i, t := range b.m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	b.m.Types = append(b.m.Types, ft)
	return uint32(len(b.m.Types) - 1)
}

// Type registers a function type and returns its index.
func (b *Builder) Type(params, results []wasm.ValType) uint32 {
	return b.typeIdx(params, results)
}

// Import declares an imported function and returns its function index.
func (b *Builder) Import(module, name string, params, results []wasm.ValType) uint32 {
	if b.funcs > 0 {
		panic("testmod: imports must precede functions")
	}
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: b.typeIdx(params, results)},
	})
	return uint32(len(b.m.Imports) - 1)
}

// NextFunc returns the index the next Func call will receive.
func (b *Builder) NextFunc() uint32 {
	return uint32(b.m.NumImportedFuncs() + b.funcs)
}

// Func adds a function and returns its index. A non-empty name exports it.
// The final end is appended to body.
func (b *Builder) Func(name string, params, results, locals []wasm.ValType, body ...wasm.Instruction) uint32 {
	idx := b.NextFunc()
	b.funcs++
	b.m.Funcs = append(b.m.Funcs, b.typeIdx(params, results))

	var entries []wasm.LocalEntry
	for _, l := range locals {
		if n := len(entries); n > 0 && entries[n-1].ValType == l {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, wasm.LocalEntry{Count: 1, ValType: l})
	}
	code := append(append([]wasm.Instruction{}, body...), End())
	b.m.Code = append(b.m.Code, wasm.FuncBody{Locals: entries, Code: wasm.EncodeInstructions(code)})

	if name != "" {
		b.m.Exports = append(b.m.Exports, wasm.Export{Name: name, Kind: wasm.KindFunc, Idx: idx})
	}
	return idx
}

// Memory adds a memory with the given initial page count.
func (b *Builder) Memory(pages uint64) {
	b.m.Memories = append(b.m.Memories, wasm.Limits{Min: pages})
}

// Global adds a global initialized by a single constant instruction.
func (b *Builder) Global(t wasm.ValType, mutable bool, init wasm.Instruction) uint32 {
	b.m.Globals = append(b.m.Globals, wasm.Global{
		Type: wasm.GlobalType{ValType: t, Mutable: mutable},
		Init: wasm.EncodeInstructions([]wasm.Instruction{init, End()}),
	})
	return uint32(len(b.m.Globals) - 1)
}

// Table adds a funcref table.
func (b *Builder) Table(size uint64) {
	b.m.Tables = append(b.m.Tables, wasm.TableType{ElemType: byte(wasm.ValFuncRef), Limits: wasm.Limits{Min: size}})
}

// Module returns the built module.
func (b *Builder) Module() *wasm.Module {
	m := b.m
	return &m
}

// Binary returns the encoded module.
func (b *Builder) Binary() []byte {
	return b.m.Encode()
}

// Value type shorthands.
var (
	I32T  = wasm.ValI32
	I64T  = wasm.ValI64
	F32T  = wasm.ValF32
	F64T  = wasm.ValF64
	V128T = wasm.ValV128
)

// Types is a shorthand for a value type list.
func Types(ts ...wasm.ValType) []wasm.ValType {
	return ts
}

func Op(op byte) wasm.Instruction {
	return wasm.Instruction{Opcode: op}
}

func End() wasm.Instruction {
	return Op(wasm.OpEnd)
}

func Else() wasm.Instruction {
	return Op(wasm.OpElse)
}

func Return() wasm.Instruction {
	return Op(wasm.OpReturn)
}

func Drop() wasm.Instruction {
	return Op(wasm.OpDrop)
}

func I32(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func I64(v int64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: v}}
}

func F32(v float32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Value: v}}
}

func F64(v float64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: v}}
}

func Get(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: i}}
}

func Set(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalSet, Imm: wasm.LocalImm{LocalIdx: i}}
}

func Tee(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalTee, Imm: wasm.LocalImm{LocalIdx: i}}
}

func GlobalGet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: i}}
}

func GlobalSet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: i}}
}

func Call(f uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: f}}
}

func CallIndirect(t uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCallIndirect, Imm: wasm.CallIndirectImm{TypeIdx: t}}
}

func Br(d uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBr, Imm: wasm.BranchImm{LabelIdx: d}}
}

func BrIf(d uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: d}}
}

func BrTable(def uint32, labels ...uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBrTable, Imm: wasm.BrTableImm{Labels: labels, Default: def}}
}

func Block(bt int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: bt}}
}

func Loop(bt int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: bt}}
}

func If(bt int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: bt}}
}

func MemorySize() wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpMemorySize, Imm: wasm.MemoryIdxImm{}}
}

func MemoryGrow() wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{}}
}

// Void and single-result block types.
const (
	Void   = wasm.BlockTypeVoid
	BlkI32 = wasm.BlockTypeI32
	BlkI64 = wasm.BlockTypeI64
	BlkF64 = wasm.BlockTypeF64
)

func Nop() wasm.Instruction {
	return Op(wasm.OpNop)
}

func Unreachable() wasm.Instruction {
	return Op(wasm.OpUnreachable)
}

func Select() wasm.Instruction {
	return Op(wasm.OpSelect)
}
