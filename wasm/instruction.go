package wasm

import (
	"bytes"
	"fmt"
	"io"
)

// Instruction is a decoded WebAssembly instruction.
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// BlockImm holds the block type for block, loop and if.
type BlockImm struct {
	Type int32 // -64=void, -1=i32, -2=i64, -3=f32, -4=f64, -5=v128, >=0 type index
}

// BranchImm holds the label index for br and br_if.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds type and table indices for call_indirect.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for loads and stores.
type MemoryImm struct {
	Offset uint32
	Align  uint32
}

// MemoryIdxImm holds the memory index for memory.size and memory.grow.
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds the value of i32.const.
type I32Imm struct {
	Value int32
}

// I64Imm holds the value of i64.const.
type I64Imm struct {
	Value int64
}

// F32Imm holds the value of f32.const.
type F32Imm struct {
	Value float32
}

// F64Imm holds the value of f64.const.
type F64Imm struct {
	Value float64
}

// V128Imm holds the 16 little-endian bytes of v128.const.
type V128Imm struct {
	Bytes [16]byte
}

// GetCallTarget returns the call target if this is a direct call.
func (i Instruction) GetCallTarget() (uint32, bool) {
	if i.Opcode == OpCall {
		if imm, ok := i.Imm.(CallImm); ok {
			return imm.FuncIdx, true
		}
	}
	return 0, false
}

// IsIndirectCall returns true for call_indirect.
func (i Instruction) IsIndirectCall() bool {
	return i.Opcode == OpCallIndirect
}

// IsV128Const reports whether this is a v128.const instruction.
func (i Instruction) IsV128Const() bool {
	_, ok := i.Imm.(V128Imm)
	return i.Opcode == OpPrefixSIMD && ok
}

func isMemoryAccess(op byte) bool {
	return op >= OpI32Load && op <= OpI64Store32
}

// DecodeInstructions decodes a flat instruction sequence.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := bytes.NewReader(code)
	instrs := make([]Instruction, 0, len(code)/2)

	for r.Len() > 0 {
		op, _ := r.ReadByte()
		instr := Instruction{Opcode: op}
		var err error

		switch {
		case op == OpBlock || op == OpLoop || op == OpIf:
			var bt int32
			bt, err = ReadLEB128s(r)
			instr.Imm = BlockImm{Type: bt}

		case op == OpBr || op == OpBrIf:
			var idx uint32
			idx, err = ReadLEB128u(r)
			instr.Imm = BranchImm{LabelIdx: idx}

		case op == OpBrTable:
			instr.Imm, err = readBrTable(r)

		case op == OpCall:
			var idx uint32
			idx, err = ReadLEB128u(r)
			instr.Imm = CallImm{FuncIdx: idx}

		case op == OpCallIndirect:
			var typeIdx, tableIdx uint32
			if typeIdx, err = ReadLEB128u(r); err == nil {
				tableIdx, err = ReadLEB128u(r)
			}
			instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

		case op == OpLocalGet || op == OpLocalSet || op == OpLocalTee:
			var idx uint32
			idx, err = ReadLEB128u(r)
			instr.Imm = LocalImm{LocalIdx: idx}

		case op == OpGlobalGet || op == OpGlobalSet:
			var idx uint32
			idx, err = ReadLEB128u(r)
			instr.Imm = GlobalImm{GlobalIdx: idx}

		case isMemoryAccess(op):
			var align, offset uint32
			if align, err = ReadLEB128u(r); err == nil {
				offset, err = ReadLEB128u(r)
			}
			instr.Imm = MemoryImm{Align: align, Offset: offset}

		case op == OpMemorySize || op == OpMemoryGrow:
			var idx uint32
			idx, err = ReadLEB128u(r)
			instr.Imm = MemoryIdxImm{MemIdx: idx}

		case op == OpI32Const:
			var v int32
			v, err = ReadLEB128s(r)
			instr.Imm = I32Imm{Value: v}

		case op == OpI64Const:
			var v int64
			v, err = ReadLEB128s64(r)
			instr.Imm = I64Imm{Value: v}

		case op == OpF32Const:
			var v float32
			v, err = readFloat32(r)
			instr.Imm = F32Imm{Value: v}

		case op == OpF64Const:
			var v float64
			v, err = readFloat64(r)
			instr.Imm = F64Imm{Value: v}

		case op == OpPrefixSIMD:
			var sub uint32
			if sub, err = ReadLEB128u(r); err != nil {
				break
			}
			if sub != SIMDV128Const {
				return nil, fmt.Errorf("unsupported vector sub-opcode 0x%x", sub)
			}
			var imm V128Imm
			_, err = io.ReadFull(r, imm.Bytes[:])
			instr.Imm = imm

		case isBare(op):

		default:
			return nil, fmt.Errorf("unknown opcode 0x%02x", op)
		}

		if err != nil {
			return nil, fmt.Errorf("opcode 0x%02x: %w", op, err)
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

// isBare reports whether op carries no immediates.
func isBare(op byte) bool {
	switch op {
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect:
		return true
	}
	return op >= OpI32Eqz && op <= OpI64Extend32S
}

func readBrTable(r *bytes.Reader) (BrTableImm, error) {
	count, err := ReadLEB128u(r)
	if err != nil {
		return BrTableImm{}, err
	}
	if int(count) > r.Len() {
		return BrTableImm{}, fmt.Errorf("br_table count %d exceeds body", count)
	}
	labels := make([]uint32, count)
	for i := range labels {
		if labels[i], err = ReadLEB128u(r); err != nil {
			return BrTableImm{}, err
		}
	}
	def, err := ReadLEB128u(r)
	return BrTableImm{Labels: labels, Default: def}, err
}

// EncodeInstructionTo writes a single instruction to buf.
func EncodeInstructionTo(buf *bytes.Buffer, instr *Instruction) {
	buf.WriteByte(instr.Opcode)

	switch imm := instr.Imm.(type) {
	case BlockImm:
		WriteLEB128s(buf, imm.Type)
	case BranchImm:
		WriteLEB128u(buf, imm.LabelIdx)
	case BrTableImm:
		WriteLEB128u(buf, uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			WriteLEB128u(buf, l)
		}
		WriteLEB128u(buf, imm.Default)
	case CallImm:
		WriteLEB128u(buf, imm.FuncIdx)
	case CallIndirectImm:
		WriteLEB128u(buf, imm.TypeIdx)
		WriteLEB128u(buf, imm.TableIdx)
	case LocalImm:
		WriteLEB128u(buf, imm.LocalIdx)
	case GlobalImm:
		WriteLEB128u(buf, imm.GlobalIdx)
	case MemoryImm:
		WriteLEB128u(buf, imm.Align)
		WriteLEB128u(buf, imm.Offset)
	case MemoryIdxImm:
		WriteLEB128u(buf, imm.MemIdx)
	case I32Imm:
		WriteLEB128s(buf, imm.Value)
	case I64Imm:
		WriteLEB128s64(buf, imm.Value)
	case F32Imm:
		writeFloat32(buf, imm.Value)
	case F64Imm:
		writeFloat64(buf, imm.Value)
	case V128Imm:
		WriteLEB128u(buf, SIMDV128Const)
		buf.Write(imm.Bytes[:])
	}
}

// EncodeInstructions encodes instructions to bytes.
func EncodeInstructions(instrs []Instruction) []byte {
	var buf bytes.Buffer
	buf.Grow(len(instrs) * 3)
	for i := range instrs {
		EncodeInstructionTo(&buf, &instrs[i])
	}
	return buf.Bytes()
}
