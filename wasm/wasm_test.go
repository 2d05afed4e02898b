package wasm

import (
	"bytes"
	"math"
	"testing"
)

func sampleModule() *Module {
	maxPages := uint64(4)
	return &Module{
		Types: []FuncType{
			{Params: []ValType{ValI32}, Results: []ValType{ValI32}},
			{Params: []ValType{ValI64, ValF64}},
		},
		Imports: []Import{
			{Module: "env", Name: "log", Desc: ImportDesc{Kind: KindFunc, TypeIdx: 1}},
		},
		Funcs:    []uint32{0},
		Memories: []Limits{{Min: 1, Max: &maxPages}},
		Globals: []Global{{
			Type: GlobalType{ValType: ValI32, Mutable: true},
			Init: EncodeInstructions([]Instruction{{Opcode: OpI32Const, Imm: I32Imm{Value: 7}}, {Opcode: OpEnd}}),
		}},
		Exports: []Export{{Name: "fact", Kind: KindFunc, Idx: 1}},
		Code: []FuncBody{{
			Locals: []LocalEntry{{Count: 2, ValType: ValI64}},
			Code: EncodeInstructions([]Instruction{
				{Opcode: OpLocalGet, Imm: LocalImm{LocalIdx: 0}},
				{Opcode: OpCall, Imm: CallImm{FuncIdx: 1}},
				{Opcode: OpEnd},
			}),
		}},
	}
}

func TestParseModule_RoundTrip(t *testing.T) {
	m := sampleModule()
	data := m.Encode()

	parsed, err := ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Types) != 2 || !parsed.Types[0].Equal(m.Types[0]) || !parsed.Types[1].Equal(m.Types[1]) {
		t.Errorf("types = %+v", parsed.Types)
	}
	if parsed.NumImportedFuncs() != 1 {
		t.Errorf("imported funcs = %d", parsed.NumImportedFuncs())
	}
	if len(parsed.Memories) != 1 || parsed.Memories[0].Max == nil || *parsed.Memories[0].Max != 4 {
		t.Errorf("memories = %+v", parsed.Memories)
	}
	if !bytes.Equal(parsed.Globals[0].Init, m.Globals[0].Init) {
		t.Errorf("global init = %x", parsed.Globals[0].Init)
	}
	idx, ok := parsed.ExportedFunc("fact")
	if !ok || idx != 1 {
		t.Errorf("ExportedFunc = %d, %v", idx, ok)
	}
	if len(parsed.Code) != 1 || parsed.Code[0].Locals[0].Count != 2 {
		t.Errorf("code = %+v", parsed.Code)
	}
	if !bytes.Equal(parsed.Encode(), data) {
		t.Error("re-encoding changed the binary")
	}
}

func TestFuncTypeAt(t *testing.T) {
	m := sampleModule()

	ft, ok := m.FuncTypeAt(0)
	if !ok || len(ft.Params) != 2 {
		t.Errorf("import type = %+v, %v", ft, ok)
	}
	ft, ok = m.FuncTypeAt(1)
	if !ok || len(ft.Results) != 1 {
		t.Errorf("defined type = %+v, %v", ft, ok)
	}
	if _, ok := m.FuncTypeAt(2); ok {
		t.Error("index past the end should fail")
	}
}

func TestParseModule_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte{1, 2, 3, 4, 1, 0, 0, 0}},
		{"bad version", []byte{0, 'a', 's', 'm', 2, 0, 0, 0}},
		{"truncated section", []byte{0, 'a', 's', 'm', 1, 0, 0, 0, SectionType, 10, 1}},
		{"out of order", []byte{0, 'a', 's', 'm', 1, 0, 0, 0, SectionFunction, 1, 0, SectionType, 1, 0}},
		{"func without code", []byte{0, 'a', 's', 'm', 1, 0, 0, 0,
			SectionType, 4, 1, FuncTypeByte, 0, 0,
			SectionFunction, 2, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseModule(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecodeInstructions(t *testing.T) {
	v := V128Imm{}
	for i := range v.Bytes {
		v.Bytes[i] = byte(i)
	}
	instrs := []Instruction{
		{Opcode: OpBlock, Imm: BlockImm{Type: BlockTypeI64}},
		{Opcode: OpI64Const, Imm: I64Imm{Value: math.MinInt64}},
		{Opcode: OpF64Const, Imm: F64Imm{Value: -2.5}},
		{Opcode: OpF32Const, Imm: F32Imm{Value: 1.5}},
		{Opcode: OpDrop},
		{Opcode: OpDrop},
		{Opcode: OpBrTable, Imm: BrTableImm{Labels: []uint32{0, 1}, Default: 0}},
		{Opcode: OpCallIndirect, Imm: CallIndirectImm{TypeIdx: 3}},
		{Opcode: OpPrefixSIMD, Imm: v},
		{Opcode: OpI32Load, Imm: MemoryImm{Align: 2, Offset: 16}},
		{Opcode: OpMemoryGrow, Imm: MemoryIdxImm{}},
		{Opcode: OpI32Const, Imm: I32Imm{Value: -1}},
		{Opcode: OpEnd},
	}

	decoded, err := DecodeInstructions(EncodeInstructions(instrs))
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	if len(decoded) != len(instrs) {
		t.Fatalf("got %d instructions, want %d", len(decoded), len(instrs))
	}
	if decoded[1].Imm.(I64Imm).Value != math.MinInt64 {
		t.Errorf("i64.const = %v", decoded[1].Imm)
	}
	if decoded[2].Imm.(F64Imm).Value != -2.5 {
		t.Errorf("f64.const = %v", decoded[2].Imm)
	}
	bt := decoded[6].Imm.(BrTableImm)
	if len(bt.Labels) != 2 || bt.Labels[1] != 1 {
		t.Errorf("br_table = %+v", bt)
	}
	if !decoded[8].IsV128Const() || decoded[8].Imm.(V128Imm).Bytes[15] != 15 {
		t.Errorf("v128.const = %+v", decoded[8])
	}
	if !decoded[7].IsIndirectCall() {
		t.Error("call_indirect not recognized")
	}
	if decoded[11].Imm.(I32Imm).Value != -1 {
		t.Errorf("i32.const = %v", decoded[11].Imm)
	}
}

func TestDecodeInstructions_Rejects(t *testing.T) {
	for _, code := range [][]byte{
		{0x06},             // try
		{0xFC, 0x00},       // misc prefix
		{0xFD, 0x0D},       // vector shuffle
		{OpI32Const},       // truncated immediate
		{OpBr, 0x80, 0x80}, // truncated LEB
	} {
		if _, err := DecodeInstructions(code); err == nil {
			t.Errorf("expected error decoding %x", code)
		}
	}
}

func TestLEB128(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 63, 64, -64, -65, math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64} {
		var buf bytes.Buffer
		WriteLEB128s64(&buf, v)
		got, err := ReadLEB128s64(bytes.NewReader(buf.Bytes()))
		if err != nil || got != v {
			t.Errorf("s64 %d: got %d, %v", v, got, err)
		}
	}
	for _, v := range []uint32{0, 127, 128, 1 << 20, math.MaxUint32} {
		var buf bytes.Buffer
		WriteLEB128u(&buf, v)
		got, err := ReadLEB128u(bytes.NewReader(buf.Bytes()))
		if err != nil || got != v {
			t.Errorf("u32 %d: got %d, %v", v, got, err)
		}
	}
	if _, err := ReadLEB128u(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})); err != ErrOverflow {
		t.Errorf("expected overflow, got %v", err)
	}
}
