package program

import (
	"testing"

	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/internal/testmod"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

func TestFromModule(t *testing.T) {
	b := testmod.New()
	logFn := b.Import("env", "log", testmod.Types(testmod.I32T), nil)
	b.Global(testmod.I64T, true, testmod.I64(-5))
	double := b.Func("", testmod.Types(testmod.I32T), testmod.Types(testmod.I32T), nil,
		testmod.Get(0), testmod.Get(0), testmod.Op(wasm.OpI32Add))
	b.Func("run", testmod.Types(testmod.I32T), testmod.Types(testmod.I32T), testmod.Types(testmod.I64T, testmod.I64T, testmod.F32T),
		testmod.Get(0), testmod.Call(logFn),
		testmod.Get(0), testmod.Call(double),
		testmod.MemorySize(), testmod.Drop(),
	)

	p, err := FromModule(b.Module())
	if err != nil {
		t.Fatalf("FromModule: %v", err)
	}

	if p.NumImports() != 1 || p.Imports[0].Name != "log" {
		t.Fatalf("imports = %+v", p.Imports)
	}
	if len(p.Globals) != 1 || p.Globals[0].Init.I64() != -5 || !p.Globals[0].Mutable {
		t.Errorf("globals = %+v", p.Globals)
	}

	run := p.FunctionByName("run")
	if run == nil {
		t.Fatal("run not found")
	}
	if run.Index != 2 || run.Pos != 1 {
		t.Errorf("run index = %d pos = %d", run.Index, run.Pos)
	}
	want := []numeric.ValueType{numeric.I32, numeric.I64, numeric.I64, numeric.F32}
	if len(run.Locals) != len(want) {
		t.Fatalf("locals = %v", run.Locals)
	}
	for i := range want {
		if run.Locals[i] != want[i] {
			t.Errorf("local %d = %s, want %s", i, run.Locals[i], want[i])
		}
	}
	if len(run.Calls) != 2 || run.Calls[0] != logFn || run.Calls[1] != double {
		t.Errorf("calls = %v", run.Calls)
	}
	if run.MemoryOps != 1 || !p.HostOps(run) {
		t.Error("memory.size and import call should count as host operations")
	}
	if p.HostOps(p.Func(double)) {
		t.Error("double performs no host operation")
	}
	if p.Func(double).Name != "f1" {
		t.Errorf("unexported name = %q", p.Func(double).Name)
	}
	if p.Func(logFn) != nil {
		t.Error("Func should not return imports")
	}
	if sig, ok := p.Signature(logFn); !ok || len(sig.Params) != 1 {
		t.Errorf("import signature = %v, %v", sig, ok)
	}
}

func TestFromModule_Unsupported(t *testing.T) {
	b := testmod.New()
	b.Func("refs", nil, nil, testmod.Types(wasm.ValFuncRef))
	b.Func("ok", nil, nil, nil)

	p, err := FromModule(b.Module())
	if err != nil {
		t.Fatalf("FromModule: %v", err)
	}
	if !errors.IsUnsupported(p.Funcs[0].Err) {
		t.Errorf("refs.Err = %v", p.Funcs[0].Err)
	}
	if p.Funcs[1].Err != nil {
		t.Errorf("ok.Err = %v", p.Funcs[1].Err)
	}
}

func TestFromModule_Malformed(t *testing.T) {
	b := testmod.New()
	b.Func("bad", nil, nil, nil, testmod.Block(testmod.Void))

	_, err := FromModule(b.Module())
	if !errors.IsMalformed(err) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestParse_Structure(t *testing.T) {
	instrs := []wasm.Instruction{
		testmod.Block(testmod.BlkI32),
		testmod.I32(1),
		testmod.If(testmod.Void), testmod.Nop(), testmod.Else(), testmod.I32(2), testmod.Drop(), testmod.End(),
		testmod.I32(3),
		testmod.End(),
		testmod.Loop(testmod.Void), testmod.Br(0), testmod.I32(9), testmod.Drop(), testmod.End(),
		testmod.End(),
	}
	body, err := Parse(instrs, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(body.Children) != 2 {
		t.Fatalf("top level = %d nodes", len(body.Children))
	}

	blk := body.Children[0].(*Block)
	if blk.Loop || len(blk.Results) != 1 || len(blk.Body.Children) != 3 {
		t.Errorf("block = %+v", blk)
	}
	iff := blk.Body.Children[1].(*If)
	if len(iff.Then.Children) != 0 {
		t.Error("nop should be dropped")
	}
	if iff.Else == nil || len(iff.Else.Children) != 2 {
		t.Errorf("else = %+v", iff.Else)
	}

	loop := body.Children[1].(*Block)
	if !loop.Loop || len(loop.Body.Children) != 1 {
		t.Errorf("dead code after br should be dropped: %+v", loop.Body.Children)
	}
	if len(loop.LabelTypes()) != 0 {
		t.Error("void loop label carries nothing")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := [][]wasm.Instruction{
		{testmod.I32(1)},
		{testmod.Block(testmod.Void), testmod.End()},
		{testmod.End(), testmod.End()},
		{testmod.Block(testmod.Void), testmod.Else(), testmod.End(), testmod.End()},
		{testmod.Block(7), testmod.End(), testmod.End()},
	}
	for i, instrs := range tests {
		if _, err := Parse(instrs, nil); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestLookupNumeric(t *testing.T) {
	tests := []struct {
		op      byte
		name    string
		params  []numeric.ValueType
		results []numeric.ValueType
	}{
		{wasm.OpI32Eqz, "i32.eqz", []numeric.ValueType{numeric.I32}, []numeric.ValueType{numeric.I32}},
		{wasm.OpI64LtS, "i64.lt_s", []numeric.ValueType{numeric.I64, numeric.I64}, []numeric.ValueType{numeric.I32}},
		{wasm.OpF64Add, "f64.add", []numeric.ValueType{numeric.F64, numeric.F64}, []numeric.ValueType{numeric.F64}},
		{wasm.OpI64ShrS, "i64.shr_s", []numeric.ValueType{numeric.I64, numeric.I64}, []numeric.ValueType{numeric.I64}},
		{wasm.OpI32WrapI64, "i32.wrap_i64", []numeric.ValueType{numeric.I64}, []numeric.ValueType{numeric.I32}},
		{wasm.OpI32TruncF64U, "i32.trunc_f64_u", []numeric.ValueType{numeric.F64}, []numeric.ValueType{numeric.I32}},
		{wasm.OpF64PromoteF32, "f64.promote_f32", []numeric.ValueType{numeric.F32}, []numeric.ValueType{numeric.F64}},
		{wasm.OpI64Extend8S, "i64.extend8_s", []numeric.ValueType{numeric.I64}, []numeric.ValueType{numeric.I64}},
		{wasm.OpF32Sqrt, "f32.sqrt", []numeric.ValueType{numeric.F32}, []numeric.ValueType{numeric.F32}},
	}
	for _, tt := range tests {
		op, ok := LookupNumeric(tt.op)
		if !ok {
			t.Errorf("0x%02x not found", tt.op)
			continue
		}
		if op.Name != tt.name || !sameTypes(op.Params, tt.params) || !sameTypes(op.Results, tt.results) {
			t.Errorf("0x%02x = %+v", tt.op, op)
		}
	}
	if _, ok := LookupNumeric(wasm.OpCall); ok {
		t.Error("call is not numeric")
	}
	op, _ := LookupNumeric(wasm.OpI64Mul)
	if op.Type() != numeric.I64 || op.Mnemonic() != "mul" {
		t.Errorf("Type/Mnemonic = %s/%s", op.Type(), op.Mnemonic())
	}
}

func sameTypes(a, b []numeric.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEffect(t *testing.T) {
	b := testmod.New()
	b.Global(testmod.I32T, false, testmod.I32(1))
	b.Global(testmod.F64T, true, testmod.F64(2))
	b.Func("f", testmod.Types(testmod.I64T), nil, testmod.Types(testmod.F32T))
	p, err := FromModule(b.Module())
	if err != nil {
		t.Fatal(err)
	}
	f := p.Funcs[0]

	var s TypeStack
	apply := func(in wasm.Instruction) error {
		e, err := p.Effect(f, in, s)
		if err != nil {
			return err
		}
		return s.Apply(f.Name, e)
	}

	for _, in := range []wasm.Instruction{testmod.Get(0), testmod.Get(1), testmod.I32(1)} {
		if err := apply(in); err != nil {
			t.Fatal(err)
		}
	}
	if err := apply(testmod.Op(wasm.OpSelect)); !errors.IsMalformed(err) {
		t.Fatalf("select of mixed types: %v", err)
	}

	s = nil
	if err := apply(testmod.GlobalGet(1)); err != nil {
		t.Fatal(err)
	}
	if err := apply(testmod.GlobalSet(1)); err != nil {
		t.Fatal(err)
	}

	s = nil
	if err := apply(testmod.Get(0)); err != nil {
		t.Fatal(err)
	}
	if err := apply(testmod.Get(0)); err != nil {
		t.Fatal(err)
	}
	if err := apply(testmod.I32(0)); err != nil {
		t.Fatal(err)
	}
	if err := apply(testmod.Op(wasm.OpSelect)); err != nil {
		t.Fatal(err)
	}
	if !s.Equal([]numeric.ValueType{numeric.I64}) {
		t.Fatalf("stack after select = %v", s)
	}
	if err := apply(testmod.Op(wasm.OpI32Add)); !errors.IsMalformed(err) {
		t.Errorf("i32.add on i64: %v", err)
	}
	if err := apply(testmod.GlobalSet(0)); !errors.IsMalformed(err) {
		t.Errorf("set of immutable global: %v", err)
	}
	if err := apply(testmod.Get(9)); !errors.IsMalformed(err) {
		t.Errorf("local out of range: %v", err)
	}
	load := wasm.Instruction{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{}}
	if err := apply(load); !errors.IsUnsupported(err) {
		t.Errorf("load: %v", err)
	}
}
