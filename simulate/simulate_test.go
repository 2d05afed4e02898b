package simulate

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/LucentFlux/wasm-gpu/compiler"
	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/internal/testmod"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

var (
	i32  = testmod.Types(testmod.I32T)
	i64  = testmod.Types(testmod.I64T)
	i32s = testmod.Types(testmod.I32T, testmod.I32T)
)

func op(o byte) wasm.Instruction { return testmod.Op(o) }

// harness runs the same module on the executor and on wazero.
type harness struct {
	t    *testing.T
	out  *compiler.Output
	exec *Executor
	ref  api.Module
}

func newHarness(t *testing.T, b *testmod.Builder, ccfg compiler.Config, cfg Config) *harness {
	t.Helper()
	bin := b.Binary()
	out, err := compiler.CompileBinary(bin, ccfg)
	require.NoError(t, err)
	exec, err := New(out, cfg)
	require.NoError(t, err)

	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	t.Cleanup(func() { r.Close(ctx) })
	_, err = r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, x int32) int32 { return x * 2 }).
		Export("double").
		Instantiate(ctx)
	require.NoError(t, err)
	ref, err := r.Instantiate(ctx, bin)
	require.NoError(t, err)
	return &harness{t: t, out: out, exec: exec, ref: ref}
}

func refValue(t numeric.ValueType, raw uint64) numeric.Value {
	switch t {
	case numeric.I32, numeric.F32:
		raw = uint64(uint32(raw))
	}
	return numeric.Value{Type: t, Lo: raw}
}

func (h *harness) want(export string, args ...numeric.Value) []numeric.Value {
	h.t.Helper()
	raw := make([]uint64, len(args))
	for i, a := range args {
		raw[i] = a.Lo
	}
	res, err := h.ref.ExportedFunction(export).Call(context.Background(), raw...)
	require.NoError(h.t, err)
	e := h.out.Entries[export]
	require.NotNil(h.t, e)
	vals := make([]numeric.Value, len(res))
	for i, r := range res {
		vals[i] = refValue(e.Results[i], r)
	}
	return vals
}

// check runs export on lane 0 and compares with wazero.
func (h *harness) check(export string, args ...numeric.Value) {
	h.t.Helper()
	got, err := h.exec.Run(context.Background(), 0, export, args)
	require.NoError(h.t, err, "%s%v", export, args)
	require.Equal(h.t, h.want(export, args...), got, "%s%v", export, args)
}

func fact(b *testmod.Builder) uint32 {
	idx := b.NextFunc()
	return b.Func("fact", i32, i32, nil,
		testmod.Get(0), op(wasm.OpI32Eqz),
		testmod.If(testmod.BlkI32),
		testmod.I32(1),
		testmod.Else(),
		testmod.Get(0),
		testmod.Get(0), testmod.I32(1), op(wasm.OpI32Sub),
		testmod.Call(idx),
		op(wasm.OpI32Mul),
		testmod.End(),
	)
}

func kindOf(t *testing.T, err error) *errors.Error {
	t.Helper()
	var e *errors.Error
	require.True(t, stderrors.As(err, &e), "%v", err)
	return e
}

func TestFactorial(t *testing.T) {
	b := testmod.New()
	fact(b)
	h := newHarness(t, b, compiler.Config{}, Config{})
	require.True(t, h.out.Entries["fact"].Machine)
	for n := int32(0); n <= 13; n++ {
		h.check("fact", numeric.ValueI32(n))
	}
}

func TestMutualRecursion(t *testing.T) {
	b := testmod.New()
	even := b.NextFunc()
	odd := even + 1
	b.Func("is_even", i32, i32, nil,
		testmod.Get(0), op(wasm.OpI32Eqz),
		testmod.If(testmod.BlkI32), testmod.I32(1),
		testmod.Else(), testmod.Get(0), testmod.I32(1), op(wasm.OpI32Sub), testmod.Call(odd),
		testmod.End())
	b.Func("is_odd", i32, i32, nil,
		testmod.Get(0), op(wasm.OpI32Eqz),
		testmod.If(testmod.BlkI32), testmod.I32(0),
		testmod.Else(), testmod.Get(0), testmod.I32(1), op(wasm.OpI32Sub), testmod.Call(even),
		testmod.End())
	h := newHarness(t, b, compiler.Config{}, Config{})
	for n := int32(0); n < 20; n++ {
		h.check("is_even", numeric.ValueI32(n))
		h.check("is_odd", numeric.ValueI32(n))
	}
}

func TestRecursiveI64(t *testing.T) {
	b := testmod.New()
	self := b.NextFunc()
	b.Func("sum", i64, i64, nil,
		testmod.Get(0), op(wasm.OpI64Eqz),
		testmod.If(testmod.BlkI64), testmod.I64(0),
		testmod.Else(),
		testmod.Get(0),
		testmod.Get(0), testmod.I64(1), op(wasm.OpI64Sub), testmod.Call(self),
		op(wasm.OpI64Add),
		testmod.End())
	h := newHarness(t, b, compiler.Config{}, Config{})
	for _, n := range []int64{0, 1, 2, 10, 100} {
		h.check("sum", numeric.ValueI64(n))
	}
}

func TestI64Ops(t *testing.T) {
	b := testmod.New()
	b.Func("mix", testmod.Types(testmod.I64T, testmod.I64T), i64, nil,
		testmod.Get(0), testmod.Get(1), op(wasm.OpI64Mul),
		testmod.Get(0), testmod.I64(7), op(wasm.OpI64ShrU),
		op(wasm.OpI64Xor),
		testmod.Get(0), testmod.Get(1), op(wasm.OpI64LtS), op(wasm.OpI64ExtendI32U),
		op(wasm.OpI64Add),
		testmod.Get(1), testmod.I64(-3), op(wasm.OpI64Add),
		op(wasm.OpI64Sub),
	)
	h := newHarness(t, b, compiler.Config{}, Config{})
	for _, c := range [][2]int64{{3, 5}, {-7, 2}, {1 << 40, -1}, {0x123456789, 0x987654321}, {math.MinInt64, 1}} {
		h.check("mix", numeric.ValueI64(c[0]), numeric.ValueI64(c[1]))
	}
}

func TestI32Ops(t *testing.T) {
	b := testmod.New()
	b.Func("ops", i32s, i32, nil,
		testmod.Get(0), testmod.Get(1), op(wasm.OpI32Mul),
		testmod.Get(0), testmod.I32(3), op(wasm.OpI32ShrS),
		op(wasm.OpI32Xor),
		testmod.Get(0), testmod.Get(1), op(wasm.OpI32Rotl), op(wasm.OpI32Add),
		testmod.Get(0), testmod.Get(1), testmod.I32(1), op(wasm.OpI32Or), op(wasm.OpI32RemU), op(wasm.OpI32Sub),
		testmod.Get(0), op(wasm.OpI32Clz), op(wasm.OpI32Add),
		testmod.Get(0), testmod.Get(1), op(wasm.OpI32LtS), op(wasm.OpI32Add),
		testmod.Get(0), testmod.Get(1), testmod.Get(0), testmod.Get(1), op(wasm.OpI32GtU), testmod.Select(), op(wasm.OpI32Add),
		testmod.Get(1), op(wasm.OpI32Extend8S), op(wasm.OpI32Add),
	)
	h := newHarness(t, b, compiler.Config{}, Config{})
	for _, c := range [][2]int32{{7, 3}, {-100, 5}, {math.MinInt32, 31}, {12345, -1}, {0, 0}, {0x7f, 0x80}} {
		h.check("ops", numeric.ValueI32(c[0]), numeric.ValueI32(c[1]))
	}
}

func TestLoops(t *testing.T) {
	b := testmod.New()
	factIdx := fact(b)
	b.Func("collatz", i32, i32, i32,
		testmod.Block(testmod.Void),
		testmod.Loop(testmod.Void),
		testmod.Get(0), testmod.I32(1), op(wasm.OpI32Eq), testmod.BrIf(1),
		testmod.Get(0), testmod.I32(1), op(wasm.OpI32And),
		testmod.If(testmod.Void),
		testmod.Get(0), testmod.I32(3), op(wasm.OpI32Mul), testmod.I32(1), op(wasm.OpI32Add), testmod.Set(0),
		testmod.Else(),
		testmod.Get(0), testmod.I32(1), op(wasm.OpI32ShrU), testmod.Set(0),
		testmod.End(),
		testmod.Get(1), testmod.I32(1), op(wasm.OpI32Add), testmod.Set(1),
		testmod.Br(0),
		testmod.End(),
		testmod.End(),
		testmod.Get(1),
	)
	b.Func("sum_fact", i32, i32, i32,
		testmod.Block(testmod.Void),
		testmod.Loop(testmod.Void),
		testmod.Get(0), op(wasm.OpI32Eqz), testmod.BrIf(1),
		testmod.Get(1), testmod.Get(0), testmod.Call(factIdx), op(wasm.OpI32Add), testmod.Set(1),
		testmod.Get(0), testmod.I32(1), op(wasm.OpI32Sub), testmod.Set(0),
		testmod.Br(0),
		testmod.End(),
		testmod.End(),
		testmod.Get(1),
	)
	h := newHarness(t, b, compiler.Config{}, Config{})
	require.False(t, h.out.Entries["collatz"].Machine)
	require.True(t, h.out.Entries["sum_fact"].Machine)

	for _, n := range []int32{1, 2, 3, 7, 27} {
		h.check("collatz", numeric.ValueI32(n))
	}
	for n := int32(0); n <= 6; n++ {
		h.check("sum_fact", numeric.ValueI32(n))
	}
}

func TestBranchTable(t *testing.T) {
	b := testmod.New()
	b.Func("classify", i32, i32, nil,
		testmod.Block(testmod.Void),
		testmod.Block(testmod.Void),
		testmod.Block(testmod.Void),
		testmod.Get(0), testmod.BrTable(2, 0, 1),
		testmod.End(),
		testmod.I32(10), testmod.Return(),
		testmod.End(),
		testmod.I32(20), testmod.Return(),
		testmod.End(),
		testmod.I32(30),
	)
	self := b.NextFunc()
	b.Func("pick", i32, i32, nil,
		testmod.Block(testmod.Void),
		testmod.Block(testmod.Void),
		testmod.Get(0), testmod.I32(3), op(wasm.OpI32RemU), testmod.BrTable(1, 0),
		testmod.End(),
		testmod.Get(0), op(wasm.OpI32Eqz),
		testmod.If(testmod.BlkI32), testmod.I32(0),
		testmod.Else(), testmod.Get(0), testmod.I32(1), op(wasm.OpI32Sub), testmod.Call(self), testmod.I32(2), op(wasm.OpI32Add),
		testmod.End(),
		testmod.Return(),
		testmod.End(),
		testmod.Get(0), testmod.I32(1), op(wasm.OpI32Sub), testmod.Call(self), testmod.I32(1), op(wasm.OpI32Add),
	)
	h := newHarness(t, b, compiler.Config{}, Config{})
	for _, n := range []int32{0, 1, 2, 5, -1} {
		h.check("classify", numeric.ValueI32(n))
	}
	for n := int32(0); n < 12; n++ {
		h.check("pick", numeric.ValueI32(n))
	}
}

func TestF32Ops(t *testing.T) {
	b := testmod.New()
	b.Func("fx", testmod.Types(testmod.F32T, testmod.I32T), testmod.Types(testmod.F32T), nil,
		testmod.Get(0), testmod.Get(0), op(wasm.OpF32Mul),
		testmod.Get(1), op(wasm.OpF32ConvertI32S),
		op(wasm.OpF32Add),
		op(wasm.OpF32Sqrt),
		testmod.F32(100), op(wasm.OpF32Min),
		op(wasm.OpF32Neg),
	)
	h := newHarness(t, b, compiler.Config{}, Config{})
	for _, c := range []struct {
		x float32
		n int32
	}{{3, 16}, {1.5, -1}, {20, 1}, {1000, 0}, {0.1, 7}} {
		h.check("fx", numeric.ValueF32(c.x), numeric.ValueI32(c.n))
	}
}

func f64Module() *testmod.Builder {
	b := testmod.New()
	self := b.NextFunc()
	b.Func("pow", testmod.Types(testmod.F64T, testmod.I32T), testmod.Types(testmod.F64T), nil,
		testmod.Get(1), op(wasm.OpI32Eqz),
		testmod.If(testmod.BlkF64), testmod.F64(1),
		testmod.Else(),
		testmod.Get(0),
		testmod.Get(0), testmod.Get(1), testmod.I32(1), op(wasm.OpI32Sub), testmod.Call(self),
		op(wasm.OpF64Mul),
		testmod.End())
	b.Func("hyp", testmod.Types(testmod.F64T, testmod.F64T), testmod.Types(testmod.F64T), nil,
		testmod.Get(0), testmod.Get(0), op(wasm.OpF64Mul),
		testmod.Get(1), testmod.Get(1), op(wasm.OpF64Mul),
		op(wasm.OpF64Add), op(wasm.OpF64Sqrt))
	return b
}

func TestF64Native(t *testing.T) {
	h := newHarness(t, f64Module(), compiler.Config{HardwareF64: true}, Config{})
	for n := int32(0); n < 6; n++ {
		h.check("pow", numeric.ValueF64(1.5), numeric.ValueI32(n))
		h.check("pow", numeric.ValueF64(-0.3), numeric.ValueI32(n))
	}
	h.check("hyp", numeric.ValueF64(3), numeric.ValueF64(4))
	h.check("hyp", numeric.ValueF64(0.1), numeric.ValueF64(0.2))
}

func TestF64Emulated(t *testing.T) {
	h := newHarness(t, f64Module(), compiler.Config{}, Config{})
	ctx := context.Background()

	// Small mantissas round-trip exactly.
	got, err := h.exec.Run(ctx, 0, "pow", []numeric.Value{numeric.ValueF64(1.5), numeric.ValueI32(5)})
	require.NoError(t, err)
	require.Equal(t, 7.59375, got[0].F64())

	got, err = h.exec.Run(ctx, 0, "hyp", []numeric.Value{numeric.ValueF64(3), numeric.ValueF64(4)})
	require.NoError(t, err)
	require.Equal(t, 5.0, got[0].F64())

	args := []numeric.Value{numeric.ValueF64(0.1), numeric.ValueF64(0.2)}
	got, err = h.exec.Run(ctx, 0, "hyp", args)
	require.NoError(t, err)
	want := h.want("hyp", args...)
	require.InDelta(t, want[0].F64(), got[0].F64(), 1e-12)
}

func doubler() Host {
	return HostFunc(func(_ context.Context, _ uint32, fn *gateway.HostFunc, args []numeric.Value) ([]numeric.Value, error) {
		if fn.Name != "env.double" {
			return nil, fmt.Errorf("unexpected host call %s", fn.Name)
		}
		return []numeric.Value{numeric.ValueI32(args[0].I32() * 2)}, nil
	})
}

func quadModule() *testmod.Builder {
	b := testmod.New()
	double := b.Import("env", "double", i32, i32)
	b.Func("quad", i32, i32, nil, testmod.Get(0), testmod.Call(double), testmod.Call(double))
	b.Func("quad_plus", i32s, i32, nil,
		testmod.Get(1), testmod.Get(0), testmod.Call(double), testmod.Call(double), op(wasm.OpI32Add))
	return b
}

func TestHostYield(t *testing.T) {
	h := newHarness(t, quadModule(), compiler.Config{}, Config{Host: doubler()})
	for _, n := range []int32{0, 3, -5, 1 << 20} {
		h.check("quad", numeric.ValueI32(n))
		h.check("quad_plus", numeric.ValueI32(n), numeric.ValueI32(7))
	}
}

func TestHostYield_SnapshotResume(t *testing.T) {
	h := newHarness(t, quadModule(), compiler.Config{}, Config{})
	ctx := context.Background()

	res, err := h.exec.Invoke(ctx, 0, "quad", []numeric.Value{numeric.ValueI32(3)})
	require.NoError(t, err)
	require.False(t, res.Done())
	require.Equal(t, "env.double", res.Yield.Func.Name)
	require.Equal(t, []numeric.Value{numeric.ValueI32(3)}, res.Yield.Args)

	lane, err := h.exec.Lane(0)
	require.NoError(t, err)
	require.True(t, lane.Suspended())
	snap := lane.Snapshot()

	// Resuming from the same saved stack twice yields the same next request.
	for i := 0; i < 2; i++ {
		lane.Restore(snap)
		require.NoError(t, h.exec.Complete(0, *res.Yield, []numeric.Value{numeric.ValueI32(6)}))
		next, err := h.exec.Resume(ctx, 0)
		require.NoError(t, err)
		require.False(t, next.Done())
		require.Equal(t, []numeric.Value{numeric.ValueI32(6)}, next.Yield.Args)
	}

	next, err := h.exec.Invoke(ctx, 0, "quad", []numeric.Value{numeric.ValueI32(3)})
	require.NoError(t, err)
	require.NoError(t, h.exec.Complete(0, *next.Yield, []numeric.Value{numeric.ValueI32(6)}))
	next, err = h.exec.Resume(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, h.exec.Complete(0, *next.Yield, []numeric.Value{numeric.ValueI32(12)}))
	done, err := h.exec.Resume(ctx, 0)
	require.NoError(t, err)
	require.True(t, done.Done())
	require.Equal(t, []numeric.Value{numeric.ValueI32(12)}, done.Values)
	require.False(t, lane.Suspended())
}

func TestHostErrors(t *testing.T) {
	ctx := context.Background()
	out, err := compiler.CompileBinary(quadModule().Binary(), compiler.Config{})
	require.NoError(t, err)

	exec, err := New(out, Config{})
	require.NoError(t, err)
	_, err = exec.Run(ctx, 0, "quad", []numeric.Value{numeric.ValueI32(1)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no host")

	failing := HostFunc(func(context.Context, uint32, *gateway.HostFunc, []numeric.Value) ([]numeric.Value, error) {
		return nil, fmt.Errorf("device lost")
	})
	exec, err = New(out, Config{Host: failing})
	require.NoError(t, err)
	_, err = exec.Run(ctx, 0, "quad", []numeric.Value{numeric.ValueI32(1)})
	require.Error(t, err)
	require.Equal(t, errors.KindHost, kindOf(t, err).Kind)
	require.Contains(t, err.Error(), "device lost")
}

func TestStackOverflow(t *testing.T) {
	b := testmod.New()
	fact(b)
	out, err := compiler.CompileBinary(b.Binary(), compiler.Config{StackWords: 16})
	require.NoError(t, err)
	exec, err := New(out, Config{})
	require.NoError(t, err)

	_, err = exec.Run(context.Background(), 0, "fact", []numeric.Value{numeric.ValueI32(100)})
	require.Error(t, err)
	require.True(t, stderrors.Is(err, errors.ErrStackOverflow))
	require.Equal(t, uint32(gateway.TrapStackOverflow), kindOf(t, err).Value)

	// The lane is reusable after a trap.
	got, err := exec.Run(context.Background(), 0, "fact", []numeric.Value{numeric.ValueI32(2)})
	require.NoError(t, err)
	require.Equal(t, []numeric.Value{numeric.ValueI32(2)}, got)
}

func TestStepLimit(t *testing.T) {
	b := testmod.New()
	fact(b)
	out, err := compiler.CompileBinary(b.Binary(), compiler.Config{})
	require.NoError(t, err)
	exec, err := New(out, Config{MaxSteps: 10})
	require.NoError(t, err)

	_, err = exec.Run(context.Background(), 0, "fact", []numeric.Value{numeric.ValueI32(50)})
	require.Error(t, err)
	require.Equal(t, errors.KindStepLimit, kindOf(t, err).Kind)
}

func TestTraps(t *testing.T) {
	b := testmod.New()
	b.Func("div_u", i32s, i32, nil, testmod.Get(0), testmod.Get(1), op(wasm.OpI32DivU))
	b.Func("div_s", i32s, i32, nil, testmod.Get(0), testmod.Get(1), op(wasm.OpI32DivS))
	b.Func("rem_s", i32s, i32, nil, testmod.Get(0), testmod.Get(1), op(wasm.OpI32RemS))
	b.Func("boom", nil, i32, nil, testmod.Unreachable())
	h := newHarness(t, b, compiler.Config{}, Config{})
	ctx := context.Background()

	h.check("div_u", numeric.ValueI32(-7), numeric.ValueI32(2))
	h.check("div_s", numeric.ValueI32(-7), numeric.ValueI32(2))
	h.check("rem_s", numeric.ValueI32(-7), numeric.ValueI32(2))
	h.check("rem_s", numeric.ValueI32(math.MinInt32), numeric.ValueI32(-1))

	cases := []struct {
		export string
		args   []numeric.Value
		code   gateway.TrapCode
	}{
		{"div_u", []numeric.Value{numeric.ValueI32(1), numeric.ValueI32(0)}, gateway.TrapDivByZero},
		{"div_s", []numeric.Value{numeric.ValueI32(math.MinInt32), numeric.ValueI32(-1)}, gateway.TrapIntOverflow},
		{"rem_s", []numeric.Value{numeric.ValueI32(5), numeric.ValueI32(0)}, gateway.TrapDivByZero},
		{"boom", nil, gateway.TrapUnreachable},
	}
	for _, c := range cases {
		t.Run(c.export, func(t *testing.T) {
			_, err := h.exec.Run(ctx, 0, c.export, c.args)
			require.Error(t, err)
			e := kindOf(t, err)
			require.Equal(t, errors.KindTrap, e.Kind)
			require.Equal(t, uint32(c.code), e.Value)
			require.Contains(t, err.Error(), c.code.String())
		})
	}
}

func TestGlobals(t *testing.T) {
	b := testmod.New()
	b.Global(testmod.I32T, true, testmod.I32(10))
	b.Global(testmod.I64T, false, testmod.I64(1<<33))
	b.Func("bump", nil, i32, nil,
		testmod.GlobalGet(0), testmod.I32(1), op(wasm.OpI32Add), testmod.GlobalSet(0),
		testmod.GlobalGet(0))
	b.Func("big", nil, i64, nil, testmod.GlobalGet(1))
	h := newHarness(t, b, compiler.Config{}, Config{Lanes: 2})
	for i := 0; i < 3; i++ {
		h.check("bump")
	}
	h.check("big")

	// Lane 1 has its own copy.
	got, err := h.exec.Run(context.Background(), 1, "bump", nil)
	require.NoError(t, err)
	require.Equal(t, []numeric.Value{numeric.ValueI32(11)}, got)
}

func TestRunLanes(t *testing.T) {
	b := testmod.New()
	fact(b)
	out, err := compiler.CompileBinary(b.Binary(), compiler.Config{})
	require.NoError(t, err)
	exec, err := New(out, Config{Lanes: 4})
	require.NoError(t, err)
	require.Equal(t, 4, exec.Lanes())

	args := [][]numeric.Value{
		{numeric.ValueI32(1)}, {numeric.ValueI32(2)}, {numeric.ValueI32(3)}, {numeric.ValueI32(4)},
	}
	got, err := exec.RunLanes(context.Background(), "fact", args)
	require.NoError(t, err)
	require.Equal(t, [][]numeric.Value{
		{numeric.ValueI32(1)}, {numeric.ValueI32(2)}, {numeric.ValueI32(6)}, {numeric.ValueI32(24)},
	}, got)

	_, err = exec.RunLanes(context.Background(), "fact", make([][]numeric.Value, 5))
	require.Error(t, err)
}

func TestOnDispatch(t *testing.T) {
	b := testmod.New()
	fact(b)
	out, err := compiler.CompileBinary(b.Binary(), compiler.Config{})
	require.NoError(t, err)

	var seen []gateway.BlockID
	exec, err := New(out, Config{OnDispatch: func(lane uint32, id gateway.BlockID, stack gateway.Stack) {
		require.Equal(t, uint32(0), lane)
		require.NotZero(t, stack.SP())
		seen = append(seen, id)
	}})
	require.NoError(t, err)

	res, err := exec.Invoke(context.Background(), 0, "fact", []numeric.Value{numeric.ValueI32(3)})
	require.NoError(t, err)
	require.True(t, res.Done())
	require.Equal(t, []numeric.Value{numeric.ValueI32(6)}, res.Values)
	require.Equal(t, res.Steps, len(seen))

	// The first dispatch is the entry block, the last the exit block.
	require.Equal(t, out.Machines[0].Blocks[0], seen[0])
	require.Equal(t, out.Entries["fact"].Exit, seen[len(seen)-1])
	for _, id := range seen {
		require.Contains(t, out.Blocks, id)
	}
}

func TestInvokeErrors(t *testing.T) {
	b := testmod.New()
	fact(b)
	out, err := compiler.CompileBinary(b.Binary(), compiler.Config{})
	require.NoError(t, err)
	exec, err := New(out, Config{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = exec.Invoke(ctx, 0, "nope", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")

	_, err = exec.Invoke(ctx, 0, "fact", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "0 arguments, want 1")

	_, err = exec.Invoke(ctx, 0, "fact", []numeric.Value{numeric.ValueI64(1)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected i32")

	_, err = exec.Invoke(ctx, 3, "fact", []numeric.Value{numeric.ValueI32(1)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "lane 3 of 1")

	_, err = exec.Resume(ctx, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no suspended invocation")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = exec.Run(cancelled, 0, "fact", []numeric.Value{numeric.ValueI32(3)})
	require.True(t, stderrors.Is(err, context.Canceled))

	_, err = New(nil, Config{})
	require.Error(t, err)
}
