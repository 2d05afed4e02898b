package main

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/LucentFlux/wasm-gpu/compiler"
	"github.com/LucentFlux/wasm-gpu/numeric"
)

// f64Tolerance bounds the relative error of emulated f64 results, which
// keep 48 significant bits.
const f64Tolerance = 1.0 / (1 << 46)

func apiType(t numeric.ValueType) api.ValueType {
	switch t {
	case numeric.I64:
		return api.ValueTypeI64
	case numeric.F32:
		return api.ValueTypeF32
	case numeric.F64:
		return api.ValueTypeF64
	}
	return api.ValueTypeI32
}

func apiTypes(ts []numeric.ValueType) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		out[i] = apiType(t)
	}
	return out
}

// reference runs export on wazero's interpreter. Imports are answered with
// zero values when zero is set and fail otherwise.
func reference(ctx context.Context, data []byte, out *compiler.Output, export string, args []numeric.Value, zero bool) ([]numeric.Value, error) {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	builders := make(map[string]wazero.HostModuleBuilder)
	var order []string
	for _, imp := range out.Program.Imports {
		b, ok := builders[imp.Module]
		if !ok {
			b = r.NewHostModuleBuilder(imp.Module)
			builders[imp.Module] = b
			order = append(order, imp.Module)
		}
		name := imp.Module + "." + imp.Name
		results := len(imp.Type.Results)
		fn := api.GoFunc(func(_ context.Context, stack []uint64) {
			if !zero {
				panic(fmt.Sprintf("no host binding for %s", name))
			}
			for i := 0; i < results; i++ {
				stack[i] = 0
			}
		})
		b.NewFunctionBuilder().
			WithGoFunction(fn, apiTypes(imp.Type.Params), apiTypes(imp.Type.Results)).
			Export(imp.Name)
	}
	for _, name := range order {
		if _, err := builders[name].Instantiate(ctx); err != nil {
			return nil, fmt.Errorf("host module %s: %w", name, err)
		}
	}

	mod, err := r.Instantiate(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	fn := mod.ExportedFunction(export)
	if fn == nil {
		return nil, fmt.Errorf("export %q not found", export)
	}
	raw, err := fn.Call(ctx, rawValues(args)...)
	if err != nil {
		return nil, err
	}
	types := out.Entries[export].Results
	vals := make([]numeric.Value, len(raw))
	for i, x := range raw {
		vals[i] = fromRaw(types[i], x)
	}
	return vals, nil
}

// compare checks simulator results against the reference. Emulated f64
// values match within f64Tolerance.
func compare(got, want []numeric.Value, nativeF64 bool) error {
	if len(got) != len(want) {
		return fmt.Errorf("%d results, reference has %d", len(got), len(want))
	}
	for i := range got {
		g, w := got[i], want[i]
		if g == w {
			continue
		}
		if g.Type == numeric.F64 && !nativeF64 && closeF64(g.F64(), w.F64()) {
			continue
		}
		return fmt.Errorf("result %d: got %s, reference %s", i, g, w)
	}
	return nil
}

func closeF64(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	if math.IsInf(b, 0) || b == 0 {
		return a == b
	}
	return math.Abs(a-b) <= f64Tolerance*math.Abs(b)
}
