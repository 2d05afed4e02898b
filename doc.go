// Package wasmgpu compiles WebAssembly modules into a structured compute
// shader IR so that many instances of a module can run side by side, one
// per GPU lane.
//
// Shader languages forbid recursion and have no call stack, so functions
// that may recurse are rewritten as explicit stack machines. Each such
// function is split into child blocks at every call site. A single "brain"
// function repeatedly pops a BlockID from the lane's stack buffer and runs
// the matching block, which pushes frames for whatever runs next. Functions
// that cannot recurse keep a direct form and are called normally.
//
// # Architecture Overview
//
//	wasmgpu/
//	├── wasm/        Core module binary decoding and instruction encoding
//	├── program/     Function records, structured bodies and type checking
//	├── numeric/     Value types, word layouts, i64 pairs and emulated f64
//	├── callgraph/   Call graph, recursion groups and variant decisions
//	├── gateway/     BlockID space, lane stack layout, host yield protocol
//	├── shader/      Shader IR: module, functions, statements, expressions
//	├── compiler/    The pipeline: split, lay out frames, lower, emit
//	├── simulate/    Reference executor running emitted modules on the CPU
//	├── errors/      Structured error types
//	└── cmd/wasmgpu  Command line compiler and runner
//
// # Quick Start
//
// Compile a module and run an export on the simulator:
//
//	out, err := compiler.CompileBinary(wasmBytes, compiler.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	exec, err := simulate.New(out, simulate.Config{Lanes: 64})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := exec.Run(ctx, 0, "fact", []numeric.Value{numeric.ValueI32(5)})
//	fmt.Println(results) // [i32:120]
//
// # Host Functions
//
// Calls to imported functions suspend the lane: the brain exits with the
// host BlockID on top of the stack and the arguments below it. The host
// reads them with gateway.Table.Pending, writes results with Complete and
// re-enters through the resume entry point. The stack buffer holds the
// complete state of a suspended call, so resuming from a saved copy of it
// is repeatable.
package wasmgpu
