// Package errors provides structured error types for the wasm-gpu compiler.
//
// Errors are categorized by Phase (which pipeline stage produced them) and
// Kind (error category). Compile-time kinds follow three classes:
//
//   - malformed input (dangling call targets, type mismatches): fatal
//   - unsupported constructs: localized to one function, skippable
//   - capacity exhaustion (BlockID space, stack frame size): fatal
//
// Run-time kinds (trap, stack_overflow, invalid_block) are produced by the
// reference executor in package simulate.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSplit, errors.KindUnsupported).
//		Func("fib").
//		Detail("opcode 0x%02x", op).
//		Build()
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
