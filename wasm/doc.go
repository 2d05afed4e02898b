// Package wasm parses and encodes the subset of the WebAssembly binary
// format that the GPU compiler consumes.
//
// Parsing keeps type, import, function, table, memory, global, export,
// start and code sections. Element and data sections are validated for
// ordering and skipped: function bodies never depend on them at compile
// time.
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for i, body := range module.Code {
//	    instrs, err := wasm.DecodeInstructions(body.Code)
//	    ...
//	}
//
// Instruction decoding covers the MVP control, variable, memory and numeric
// opcodes, the sign extension opcodes, and v128.const. Other prefixed
// opcodes are rejected.
//
// Encode produces a binary accepted by ParseModule and by other runtimes;
// tests use it to build modules in code and run them under wazero.
package wasm
