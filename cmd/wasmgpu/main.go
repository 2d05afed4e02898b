// Command wasmgpu compiles a WebAssembly module into the shader IR and runs
// exports on the reference simulator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/LucentFlux/wasm-gpu/compiler"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/simulate"
)

type options struct {
	wasmFile   string
	exports    string
	call       string
	args       string
	stackWords uint
	maxSteps   int
	dump       bool
	report     bool
	verify     bool
	hardF64    bool
	skip       bool
	hostZero   bool
	verbose    bool
}

func main() {
	var o options
	flag.StringVar(&o.wasmFile, "wasm", "", "Path to core wasm module")
	flag.StringVar(&o.exports, "exports", "", "Exports to compile (comma-separated, default all)")
	flag.StringVar(&o.call, "call", "", "Export to run on the simulator")
	flag.StringVar(&o.args, "args", "", "Arguments for -call (comma-separated)")
	flag.UintVar(&o.stackWords, "stack", compiler.DefaultStackWords, "Stack words per lane")
	flag.IntVar(&o.maxSteps, "steps", 0, "Maximum block dispatches per call (0 = unlimited)")
	flag.BoolVar(&o.dump, "dump", false, "Print the emitted shader module")
	flag.BoolVar(&o.report, "report", false, "Print the recursion analysis and block table")
	flag.BoolVar(&o.verify, "verify", false, "Check -call results against wazero")
	flag.BoolVar(&o.hardF64, "f64", false, "Target hardware with native f64")
	flag.BoolVar(&o.skip, "skip", false, "Skip functions using unsupported features")
	flag.BoolVar(&o.hostZero, "host-zero", false, "Answer host imports with zero values")
	flag.BoolVar(&o.verbose, "v", false, "Verbose logging")
	interactive := flag.Bool("i", false, "Interactive mode with TUI")
	flag.Parse()

	if o.wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmgpu -wasm <file.wasm> [-dump] [-report]")
		fmt.Fprintln(os.Stderr, "       wasmgpu -wasm <file.wasm> -call name -args 1,2 [-verify]")
		fmt.Fprintln(os.Stderr, "       wasmgpu -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if o.verbose {
		log, err := zap.NewDevelopment()
		if err == nil {
			compiler.SetLogger(log)
			simulate.SetLogger(log)
			defer func() { _ = log.Sync() }()
		}
	}

	if *interactive {
		if err := runInteractive(o); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o options) config() compiler.Config {
	cfg := compiler.Config{
		StackWords:      uint32(o.stackWords),
		HardwareF64:     o.hardF64,
		SkipUnsupported: o.skip,
	}
	if o.exports != "" {
		cfg.Exports = strings.Split(o.exports, ",")
	}
	return cfg
}

func (o options) host() simulate.Host {
	return simulate.HostFunc(func(_ context.Context, lane uint32, fn *gateway.HostFunc, args []numeric.Value) ([]numeric.Value, error) {
		if !o.hostZero {
			return nil, fmt.Errorf("no host binding for %s (use -host-zero)", fn.Name)
		}
		out := make([]numeric.Value, len(fn.Results))
		for i, t := range fn.Results {
			out[i] = numeric.Zero(t)
		}
		return out, nil
	})
}

func compile(o options) ([]byte, *compiler.Output, error) {
	data, err := os.ReadFile(o.wasmFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read file: %w", err)
	}
	out, err := compiler.CompileBinary(data, o.config())
	if err != nil {
		return nil, nil, fmt.Errorf("compile: %w", err)
	}
	return data, out, nil
}

func run(o options) error {
	ctx := context.Background()

	data, out, err := compile(o)
	if err != nil {
		return err
	}

	st := newStyles(os.Stdout)
	fmt.Printf("Module: %s\n", o.wasmFile)
	fmt.Printf("Functions: %d, recursion groups: %d, machines: %d, blocks: %d\n",
		len(out.Program.Funcs), len(out.Analysis.Groups), len(out.Machines), len(out.Blocks))
	fmt.Printf("\nEntry points:\n")
	for _, name := range out.EntryNames() {
		fmt.Printf("  %s\n", st.entry(out.Entries[name]))
	}
	for fn, err := range out.Skipped {
		fmt.Printf("  %s\n", st.err.Render(fmt.Sprintf("skipped func %d: %v", fn, err)))
	}

	if o.report {
		fmt.Println()
		writeReport(os.Stdout, out, st)
	}
	if o.dump {
		fmt.Println()
		fmt.Print(out.Module.String())
	}
	if o.call == "" {
		return nil
	}

	entry, ok := out.Entries[o.call]
	if !ok {
		return fmt.Errorf("export %q has no entry point", o.call)
	}
	args, err := parseArgs(o.args, entry.Params)
	if err != nil {
		return err
	}

	exec, err := simulate.New(out, simulate.Config{Host: o.host(), MaxSteps: o.maxSteps})
	if err != nil {
		return err
	}
	fmt.Printf("\nCalling %s(%s)...\n", o.call, formatValues(args))
	got, err := exec.Run(ctx, 0, o.call, args)
	if err != nil {
		return fmt.Errorf("call %s: %w", o.call, err)
	}
	fmt.Printf("Result: %s\n", st.result.Render(formatValues(got)))

	if o.verify {
		want, err := reference(ctx, data, out, o.call, args, o.hostZero)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		if err := compare(got, want, out.Layout.NativeF64); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		fmt.Println(st.result.Render("Matches wazero"))
	}
	return nil
}
