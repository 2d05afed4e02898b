// Package compiler drives the translation of a WebAssembly module into a
// shader module: it analyses the call graph, splits every function that
// needs the stack machine into child blocks, lays out their frames and
// emits direct variants, block functions, the brain and the entry points.
package compiler

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/LucentFlux/wasm-gpu/callgraph"
	"github.com/LucentFlux/wasm-gpu/compiler/internal/brain"
	"github.com/LucentFlux/wasm-gpu/compiler/internal/frame"
	"github.com/LucentFlux/wasm-gpu/compiler/internal/lower"
	"github.com/LucentFlux/wasm-gpu/compiler/internal/split"
	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/program"
	"github.com/LucentFlux/wasm-gpu/shader"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

// Buffer and function names of the emitted module.
const (
	BufStack   = frame.BufStack
	BufIO      = frame.BufIO
	BufGlobals = frame.BufGlobals

	BrainName  = brain.Name
	ResumeName = brain.Resume
	DudName    = brain.Dud
)

// Entry is a compute entry point invoking one exported function.
type Entry struct {
	Export  string
	Shader  string
	Params  []numeric.ValueType
	Results []numeric.ValueType
	Func    uint32
	// Machine entries run through the brain; the others call the direct
	// variant and cannot suspend.
	Machine bool
	// Exit is the exit block a machine entry returns into.
	Exit gateway.BlockID
}

// Block describes one emitted child block.
type Block struct {
	Name       string
	Term       string
	Payload    []numeric.ValueType
	ID         gateway.BlockID
	Func       uint32
	Index      int
	FrameWords int
	Exit       bool
}

// Machine is the stack-machine variant of one function.
type Machine struct {
	Blocks []gateway.BlockID
	Func   uint32
}

// Output is a compiled module plus everything needed to run and inspect it.
type Output struct {
	Module   *shader.Module
	Program  *program.Program
	Analysis *callgraph.Analysis
	Hosts    *gateway.Table
	Layout   numeric.Layout
	Config   Config

	Entries  map[string]*Entry
	Blocks   map[gateway.BlockID]*Block
	Machines []*Machine

	// IOWords and GlobalWords are the per-lane strides of the io and
	// globals buffers. GlobalInit holds one lane's initial globals.
	IOWords     uint32
	GlobalWords uint32
	GlobalInit  []uint32

	// Skipped maps skipped function indices to the reason.
	Skipped map[uint32]error
}

// DirectName returns the shader name of a function's direct variant.
func DirectName(fn uint32) string {
	return fmt.Sprintf("f%d_direct", fn)
}

// EntryName returns the shader entry point name for an export.
func EntryName(export string) string {
	var b strings.Builder
	b.WriteString("entry_")
	for _, r := range export {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// BlockByName finds a child block by its shader function name.
func (o *Output) BlockByName(name string) (*Block, bool) {
	for _, b := range o.Blocks {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

// EntryNames returns the export names with entry points, sorted.
func (o *Output) EntryNames() []string {
	out := make([]string, 0, len(o.Entries))
	for name := range o.Entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type blockIDs map[uint32][]gateway.BlockID

func (ids blockIDs) BlockID(fn uint32, block int) gateway.BlockID {
	return ids[fn][block]
}

// CompileBinary parses a binary module and compiles it.
func CompileBinary(data []byte, cfg Config) (*Output, error) {
	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, errors.ParseFailed("module", err)
	}
	p, err := program.FromModule(m)
	if err != nil {
		return nil, err
	}
	return Compile(p, cfg)
}

// Compile translates p into a shader module.
func Compile(p *program.Program, cfg Config) (*Output, error) {
	cfg = cfg.Defaults()
	log := Logger()
	layout := numeric.Layout{NativeF64: cfg.HardwareF64}

	out := &Output{
		Program: p,
		Layout:  layout,
		Config:  cfg,
		Entries: make(map[string]*Entry),
		Blocks:  make(map[gateway.BlockID]*Block),
		Skipped: make(map[uint32]error),
		Hosts:   gateway.NewTable(layout),
	}

	for _, f := range p.Funcs {
		if err := p.Check(f); err != nil {
			if !errors.IsUnsupported(err) || !cfg.SkipUnsupported {
				return nil, err
			}
			out.Skipped[f.Index] = err
		}
	}

	g, err := callgraph.Build(p)
	if err != nil {
		return nil, err
	}
	a := callgraph.Analyze(g)
	out.Analysis = a
	log.Debug("analyzed call graph",
		zap.Int("functions", len(p.Funcs)),
		zap.Int("groups", len(a.Groups)),
		zap.Int("machines", len(a.MachineSet())))

	if len(out.Skipped) > 0 {
		seed := make(map[uint32]bool, len(out.Skipped))
		for fn := range out.Skipped {
			seed[fn] = true
		}
		for fn := range g.TransitiveCallers(seed) {
			if _, ok := out.Skipped[fn]; !ok {
				out.Skipped[fn] = errors.New(errors.PhaseAnalyze, errors.KindUnsupported).
					Func(p.Func(fn).Name).
					Detail("calls a skipped function").Build()
			}
		}
		for fn, err := range out.Skipped {
			log.Warn("skipping function", zap.Uint32("func", fn), zap.Error(err))
		}
	}
	skipped := func(fn uint32) bool {
		_, ok := out.Skipped[fn]
		return ok
	}

	// Split and lay out every machine, then hand out BlockIDs in order.
	splitter := &split.Splitter{Program: p, Analysis: a, Hosts: out.Hosts}
	var frames []*frame.Frames
	for _, fn := range a.MachineSet() {
		if skipped(fn) {
			continue
		}
		m, err := splitter.Split(p.Func(fn))
		if err != nil {
			return nil, err
		}
		fr, err := frame.Build(m, layout, cfg.StackWords)
		if err != nil {
			return nil, err
		}
		frames = append(frames, fr)
	}

	alloc := gateway.NewAllocator(cfg.MaxBlockIDs)
	ids := make(blockIDs)
	for _, fr := range frames {
		f := fr.Machine.Func
		mach := &Machine{Func: f.Index}
		for _, b := range fr.Machine.Blocks {
			id, err := alloc.Next()
			if err != nil {
				return nil, err
			}
			mach.Blocks = append(mach.Blocks, id)
			out.Blocks[id] = &Block{
				ID:         id,
				Name:       lower.BlockName(id),
				Func:       f.Index,
				Index:      b.Index,
				Term:       b.Term.Kind.String(),
				Payload:    fr.Payloads[b.Index].Types,
				FrameWords: fr.Payloads[b.Index].FrameWords(),
			}
		}
		ids[f.Index] = mach.Blocks
		out.Machines = append(out.Machines, mach)
	}

	// Entries, with one exit block per exported machine function.
	exits := make(map[uint32]gateway.BlockID)
	for _, f := range p.Funcs {
		if skipped(f.Index) {
			continue
		}
		for _, name := range f.Exports {
			if !cfg.wantExport(name) {
				continue
			}
			e := &Entry{
				Export:  name,
				Shader:  EntryName(name),
				Func:    f.Index,
				Params:  f.Type.Params,
				Results: f.Type.Results,
				Machine: a.NeedsMachine(f.Index),
			}
			if e.Machine {
				exit, ok := exits[f.Index]
				if !ok {
					if exit, err = alloc.Next(); err != nil {
						return nil, err
					}
					exits[f.Index] = exit
					out.Blocks[exit] = &Block{
						ID:         exit,
						Name:       lower.BlockName(exit),
						Func:       f.Index,
						Index:      -1,
						Term:       "exit",
						Payload:    f.Type.Results,
						FrameWords: layout.SizeOf(f.Type.Results) + 1,
						Exit:       true,
					}
				}
				e.Exit = exit
			}
			out.Entries[name] = e
			out.IOWords = max(out.IOWords,
				uint32(layout.SizeOf(f.Type.Params)),
				uint32(layout.SizeOf(f.Type.Results)))
		}
	}
	for _, name := range cfg.Exports {
		if _, ok := out.Entries[name]; !ok {
			return nil, errors.NotFound(errors.PhaseEmit, "export", name)
		}
	}

	globals := lower.LayoutGlobals(p, layout)
	out.GlobalWords = uint32(globals.Words)
	out.GlobalInit = globals.Init

	ctx := &lower.Context{
		Program:    p,
		Analysis:   a,
		Layout:     layout,
		Globals:    globals,
		StackWords: cfg.StackWords,
		DirectName: DirectName,
	}

	mod := &shader.Module{
		Buffers:  frame.Buffers(),
		Privates: frame.Privates(),
	}
	for _, fn := range lower.Polyfills() {
		mod.AddFunction(fn)
	}
	for _, fn := range a.Order {
		if skipped(fn) {
			continue
		}
		mod.AddFunction(ctx.Direct(p.Func(fn)))
	}

	var dispatch []brain.Block
	for _, fr := range frames {
		for _, b := range fr.Machine.Blocks {
			fn := ctx.Block(fr, b, ids)
			mod.AddFunction(fn)
			dispatch = append(dispatch, brain.Block{Func: fn.Name, ID: ids.BlockID(fr.Machine.Func.Index, b.Index)})
		}
	}
	for _, f := range p.Funcs {
		exit, ok := exits[f.Index]
		if !ok {
			continue
		}
		name := lower.BlockName(exit)
		mod.AddFunction(brain.ExitBlock(name, f.Type.Results, layout))
		dispatch = append(dispatch, brain.Block{Func: name, ID: exit})
	}
	sort.Slice(dispatch, func(i, j int) bool { return dispatch[i].ID < dispatch[j].ID })

	mod.AddFunction(brain.Setup(brain.Lane{
		StackWords:  cfg.StackWords,
		IOWords:     out.IOWords,
		GlobalWords: out.GlobalWords,
	}))
	mod.AddFunction(brain.Brain(dispatch))

	for _, name := range out.EntryNames() {
		e := out.Entries[name]
		var fn *shader.Function
		if e.Machine {
			fn = brain.MachineEntry(e.Shader, e.Params, e.Results, ids.BlockID(e.Func, 0), e.Exit, layout, cfg.StackWords)
		} else {
			fn = brain.DirectEntry(e.Shader, DirectName(e.Func), e.Params, e.Results, layout)
		}
		mod.AddFunction(fn)
		mod.EntryPoints = append(mod.EntryPoints, shader.EntryPoint{Name: e.Shader, Function: e.Shader, Workgroup: cfg.WorkgroupSize})
	}
	if len(frames) > 0 {
		mod.AddFunction(brain.ResumeEntry())
		mod.EntryPoints = append(mod.EntryPoints, shader.EntryPoint{Name: ResumeName, Function: ResumeName, Workgroup: cfg.WorkgroupSize})
	}
	if len(mod.EntryPoints) == 0 {
		mod.AddFunction(brain.DudEntry())
		mod.EntryPoints = append(mod.EntryPoints, shader.EntryPoint{Name: DudName, Function: DudName, Workgroup: cfg.WorkgroupSize})
	}

	if err := mod.Validate(); err != nil {
		return nil, errors.Wrap(errors.PhaseEmit, errors.KindMalformed, err, "emitted module")
	}
	out.Module = mod
	log.Debug("emitted module",
		zap.Int("functions", len(mod.Functions)),
		zap.Int("blocks", len(out.Blocks)),
		zap.Int("entries", len(mod.EntryPoints)))
	return out, nil
}
