// Package simulate executes compiled shader modules on the CPU.
//
// Each lane owns one region of the stack, io and globals buffers and runs
// the emitted code exactly as a GPU invocation would: an entry point sets
// up the lane, the brain dispatches child blocks, and a non-empty stack on
// exit is a host yield. The host services the yield through the gateway
// table and resumes the lane.
package simulate

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/LucentFlux/wasm-gpu/compiler"
	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/shader"
)

// Buffer names of the emitted module.
const (
	BufStack   = compiler.BufStack
	BufIO      = compiler.BufIO
	BufGlobals = compiler.BufGlobals
)

// Host services host yields.
type Host interface {
	Call(ctx context.Context, lane uint32, fn *gateway.HostFunc, args []numeric.Value) ([]numeric.Value, error)
}

// HostFunc adapts a function to Host.
type HostFunc func(ctx context.Context, lane uint32, fn *gateway.HostFunc, args []numeric.Value) ([]numeric.Value, error)

// Call implements Host.
func (f HostFunc) Call(ctx context.Context, lane uint32, fn *gateway.HostFunc, args []numeric.Value) ([]numeric.Value, error) {
	return f(ctx, lane, fn, args)
}

// Config configures an Executor.
type Config struct {
	// Host services yields in Run. Nil fails any yield.
	Host Host

	// OnDispatch, if set, is called before the brain runs a child block.
	// It is called concurrently from RunLanes.
	OnDispatch func(lane uint32, id gateway.BlockID, stack gateway.Stack)

	// Lanes is the number of lanes. Zero means one.
	Lanes int

	// MaxSteps bounds the child block dispatches of one invocation,
	// resumes included. Zero means unlimited.
	MaxSteps int
}

// Lane is one invocation's state: its stack region (the complete
// resumable state of a suspended call), io words and globals.
type Lane struct {
	Stack   gateway.Stack
	IO      []uint32
	Globals []uint32
	Index   uint32

	entry *compiler.Entry
	steps int
}

// Snapshot is a copy of a lane's state.
type Snapshot struct {
	Stack   gateway.Stack
	IO      []uint32
	Globals []uint32

	entry *compiler.Entry
	steps int
}

// Snapshot copies the lane's state.
func (l *Lane) Snapshot() *Snapshot {
	return &Snapshot{
		Stack:   l.Stack.Clone(),
		IO:      append([]uint32(nil), l.IO...),
		Globals: append([]uint32(nil), l.Globals...),
		entry:   l.entry,
		steps:   l.steps,
	}
}

// Restore overwrites the lane's state with s.
func (l *Lane) Restore(s *Snapshot) {
	copy(l.Stack, s.Stack)
	copy(l.IO, s.IO)
	copy(l.Globals, s.Globals)
	l.entry = s.entry
	l.steps = s.steps
}

// Suspended reports whether the lane is waiting on a host yield.
func (l *Lane) Suspended() bool {
	return l.entry != nil && l.Stack.SP() != 0
}

// Result is the outcome of running a lane until it finishes or yields.
type Result struct {
	// Yield is the pending host operation when the lane suspended.
	Yield  *gateway.Pending
	Values []numeric.Value
	// Steps counts child block dispatches so far in this invocation.
	Steps int
}

// Done reports whether the invocation completed.
func (r *Result) Done() bool {
	return r.Yield == nil
}

// Executor runs a compiled module.
type Executor struct {
	out    *compiler.Output
	cfg    Config
	funcs  map[string]*shader.Function
	blocks map[string]gateway.BlockID
	lanes  []*Lane
}

// New returns an executor for out with fresh lanes.
func New(out *compiler.Output, cfg Config) (*Executor, error) {
	if out == nil || out.Module == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "no compiled module")
	}
	if cfg.Lanes <= 0 {
		cfg.Lanes = 1
	}
	e := &Executor{
		out:    out,
		cfg:    cfg,
		funcs:  make(map[string]*shader.Function, len(out.Module.Functions)),
		blocks: make(map[string]gateway.BlockID, len(out.Blocks)),
	}
	for _, fn := range out.Module.Functions {
		e.funcs[fn.Name] = fn
	}
	for id, b := range out.Blocks {
		e.blocks[b.Name] = id
	}
	for i := 0; i < cfg.Lanes; i++ {
		ln := &Lane{
			Index:   uint32(i),
			Stack:   gateway.NewStack(out.Config.StackWords),
			IO:      make([]uint32, out.IOWords),
			Globals: make([]uint32, out.GlobalWords),
		}
		copy(ln.Globals, out.GlobalInit)
		e.lanes = append(e.lanes, ln)
	}
	return e, nil
}

// Output returns the compiled module the executor runs.
func (e *Executor) Output() *compiler.Output {
	return e.out
}

// Lanes returns the number of lanes.
func (e *Executor) Lanes() int {
	return len(e.lanes)
}

// Lane returns lane i.
func (e *Executor) Lane(i int) (*Lane, error) {
	if i < 0 || i >= len(e.lanes) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("lane %d of %d", i, len(e.lanes)).Build()
	}
	return e.lanes[i], nil
}

// Invoke starts export on lane with args and runs until it completes or
// yields to the host.
func (e *Executor) Invoke(ctx context.Context, lane int, export string, args []numeric.Value) (*Result, error) {
	ln, err := e.Lane(lane)
	if err != nil {
		return nil, err
	}
	entry, ok := e.out.Entries[export]
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", export)
	}
	if len(args) != len(entry.Params) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).Func(export).
			Detail("%d arguments, want %d", len(args), len(entry.Params)).Build()
	}
	for i, a := range args {
		if a.Type != entry.Params[i] {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, export, entry.Params[i].String(), a.Type.String())
		}
	}
	for i := range ln.IO {
		ln.IO[i] = 0
	}
	copy(ln.IO, e.out.Layout.EncodeAll(args))
	ln.entry = entry
	ln.steps = 0
	return e.run(ctx, ln, entry.Shader)
}

// Resume re-enters the brain on a lane suspended at a host yield, after
// the host has completed it.
func (e *Executor) Resume(ctx context.Context, lane int) (*Result, error) {
	ln, err := e.Lane(lane)
	if err != nil {
		return nil, err
	}
	if !ln.Suspended() {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("lane %d has no suspended invocation", lane).Build()
	}
	Logger().Debug("resuming lane", zap.Uint32("lane", ln.Index), zap.Uint32("sp", ln.Stack.SP()))
	return e.run(ctx, ln, compiler.ResumeName)
}

// Complete writes a host operation's results into a suspended lane.
func (e *Executor) Complete(lane int, p gateway.Pending, results []numeric.Value) error {
	ln, err := e.Lane(lane)
	if err != nil {
		return err
	}
	return e.out.Hosts.Complete(ln.Stack, p, results)
}

func (e *Executor) run(ctx context.Context, ln *Lane, fnName string) (*Result, error) {
	fn, ok := e.funcs[fnName]
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", fnName)
	}
	m := &machine{
		ctx:      ctx,
		exec:     e,
		lane:     ln,
		privates: make(map[string]value, len(e.out.Module.Privates)),
	}
	for _, p := range e.out.Module.Privates {
		m.privates[p.Name] = zero(p.Type)
	}

	if _, err := m.call(fn, nil); err != nil {
		return nil, e.fail(ln, err)
	}
	res := &Result{Steps: ln.steps}
	if code := ln.Stack.Trap(); code != gateway.TrapNone {
		return nil, e.fail(ln, trap(code))
	}

	p, pending, err := e.out.Hosts.Pending(ln.Stack)
	if err != nil {
		return nil, e.fail(ln, err)
	}
	if pending {
		Logger().Debug("lane yielded",
			zap.Uint32("lane", ln.Index),
			zap.Stringer("host", ln.Stack.Top()),
			zap.String("func", p.Func.Name),
			zap.Uint32("sp", ln.Stack.SP()))
		res.Yield = &p
		return res, nil
	}

	vals, err := e.out.Layout.DecodeAll(ln.entry.Results, ln.IO)
	if err != nil {
		return nil, e.fail(ln, err)
	}
	res.Values = vals
	ln.entry = nil
	return res, nil
}

// fail converts an execution failure into a runtime error and abandons the
// lane's invocation.
func (e *Executor) fail(ln *Lane, err error) error {
	export := ""
	if ln.entry != nil {
		export = ln.entry.Export
	}
	ln.entry = nil
	if t, ok := err.(*trapError); ok {
		kind := errors.KindTrap
		switch t.code {
		case gateway.TrapStackOverflow:
			kind = errors.KindStackOverflow
		case gateway.TrapInvalidBlock:
			kind = errors.KindInvalidBlock
		}
		err = errors.New(errors.PhaseRuntime, kind).Func(export).
			Detail("lane %d: %s", ln.Index, t.code).Value(uint32(t.code)).Build()
		Logger().Warn("lane trapped", zap.Uint32("lane", ln.Index), zap.String("export", export), zap.Stringer("code", t.code))
	}
	return err
}

// Run invokes export on lane and services every host yield through the
// configured Host until the invocation completes.
func (e *Executor) Run(ctx context.Context, lane int, export string, args []numeric.Value) ([]numeric.Value, error) {
	res, err := e.Invoke(ctx, lane, export, args)
	for err == nil && !res.Done() {
		p := *res.Yield
		if e.cfg.Host == nil {
			return nil, errors.New(errors.PhaseRuntime, errors.KindHost).Func(export).
				Detail("no host to run %s", p.Func.Name).Build()
		}
		results, herr := e.cfg.Host.Call(ctx, uint32(lane), p.Func, p.Args)
		if herr != nil {
			e.lanes[lane].entry = nil
			return nil, errors.Wrap(errors.PhaseRuntime, errors.KindHost, herr, p.Func.Name)
		}
		if err = e.Complete(lane, p, results); err != nil {
			return nil, err
		}
		res, err = e.Resume(ctx, lane)
	}
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// RunLanes runs export on lanes 0..len(args)-1 concurrently, one argument
// list per lane. It returns every lane's results and the first error by
// lane order.
func (e *Executor) RunLanes(ctx context.Context, export string, args [][]numeric.Value) ([][]numeric.Value, error) {
	if len(args) > len(e.lanes) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("%d argument lists for %d lanes", len(args), len(e.lanes)).Build()
	}
	results := make([][]numeric.Value, len(args))
	errs := make([]error, len(args))
	var wg sync.WaitGroup
	for i := range args {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Run(ctx, i, export, args[i])
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
