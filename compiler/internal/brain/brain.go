// Package brain emits the dispatcher and the compute entry points.
//
// The brain loops while the lane's stack is non-empty and the top BlockID
// names a child block, calling that block's function. It stops on an empty
// stack, on a host BlockID (a pending host call) or on a recorded trap.
package brain

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/compiler/internal/frame"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/shader"
)

// Function names.
const (
	Name      = "brain"
	SetupName = "setup"
	Resume    = "resume"
	Dud       = "dud"
)

const (
	loopLabel = "dispatch"
	bidVar    = "bid"
)

// Block is one dispatchable child block.
type Block struct {
	Func string
	ID   gateway.BlockID
}

// Lane describes the per-lane buffer strides.
type Lane struct {
	StackWords  uint32
	IOWords     uint32
	GlobalWords uint32
}

// Setup returns the function computing the lane's private bases.
func Setup(ln Lane) *shader.Function {
	lane := &shader.LaneIndex{}
	stride := func(n uint32) shader.Expr {
		return shader.Bin(shader.Mul, lane, shader.U32Lit(n))
	}
	return &shader.Function{
		Name: SetupName,
		Body: []shader.Stmt{
			&shader.Assign{Name: frame.HeaderBase, Value: stride(gateway.HeaderWords + ln.StackWords)},
			&shader.Assign{Name: frame.DataBase, Value: frame.Offset(shader.V(frame.HeaderBase), gateway.HeaderWords)},
			&shader.Assign{Name: frame.IOBase, Value: stride(ln.IOWords)},
			&shader.Assign{Name: frame.GlobalBase, Value: stride(ln.GlobalWords)},
		},
	}
}

func header(word int) shader.Expr {
	return &shader.Load{Buffer: frame.BufStack, Index: frame.Offset(shader.V(frame.HeaderBase), word)}
}

// Brain returns the dispatcher over blocks.
func Brain(blocks []Block) *shader.Function {
	sw := &shader.Switch{
		Selector: shader.V(bidVar),
		Default:  []shader.Stmt{&shader.Trap{Code: uint32(gateway.TrapInvalidBlock)}},
	}
	for _, b := range blocks {
		sw.Cases = append(sw.Cases, shader.Case{
			Values: []uint32{uint32(b.ID)},
			Body:   []shader.Stmt{&shader.Call{Func: b.Func}},
		})
	}
	stop := func(cond shader.Expr) shader.Stmt {
		return &shader.If{Cond: cond, Then: []shader.Stmt{&shader.Break{Label: loopLabel}}}
	}
	body := []shader.Stmt{
		stop(shader.Bin(shader.Ne, header(gateway.HeaderTrap), shader.U32Lit(0))),
		frame.ReadSP(),
		stop(shader.Bin(shader.Eq, shader.V(frame.SP), shader.U32Lit(0))),
		&shader.Assign{Name: bidVar, Value: &shader.Load{Buffer: frame.BufStack, Index: frame.DataAt(-1)}},
		stop(shader.Bin(shader.Ge, shader.V(bidVar), shader.U32Lit(uint32(gateway.HostBit)))),
		sw,
	}
	return &shader.Function{
		Name:   Name,
		Locals: []shader.Variable{{Name: frame.SP, Type: shader.U32}, {Name: bidVar, Type: shader.U32}},
		Body: []shader.Stmt{
			&shader.Loop{Label: loopLabel, Body: body},
		},
	}
}

func ioAt(off int) func(k int) shader.Expr {
	return func(k int) shader.Expr { return frame.Offset(shader.V(frame.IOBase), off+k) }
}

// resetHeader zeroes the lane's stack pointer and trap word.
func resetHeader() []shader.Stmt {
	return []shader.Stmt{
		&shader.Store{Buffer: frame.BufStack, Index: shader.V(frame.HeaderBase), Value: shader.U32Lit(0)},
		&shader.Store{Buffer: frame.BufStack, Index: frame.Offset(shader.V(frame.HeaderBase), gateway.HeaderTrap), Value: shader.U32Lit(0)},
	}
}

// MachineEntry returns the entry invoking a function through the stack
// machine: it pushes the result reserve, the exit BlockID, the arguments
// read from io and the function's entry BlockID, then runs the brain.
func MachineEntry(name string, params, results []numeric.ValueType, entry, exit gateway.BlockID, l numeric.Layout, stackWords uint32) *shader.Function {
	body := []shader.Stmt{&shader.Call{Func: SetupName}}
	body = append(body, resetHeader()...)
	body = append(body, &shader.Assign{Name: frame.SP, Value: shader.U32Lit(0)})

	p := &frame.Push{Layout: l, StackWords: stackWords}
	p.Reserve(l.SizeOf(results))
	p.BlockID(exit)
	offs, _ := l.Offsets(params)
	for i, t := range params {
		p.Value(frame.LoadValue(frame.BufIO, ioAt(offs[i]), t, l), t)
	}
	p.BlockID(entry)
	body = append(body, p.Finish()...)
	body = append(body, frame.WriteSP(), &shader.Call{Func: Name})

	return &shader.Function{
		Name:   name,
		Locals: []shader.Variable{{Name: frame.SP, Type: shader.U32}},
		Body:   body,
	}
}

// ExitBlock returns the block a machine entry returns into. Its frame is
// the function's results followed by its BlockID; it copies the results to
// io and leaves the stack empty.
func ExitBlock(name string, results []numeric.ValueType, l numeric.Layout) *shader.Function {
	rw := l.SizeOf(results)
	body := []shader.Stmt{frame.ReadSP(), frame.AddSP(-(rw + 1))}
	for k := 0; k < rw; k++ {
		body = append(body, &shader.Store{
			Buffer: frame.BufIO,
			Index:  frame.Offset(shader.V(frame.IOBase), k),
			Value:  &shader.Load{Buffer: frame.BufStack, Index: frame.DataAt(k)},
		})
	}
	body = append(body, frame.WriteSP())
	return &shader.Function{
		Name:   name,
		Locals: []shader.Variable{{Name: frame.SP, Type: shader.U32}},
		Body:   body,
	}
}

// DirectEntry returns the entry invoking a function's direct variant: it
// reads the arguments from io, calls direct and writes the results back.
func DirectEntry(name, direct string, params, results []numeric.ValueType, l numeric.Layout) *shader.Function {
	fn := &shader.Function{Name: name}
	body := []shader.Stmt{&shader.Call{Func: SetupName}}
	body = append(body, resetHeader()...)

	call := &shader.Call{Func: direct}
	offs, _ := l.Offsets(params)
	for i, t := range params {
		call.Args = append(call.Args, frame.LoadValue(frame.BufIO, ioAt(offs[i]), t, l))
	}
	offs, _ = l.Offsets(results)
	var stores []shader.Stmt
	for i, t := range results {
		r := fmt.Sprintf("r%d", i)
		fn.Locals = append(fn.Locals, shader.Variable{Name: r, Type: shader.FromValue(t, l)})
		call.Results = append(call.Results, r)
		stores = append(stores, frame.StoreValue(frame.BufIO, ioAt(offs[i]), shader.V(r), t, l)...)
	}
	body = append(body, call)
	fn.Body = append(body, stores...)
	return fn
}

// ResumeEntry returns the entry continuing every lane from its saved stack.
func ResumeEntry() *shader.Function {
	return &shader.Function{
		Name: Resume,
		Body: []shader.Stmt{&shader.Call{Func: SetupName}, &shader.Call{Func: Name}},
	}
}

// DudEntry returns an empty entry for modules with nothing to run.
func DudEntry() *shader.Function {
	return &shader.Function{Name: Dud}
}
