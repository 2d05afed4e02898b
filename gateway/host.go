package gateway

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/program"
)

// HostKind identifies the operation a host function performs.
type HostKind uint8

const (
	HostImport HostKind = iota
	HostCallIndirect
	HostMemorySize
	HostMemoryGrow
)

func (k HostKind) String() string {
	switch k {
	case HostImport:
		return "import"
	case HostCallIndirect:
		return "call_indirect"
	case HostMemorySize:
		return "memory.size"
	case HostMemoryGrow:
		return "memory.grow"
	}
	return fmt.Sprintf("HostKind(%d)", uint8(k))
}

// HostFunc is a host-mediated operation addressed by a host BlockID.
type HostFunc struct {
	Name    string
	Params  []numeric.ValueType
	Results []numeric.ValueType
	ID      BlockID
	Kind    HostKind
	// Import is the imported function index for HostImport; TypeIdx is the
	// signature index for HostCallIndirect. The final parameter of an
	// indirect call is the i32 table index.
	Import  uint32
	TypeIdx uint32
}

// Table assigns host BlockIDs. IDs are handed out in order of first request,
// so a table built from the same program is deterministic.
type Table struct {
	Layout numeric.Layout
	Funcs  []*HostFunc

	imports  map[uint32]*HostFunc
	indirect map[uint32]*HostFunc
	memory   map[HostKind]*HostFunc
}

// NewTable returns an empty table using layout for word counts.
func NewTable(layout numeric.Layout) *Table {
	return &Table{
		Layout:   layout,
		imports:  make(map[uint32]*HostFunc),
		indirect: make(map[uint32]*HostFunc),
		memory:   make(map[HostKind]*HostFunc),
	}
}

func (t *Table) add(h *HostFunc) *HostFunc {
	h.ID = HostID(uint32(len(t.Funcs)))
	t.Funcs = append(t.Funcs, h)
	return h
}

// Import returns the host function for a call to imported function imp.
func (t *Table) Import(imp *program.Import) *HostFunc {
	if h, ok := t.imports[imp.Index]; ok {
		return h
	}
	h := t.add(&HostFunc{
		Kind:    HostImport,
		Name:    imp.Module + "." + imp.Name,
		Params:  imp.Type.Params,
		Results: imp.Type.Results,
		Import:  imp.Index,
	})
	t.imports[imp.Index] = h
	return h
}

// Indirect returns the host function dispatching call_indirect of signature sig.
func (t *Table) Indirect(typeIdx uint32, sig program.Signature) *HostFunc {
	if h, ok := t.indirect[typeIdx]; ok {
		return h
	}
	params := append(append([]numeric.ValueType{}, sig.Params...), numeric.I32)
	h := t.add(&HostFunc{
		Kind:    HostCallIndirect,
		Name:    fmt.Sprintf("call_indirect[type %d]", typeIdx),
		Params:  params,
		Results: sig.Results,
		TypeIdx: typeIdx,
	})
	t.indirect[typeIdx] = h
	return h
}

// Memory returns the host function for memory.size or memory.grow.
func (t *Table) Memory(kind HostKind) *HostFunc {
	if h, ok := t.memory[kind]; ok {
		return h
	}
	h := &HostFunc{Kind: kind, Name: kind.String(), Results: []numeric.ValueType{numeric.I32}}
	if kind == HostMemoryGrow {
		h.Params = []numeric.ValueType{numeric.I32}
	}
	h = t.add(h)
	t.memory[kind] = h
	return h
}

// Lookup resolves a host BlockID.
func (t *Table) Lookup(id BlockID) (*HostFunc, bool) {
	if !id.IsHost() || int(id.Index()) >= len(t.Funcs) {
		return nil, false
	}
	return t.Funcs[id.Index()], true
}

// ArgWords returns the number of argument words h reads.
func (t *Table) ArgWords(h *HostFunc) uint32 {
	return uint32(t.Layout.SizeOf(h.Params))
}

// ResultWords returns the number of result words h writes.
func (t *Table) ResultWords(h *HostFunc) uint32 {
	return uint32(t.Layout.SizeOf(h.Results))
}

// Pending describes a lane suspended at a host yield.
type Pending struct {
	Func *HostFunc
	Args []numeric.Value
}

// Pending inspects a lane that exited the brain. It returns false when the
// lane finished (stack pointer zero).
func (t *Table) Pending(s Stack) (Pending, bool, error) {
	sp := s.SP()
	if sp == 0 {
		return Pending{}, false, nil
	}
	id := s.Top()
	h, ok := t.Lookup(id)
	if !ok {
		return Pending{}, false, errors.New(errors.PhaseRuntime, errors.KindInvalidBlock).
			Value(uint32(id)).Detail("lane exited with %s on top of stack", id).Build()
	}
	n := t.ArgWords(h)
	if n+1 > sp {
		return Pending{}, false, errors.New(errors.PhaseRuntime, errors.KindHost).
			Detail("%s needs %d argument words, stack holds %d", h.Name, n, sp-1).Build()
	}
	words := s.Data()[sp-1-n : sp-1]
	args, err := t.Layout.DecodeAll(h.Params, words)
	if err != nil {
		return Pending{}, false, err
	}
	return Pending{Func: h, Args: args}, true, nil
}

// Complete finishes a host yield: it pops the host frame (arguments and
// host BlockID) and writes results into the region the caller reserved
// directly below its continuation BlockID.
func (t *Table) Complete(s Stack, p Pending, results []numeric.Value) error {
	if len(results) != len(p.Func.Results) {
		return errors.New(errors.PhaseRuntime, errors.KindHost).
			Detail("%s returned %d values, want %d", p.Func.Name, len(results), len(p.Func.Results)).Build()
	}
	for i, r := range results {
		if r.Type != p.Func.Results[i] {
			return errors.TypeMismatch(errors.PhaseRuntime, p.Func.Name, p.Func.Results[i].String(), r.Type.String())
		}
	}
	if _, err := s.Pop(t.ArgWords(p.Func) + 1); err != nil {
		return err
	}
	words := t.Layout.EncodeAll(results)
	sp := s.SP()
	if uint32(len(words))+1 > sp {
		return errors.New(errors.PhaseRuntime, errors.KindHost).
			Detail("no room reserved for %d result words", len(words)).Build()
	}
	copy(s.Data()[sp-1-uint32(len(words)):sp-1], words)
	return nil
}
