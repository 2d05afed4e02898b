package wasm

// Module is the subset of a parsed WebAssembly module that the compiler consumes.
// Element, data and custom sections are skipped during parsing.
type Module struct {
	Start    *uint32
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type indices of defined functions
	Tables   []TableType
	Memories []Limits
	Globals  []Global
	Exports  []Export
	Code     []FuncBody
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures are identical.
func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

// ValType is a WebAssembly value type byte.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	default:
		return "unknown"
	}
}

// Import is an imported function, table, memory or global.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ImportDesc describes an imported item. Only the field matching Kind is set.
type ImportDesc struct {
	Table   *TableType
	Memory  *Limits
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// Limits bounds a table or memory.
type Limits struct {
	Max *uint64
	Min uint64
}

// TableType describes a table.
type TableType struct {
	Limits   Limits
	ElemType byte
}

// GlobalType is the type of a global variable.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a defined global with its constant initializer
// (raw instruction bytes including the trailing end).
type Global struct {
	Init []byte
	Type GlobalType
}

// Export is an exported item.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// FuncBody holds the locals declarations and code of a defined function.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// LocalEntry is a run-length encoded group of locals.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// NumImportedFuncs returns the number of imported functions.
// Defined functions are indexed after all imported ones.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			n++
		}
	}
	return n
}

// NumImportedMemories returns the number of imported memories.
func (m *Module) NumImportedMemories() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory {
			n++
		}
	}
	return n
}

// NumImportedGlobals returns the number of imported globals.
func (m *Module) NumImportedGlobals() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal {
			n++
		}
	}
	return n
}

// FuncTypeAt returns the signature of the function at the given index
// in the combined import+defined function index space.
func (m *Module) FuncTypeAt(funcIdx uint32) (*FuncType, bool) {
	var typeIdx uint32
	found := false
	n := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if n == funcIdx {
			typeIdx = imp.Desc.TypeIdx
			found = true
			break
		}
		n++
	}
	if !found {
		local := funcIdx - n
		if funcIdx < n || int(local) >= len(m.Funcs) {
			return nil, false
		}
		typeIdx = m.Funcs[local]
	}
	if int(typeIdx) >= len(m.Types) {
		return nil, false
	}
	return &m.Types[typeIdx], true
}

// ExportedFunc looks up an exported function index by name.
func (m *Module) ExportedFunc(name string) (uint32, bool) {
	for _, e := range m.Exports {
		if e.Kind == KindFunc && e.Name == name {
			return e.Idx, true
		}
	}
	return 0, false
}
