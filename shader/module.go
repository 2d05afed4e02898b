package shader

import (
	"fmt"
)

// Buffer is a storage buffer of u32 words.
type Buffer struct {
	Name    string
	Binding uint32
}

// Variable is a typed name: a function parameter, local or module private.
// Locals and privates start at zero.
type Variable struct {
	Name string
	Type Type
}

// Function is a shader function. It may only call functions that precede it
// in the module, which keeps the call graph acyclic.
type Function struct {
	Name    string
	Params  []Variable
	Results []Type
	Locals  []Variable
	Body    []Stmt
}

// EntryPoint is a compute entry point running a parameterless function.
type EntryPoint struct {
	Name      string
	Function  string
	Workgroup [3]uint32
}

// Module is a complete shader module.
type Module struct {
	Buffers     []Buffer
	Privates    []Variable
	Functions   []*Function
	EntryPoints []EntryPoint

	index map[string]int
}

// AddFunction appends f. Names must be unique.
func (m *Module) AddFunction(f *Function) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	m.index[f.Name] = len(m.Functions)
	m.Functions = append(m.Functions, f)
}

// Function returns the function with the given name.
func (m *Module) Function(name string) (*Function, bool) {
	if m.index == nil {
		m.reindex()
	}
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return m.Functions[i], true
}

func (m *Module) reindex() {
	m.index = make(map[string]int, len(m.Functions))
	for i, f := range m.Functions {
		m.index[f.Name] = i
	}
}

// CallGraph returns the callees of every function, in call order.
func (m *Module) CallGraph() map[string][]string {
	g := make(map[string][]string, len(m.Functions))
	for _, f := range m.Functions {
		var calls []string
		walkStmts(f.Body, func(s Stmt) {
			if c, ok := s.(*Call); ok {
				calls = append(calls, c.Func)
			}
		})
		g[f.Name] = calls
	}
	return g
}

// Validate checks that names are unique, that every call targets an
// earlier function with matching arity, and that entry points name
// parameterless functions.
func (m *Module) Validate() error {
	m.reindex()
	if len(m.index) != len(m.Functions) {
		return fmt.Errorf("duplicate function names")
	}
	for i, f := range m.Functions {
		var err error
		walkStmts(f.Body, func(s Stmt) {
			c, ok := s.(*Call)
			if !ok || err != nil {
				return
			}
			j, ok := m.index[c.Func]
			switch {
			case !ok:
				err = fmt.Errorf("%s calls undefined function %s", f.Name, c.Func)
			case j >= i:
				err = fmt.Errorf("%s calls %s, which is not defined before it", f.Name, c.Func)
			case len(c.Args) != len(m.Functions[j].Params) || len(c.Results) != len(m.Functions[j].Results):
				err = fmt.Errorf("%s calls %s with wrong arity", f.Name, c.Func)
			}
		})
		if err != nil {
			return err
		}
	}
	for _, ep := range m.EntryPoints {
		f, ok := m.Function(ep.Function)
		if !ok {
			return fmt.Errorf("entry point %s names undefined function %s", ep.Name, ep.Function)
		}
		if len(f.Params) != 0 || len(f.Results) != 0 {
			return fmt.Errorf("entry point %s function %s must take and return nothing", ep.Name, ep.Function)
		}
	}
	return nil
}

func walkStmts(body []Stmt, fn func(Stmt)) {
	for _, s := range body {
		fn(s)
		switch s := s.(type) {
		case *If:
			walkStmts(s.Then, fn)
			walkStmts(s.Else, fn)
		case *Block:
			walkStmts(s.Body, fn)
		case *Loop:
			walkStmts(s.Body, fn)
		case *Switch:
			for _, c := range s.Cases {
				walkStmts(c.Body, fn)
			}
			walkStmts(s.Default, fn)
		}
	}
}
