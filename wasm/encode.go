package wasm

import "bytes"

type writer struct {
	bytes.Buffer
}

func (w *writer) u32(v uint32) { WriteLEB128u(&w.Buffer, v) }

func (w *writer) name(s string) {
	w.u32(uint32(len(s)))
	w.WriteString(s)
}

func (w *writer) valTypes(types []ValType) {
	w.u32(uint32(len(types)))
	for _, t := range types {
		w.WriteByte(byte(t))
	}
}

func (w *writer) limits(l Limits) {
	if l.Max != nil {
		w.WriteByte(0x01)
		w.u32(uint32(l.Min))
		w.u32(uint32(*l.Max))
		return
	}
	w.WriteByte(0x00)
	w.u32(uint32(l.Min))
}

func (w *writer) globalType(g GlobalType) {
	w.WriteByte(byte(g.ValType))
	if g.Mutable {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

func (w *writer) section(id byte, n int, each func(sec *writer, i int)) {
	if n == 0 {
		return
	}
	var sec writer
	sec.u32(uint32(n))
	for i := 0; i < n; i++ {
		each(&sec, i)
	}
	w.WriteByte(id)
	w.u32(uint32(sec.Len()))
	w.Write(sec.Bytes())
}

// Encode encodes the module to the WebAssembly binary format.
func (m *Module) Encode() []byte {
	var w writer
	for _, v := range []uint32{Magic, Version} {
		w.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
	}

	w.section(SectionType, len(m.Types), func(sec *writer, i int) {
		sec.WriteByte(FuncTypeByte)
		sec.valTypes(m.Types[i].Params)
		sec.valTypes(m.Types[i].Results)
	})

	w.section(SectionImport, len(m.Imports), func(sec *writer, i int) {
		imp := m.Imports[i]
		sec.name(imp.Module)
		sec.name(imp.Name)
		sec.WriteByte(imp.Desc.Kind)
		switch imp.Desc.Kind {
		case KindFunc:
			sec.u32(imp.Desc.TypeIdx)
		case KindTable:
			sec.WriteByte(imp.Desc.Table.ElemType)
			sec.limits(imp.Desc.Table.Limits)
		case KindMemory:
			sec.limits(*imp.Desc.Memory)
		case KindGlobal:
			sec.globalType(*imp.Desc.Global)
		}
	})

	w.section(SectionFunction, len(m.Funcs), func(sec *writer, i int) {
		sec.u32(m.Funcs[i])
	})

	w.section(SectionTable, len(m.Tables), func(sec *writer, i int) {
		sec.WriteByte(m.Tables[i].ElemType)
		sec.limits(m.Tables[i].Limits)
	})

	w.section(SectionMemory, len(m.Memories), func(sec *writer, i int) {
		sec.limits(m.Memories[i])
	})

	w.section(SectionGlobal, len(m.Globals), func(sec *writer, i int) {
		sec.globalType(m.Globals[i].Type)
		sec.Write(m.Globals[i].Init)
	})

	w.section(SectionExport, len(m.Exports), func(sec *writer, i int) {
		sec.name(m.Exports[i].Name)
		sec.WriteByte(m.Exports[i].Kind)
		sec.u32(m.Exports[i].Idx)
	})

	if m.Start != nil {
		var sec writer
		sec.u32(*m.Start)
		w.WriteByte(SectionStart)
		w.u32(uint32(sec.Len()))
		w.Write(sec.Bytes())
	}

	w.section(SectionCode, len(m.Code), func(sec *writer, i int) {
		var body writer
		body.u32(uint32(len(m.Code[i].Locals)))
		for _, l := range m.Code[i].Locals {
			body.u32(l.Count)
			body.WriteByte(byte(l.ValType))
		}
		body.Write(m.Code[i].Code)
		sec.u32(uint32(body.Len()))
		sec.Write(body.Bytes())
	})

	return w.Bytes()
}
