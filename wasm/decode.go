package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

type reader struct {
	*bytes.Reader
}

func newReader(data []byte) reader {
	return reader{bytes.NewReader(data)}
}

func (r reader) u32() (uint32, error) {
	return ReadLEB128u(r)
}

func (r reader) u32le() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

func (r reader) bytes(n uint32) ([]byte, error) {
	if int64(n) > int64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	out := make([]byte, n)
	_, err := io.ReadFull(r, out)
	return out, err
}

func (r reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(n)
	return string(b), err
}

func (r reader) vec(each func() error) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	if int64(count) > int64(r.Len()) {
		return fmt.Errorf("vector length %d exceeds section", count)
	}
	for i := uint32(0); i < count; i++ {
		if err := each(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// ParseModule parses a WebAssembly binary module.
func ParseModule(data []byte) (*Module, error) {
	r := newReader(data)

	magic, err := r.u32le()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.u32le()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	var last byte
	for r.Len() > 0 {
		id, _ := r.ReadByte()
		size, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("section %d size: %w", id, err)
		}
		body, err := r.bytes(size)
		if err != nil {
			return nil, fmt.Errorf("section %d data: %w", id, err)
		}
		if id == SectionCustom {
			continue
		}
		if sectionOrder(id) <= sectionOrder(last) {
			return nil, fmt.Errorf("section %d appears out of order", id)
		}
		last = id

		sr := newReader(body)
		switch id {
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = sr.vec(func() error {
				idx, err := sr.u32()
				m.Funcs = append(m.Funcs, idx)
				return err
			})
		case SectionTable:
			err = sr.vec(func() error {
				t, err := readTableType(sr)
				m.Tables = append(m.Tables, t)
				return err
			})
		case SectionMemory:
			err = sr.vec(func() error {
				l, err := readLimits(sr)
				m.Memories = append(m.Memories, l)
				return err
			})
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			var idx uint32
			idx, err = sr.u32()
			m.Start = &idx
		case SectionCode:
			err = parseCodeSection(sr, m)
		case SectionElement, SectionData, SectionDataCount:
			// contents are not needed to compile function bodies
		default:
			return nil, fmt.Errorf("unknown section ID: 0x%02x", id)
		}
		if err != nil {
			return nil, fmt.Errorf("%s section: %w", sectionName(id), err)
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, fmt.Errorf("function count %d does not match code count %d", len(m.Funcs), len(m.Code))
	}
	return m, nil
}

func sectionOrder(id byte) int {
	switch id {
	case SectionDataCount:
		return int(SectionCode) // DataCount precedes Code
	case SectionCode:
		return int(SectionCode) + 1
	case SectionData:
		return int(SectionCode) + 2
	default:
		return int(id)
	}
}

func sectionName(id byte) string {
	names := [...]string{"custom", "type", "import", "function", "table", "memory",
		"global", "export", "start", "element", "code", "data", "data count"}
	if int(id) < len(names) {
		return names[id]
	}
	return fmt.Sprintf("0x%02x", id)
}

func parseTypeSection(r reader, m *Module) error {
	return r.vec(func() error {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("expected functype (0x60), got 0x%02x", form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
		return nil
	})
}

func readValTypes(r reader) ([]ValType, error) {
	var out []ValType
	err := r.vec(func() error {
		b, err := r.ReadByte()
		out = append(out, ValType(b))
		return err
	})
	return out, err
}

func readLimits(r reader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	lo, err := r.u32()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Min: uint64(lo)}
	switch flag {
	case 0x00:
	case 0x01:
		hi, err := r.u32()
		if err != nil {
			return Limits{}, err
		}
		h := uint64(hi)
		l.Max = &h
	default:
		return Limits{}, fmt.Errorf("unsupported limits flag 0x%02x", flag)
	}
	return l, nil
}

func readTableType(r reader) (TableType, error) {
	elem, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	limits, err := readLimits(r)
	return TableType{ElemType: elem, Limits: limits}, err
}

func readGlobalType(r reader) (GlobalType, error) {
	vt, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid mutability 0x%02x", mut)
	}
	return GlobalType{ValType: ValType(vt), Mutable: mut == 1}, nil
}

func parseImportSection(r reader, m *Module) error {
	return r.vec(func() error {
		module, err := r.name()
		if err != nil {
			return err
		}
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp := Import{Module: module, Name: name, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.u32()
		case KindTable:
			var t TableType
			t, err = readTableType(r)
			imp.Desc.Table = &t
		case KindMemory:
			var l Limits
			l, err = readLimits(r)
			imp.Desc.Memory = &l
		case KindGlobal:
			var g GlobalType
			g, err = readGlobalType(r)
			imp.Desc.Global = &g
		default:
			return fmt.Errorf("unknown import kind: %d", kind)
		}
		m.Imports = append(m.Imports, imp)
		return err
	})
}

func parseGlobalSection(r reader, m *Module) error {
	return r.vec(func() error {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readConstExpr(r)
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
		return nil
	})
}

// readConstExpr reads a single-instruction constant expression plus its end.
func readConstExpr(r reader) ([]byte, error) {
	start := r.Size() - int64(r.Len())
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch op {
	case OpI32Const:
		_, err = ReadLEB128s(r)
	case OpI64Const:
		_, err = ReadLEB128s64(r)
	case OpF32Const:
		_, err = readFloat32(r)
	case OpF64Const:
		_, err = readFloat64(r)
	case OpGlobalGet:
		_, err = r.u32()
	default:
		return nil, fmt.Errorf("unsupported constant expression opcode 0x%02x", op)
	}
	if err != nil {
		return nil, err
	}
	end, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if end != OpEnd {
		return nil, fmt.Errorf("constant expression not terminated")
	}
	stop := r.Size() - int64(r.Len())
	out := make([]byte, stop-start)
	_, err = r.ReadAt(out, start)
	return out, err
}

func parseExportSection(r reader, m *Module) error {
	return r.vec(func() error {
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindGlobal {
			return fmt.Errorf("invalid export kind: 0x%02x", kind)
		}
		idx, err := r.u32()
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
		return err
	})
}

func parseCodeSection(r reader, m *Module) error {
	return r.vec(func() error {
		size, err := r.u32()
		if err != nil {
			return err
		}
		data, err := r.bytes(size)
		if err != nil {
			return err
		}
		br := newReader(data)
		var locals []LocalEntry
		var total uint64
		err = br.vec(func() error {
			n, err := br.u32()
			if err != nil {
				return err
			}
			t, err := br.ReadByte()
			total += uint64(n)
			locals = append(locals, LocalEntry{Count: n, ValType: ValType(t)})
			return err
		})
		if err != nil {
			return err
		}
		if total > 50000 {
			return fmt.Errorf("too many locals: %d", total)
		}
		code, err := br.bytes(uint32(br.Len()))
		if err != nil {
			return err
		}
		m.Code = append(m.Code, FuncBody{Locals: locals, Code: code})
		return nil
	})
}
