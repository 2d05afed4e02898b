package program

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

// Node is a node of a function's structured control-flow tree.
type Node interface {
	node()
}

// Seq is an instruction sequence. Code following an unconditional transfer
// (br, br_table, return, unreachable) is dropped during parsing.
type Seq struct {
	Children []Node
}

// Block is a block or loop construct. A branch to a block exits it; a branch
// to a loop re-enters it from the top.
type Block struct {
	Body    *Seq
	Params  []numeric.ValueType
	Results []numeric.ValueType
	Loop    bool
}

// If is an if/else construct. Else is nil when absent.
type If struct {
	Then    *Seq
	Else    *Seq
	Params  []numeric.ValueType
	Results []numeric.ValueType
}

// Instr is a single non-structured instruction.
type Instr struct {
	wasm.Instruction
}

func (*Seq) node()   {}
func (*Block) node() {}
func (*If) node()    {}
func (*Instr) node() {}

// LabelTypes returns the types carried by a branch to this construct.
func (b *Block) LabelTypes() []numeric.ValueType {
	if b.Loop {
		return b.Params
	}
	return b.Results
}

// Terminal reports whether the instruction unconditionally transfers control.
func Terminal(op byte) bool {
	switch op {
	case wasm.OpBr, wasm.OpBrTable, wasm.OpReturn, wasm.OpUnreachable:
		return true
	}
	return false
}

// Parse converts a linear instruction stream, ending with the function's
// final end, into a tree. Block types referencing a type index are resolved
// against types.
func Parse(instrs []wasm.Instruction, types []wasm.FuncType) (*Seq, error) {
	p := &parser{instrs: instrs, types: types}
	body, term, err := p.parseSeq()
	if err != nil {
		return nil, err
	}
	if term != wasm.OpEnd {
		return nil, fmt.Errorf("function body not terminated by end")
	}
	if p.pos != len(instrs) {
		return nil, fmt.Errorf("%d instructions after final end", len(instrs)-p.pos)
	}
	return body, nil
}

type parser struct {
	instrs []wasm.Instruction
	types  []wasm.FuncType
	pos    int
}

// parseSeq consumes instructions up to and including the matching end or
// else, returning which of the two terminated the sequence.
func (p *parser) parseSeq() (*Seq, byte, error) {
	seq := &Seq{}
	dead := false
	keep := func(n Node) {
		if !dead {
			seq.Children = append(seq.Children, n)
		}
	}

	for p.pos < len(p.instrs) {
		instr := p.instrs[p.pos]

		switch instr.Opcode {
		case wasm.OpEnd, wasm.OpElse:
			p.pos++
			return seq, instr.Opcode, nil

		case wasm.OpBlock, wasm.OpLoop:
			n, err := p.parseBlock()
			if err != nil {
				return nil, 0, err
			}
			keep(n)

		case wasm.OpIf:
			n, err := p.parseIf()
			if err != nil {
				return nil, 0, err
			}
			keep(n)

		default:
			p.pos++
			if instr.Opcode == wasm.OpNop {
				continue
			}
			keep(&Instr{Instruction: instr})
			if Terminal(instr.Opcode) {
				dead = true
			}
		}
	}

	return nil, 0, fmt.Errorf("unexpected end of code at instruction %d", p.pos)
}

func (p *parser) parseBlock() (Node, error) {
	instr := p.instrs[p.pos]
	p.pos++
	params, results, err := p.blockType(instr.Imm.(wasm.BlockImm).Type)
	if err != nil {
		return nil, err
	}
	body, term, err := p.parseSeq()
	if err != nil {
		return nil, err
	}
	if term != wasm.OpEnd {
		return nil, fmt.Errorf("else without if at instruction %d", p.pos-1)
	}
	return &Block{
		Body:    body,
		Params:  params,
		Results: results,
		Loop:    instr.Opcode == wasm.OpLoop,
	}, nil
}

func (p *parser) parseIf() (Node, error) {
	instr := p.instrs[p.pos]
	p.pos++
	params, results, err := p.blockType(instr.Imm.(wasm.BlockImm).Type)
	if err != nil {
		return nil, err
	}

	then, term, err := p.parseSeq()
	if err != nil {
		return nil, err
	}
	n := &If{Then: then, Params: params, Results: results}
	if term == wasm.OpElse {
		els, term, err := p.parseSeq()
		if err != nil {
			return nil, err
		}
		if term != wasm.OpEnd {
			return nil, fmt.Errorf("duplicate else at instruction %d", p.pos-1)
		}
		n.Else = els
	}
	return n, nil
}

// blockType converts a block type to param and result types.
func (p *parser) blockType(bt int32) (params, results []numeric.ValueType, err error) {
	switch bt {
	case wasm.BlockTypeVoid:
		return nil, nil, nil
	case wasm.BlockTypeI32:
		return nil, []numeric.ValueType{numeric.I32}, nil
	case wasm.BlockTypeI64:
		return nil, []numeric.ValueType{numeric.I64}, nil
	case wasm.BlockTypeF32:
		return nil, []numeric.ValueType{numeric.F32}, nil
	case wasm.BlockTypeF64:
		return nil, []numeric.ValueType{numeric.F64}, nil
	case wasm.BlockTypeV128:
		return nil, []numeric.ValueType{numeric.V128}, nil
	}
	if bt < 0 || int(bt) >= len(p.types) {
		return nil, nil, fmt.Errorf("block type %d out of range", bt)
	}
	sig, err := convertSig(p.types[bt])
	if err != nil {
		return nil, nil, err
	}
	return sig.Params, sig.Results, nil
}
