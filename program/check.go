package program

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/errors"
	"github.com/LucentFlux/wasm-gpu/numeric"
	"github.com/LucentFlux/wasm-gpu/wasm"
)

// Check type-checks f's body: every instruction's operands, every branch's
// carried values and every construct's results must match the declared
// types. Mismatches are malformed-module errors; instructions outside the
// supported set are unsupported errors.
func (p *Program) Check(f *Function) error {
	if f.Err != nil {
		return f.Err
	}
	c := &checker{p: p, f: f}
	c.labels = [][]numeric.ValueType{f.Type.Results}
	return c.seq(f.Body, nil, f.Type.Results)
}

type checker struct {
	p      *Program
	f      *Function
	labels [][]numeric.ValueType
}

func (c *checker) mismatch(want []numeric.ValueType, got TypeStack) error {
	return errors.TypeMismatch(errors.PhaseSplit, c.f.Name, fmt.Sprint(want), fmt.Sprint([]numeric.ValueType(got)))
}

func (c *checker) label(depth uint32) ([]numeric.ValueType, error) {
	if int(depth) >= len(c.labels) {
		return nil, errors.Malformed(errors.PhaseSplit, "%s: branch depth %d exceeds nesting %d", c.f.Name, depth, len(c.labels))
	}
	return c.labels[len(c.labels)-1-int(depth)], nil
}

// carries checks that the top of stack holds want.
func (c *checker) carries(stack TypeStack, want []numeric.ValueType) error {
	if len(stack) < len(want) || !TypeStack(stack.Top(len(want))).Equal(want) {
		return c.mismatch(want, stack)
	}
	return nil
}

// seq checks a sequence starting from params and ending with results.
func (c *checker) seq(s *Seq, params, results []numeric.ValueType) error {
	stack := TypeStack(append([]numeric.ValueType(nil), params...))
	for _, n := range s.Children {
		switch n := n.(type) {
		case *Block:
			if err := stack.PopTypes(c.f.Name, n.Params); err != nil {
				return err
			}
			c.labels = append(c.labels, n.LabelTypes())
			err := c.seq(n.Body, n.Params, n.Results)
			c.labels = c.labels[:len(c.labels)-1]
			if err != nil {
				return err
			}
			stack = append(stack, n.Results...)

		case *If:
			if err := stack.PopTypes(c.f.Name, []numeric.ValueType{numeric.I32}); err != nil {
				return err
			}
			if err := stack.PopTypes(c.f.Name, n.Params); err != nil {
				return err
			}
			if n.Else == nil && !TypeStack(n.Params).Equal(n.Results) {
				return errors.Malformed(errors.PhaseSplit, "%s: if without else must not change the stack", c.f.Name)
			}
			c.labels = append(c.labels, n.Results)
			err := c.seq(n.Then, n.Params, n.Results)
			if err == nil && n.Else != nil {
				err = c.seq(n.Else, n.Params, n.Results)
			}
			c.labels = c.labels[:len(c.labels)-1]
			if err != nil {
				return err
			}
			stack = append(stack, n.Results...)

		case *Instr:
			done, err := c.instr(n.Instruction, &stack)
			if err != nil {
				return err
			}
			if done {
				// The parser drops code after a terminal instruction.
				return nil
			}
		}
	}
	if !stack.Equal(results) {
		return c.mismatch(results, stack)
	}
	return nil
}

// instr checks one instruction. It reports whether control cannot fall through.
func (c *checker) instr(in wasm.Instruction, stack *TypeStack) (bool, error) {
	eff, err := c.p.Effect(c.f, in, *stack)
	if err != nil {
		return false, err
	}
	if err := stack.Apply(c.f.Name, eff); err != nil {
		return false, err
	}

	switch in.Opcode {
	case wasm.OpBr, wasm.OpBrIf:
		want, err := c.label(in.Imm.(wasm.BranchImm).LabelIdx)
		if err != nil {
			return false, err
		}
		if err := c.carries(*stack, want); err != nil {
			return false, err
		}
		return in.Opcode == wasm.OpBr, nil

	case wasm.OpBrTable:
		imm := in.Imm.(wasm.BrTableImm)
		want, err := c.label(imm.Default)
		if err != nil {
			return false, err
		}
		for _, l := range imm.Labels {
			got, err := c.label(l)
			if err != nil {
				return false, err
			}
			if !TypeStack(got).Equal(want) {
				return false, errors.Malformed(errors.PhaseSplit, "%s: br_table labels carry different types", c.f.Name)
			}
		}
		return true, c.carries(*stack, want)

	case wasm.OpReturn:
		return true, c.carries(*stack, c.f.Type.Results)

	case wasm.OpUnreachable:
		return true, nil
	}
	return false, nil
}
