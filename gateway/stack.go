package gateway

import (
	"github.com/LucentFlux/wasm-gpu/errors"
)

// Per-lane stack buffer header. The data region follows the header and the
// stack pointer counts data words.
const (
	HeaderSP    = 0
	HeaderTrap  = 1
	HeaderWords = 2
)

// Stack is a view of one lane's region of the stack buffer: the header
// followed by the data words. The entire region is the lane's resumable state.
type Stack []uint32

// NewStack allocates a lane region with capacity data words.
func NewStack(capacity uint32) Stack {
	return make(Stack, HeaderWords+int(capacity))
}

// Capacity returns the number of data words.
func (s Stack) Capacity() uint32 {
	return uint32(len(s) - HeaderWords)
}

// SP returns the stack pointer.
func (s Stack) SP() uint32 { return s[HeaderSP] }

// SetSP sets the stack pointer.
func (s Stack) SetSP(sp uint32) { s[HeaderSP] = sp }

// Trap returns the lane's trap code.
func (s Stack) Trap() TrapCode { return TrapCode(s[HeaderTrap]) }

// SetTrap records a trap code.
func (s Stack) SetTrap(c TrapCode) { s[HeaderTrap] = uint32(c) }

// Data returns the data region.
func (s Stack) Data() []uint32 { return s[HeaderWords:] }

// Top returns the BlockID on top of the stack. The stack must be nonempty.
func (s Stack) Top() BlockID {
	return BlockID(s[HeaderWords+int(s.SP())-1])
}

// Push appends words, failing with a stack overflow when they do not fit.
func (s Stack) Push(words ...uint32) error {
	sp := s.SP()
	if uint64(sp)+uint64(len(words)) > uint64(s.Capacity()) {
		return errors.New(errors.PhaseRuntime, errors.KindStackOverflow).
			Detail("push of %d words at sp %d exceeds %d", len(words), sp, s.Capacity()).Build()
	}
	copy(s[HeaderWords+int(sp):], words)
	s.SetSP(sp + uint32(len(words)))
	return nil
}

// Pop removes n words and returns them.
func (s Stack) Pop(n uint32) ([]uint32, error) {
	sp := s.SP()
	if n > sp {
		return nil, errors.New(errors.PhaseRuntime, errors.KindStackOverflow).
			Detail("pop of %d words at sp %d", n, sp).Build()
	}
	out := make([]uint32, n)
	copy(out, s[HeaderWords+int(sp-n):HeaderWords+int(sp)])
	s.SetSP(sp - n)
	return out, nil
}

// Reset clears the header so the region can start a new invocation.
func (s Stack) Reset() {
	s[HeaderSP] = 0
	s[HeaderTrap] = 0
}

// Clone copies the lane region.
func (s Stack) Clone() Stack {
	return append(Stack(nil), s...)
}
