// Package gateway defines the BlockID address space, the per-lane stack
// buffer layout and the host side of the yield/resume handshake.
//
// BlockIDs with the high bit clear address generated child blocks. BlockIDs
// with the high bit set address host functions: imported function calls,
// call_indirect dispatch per type, and memory size/grow. When the brain finds
// a host BlockID on top of a lane's stack it exits with a nonzero stack
// pointer. The host reads the argument words below the BlockID, performs the
// operation, writes the results with Complete and re-invokes the resume entry
// point. A lane that exits with a zero stack pointer has finished.
package gateway

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/errors"
)

// BlockID addresses a child block or a host function on the emulated stack.
type BlockID uint32

const (
	// HostBit marks host function BlockIDs.
	HostBit BlockID = 1 << 31

	// MaxChildBlocks is the size of the child block half of the space.
	MaxChildBlocks uint64 = 1 << 31
)

// HostID returns the n-th host BlockID.
func HostID(n uint32) BlockID {
	return HostBit | BlockID(n)
}

// IsHost reports whether id addresses a host function.
func (id BlockID) IsHost() bool {
	return id&HostBit != 0
}

// Index returns id without the host bit.
func (id BlockID) Index() uint32 {
	return uint32(id &^ HostBit)
}

func (id BlockID) String() string {
	if id.IsHost() {
		return fmt.Sprintf("host#%d", id.Index())
	}
	return fmt.Sprintf("blk#%d", uint32(id))
}

// Allocator hands out child BlockIDs from a single module-wide counter.
type Allocator struct {
	next  uint64
	limit uint64
}

// NewAllocator returns an allocator bounded by limit, which is clamped to
// MaxChildBlocks. A zero limit means MaxChildBlocks.
func NewAllocator(limit uint64) *Allocator {
	if limit == 0 || limit > MaxChildBlocks {
		limit = MaxChildBlocks
	}
	return &Allocator{limit: limit}
}

// Next returns the next unused child BlockID.
func (a *Allocator) Next() (BlockID, error) {
	if a.next >= a.limit {
		return 0, errors.Capacity(errors.PhaseSplit, "child block ids", a.next+1, a.limit)
	}
	id := BlockID(a.next)
	a.next++
	return id, nil
}

// Count returns the number of BlockIDs handed out.
func (a *Allocator) Count() uint32 {
	return uint32(a.next)
}
