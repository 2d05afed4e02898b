package compiler

import "github.com/LucentFlux/wasm-gpu/gateway"

// Config controls code generation. The zero value is usable; Defaults fills
// unset fields.
type Config struct {
	// Exports restricts the generated entry points to these export names.
	// Empty means every exported function.
	Exports []string

	// WorkgroupSize of every compute entry point.
	WorkgroupSize [3]uint32

	// StackWords is the per-lane stack capacity in data words.
	StackWords uint32

	// MaxBlockIDs bounds the number of child BlockIDs.
	MaxBlockIDs uint64

	// HardwareF64 stores f64 natively instead of as an emulated triple.
	HardwareF64 bool

	// SkipUnsupported drops functions using unsupported constructs, and
	// their callers, instead of failing the module.
	SkipUnsupported bool
}

// Default values.
const (
	DefaultStackWords = 1 << 16
	DefaultWorkgroup  = 256
)

// Defaults returns c with unset fields filled in.
func (c Config) Defaults() Config {
	if c.WorkgroupSize == [3]uint32{} {
		c.WorkgroupSize = [3]uint32{DefaultWorkgroup, 1, 1}
	}
	for i := range c.WorkgroupSize {
		if c.WorkgroupSize[i] == 0 {
			c.WorkgroupSize[i] = 1
		}
	}
	if c.StackWords == 0 {
		c.StackWords = DefaultStackWords
	}
	if c.MaxBlockIDs == 0 || c.MaxBlockIDs > gateway.MaxChildBlocks {
		c.MaxBlockIDs = gateway.MaxChildBlocks
	}
	return c
}

func (c Config) wantExport(name string) bool {
	if len(c.Exports) == 0 {
		return true
	}
	for _, e := range c.Exports {
		if e == name {
			return true
		}
	}
	return false
}
