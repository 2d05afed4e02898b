package numeric

// SplitI64 splits a 64-bit pattern into [lo, hi] words.
func SplitI64(v uint64) [2]uint32 {
	return [2]uint32{uint32(v), uint32(v >> 32)}
}

// JoinI64 reassembles [lo, hi] words.
func JoinI64(w [2]uint32) uint64 {
	return uint64(w[0]) | uint64(w[1])<<32
}

// AddI64 adds two emulated i64 values, propagating the carry from the low word.
func AddI64(a, b [2]uint32) [2]uint32 {
	lo := a[0] + b[0]
	var carry uint32
	if lo < a[0] {
		carry = 1
	}
	return [2]uint32{lo, a[1] + b[1] + carry}
}

// SubI64 subtracts b from a, propagating the borrow from the low word.
func SubI64(a, b [2]uint32) [2]uint32 {
	var borrow uint32
	if a[0] < b[0] {
		borrow = 1
	}
	return [2]uint32{a[0] - b[0], a[1] - b[1] - borrow}
}

// LessI64 compares two emulated i64 values word-wise.
func LessI64(a, b [2]uint32, signed bool) bool {
	if a[1] != b[1] {
		if signed {
			return int32(a[1]) < int32(b[1])
		}
		return a[1] < b[1]
	}
	return a[0] < b[0]
}
