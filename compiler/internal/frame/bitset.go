package frame

import "math/bits"

// BitSet is a set of local indices.
type BitSet struct {
	words []uint64
}

// NewBitSet creates a set sized for values below n.
func NewBitSet(n int) *BitSet {
	return &BitSet{words: make([]uint64, (n+63)/64)}
}

// Set adds v.
func (b *BitSet) Set(v uint32) {
	w := int(v / 64)
	if w >= len(b.words) {
		grown := make([]uint64, w+1)
		copy(grown, b.words)
		b.words = grown
	}
	b.words[w] |= 1 << (v % 64)
}

// Has reports whether v is in the set.
func (b *BitSet) Has(v uint32) bool {
	w := int(v / 64)
	return w < len(b.words) && b.words[w]&(1<<(v%64)) != 0
}

// Union adds every element of other and reports whether b changed.
func (b *BitSet) Union(other *BitSet) bool {
	if len(other.words) > len(b.words) {
		grown := make([]uint64, len(other.words))
		copy(grown, b.words)
		b.words = grown
	}
	changed := false
	for i, w := range other.words {
		if b.words[i]|w != b.words[i] {
			b.words[i] |= w
			changed = true
		}
	}
	return changed
}

// UnionMinus adds every element of other that is not in minus and reports
// whether b changed.
func (b *BitSet) UnionMinus(other, minus *BitSet) bool {
	tmp := other.Clone()
	for i := range tmp.words {
		if i < len(minus.words) {
			tmp.words[i] &^= minus.words[i]
		}
	}
	return b.Union(tmp)
}

// Clone copies the set.
func (b *BitSet) Clone() *BitSet {
	return &BitSet{words: append([]uint64(nil), b.words...)}
}

// Slice returns the elements in ascending order.
func (b *BitSet) Slice() []uint32 {
	var out []uint32
	for i, w := range b.words {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			out = append(out, uint32(i*64+bit))
			w &= w - 1
		}
	}
	return out
}

// Count returns the number of elements.
func (b *BitSet) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}
